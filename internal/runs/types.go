// Package runs records the outcome of every stream iteration of a poll cycle.
package runs

import (
	"context"
	"errors"
	"time"
)

// Status represents the outcome of a stream iteration.
type Status string

const (
	// StatusSucceeded means the stream was fetched, reconciled, notified and stored.
	StatusSucceeded Status = "succeeded"
	// StatusPartial means the snapshot was handled but some notifications
	// failed, or the store was skipped because of them.
	StatusPartial Status = "partial"
	// StatusFailed means the stream was skipped; ErrorClass says why.
	StatusFailed Status = "failed"
)

// Run is the record of one stream iteration.
type Run struct {
	// RunID is the unique identifier of this iteration.
	RunID string `json:"run_id"`

	// CycleID groups the iterations of one poll cycle.
	CycleID string `json:"cycle_id"`

	Stream string `json:"stream"`
	Kind   string `json:"kind"`

	Status Status `json:"status"`

	// Fetched is the size of the current snapshot.
	Fetched   int `json:"fetched"`
	Additions int `json:"additions"`
	Matches   int `json:"matches"`
	Deletions int `json:"deletions"`

	// Notified counts delivered notifications; NotifyFailures counts
	// (addition, target) deliveries that failed.
	Notified       int `json:"notified"`
	NotifyFailures int `json:"notify_failures"`

	// Persisted reports whether the current snapshot replaced the cache.
	Persisted bool `json:"persisted"`

	ErrorClass string `json:"error_class,omitempty"`
	Error      string `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall time the iteration took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Recorder receives finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run *Run) error
}

// Store keeps runs for later inspection.
type Store interface {
	Recorder

	// ListRuns returns runs matching filter, newest first.
	ListRuns(ctx context.Context, filter Filter) ([]*Run, error)
}

// Filter defines filtering criteria for listing runs.
type Filter struct {
	// Stream filters runs by stream key.
	Stream string

	// Status filters runs by status.
	Status Status

	// Limit limits the number of results. Zero means no limit.
	Limit int
}

// Matches reports whether run passes the stream and status filters.
func (f Filter) Matches(run *Run) bool {
	if f.Stream != "" && run.Stream != f.Stream {
		return false
	}
	if f.Status != "" && run.Status != f.Status {
		return false
	}
	return true
}

// MultiRecorder fans a run out to several recorders. Every recorder is
// called; their errors are joined.
type MultiRecorder []Recorder

// RecordRun implements Recorder.
func (m MultiRecorder) RecordRun(ctx context.Context, run *Run) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordRun(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
