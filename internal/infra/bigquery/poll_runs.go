package bigquery

import (
	"time"
	"unicode/utf8"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/bank-forwarder/internal/runs"
)

// maxErrorLen bounds error_message values, in bytes.
const maxErrorLen = 2000

type PollRunRow struct {
	RunID   string `bigquery:"run_id"`   // REQUIRED
	CycleID string `bigquery:"cycle_id"` // REQUIRED

	Stream string `bigquery:"stream"` // REQUIRED
	Kind   string `bigquery:"kind"`   // REQUIRED
	Status string `bigquery:"status"` // REQUIRED

	Fetched        int64 `bigquery:"fetched"`
	Additions      int64 `bigquery:"additions"`
	Matches        int64 `bigquery:"matches"`
	Deletions      int64 `bigquery:"deletions"`
	Notified       int64 `bigquery:"notified"`
	NotifyFailures int64 `bigquery:"notify_failures"`
	Persisted      bool  `bigquery:"persisted"`

	ErrorClass   bigquery.NullString `bigquery:"error_class"`   // NULLABLE
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE

	StartedTS  time.Time `bigquery:"started_ts"`  // REQUIRED
	FinishedTS time.Time `bigquery:"finished_ts"` // REQUIRED
}

// Save implements bigquery.ValueSaver. The run ID doubles as the insert ID
// so retried inserts are deduplicated.
func (r *PollRunRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"run_id":          r.RunID,
		"cycle_id":        r.CycleID,
		"stream":          r.Stream,
		"kind":            r.Kind,
		"status":          r.Status,
		"fetched":         r.Fetched,
		"additions":       r.Additions,
		"matches":         r.Matches,
		"deletions":       r.Deletions,
		"notified":        r.Notified,
		"notify_failures": r.NotifyFailures,
		"persisted":       r.Persisted,
		"error_class":     r.ErrorClass,
		"error_message":   r.ErrorMessage,
		"started_ts":      r.StartedTS,
		"finished_ts":     r.FinishedTS,
	}, r.RunID, nil
}

// PollRunRowFromRun converts a run into its table row.
func PollRunRowFromRun(run *runs.Run) *PollRunRow {
	msg := truncateUTF8(run.Error, maxErrorLen)
	return &PollRunRow{
		RunID:          run.RunID,
		CycleID:        run.CycleID,
		Stream:         run.Stream,
		Kind:           run.Kind,
		Status:         string(run.Status),
		Fetched:        int64(run.Fetched),
		Additions:      int64(run.Additions),
		Matches:        int64(run.Matches),
		Deletions:      int64(run.Deletions),
		Notified:       int64(run.Notified),
		NotifyFailures: int64(run.NotifyFailures),
		Persisted:      run.Persisted,
		ErrorClass:     bigquery.NullString{StringVal: run.ErrorClass, Valid: run.ErrorClass != ""},
		ErrorMessage:   bigquery.NullString{StringVal: msg, Valid: msg != ""},
		StartedTS:      run.StartedAt,
		FinishedTS:     run.FinishedAt,
	}
}

// Run converts the row back into a run.
func (r *PollRunRow) Run() *runs.Run {
	return &runs.Run{
		RunID:          r.RunID,
		CycleID:        r.CycleID,
		Stream:         r.Stream,
		Kind:           r.Kind,
		Status:         runs.Status(r.Status),
		Fetched:        int(r.Fetched),
		Additions:      int(r.Additions),
		Matches:        int(r.Matches),
		Deletions:      int(r.Deletions),
		Notified:       int(r.Notified),
		NotifyFailures: int(r.NotifyFailures),
		Persisted:      r.Persisted,
		ErrorClass:     r.ErrorClass.StringVal,
		Error:          r.ErrorMessage.StringVal,
		StartedAt:      r.StartedTS,
		FinishedAt:     r.FinishedTS,
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
