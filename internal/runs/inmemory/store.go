package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/bank-forwarder/internal/runs"
)

// DefaultCapacity is the number of runs kept by NewStore.
const DefaultCapacity = 500

// Store is an in-memory implementation of runs.Store.
// It keeps the most recent runs and is safe for concurrent use.
// Data is lost on restart; the BigQuery run log keeps the full history.
type Store struct {
	mu       sync.RWMutex
	runs     []*runs.Run // oldest first
	capacity int
}

// NewStore creates a store keeping the last capacity runs. A non-positive
// capacity means DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// RecordRun implements the runs.Recorder interface.
func (s *Store) RecordRun(_ context.Context, run *runs.Run) error {
	if run.RunID == "" {
		return fmt.Errorf("run ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep a copy to avoid external modifications
	runCopy := *run
	s.runs = append(s.runs, &runCopy)
	if over := len(s.runs) - s.capacity; over > 0 {
		s.runs = append(s.runs[:0:0], s.runs[over:]...)
	}
	return nil
}

// ListRuns implements the runs.Store interface.
func (s *Store) ListRuns(_ context.Context, filter runs.Filter) ([]*runs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*runs.Run{}
	for i := len(s.runs) - 1; i >= 0; i-- {
		run := s.runs[i]
		if !filter.Matches(run) {
			continue
		}
		runCopy := *run
		result = append(result, &runCopy)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// Latest returns the most recent run of every stream, keyed by stream.
func (s *Store) Latest() map[string]*runs.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*runs.Run)
	for i := len(s.runs) - 1; i >= 0; i-- {
		run := s.runs[i]
		if _, ok := latest[run.Stream]; ok {
			continue
		}
		runCopy := *run
		latest[run.Stream] = &runCopy
	}
	return latest
}

// Ensure Store implements the runs.Store interface.
var _ runs.Store = (*Store)(nil)
