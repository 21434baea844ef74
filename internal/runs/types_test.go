package runs

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recorderFunc func(ctx context.Context, run *Run) error

func (f recorderFunc) RecordRun(ctx context.Context, run *Run) error { return f(ctx, run) }

func TestMultiRecorder(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	ok := recorderFunc(func(context.Context, *Run) error {
		calls++
		return nil
	})
	failing := recorderFunc(func(context.Context, *Run) error {
		calls++
		return boom
	})

	err := MultiRecorder{failing, ok}.RecordRun(context.Background(), &Run{RunID: "1"})

	if !errors.Is(err, boom) {
		t.Errorf("RecordRun() error = %v, want %v", err, boom)
	}
	if calls != 2 {
		t.Errorf("recorders called %d times, want 2", calls)
	}
}

func TestFilter_Matches(t *testing.T) {
	run := &Run{Stream: "a", Status: StatusFailed}
	tests := []struct {
		filter Filter
		want   bool
	}{
		{Filter{}, true},
		{Filter{Stream: "a"}, true},
		{Filter{Stream: "b"}, false},
		{Filter{Status: StatusFailed}, true},
		{Filter{Stream: "a", Status: StatusSucceeded}, false},
	}
	for _, tt := range tests {
		if got := tt.filter.Matches(run); got != tt.want {
			t.Errorf("%+v.Matches() = %v, want %v", tt.filter, got, tt.want)
		}
	}
}

func TestRun_Duration(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r := &Run{StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}
	if got := r.Duration(); got != 1500*time.Millisecond {
		t.Errorf("Duration() = %v", got)
	}
}
