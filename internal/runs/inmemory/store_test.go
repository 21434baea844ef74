package inmemory

import (
	"context"
	"fmt"
	"testing"

	"github.com/dvloznov/bank-forwarder/internal/runs"
)

func TestStore_RecordAndList(t *testing.T) {
	ctx := context.Background()
	store := NewStore(0)

	for i, r := range []runs.Run{
		{RunID: "1", Stream: "a", Status: runs.StatusSucceeded},
		{RunID: "2", Stream: "b", Status: runs.StatusFailed},
		{RunID: "3", Stream: "a", Status: runs.StatusFailed},
	} {
		r := r
		if err := store.RecordRun(ctx, &r); err != nil {
			t.Fatalf("RecordRun(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter runs.Filter
		want   []string
	}{
		{name: "all newest first", filter: runs.Filter{}, want: []string{"3", "2", "1"}},
		{name: "by stream", filter: runs.Filter{Stream: "a"}, want: []string{"3", "1"}},
		{name: "by status", filter: runs.Filter{Status: runs.StatusFailed}, want: []string{"3", "2"}},
		{name: "limit", filter: runs.Filter{Limit: 1}, want: []string{"3"}},
		{name: "no match", filter: runs.Filter{Stream: "zzz"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListRuns(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListRuns() error = %v", err)
			}
			ids := []string{}
			for _, r := range got {
				ids = append(ids, r.RunID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("ListRuns() = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestStore_RequiresID(t *testing.T) {
	if err := NewStore(0).RecordRun(context.Background(), &runs.Run{Stream: "a"}); err == nil {
		t.Error("RecordRun() without ID error = nil")
	}
}

func TestStore_Capacity(t *testing.T) {
	ctx := context.Background()
	store := NewStore(2)
	for i := 1; i <= 3; i++ {
		if err := store.RecordRun(ctx, &runs.Run{RunID: fmt.Sprint(i), Stream: "a"}); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := store.ListRuns(ctx, runs.Filter{})
	if len(got) != 2 || got[0].RunID != "3" || got[1].RunID != "2" {
		t.Errorf("ListRuns() after overflow = %+v", got)
	}
}

func TestStore_CopiesRuns(t *testing.T) {
	ctx := context.Background()
	store := NewStore(0)
	run := &runs.Run{RunID: "1", Stream: "a", Additions: 1}
	_ = store.RecordRun(ctx, run)
	run.Additions = 99

	got, _ := store.ListRuns(ctx, runs.Filter{})
	got[0].Additions = 42

	again, _ := store.ListRuns(ctx, runs.Filter{})
	if again[0].Additions != 1 {
		t.Errorf("stored run was modified: Additions = %d", again[0].Additions)
	}
}

func TestStore_Latest(t *testing.T) {
	ctx := context.Background()
	store := NewStore(0)
	_ = store.RecordRun(ctx, &runs.Run{RunID: "1", Stream: "a"})
	_ = store.RecordRun(ctx, &runs.Run{RunID: "2", Stream: "b"})
	_ = store.RecordRun(ctx, &runs.Run{RunID: "3", Stream: "a"})

	latest := store.Latest()
	if len(latest) != 2 || latest["a"].RunID != "3" || latest["b"].RunID != "2" {
		t.Errorf("Latest() = %+v", latest)
	}
}
