package reconcile

import (
	"fmt"
	"sort"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/dvloznov/bank-forwarder/internal/domain"
)

// event is a minimal record: Key is its identity, Seq is volatile and tags
// each generated value so tests can follow it through the diff.
type event struct {
	Key int
	Seq int
}

func (e event) Kind() domain.Kind { return "test_event" }
func (e event) Format() string    { return fmt.Sprintf("event %d", e.Key) }

func (e event) Matches(other domain.Record) bool {
	o, ok := other.(event)
	return ok && o.Key == e.Key
}

func events(keys ...int) domain.Snapshot {
	snap := make(domain.Snapshot, 0, len(keys))
	for i, k := range keys {
		snap = append(snap, event{Key: k, Seq: i})
	}
	return snap
}

func movement(day int, amount, memo string) domain.ItauAccountMovement {
	return domain.ItauAccountMovement{
		Date:                  civil.Date{Year: 2024, Month: 1, Day: day},
		Type:                  "D",
		Description:           "COMPRA",
		Amount:                decimal.RequireFromString(amount),
		Currency:              "USD",
		AdditionalDescription: memo,
	}
}

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestReconcile(t *testing.T) {
	aCurrent := movement(1, "100", "x")
	aCached := movement(1, "100", "y")
	b := movement(2, "50", "")
	c := movement(3, "20", "")

	tests := []struct {
		name    string
		current domain.Snapshot
		cached  domain.Snapshot
		want    Diff
	}{
		{
			name:    "volatile drift is a match, new record is an addition",
			current: domain.Snapshot{aCurrent, b},
			cached:  domain.Snapshot{aCached},
			want: Diff{
				Additions: []domain.Record{b},
				Matches:   []Pair{{Current: aCurrent, Cached: aCached}},
			},
		},
		{
			name:    "empty current deletes everything cached",
			current: domain.Snapshot{},
			cached:  domain.Snapshot{c},
			want:    Diff{Deletions: []domain.Record{c}},
		},
		{
			name:    "bootstrap with no cache reports every record as added",
			current: domain.Snapshot{aCurrent, b, c},
			cached:  nil,
			want:    Diff{Additions: []domain.Record{aCurrent, b, c}},
		},
		{
			name:    "both empty",
			current: nil,
			cached:  nil,
			want:    Diff{},
		},
		{
			name:    "reordered source still matches everything",
			current: domain.Snapshot{c, b, aCurrent},
			cached:  domain.Snapshot{aCached, b, c},
			want: Diff{
				Matches: []Pair{
					{Current: c, Cached: c},
					{Current: b, Cached: b},
					{Current: aCurrent, Cached: aCached},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.current, tt.cached)
			if diff := cmp.Diff(tt.want, got, decimalComparer); diff != "" {
				t.Errorf("Reconcile() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReconcile_FirstFit(t *testing.T) {
	// Two cached candidates for one current record: the earliest wins.
	current := domain.Snapshot{event{Key: 1, Seq: 10}}
	cached := domain.Snapshot{event{Key: 1, Seq: 20}, event{Key: 1, Seq: 21}}

	got := Reconcile(current, cached)

	if len(got.Matches) != 1 || got.Matches[0].Cached.(event).Seq != 20 {
		t.Errorf("expected match with first cached candidate, got %+v", got.Matches)
	}
	if len(got.Deletions) != 1 || got.Deletions[0].(event).Seq != 21 {
		t.Errorf("expected the later candidate to be deleted, got %+v", got.Deletions)
	}
}

func TestReconcile_SurplusDuplicatesAreAdditions(t *testing.T) {
	// Two indistinguishable current records, one cached candidate: the second
	// current record is reported as added.
	current := domain.Snapshot{event{Key: 5, Seq: 0}, event{Key: 5, Seq: 1}}
	cached := domain.Snapshot{event{Key: 5, Seq: 9}}

	got := Reconcile(current, cached)

	want := Diff{
		Additions: []domain.Record{event{Key: 5, Seq: 1}},
		Matches:   []Pair{{Current: event{Key: 5, Seq: 0}, Cached: event{Key: 5, Seq: 9}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Reconcile() mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_DoesNotModifyInputs(t *testing.T) {
	current := events(1, 2, 3)
	cached := events(3, 4, 1)
	currentBefore := append(domain.Snapshot(nil), current...)
	cachedBefore := append(domain.Snapshot(nil), cached...)

	Reconcile(current, cached)

	if diff := cmp.Diff(currentBefore, current); diff != "" {
		t.Errorf("current modified (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(cachedBefore, cached); diff != "" {
		t.Errorf("cached modified (-before +after):\n%s", diff)
	}
}

func TestDiffEmpty(t *testing.T) {
	if !Reconcile(events(1, 2), events(2, 1)).Empty() {
		t.Error("expected identical sets to produce an empty diff")
	}
	if Reconcile(events(1), nil).Empty() {
		t.Error("expected an addition to make the diff non-empty")
	}
}

// snapshotGen draws snapshots over a small key space so collisions and
// duplicates are common. Seq values are unique within one snapshot.
func snapshotGen(offset int) *rapid.Generator[domain.Snapshot] {
	return rapid.Custom(func(t *rapid.T) domain.Snapshot {
		keys := rapid.SliceOfN(rapid.IntRange(0, 5), 0, 12).Draw(t, "keys")
		snap := make(domain.Snapshot, 0, len(keys))
		for i, k := range keys {
			snap = append(snap, event{Key: k, Seq: offset + i})
		}
		return snap
	})
}

func seqs(records []domain.Record) []int {
	out := make([]int, 0, len(records))
	for _, r := range records {
		out = append(out, r.(event).Seq)
	}
	sort.Ints(out)
	return out
}

func TestReconcile_PartitionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		current := snapshotGen(0).Draw(t, "current")
		cached := snapshotGen(1000).Draw(t, "cached")

		diff := Reconcile(current, cached)

		currentSide := append([]domain.Record(nil), diff.Additions...)
		cachedSide := append([]domain.Record(nil), diff.Deletions...)
		for _, p := range diff.Matches {
			if !p.Current.Matches(p.Cached) {
				t.Fatalf("pair %v / %v does not match", p.Current, p.Cached)
			}
			currentSide = append(currentSide, p.Current)
			cachedSide = append(cachedSide, p.Cached)
		}

		if !cmp.Equal(seqs(currentSide), seqs(current)) {
			t.Fatalf("current side %v != current %v", seqs(currentSide), seqs(current))
		}
		if !cmp.Equal(seqs(cachedSide), seqs(cached)) {
			t.Fatalf("cached side %v != cached %v", seqs(cachedSide), seqs(cached))
		}

		// An addition never has a matching leftover deletion.
		for _, a := range diff.Additions {
			for _, d := range diff.Deletions {
				if a.Matches(d) {
					t.Fatalf("addition %v matches deletion %v", a, d)
				}
			}
		}
	})
}

func TestReconcile_IdempotenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		snap := snapshotGen(0).Draw(t, "snapshot")

		diff := Reconcile(snap, snap)

		if !diff.Empty() {
			t.Fatalf("Reconcile(x, x) = %+v, want no additions or deletions", diff)
		}
		if len(diff.Matches) != len(snap) {
			t.Fatalf("got %d matches, want %d", len(diff.Matches), len(snap))
		}
	})
}

func TestReconcile_OrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		current := snapshotGen(0).Draw(t, "current")
		cached := snapshotGen(1000).Draw(t, "cached")

		diff := Reconcile(current, cached)

		for _, list := range [][]domain.Record{diff.Additions, diff.Deletions} {
			for i := 1; i < len(list); i++ {
				if list[i-1].(event).Seq > list[i].(event).Seq {
					t.Fatalf("records out of source order: %v", list)
				}
			}
		}
	})
}
