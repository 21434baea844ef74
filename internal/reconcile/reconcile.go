// Package reconcile pairs a freshly fetched snapshot with the cached one.
//
// Matching is greedy first-fit: each current record, in fetch order, takes the
// earliest remaining cached record it matches. This is not a globally optimal
// assignment. When the current snapshot holds more mutually indistinguishable
// records than the cache does, the surplus is reported as additions even if
// the source merely reordered them.
package reconcile

import "github.com/dvloznov/bank-forwarder/internal/domain"

// Pair is a current record together with the cached record it was matched to.
type Pair struct {
	Current domain.Record
	Cached  domain.Record
}

// Diff partitions the current and cached snapshots. Every current record is
// in exactly one of Additions or Matches, every cached record in exactly one
// of Matches or Deletions. Additions keep current order, Deletions keep cached
// order.
type Diff struct {
	Additions []domain.Record
	Matches   []Pair
	Deletions []domain.Record
}

// Empty reports whether nothing was added or deleted.
func (d Diff) Empty() bool {
	return len(d.Additions) == 0 && len(d.Deletions) == 0
}

// Reconcile computes the Diff between current and cached. Neither input is
// modified. It runs in O(len(current)·len(cached)) comparisons.
func Reconcile(current, cached domain.Snapshot) Diff {
	pool := make([]domain.Record, len(cached))
	copy(pool, cached)

	var diff Diff
	for _, cu := range current {
		idx, found := findMatch(pool, cu)
		if !found {
			diff.Additions = append(diff.Additions, cu)
			continue
		}
		diff.Matches = append(diff.Matches, Pair{Current: cu, Cached: pool[idx]})
		pool = append(pool[:idx], pool[idx+1:]...)
	}
	if len(pool) > 0 {
		diff.Deletions = pool
	}
	return diff
}

// findMatch returns the index of the first record in pool matching r.
func findMatch(pool []domain.Record, r domain.Record) (int, bool) {
	for i, candidate := range pool {
		if r.Matches(candidate) {
			return i, true
		}
	}
	return -1, false
}
