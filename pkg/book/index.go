package book

import (
	"sort"
	"sync"

	"swapbook/pkg/asset"
)

// activeIndex answers "which orders are fillable right now" without walking
// the ledger: a set of active ids plus per-directional-pair buckets. The
// engine keeps it exactly convergent with the ledger on every transition.
type activeIndex struct {
	mu     sync.RWMutex
	ids    map[uint64]struct{}
	byPair map[asset.Pair]map[uint64]struct{}
}

func newActiveIndex() *activeIndex {
	return &activeIndex{
		ids:    make(map[uint64]struct{}),
		byPair: make(map[asset.Pair]map[uint64]struct{}),
	}
}

func (x *activeIndex) add(o *Order) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.ids[o.ID] = struct{}{}
	pair := o.Pair()
	bucket, ok := x.byPair[pair]
	if !ok {
		bucket = make(map[uint64]struct{})
		x.byPair[pair] = bucket
	}
	bucket[o.ID] = struct{}{}
}

func (x *activeIndex) remove(o *Order) {
	x.mu.Lock()
	defer x.mu.Unlock()

	delete(x.ids, o.ID)
	pair := o.Pair()
	if bucket, ok := x.byPair[pair]; ok {
		delete(bucket, o.ID)
		if len(bucket) == 0 {
			delete(x.byPair, pair)
		}
	}
}

func (x *activeIndex) contains(id uint64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.ids[id]
	return ok
}

// listActive returns all active ids in ascending id order (creation order).
func (x *activeIndex) listActive() []uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedIDs(x.ids)
}

// listByPair returns the active ids trading exactly this directional pair.
func (x *activeIndex) listByPair(pair asset.Pair) []uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedIDs(x.byPair[pair])
}

func (x *activeIndex) size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

func sortedIDs(set map[uint64]struct{}) []uint64 {
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
