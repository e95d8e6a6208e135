package ladder

import (
	"sort"

	"github.com/ts4z/rungs/model"
)

type position struct {
	rankID int64
	tierID int64
	// accumulated is what Accumulate returns for this (rank, tier) pair.
	accumulated float64
}

// Index holds the accumulated percentile of every tier of one ladder,
// computed in a single pass.  It gives the same answers as Accumulate and
// IsClosestBelow, including for ladders that reuse IDs, without rescanning
// the ladder for every tier.
//
// An Index is immutable once built and safe to share.
type Index struct {
	positions []position
	prefix    []float64

	// rankStart is the flat position of the first tier of the first rank
	// with a given ID.
	rankStart map[int64]int
	// tierPositions lists, ascending, every flat position holding a tier ID.
	tierPositions map[int64][]int

	total float64
}

// NewIndex builds an index over ranks, walked in the order given.
func NewIndex(ranks []*model.Rank) *Index {
	ix := &Index{
		rankStart:     map[int64]int{},
		tierPositions: map[int64][]int{},
	}

	running := 0.0
	for _, r := range ranks {
		if _, ok := ix.rankStart[r.ID]; !ok {
			ix.rankStart[r.ID] = len(ix.positions)
		}
		for _, t := range r.Tiers {
			running += t.PercentileOrZero()
			p := len(ix.positions)
			ix.positions = append(ix.positions, position{rankID: r.ID, tierID: t.ID})
			ix.prefix = append(ix.prefix, running)
			ix.tierPositions[t.ID] = append(ix.tierPositions[t.ID], p)
		}
	}
	ix.total = running

	for p := range ix.positions {
		pos := &ix.positions[p]
		// Always found: p itself is at or after the start of its own rank.
		pos.accumulated, _ = ix.lookup(pos.rankID, pos.tierID)
	}

	return ix
}

// lookup finds the first position holding tierID at or after the start of
// rankID, mirroring the walk in Accumulate.
func (ix *Index) lookup(rankID, tierID int64) (float64, bool) {
	start, ok := ix.rankStart[rankID]
	if !ok {
		return ix.total, false
	}
	ps := ix.tierPositions[tierID]
	i := sort.SearchInts(ps, start)
	if i == len(ps) {
		return ix.total, false
	}
	return ix.prefix[ps[i]], true
}

// Accumulated returns the accumulated percentile through the tier in the
// given rank.  If the pair isn't in the ladder, the ladder total comes back
// with ok set to false, which is also what Accumulate would have returned.
func (ix *Index) Accumulated(rankID, tierID int64) (value float64, ok bool) {
	return ix.lookup(rankID, tierID)
}

// ClosestBelow finds the tier whose accumulated percentile is the largest
// value not exceeding target.  The first tier in ladder order wins ties.
// ok is false when every tier is above target, or there are no tiers.
func (ix *Index) ClosestBelow(target float64) (tierID int64, ok bool) {
	var best float64
	for _, pos := range ix.positions {
		if pos.accumulated > target {
			continue
		}
		if !ok || pos.accumulated > best {
			ok = true
			best = pos.accumulated
			tierID = pos.tierID
		}
	}
	return tierID, ok
}

// Total is the sum of every percentile in the ladder, nil counted as zero.
func (ix *Index) Total() float64 {
	return ix.total
}

// Len is the number of tiers indexed.
func (ix *Index) Len() int {
	return len(ix.positions)
}
