// Package ladder computes cumulative population shares over rank ladders and
// matches a tier in one ladder to its equivalent in another.
//
// A ladder is walked in the order it is given: ranks in slice order, and tiers
// within each rank in slice order.  Nothing here sorts anything.  Callers are
// responsible for handing over ranks in ladder order (storage does this).
//
// Percentiles are used exactly as supplied.  A nil percentile counts as zero;
// nothing else is checked.
package ladder

import (
	"github.com/ts4z/rungs/model"
)

// Accumulate returns the running total of percentiles through tier, which
// lives in rank, walking all of ranks in order.
//
// The tier only counts as found once the walk has reached rank; a tier with
// the same ID in an earlier rank does not end the walk.  If the tier is never
// found, the sum over the whole ladder comes back.  Callers must make sure
// the tier belongs to the rank and the rank to the ladder.
func Accumulate(tier *model.Tier, rank *model.Rank, ranks []*model.Rank) float64 {
	accumulated := 0.0
	foundRank := false

	for _, r := range ranks {
		if r.ID == rank.ID {
			foundRank = true
		}
		for _, t := range r.Tiers {
			accumulated += t.PercentileOrZero()
			if foundRank && t.ID == tier.ID {
				return accumulated
			}
		}
	}

	return accumulated
}

// IsClosestBelow reports whether tier is the one tier in ranks whose
// accumulated percentile is the largest value not exceeding anchor.
//
// Every tier in every rank is considered.  On exact ties the first tier in
// ladder order wins.  A nil anchor means nothing is pinned, so nothing
// matches.
//
// This rescans the whole ladder on every call.  Use an Index when checking
// more than a handful of tiers.
func IsClosestBelow(tier *model.Tier, rank *model.Rank, anchor *float64, ranks []*model.Rank) bool {
	if anchor == nil {
		return false
	}

	var (
		found     bool
		best      float64
		closestID int64
	)
	for _, r := range ranks {
		for _, t := range r.Tiers {
			acc := Accumulate(t, r, ranks)
			if acc > *anchor {
				continue
			}
			if !found || acc > best {
				found = true
				best = acc
				closestID = t.ID
			}
		}
	}

	return found && tier.ID == closestID
}

// IsSelectedTier reports whether tier is the anchor itself.  This is
// independent of percentile matching; a tier can be both selected and the
// closest match, or either one alone.
func IsSelectedTier(tier *model.Tier, anchor *model.AnchorSelection) bool {
	if anchor == nil {
		return false
	}
	return tier.ID == anchor.TierID
}
