package model

import (
	"time"
)

// Game is a title whose ranked ladder we can display.
type Game struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Banner string `json:"banner,omitempty"`
}

func (g *Game) Clone() *Game {
	cpy := *g
	return &cpy
}

// GameVersion is a dated snapshot of a game's ranking system.  Ranks hang off
// exactly one version.
type GameVersion struct {
	ID     int64     `json:"id"`
	GameID int64     `json:"gameId"`
	Name   string    `json:"name"`
	Date   time.Time `json:"date"`
}

func (v *GameVersion) Clone() *GameVersion {
	cpy := *v
	return &cpy
}

// Tier is a sub-division of a Rank ("Gold III").
type Tier struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Badge string `json:"badge,omitempty"`
	// Percentile is the share of the ranked population in this tier, as
	// supplied by whoever entered the data.  nil means unknown and counts as
	// zero when accumulating.
	Percentile *float64 `json:"percentile"`
	Order      int      `json:"order"`
}

// PercentileOrZero is the contribution of this tier to a running sum.
func (t *Tier) PercentileOrZero() float64 {
	if t.Percentile == nil {
		return 0
	}
	return *t.Percentile
}

func (t *Tier) Clone() *Tier {
	cpy := *t
	if t.Percentile != nil {
		p := *t.Percentile
		cpy.Percentile = &p
	}
	return &cpy
}

// Rank is a named rung of a ladder ("Gold").
type Rank struct {
	ID        int64   `json:"id"`
	VersionID int64   `json:"gameVersionId"`
	Name      string  `json:"name"`
	Color     string  `json:"color"`
	Badge     string  `json:"badge,omitempty"`
	Order     int     `json:"order"`
	Tiers     []*Tier `json:"tiers"`
}

func (r *Rank) Clone() *Rank {
	cpy := *r
	cpy.Tiers = make([]*Tier, len(r.Tiers))
	for i, t := range r.Tiers {
		cpy.Tiers[i] = t.Clone()
	}
	return &cpy
}

// FindTier returns the first tier in r with the given ID.
func (r *Rank) FindTier(id int64) *Tier {
	for _, t := range r.Tiers {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Ladder is every rank of one game version, in ladder order (lowest first).
// The order of Ranks, and of Tiers within each rank, is the accumulation order.
type Ladder struct {
	VersionID int64   `json:"versionId"`
	Ranks     []*Rank `json:"ranks"`
}

func (l *Ladder) Clone() *Ladder {
	cpy := &Ladder{VersionID: l.VersionID, Ranks: make([]*Rank, len(l.Ranks))}
	for i, r := range l.Ranks {
		cpy.Ranks[i] = r.Clone()
	}
	return cpy
}

// FindRank returns the first rank in the ladder with the given ID.
func (l *Ladder) FindRank(id int64) *Rank {
	for _, r := range l.Ranks {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// FindTier returns the first tier with the given ID and the rank holding it.
func (l *Ladder) FindTier(id int64) (*Rank, *Tier) {
	for _, r := range l.Ranks {
		if t := r.FindTier(id); t != nil {
			return r, t
		}
	}
	return nil, nil
}

// TierCount is the number of tiers across all ranks.
func (l *Ladder) TierCount() int {
	n := 0
	for _, r := range l.Ranks {
		n += len(r.Tiers)
	}
	return n
}

// AnchorSelection is the tier currently pinned as the comparison reference.
// AccumulatedPercentile is computed once, when the tier is picked, against the
// ladder it was picked from; it is not refreshed if that ladder changes.
type AnchorSelection struct {
	TierID                int64    `json:"tierId"`
	RankID                int64    `json:"rankId"`
	GameID                int64    `json:"gameId"`
	RawPercentile         *float64 `json:"percentile"`
	AccumulatedPercentile float64  `json:"accumulatedPercentile"`
}

func (a *AnchorSelection) Clone() *AnchorSelection {
	cpy := *a
	if a.RawPercentile != nil {
		p := *a.RawPercentile
		cpy.RawPercentile = &p
	}
	return &cpy
}

// GameSlug describes a game for list pages.
type GameSlug struct {
	GameID       int64
	Name         string
	VersionCount int
}

// Overview describes the available games for the admin pages.
type Overview struct {
	IsAdmin bool
	Slugs   []GameSlug
}
