package compare

import (
	"fmt"

	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/shareurl"
	"github.com/ts4z/rungs/textutil"
)

// TierView is one tier as drawn.  ClickURL is where a click on the tier
// leads: the share link of the state after the click.
type TierView struct {
	ID                    int64    `json:"id"`
	RankID                int64    `json:"rankId"`
	Name                  string   `json:"name"`
	Badge                 string   `json:"badge,omitempty"`
	Percentile            *float64 `json:"percentile"`
	AccumulatedPercentile float64  `json:"accumulatedPercentile"`
	Selected              bool     `json:"selected"`
	Highlighted           bool     `json:"highlighted"`
	Label                 string   `json:"label"`
	ClickURL              string   `json:"clickUrl"`
}

type RankView struct {
	ID    int64      `json:"id"`
	Name  string     `json:"name"`
	Color string     `json:"color"`
	Badge string     `json:"badge,omitempty"`
	Tiers []TierView `json:"tiers"`
}

type GameView struct {
	Game      *model.Game          `json:"game"`
	Versions  []*model.GameVersion `json:"versions"`
	VersionID int64                `json:"versionId"`
	HasLadder bool                 `json:"hasLadder"`
	Ranks     []RankView           `json:"ranks"`
	RemoveURL string               `json:"removeUrl"`
}

// View is everything needed to draw a comparison.
type View struct {
	Games    []GameView             `json:"games"`
	Anchor   *model.AnchorSelection `json:"anchor"`
	ShareURL string                 `json:"shareUrl"`
}

// TierLabel is the hover text for a tier: "Gold II (4.00%) - Top 41.50%".
// The percentages are left off when the tier has no (or a zero) percentile.
func TierLabel(rank *model.Rank, tier *model.Tier, accumulated float64) string {
	label := fmt.Sprintf("%s %s", rank.Name, tier.Name)
	if tier.PercentileOrZero() != 0 {
		label += fmt.Sprintf(" (%s) - Top %s",
			textutil.FormatPercent(*tier.Percentile), textutil.FormatPercent(accumulated))
	}
	return label
}

// View computes the highlight state of every displayed tier.
func (c *Coordinator) View() *View {
	share := c.ShareSelection()
	v := &View{
		Games:    make([]GameView, 0, len(c.entries)),
		Anchor:   c.Anchor(),
		ShareURL: shareurl.Encode(share),
	}

	for i, e := range c.entries {
		gv := GameView{
			Game:      e.game.Clone(),
			Versions:  e.versions,
			VersionID: e.versionID,
			HasLadder: e.lad != nil,
			Ranks:     []RankView{},
			RemoveURL: shareurl.Encode(c.withoutGame(share, i)),
		}

		if ix := e.ensureIndex(); ix != nil {
			closestID, closestOK := c.closest(e)
			for _, r := range e.lad.Ranks {
				rv := RankView{ID: r.ID, Name: r.Name, Color: r.Color, Badge: r.Badge, Tiers: []TierView{}}
				for _, t := range r.Tiers {
					acc, _ := ix.Accumulated(r.ID, t.ID)
					tv := TierView{
						ID:                    t.ID,
						RankID:                r.ID,
						Name:                  t.Name,
						Badge:                 t.Badge,
						Percentile:            t.Percentile,
						AccumulatedPercentile: acc,
						Selected:              c.anchor != nil && c.anchor.TierID == t.ID,
						Highlighted:           closestOK && closestID == t.ID,
						Label:                 TierLabel(r, t, acc),
						ClickURL:              shareurl.Encode(c.afterClick(share, t.ID)),
					}
					rv.Tiers = append(rv.Tiers, tv)
				}
				gv.Ranks = append(gv.Ranks, rv)
			}
		}

		v.Games = append(v.Games, gv)
	}

	return v
}

func (c *Coordinator) afterClick(share *shareurl.Selection, tierID int64) *shareurl.Selection {
	s := *share
	if c.anchor != nil && c.anchor.TierID == tierID {
		s.TierID = nil
	} else {
		id := tierID
		s.TierID = &id
	}
	return &s
}

func (c *Coordinator) withoutGame(share *shareurl.Selection, i int) *shareurl.Selection {
	s := &shareurl.Selection{TierID: share.TierID}
	s.GameIDs = append(append(s.GameIDs, share.GameIDs[:i]...), share.GameIDs[i+1:]...)
	s.VersionIDs = append(append(s.VersionIDs, share.VersionIDs[:i]...), share.VersionIDs[i+1:]...)
	if c.anchor != nil && c.anchor.GameID == c.entries[i].game.ID {
		s.TierID = nil
	}
	return s
}
