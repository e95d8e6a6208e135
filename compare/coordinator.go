// Package compare holds the state of one side-by-side comparison: which games
// are shown, which version of each, their ladders, and which tier (if any) is
// pinned as the anchor that every other ladder is matched against.
package compare

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/ladder"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/shareurl"
	"github.com/ts4z/rungs/varz"
)

var (
	anchorSets   = varz.NewInt("anchorSets")
	anchorClears = varz.NewInt("anchorClears")
)

// ErrNotFound is returned (wrapped) when an operation names a game, rank or
// tier that isn't part of the comparison.
var ErrNotFound = he.New(http.StatusNotFound, errors.New("not in this comparison"))

// ErrStaleLadder is returned when a ladder arrives for a version the game is
// no longer showing.
var ErrStaleLadder = he.New(http.StatusConflict, errors.New("ladder is for another version"))

// Transition says what an operation did to the anchor.
type Transition int

const (
	NoChange Transition = iota
	AnchorSet
	AnchorCleared
)

func (t Transition) String() string {
	switch t {
	case NoChange:
		return "NoChange"
	case AnchorSet:
		return "AnchorSet"
	case AnchorCleared:
		return "AnchorCleared"
	default:
		return fmt.Sprintf("Transition(%d)", int(t))
	}
}

// Observer hears about every change to the anchor.  a is nil when the anchor
// was cleared.
type Observer interface {
	AnchorChanged(a *model.AnchorSelection)
}

type entry struct {
	game      *model.Game
	versions  []*model.GameVersion
	versionID int64
	lad       *model.Ladder

	// Derived from lad, built on demand.
	index *ladder.Index
	// Derived from index and the anchor.
	closestValid bool
	closestOK    bool
	closestID    int64
}

func (e *entry) dropLadder() {
	e.lad = nil
	e.index = nil
	e.closestValid = false
}

func (e *entry) ensureIndex() *ladder.Index {
	if e.index == nil && e.lad != nil {
		e.index = ladder.NewIndex(e.lad.Ranks)
	}
	return e.index
}

// Coordinator is the selection state machine.  It starts with no anchor;
// clicking a tier sets one, clicking the same tier again or removing the
// game that owns it clears it.  Changing a game's version leaves the anchor
// alone, even if that game owns it.
//
// A Coordinator is not safe for concurrent use.  Make one per request.
type Coordinator struct {
	entries  []*entry
	anchor   *model.AnchorSelection
	observer Observer
}

func New() *Coordinator {
	return &Coordinator{}
}

// SetObserver installs o, replacing any earlier observer.  nil removes it.
func (c *Coordinator) SetObserver(o Observer) {
	c.observer = o
}

func (c *Coordinator) find(gameID int64) (int, *entry) {
	for i, e := range c.entries {
		if e.game.ID == gameID {
			return i, e
		}
	}
	return -1, nil
}

func (c *Coordinator) setAnchor(a *model.AnchorSelection) {
	c.anchor = a
	for _, e := range c.entries {
		e.closestValid = false
	}
	if a == nil {
		anchorClears.Add(1)
	} else {
		anchorSets.Add(1)
	}
	if c.observer != nil {
		if a == nil {
			c.observer.AnchorChanged(nil)
		} else {
			c.observer.AnchorChanged(a.Clone())
		}
	}
}

// AddGame appends g to the comparison.  It reports false, and does nothing,
// if g is already there.
func (c *Coordinator) AddGame(g *model.Game) bool {
	if _, e := c.find(g.ID); e != nil {
		return false
	}
	c.entries = append(c.entries, &entry{game: g.Clone()})
	return true
}

// RemoveGame drops the game along with its version choice and ladder.  If the
// anchor came from that game, the anchor goes too.
func (c *Coordinator) RemoveGame(gameID int64) Transition {
	i, e := c.find(gameID)
	if e == nil {
		return NoChange
	}
	c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
	if c.anchor != nil && c.anchor.GameID == gameID {
		c.setAnchor(nil)
		return AnchorCleared
	}
	return NoChange
}

// SetVersions records the versions a game offers, newest first.  They are
// only used for display.
func (c *Coordinator) SetVersions(gameID int64, versions []*model.GameVersion) error {
	_, e := c.find(gameID)
	if e == nil {
		return fmt.Errorf("game %d: %w", gameID, ErrNotFound)
	}
	e.versions = versions
	return nil
}

// SelectVersion switches the version shown for a game.  The old ladder is
// dropped; the caller is expected to SetLadder the new one.  The anchor is
// left as it was.
func (c *Coordinator) SelectVersion(gameID, versionID int64) error {
	_, e := c.find(gameID)
	if e == nil {
		return fmt.Errorf("game %d: %w", gameID, ErrNotFound)
	}
	if e.versionID == versionID {
		return nil
	}
	e.versionID = versionID
	e.dropLadder()
	return nil
}

// SetLadder installs the ladder for a game's current version.  nil removes
// it.  The ladder must not be modified afterwards.  The anchor is not
// recomputed.
func (c *Coordinator) SetLadder(gameID int64, l *model.Ladder) error {
	_, e := c.find(gameID)
	if e == nil {
		return fmt.Errorf("game %d: %w", gameID, ErrNotFound)
	}
	if l != nil && l.VersionID != e.versionID {
		return fmt.Errorf("game %d shows version %d, got %d: %w", gameID, e.versionID, l.VersionID, ErrStaleLadder)
	}
	e.dropLadder()
	e.lad = l
	return nil
}

// ClickTier is a user picking a tier.  Picking the anchor tier again clears
// the anchor; anything else becomes the new anchor, with its accumulated
// percentile computed now against the game's current ladder.
func (c *Coordinator) ClickTier(gameID, rankID, tierID int64) (Transition, error) {
	if c.anchor != nil && c.anchor.TierID == tierID {
		c.setAnchor(nil)
		return AnchorCleared, nil
	}

	_, e := c.find(gameID)
	if e == nil {
		return NoChange, fmt.Errorf("game %d: %w", gameID, ErrNotFound)
	}
	if e.lad == nil {
		return NoChange, fmt.Errorf("game %d has no ladder: %w", gameID, ErrNotFound)
	}
	rank := e.lad.FindRank(rankID)
	if rank == nil {
		return NoChange, fmt.Errorf("rank %d: %w", rankID, ErrNotFound)
	}
	tier := rank.FindTier(tierID)
	if tier == nil {
		return NoChange, fmt.Errorf("tier %d in rank %d: %w", tierID, rankID, ErrNotFound)
	}

	c.pin(e.game.ID, e.lad, rank, tier)
	return AnchorSet, nil
}

// pin anchors tier, accumulated against l, the ladder it came from.
func (c *Coordinator) pin(gameID int64, l *model.Ladder, rank *model.Rank, tier *model.Tier) {
	a := &model.AnchorSelection{
		TierID:                tier.ID,
		RankID:                rank.ID,
		GameID:                gameID,
		AccumulatedPercentile: ladder.Accumulate(tier, rank, l.Ranks),
	}
	if tier.Percentile != nil {
		p := *tier.Percentile
		a.RawPercentile = &p
	}
	c.setAnchor(a)
}

// RestoreAnchor pins the tier with the given ID, looking through the
// displayed ladders in selection order.  This is how a shared link gets its
// anchor back.  If no ladder has the tier, the anchor is cleared and false
// comes back.
func (c *Coordinator) RestoreAnchor(tierID int64) bool {
	for _, e := range c.entries {
		if e.lad == nil {
			continue
		}
		if rank, tier := e.lad.FindTier(tierID); tier != nil {
			c.pin(e.game.ID, e.lad, rank, tier)
			return true
		}
	}
	if c.anchor != nil {
		c.setAnchor(nil)
	}
	return false
}

// RestoreStaleAnchor pins a tier from a version of gameID that isn't the
// one displayed, as happens when the anchor's game switches versions.  The
// percentile is accumulated against l, the tier's own ladder, and the
// displayed ladders are matched against that.  False means the game isn't
// selected or l doesn't have the tier.
func (c *Coordinator) RestoreStaleAnchor(gameID int64, l *model.Ladder, tierID int64) bool {
	if _, e := c.find(gameID); e == nil || l == nil {
		return false
	}
	rank, tier := l.FindTier(tierID)
	if tier == nil {
		return false
	}
	c.pin(gameID, l, rank, tier)
	return true
}

// Anchor returns a copy of the anchor, or nil.
func (c *Coordinator) Anchor() *model.AnchorSelection {
	if c.anchor == nil {
		return nil
	}
	return c.anchor.Clone()
}

// Games returns the selected games in selection order.
func (c *Coordinator) Games() []*model.Game {
	games := make([]*model.Game, len(c.entries))
	for i, e := range c.entries {
		games[i] = e.game.Clone()
	}
	return games
}

// VersionID is the version shown for a game, zero if none.
func (c *Coordinator) VersionID(gameID int64) (int64, bool) {
	_, e := c.find(gameID)
	if e == nil {
		return 0, false
	}
	return e.versionID, true
}

func (c *Coordinator) Versions(gameID int64) []*model.GameVersion {
	_, e := c.find(gameID)
	if e == nil {
		return nil
	}
	return e.versions
}

// Ladder is the ladder shown for a game, or nil.  Don't modify it.
func (c *Coordinator) Ladder(gameID int64) *model.Ladder {
	_, e := c.find(gameID)
	if e == nil {
		return nil
	}
	return e.lad
}

func (c *Coordinator) closest(e *entry) (int64, bool) {
	if c.anchor == nil {
		return 0, false
	}
	if !e.closestValid {
		ix := e.ensureIndex()
		e.closestID, e.closestOK = 0, false
		if ix != nil {
			e.closestID, e.closestOK = ix.ClosestBelow(c.anchor.AccumulatedPercentile)
		}
		e.closestValid = true
	}
	return e.closestID, e.closestOK
}

// Highlight reports how a tier of a displayed game should be drawn: selected
// means it is the anchor itself, matched means it is the closest tier at or
// below the anchor in its ladder.  Both can be true.
func (c *Coordinator) Highlight(gameID, tierID int64) (selected, matched bool) {
	_, e := c.find(gameID)
	if e == nil || c.anchor == nil {
		return false, false
	}
	selected = c.anchor.TierID == tierID
	id, ok := c.closest(e)
	return selected, ok && id == tierID
}

// ShareSelection is what a shareable link for the current state holds.
func (c *Coordinator) ShareSelection() *shareurl.Selection {
	s := &shareurl.Selection{
		GameIDs:    make([]int64, len(c.entries)),
		VersionIDs: make([]int64, len(c.entries)),
	}
	for i, e := range c.entries {
		s.GameIDs[i] = e.game.ID
		s.VersionIDs[i] = e.versionID
	}
	if c.anchor != nil {
		id := c.anchor.TierID
		s.TierID = &id
	}
	return s
}

// Clone copies the selection state.  Ladders, which are read-only once set,
// are shared.  The observer is not carried over.
func (c *Coordinator) Clone() *Coordinator {
	cpy := &Coordinator{entries: make([]*entry, len(c.entries))}
	for i, e := range c.entries {
		ne := *e
		cpy.entries[i] = &ne
	}
	if c.anchor != nil {
		cpy.anchor = c.anchor.Clone()
	}
	return cpy
}
