package compare

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/ts4z/rungs/dep"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/shareurl"
	"github.com/ts4z/rungs/state"
	"github.com/ts4z/rungs/varz"
)

var fetchFailures = varz.NewInt("fetchFailures")

// Notice is something the user should know about a comparison that still
// loaded, like a ladder that couldn't be fetched.
type Notice struct {
	GameID  int64  `json:"gameId,omitempty"`
	Message string `json:"message"`
}

// Loaded is a comparison rebuilt from a shared link.
type Loaded struct {
	Coordinator *Coordinator
	// AllGames is the game directory, for the "add a game" picker.
	AllGames []*model.Game
	Notices  []Notice
}

// Loader rebuilds a Coordinator from a shareurl.Selection, fetching what it
// needs from storage.
type Loader struct {
	storage     state.LadderReader
	concurrency int
}

func NewLoader(storage state.LadderReader, concurrency int) *Loader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Loader{
		storage:     dep.Required(storage),
		concurrency: concurrency,
	}
}

type fetched struct {
	versions  []*model.GameVersion
	versionID int64
	lad       *model.Ladder
	notices   []Notice
}

// Load resolves sel.  Only a failure to read the game directory is an error.
// Game IDs that don't exist are dropped.  A version that doesn't belong to
// its game is replaced by the game's newest version.  A game with no
// versions is shown without a ladder.  A version or ladder that fails to
// load becomes an empty ladder and a Notice.  Finally the anchor is restored
// by tier ID, from the displayed ladders if one has it and otherwise from
// another version of a selected game.
func (l *Loader) Load(ctx context.Context, sel *shareurl.Selection) (*Loaded, error) {
	all, err := l.storage.FetchGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't fetch games: %w", err)
	}

	byID := map[int64]*model.Game{}
	for _, g := range all {
		byID[g.ID] = g
	}

	c := New()
	// requested[i] is the version asked for by the i'th selected game.
	var requested []int64
	for i, id := range sel.GameIDs {
		g, ok := byID[id]
		if !ok {
			log.Printf("shared link names unknown game %d, dropping it", id)
			continue
		}
		if c.AddGame(g) {
			requested = append(requested, sel.VersionFor(i))
		}
	}

	games := c.Games()
	results := make([]fetched, len(games))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(l.concurrency)
	for i, g := range games {
		eg.Go(func() error {
			results[i] = l.fetchOne(egctx, g, requested[i])
			return nil
		})
	}
	_ = eg.Wait() // fetchOne reports through notices, never errors

	loaded := &Loaded{Coordinator: c, AllGames: all}
	for i, g := range games {
		r := results[i]
		// None of these can fail: every game was just added.
		_ = c.SetVersions(g.ID, r.versions)
		_ = c.SelectVersion(g.ID, r.versionID)
		_ = c.SetLadder(g.ID, r.lad)
		loaded.Notices = append(loaded.Notices, r.notices...)
	}

	if sel.TierID != nil && !c.RestoreAnchor(*sel.TierID) && !l.restoreStale(ctx, c, results, *sel.TierID) {
		loaded.Notices = append(loaded.Notices, Notice{
			Message: fmt.Sprintf("tier %d isn't in any version of the selected games", *sel.TierID),
		})
	}

	return loaded, nil
}

// restoreStale looks for the anchor tier in the versions that aren't
// displayed, in selection order.  A link made after the anchor's game
// switched versions names a tier in the old one.
func (l *Loader) restoreStale(ctx context.Context, c *Coordinator, results []fetched, tierID int64) bool {
	for i, g := range c.Games() {
		for _, v := range results[i].versions {
			if v.ID == results[i].versionID {
				continue
			}
			lad, err := l.storage.FetchLadder(ctx, v.ID)
			if err != nil {
				fetchFailures.Add(1)
				log.Printf("can't fetch ladder for game %d version %d looking for tier %d: %v", g.ID, v.ID, tierID, err)
				continue
			}
			if c.RestoreStaleAnchor(g.ID, lad, tierID) {
				return true
			}
		}
	}
	return false
}

func (l *Loader) fetchOne(ctx context.Context, g *model.Game, requested int64) fetched {
	var r fetched

	versions, err := l.storage.FetchVersions(ctx, g.ID)
	if err != nil {
		fetchFailures.Add(1)
		log.Printf("can't fetch versions for game %d: %v", g.ID, err)
		r.notices = append(r.notices, Notice{GameID: g.ID, Message: fmt.Sprintf("couldn't load versions of %s", g.Name)})
		r.lad = &model.Ladder{}
		return r
	}
	r.versions = versions
	if len(versions) == 0 {
		return r
	}

	r.versionID = versions[0].ID
	if requested > 0 {
		for _, v := range versions {
			if v.ID == requested {
				r.versionID = requested
				break
			}
		}
	}

	lad, err := l.storage.FetchLadder(ctx, r.versionID)
	if err != nil {
		fetchFailures.Add(1)
		log.Printf("can't fetch ladder for game %d version %d: %v", g.ID, r.versionID, err)
		r.notices = append(r.notices, Notice{GameID: g.ID, Message: fmt.Sprintf("couldn't load ranks of %s", g.Name)})
		lad = &model.Ladder{VersionID: r.versionID}
	}
	r.lad = lad
	return r
}
