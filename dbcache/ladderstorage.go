package dbcache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
	"github.com/ts4z/rungs/varz"
)

var (
	ladderCacheHits     = varz.NewInt("ladderCacheHits")
	ladderCacheMisses   = varz.NewInt("ladderCacheMisses")
	versionsCacheHits   = varz.NewInt("versionsCacheHits")
	versionsCacheMisses = varz.NewInt("versionsCacheMisses")
	gamesCacheHits      = varz.NewInt("gamesCacheHits")
	gamesCacheMisses    = varz.NewInt("gamesCacheMisses")
)

type Nower interface {
	Now() time.Time
}

// LadderStorage caches the read side of a state.LadderStorage.  Ladders and
// per-game version lists go in LRUs; the game directory is one value kept
// for a fixed time.  Writes through this object invalidate what they touch.
// Writes made elsewhere need the Invalidate methods, which dbnotify calls.
type LadderStorage struct {
	next  state.LadderStorage
	clock Nower
	ttl   time.Duration

	ladders  *lru.Cache[int64, *model.Ladder]
	versions *lru.Cache[int64, []*model.GameVersion]

	lock      sync.Mutex
	games     []*model.Game
	fetchedAt time.Time
}

var _ state.LadderStorage = (*LadderStorage)(nil)

func NewLadderStorage(size int, gamesTTL time.Duration, clock Nower, nx state.LadderStorage) *LadderStorage {
	ladders, err := lru.New[int64, *model.Ladder](size)
	if err != nil {
		panic(err)
	}
	versions, err := lru.New[int64, []*model.GameVersion](size)
	if err != nil {
		panic(err)
	}
	return &LadderStorage{
		next:     nx,
		clock:    clock,
		ttl:      gamesTTL,
		ladders:  ladders,
		versions: versions,
	}
}

func (s *LadderStorage) Close() {
	s.next.Close()
}

func cloneGames(games []*model.Game) []*model.Game {
	cpy := make([]*model.Game, len(games))
	for i, g := range games {
		cpy[i] = g.Clone()
	}
	return cpy
}

func cloneVersions(versions []*model.GameVersion) []*model.GameVersion {
	cpy := make([]*model.GameVersion, len(versions))
	for i, v := range versions {
		cpy[i] = v.Clone()
	}
	return cpy
}

// FetchGames implements state.LadderReader.
func (s *LadderStorage) FetchGames(ctx context.Context) ([]*model.Game, error) {
	s.lock.Lock()
	if s.games != nil && s.fetchedAt.Add(s.ttl).After(s.clock.Now()) {
		games := cloneGames(s.games)
		s.lock.Unlock()
		gamesCacheHits.Add(1)
		return games, nil
	}
	s.lock.Unlock()

	gamesCacheMisses.Add(1)
	games, err := s.next.FetchGames(ctx)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	s.games = cloneGames(games)
	s.fetchedAt = s.clock.Now()
	s.lock.Unlock()
	return games, nil
}

// FetchGame implements state.LadderReader.  Single games aren't cached; the
// directory is small enough to search.
func (s *LadderStorage) FetchGame(ctx context.Context, id int64) (*model.Game, error) {
	return s.next.FetchGame(ctx, id)
}

// FetchVersions implements state.LadderReader.
func (s *LadderStorage) FetchVersions(ctx context.Context, gameID int64) ([]*model.GameVersion, error) {
	if versions, ok := s.versions.Get(gameID); ok {
		versionsCacheHits.Add(1)
		return cloneVersions(versions), nil
	}
	versionsCacheMisses.Add(1)
	versions, err := s.next.FetchVersions(ctx, gameID)
	if err != nil {
		return nil, err
	}
	s.versions.Add(gameID, cloneVersions(versions))
	return versions, nil
}

// FetchVersion implements state.LadderReader.
func (s *LadderStorage) FetchVersion(ctx context.Context, versionID int64) (*model.GameVersion, error) {
	return s.next.FetchVersion(ctx, versionID)
}

// FetchLadder implements state.LadderReader.
func (s *LadderStorage) FetchLadder(ctx context.Context, versionID int64) (*model.Ladder, error) {
	if l, ok := s.ladders.Get(versionID); ok {
		ladderCacheHits.Add(1)
		return l.Clone(), nil
	}
	ladderCacheMisses.Add(1)
	l, err := s.next.FetchLadder(ctx, versionID)
	if err != nil {
		return nil, err
	}
	s.ladders.Add(versionID, l.Clone())
	return l, nil
}

// FetchOverview implements state.LadderStorage.
func (s *LadderStorage) FetchOverview(ctx context.Context) (*model.Overview, error) {
	return s.next.FetchOverview(ctx)
}

// CreateGame implements state.LadderWriter.
func (s *LadderStorage) CreateGame(ctx context.Context, g *model.Game) (int64, error) {
	id, err := s.next.CreateGame(ctx, g)
	if err == nil {
		s.InvalidateGames()
	}
	return id, err
}

// DeleteGame implements state.LadderWriter.
func (s *LadderStorage) DeleteGame(ctx context.Context, id int64) error {
	err := s.next.DeleteGame(ctx, id)
	if err == nil {
		s.InvalidateGames()
		s.InvalidateVersions(id)
		// Which ladders belonged to the game is no longer knowable.
		s.ladders.Purge()
	}
	return err
}

// CreateVersion implements state.LadderWriter.
func (s *LadderStorage) CreateVersion(ctx context.Context, v *model.GameVersion) (int64, error) {
	id, err := s.next.CreateVersion(ctx, v)
	if err == nil {
		s.InvalidateVersions(v.GameID)
	}
	return id, err
}

// SaveLadder implements state.LadderWriter.
func (s *LadderStorage) SaveLadder(ctx context.Context, l *model.Ladder) error {
	err := s.next.SaveLadder(ctx, l)
	// Drop the entry even on error; the write may have partly landed.
	s.InvalidateLadder(l.VersionID)
	return err
}

func (s *LadderStorage) InvalidateGames() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.games = nil
}

func (s *LadderStorage) InvalidateVersions(gameID int64) {
	s.versions.Remove(gameID)
}

func (s *LadderStorage) InvalidateLadder(versionID int64) {
	s.ladders.Remove(versionID)
}
