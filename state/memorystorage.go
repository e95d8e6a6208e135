package state

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ts4z/rungs/defaults"
	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/model"
)

// MemoryStorage keeps everything in process memory.  It is used for demos
// and tests; nothing survives a restart.
type MemoryStorage struct {
	lock sync.Mutex

	nextID   int64
	games    map[int64]*model.Game
	versions map[int64]*model.GameVersion
	ladders  map[int64]*model.Ladder // by version ID

	users      map[int64]*model.UserRow
	siteConfig *model.SiteConfig
}

var (
	_ LadderStorage = &MemoryStorage{}
	_ SiteStorage   = &MemoryStorage{}
	_ UserStorage   = &MemoryStorage{}
)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		games:      map[int64]*model.Game{},
		versions:   map[int64]*model.GameVersion{},
		ladders:    map[int64]*model.Ladder{},
		users:      map[int64]*model.UserRow{},
		siteConfig: defaults.SiteConfig(),
	}
}

// NewDemoStorage is a MemoryStorage holding the built-in demo games.
func NewDemoStorage(ctx context.Context) (*MemoryStorage, error) {
	s := NewMemoryStorage()
	if err := Seed(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Seed writes the built-in demo games through w.
func Seed(ctx context.Context, w LadderWriter) error {
	for _, g := range defaults.Catalog() {
		gameID, err := w.CreateGame(ctx, &model.Game{Name: g.Name, Banner: g.Banner})
		if err != nil {
			return err
		}
		for _, v := range g.Versions {
			versionID, err := w.CreateVersion(ctx, &model.GameVersion{GameID: gameID, Name: v.Name, Date: v.Date})
			if err != nil {
				return err
			}
			if err := w.SaveLadder(ctx, &model.Ladder{VersionID: versionID, Ranks: v.Ranks}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *MemoryStorage) Close() {}

func (s *MemoryStorage) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStorage) FetchGames(ctx context.Context) ([]*model.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	games := make([]*model.Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g.Clone())
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Name < games[j].Name })
	return games, nil
}

func (s *MemoryStorage) FetchGame(ctx context.Context, id int64) (*model.Game, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, he.HTTPCodedErrorf(404, "no such game %d", id)
	}
	return g.Clone(), nil
}

func (s *MemoryStorage) FetchVersions(ctx context.Context, gameID int64) ([]*model.GameVersion, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	versions := []*model.GameVersion{}
	for _, v := range s.versions {
		if v.GameID == gameID {
			versions = append(versions, v.Clone())
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		if !versions[i].Date.Equal(versions[j].Date) {
			return versions[i].Date.After(versions[j].Date)
		}
		return versions[i].ID > versions[j].ID
	})
	return versions, nil
}

func (s *MemoryStorage) FetchVersion(ctx context.Context, versionID int64) (*model.GameVersion, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	v, ok := s.versions[versionID]
	if !ok {
		return nil, he.HTTPCodedErrorf(404, "no such version %d", versionID)
	}
	return v.Clone(), nil
}

func (s *MemoryStorage) FetchLadder(ctx context.Context, versionID int64) (*model.Ladder, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if l, ok := s.ladders[versionID]; ok {
		return l.Clone(), nil
	}
	return &model.Ladder{VersionID: versionID, Ranks: []*model.Rank{}}, nil
}

func (s *MemoryStorage) FetchOverview(ctx context.Context) (*model.Overview, error) {
	games, err := s.FetchGames(ctx)
	if err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	overview := &model.Overview{}
	for _, g := range games {
		slug := model.GameSlug{GameID: g.ID, Name: g.Name}
		for _, v := range s.versions {
			if v.GameID == g.ID {
				slug.VersionCount++
			}
		}
		overview.Slugs = append(overview.Slugs, slug)
	}
	return overview, nil
}

func (s *MemoryStorage) CreateGame(ctx context.Context, g *model.Game) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, existing := range s.games {
		if existing.Name == g.Name {
			return 0, he.HTTPCodedErrorf(409, "game %q already exists", g.Name)
		}
	}
	cpy := g.Clone()
	cpy.ID = s.id()
	s.games[cpy.ID] = cpy
	return cpy.ID, nil
}

func (s *MemoryStorage) DeleteGame(ctx context.Context, id int64) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.games[id]; !ok {
		return he.HTTPCodedErrorf(404, "no such game %d", id)
	}
	delete(s.games, id)
	for vid, v := range s.versions {
		if v.GameID == id {
			delete(s.versions, vid)
			delete(s.ladders, vid)
		}
	}
	return nil
}

func (s *MemoryStorage) CreateVersion(ctx context.Context, v *model.GameVersion) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.games[v.GameID]; !ok {
		return 0, he.HTTPCodedErrorf(404, "no such game %d", v.GameID)
	}
	cpy := v.Clone()
	cpy.ID = s.id()
	s.versions[cpy.ID] = cpy
	return cpy.ID, nil
}

func (s *MemoryStorage) SaveLadder(ctx context.Context, l *model.Ladder) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.versions[l.VersionID]; !ok {
		return he.HTTPCodedErrorf(404, "no such version %d", l.VersionID)
	}
	cpy := l.Clone()
	for i, r := range cpy.Ranks {
		r.ID = s.id()
		r.VersionID = l.VersionID
		r.Order = i
		for j, t := range r.Tiers {
			t.ID = s.id()
			t.Order = j
		}
	}
	s.ladders[l.VersionID] = cpy
	return nil
}

func (s *MemoryStorage) FetchSiteConfig(ctx context.Context) (*model.SiteConfig, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.siteConfig.Clone(), nil
}

func (s *MemoryStorage) SaveSiteConfig(ctx context.Context, config *model.SiteConfig) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.siteConfig = config.Clone()
	return nil
}

func (s *MemoryStorage) FetchUsers(ctx context.Context) ([]*model.UserIdentity, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	users := []*model.UserIdentity{}
	for _, u := range s.users {
		users = append(users, u.UserIdentity.Clone())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Nick < users[j].Nick })
	return users, nil
}

func (s *MemoryStorage) CreateUser(ctx context.Context, nick string, emailAddress string, passwordHash string, isAdmin bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Nick, nick) {
			return he.HTTPCodedErrorf(409, "user %q already exists", nick)
		}
	}
	id := s.id()
	s.users[id] = &model.UserRow{
		UserIdentity: model.UserIdentity{ID: id, Nick: nick, Email: emailAddress, IsAdmin: isAdmin},
		Passwords:    []model.PasswordHash{{Hash: passwordHash}},
	}
	return nil
}

func (s *MemoryStorage) FetchUserByUserID(ctx context.Context, id int64) (*model.UserIdentity, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, he.HTTPCodedErrorf(404, "no such user %d", id)
	}
	return u.UserIdentity.Clone(), nil
}

func (s *MemoryStorage) findNick(nick string) *model.UserRow {
	for _, u := range s.users {
		if u.Nick == nick {
			return u
		}
	}
	return nil
}

func (s *MemoryStorage) FetchUserRow(ctx context.Context, nick string) (*model.UserRow, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	u := s.findNick(nick)
	if u == nil {
		return nil, he.HTTPCodedErrorf(404, "no such user %q", nick)
	}
	cpy := *u
	cpy.Passwords = append([]model.PasswordHash(nil), u.Passwords...)
	return &cpy, nil
}

func (s *MemoryStorage) DeleteUserByNick(ctx context.Context, nick string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	u := s.findNick(nick)
	if u == nil {
		return he.HTTPCodedErrorf(404, "no such user %q", nick)
	}
	delete(s.users, u.ID)
	return nil
}

func (s *MemoryStorage) AddPassword(ctx context.Context, userID int64, passwordHash string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return he.HTTPCodedErrorf(404, "no such user %d", userID)
	}
	u.Passwords = append(u.Passwords, model.PasswordHash{Hash: passwordHash})
	return nil
}

func (s *MemoryStorage) RemoveExpiredPasswords(ctx context.Context, before time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, u := range s.users {
		kept := u.Passwords[:0]
		for _, p := range u.Passwords {
			if p.ExpiresAt == nil || !p.ExpiresAt.Before(before) {
				kept = append(kept, p)
			}
		}
		u.Passwords = kept
	}
	return nil
}

func (s *MemoryStorage) ReplacePassword(ctx context.Context, userID int64, newPasswordHash string, oldPasswordsExpire time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return he.HTTPCodedErrorf(404, "no such user %d", userID)
	}
	for i := range u.Passwords {
		p := &u.Passwords[i]
		if p.ExpiresAt == nil || p.ExpiresAt.After(oldPasswordsExpire) {
			t := oldPasswordsExpire
			p.ExpiresAt = &t
		}
	}
	u.Passwords = append(u.Passwords, model.PasswordHash{Hash: newPasswordHash})
	return nil
}
