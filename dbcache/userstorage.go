package dbcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
	"github.com/ts4z/rungs/varz"
)

var (
	identityHits   = varz.NewInt("identityHits")
	identityMisses = varz.NewInt("identityMisses")
)

// UserStorage remembers identities by ID for a little while, since every
// request with a cookie asks for one.  Everything else, passwords
// especially, goes straight through.
type UserStorage struct {
	state.UserStorage
	identities *expirable.LRU[int64, *model.UserIdentity]
}

var _ state.UserStorage = &UserStorage{}

func NewUserStorage(size int, ttl time.Duration, nx state.UserStorage) *UserStorage {
	return &UserStorage{
		UserStorage: nx,
		identities:  expirable.NewLRU[int64, *model.UserIdentity](size, nil, ttl),
	}
}

// InvalidateCache forgets one user, or all of them if userID is zero.
func (s *UserStorage) InvalidateCache(userID int64) {
	if userID == 0 {
		s.identities.Purge()
		return
	}
	s.identities.Remove(userID)
}

func (s *UserStorage) FetchUserByUserID(ctx context.Context, id int64) (*model.UserIdentity, error) {
	if ui, ok := s.identities.Get(id); ok {
		identityHits.Add(1)
		return ui.Clone(), nil
	}
	identityMisses.Add(1)

	ui, err := s.UserStorage.FetchUserByUserID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.identities.Add(id, ui.Clone())
	return ui, nil
}

func (s *UserStorage) DeleteUserByNick(ctx context.Context, nick string) error {
	row, err := s.UserStorage.FetchUserRow(ctx, nick)
	if err != nil {
		return err
	}
	if err := s.UserStorage.DeleteUserByNick(ctx, nick); err != nil {
		return err
	}
	s.InvalidateCache(row.ID)
	return nil
}
