package permission

import (
	"context"
	"time"

	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
)

// UserStorage guards the accounts of the people who curate ladders.
//
// FetchUserByUserID and FetchUserRow pass straight through: the cookie
// middleware and the login form need them before anyone is known.
type UserStorage struct {
	state.UserStorage
}

var _ state.UserStorage = &UserStorage{}

func NewUserStorage(nx state.UserStorage) *UserStorage {
	return &UserStorage{UserStorage: nx}
}

func (s *UserStorage) FetchUsers(ctx context.Context) ([]*model.UserIdentity, error) {
	return guardedReturning(ctx, adminOnly, func() ([]*model.UserIdentity, error) {
		return s.UserStorage.FetchUsers(ctx)
	})
}

func (s *UserStorage) CreateUser(ctx context.Context, nick string, emailAddress string, passwordHash string, isAdmin bool) error {
	return guarded(ctx, adminOnly, func() error {
		return s.UserStorage.CreateUser(ctx, nick, emailAddress, passwordHash, isAdmin)
	})
}

func (s *UserStorage) DeleteUserByNick(ctx context.Context, nick string) error {
	return guarded(ctx, adminOnly, func() error {
		return s.UserStorage.DeleteUserByNick(ctx, nick)
	})
}

// AddPassword and ReplacePassword are how users rotate their own
// passwords, so the user themselves may call them.
func (s *UserStorage) AddPassword(ctx context.Context, userID int64, passwordHash string) error {
	return guarded(ctx, adminOrUser(userID), func() error {
		return s.UserStorage.AddPassword(ctx, userID, passwordHash)
	})
}

func (s *UserStorage) ReplacePassword(ctx context.Context, userID int64, newPasswordHash string, oldPasswordsExpire time.Time) error {
	return guarded(ctx, adminOrUser(userID), func() error {
		return s.UserStorage.ReplacePassword(ctx, userID, newPasswordHash, oldPasswordsExpire)
	})
}

// RemoveExpiredPasswords touches every account.
func (s *UserStorage) RemoveExpiredPasswords(ctx context.Context, before time.Time) error {
	return guarded(ctx, adminOnly, func() error {
		return s.UserStorage.RemoveExpiredPasswords(ctx, before)
	})
}
