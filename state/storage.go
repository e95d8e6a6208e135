package state

// package state manages persistence.

import (
	"context"
	"time"

	"github.com/ts4z/rungs/model"
)

type Closer interface {
	Close()
}

// LadderReader is the read side of the ladder data: the game directory,
// each game's versions, and each version's ladder.
type LadderReader interface {
	// FetchGames returns every game, ordered by name.
	FetchGames(ctx context.Context) ([]*model.Game, error)
	FetchGame(ctx context.Context, id int64) (*model.Game, error)
	// FetchVersions returns a game's versions, newest first.
	FetchVersions(ctx context.Context, gameID int64) ([]*model.GameVersion, error)
	FetchVersion(ctx context.Context, versionID int64) (*model.GameVersion, error)
	// FetchLadder returns a version's ranks ordered by rank order, each with
	// its tiers ordered by tier order.  A version with no ranks has an empty
	// ladder, not an error.
	FetchLadder(ctx context.Context, versionID int64) (*model.Ladder, error)
}

// LadderWriter curates ladder data.  It is only reachable by admins.
type LadderWriter interface {
	CreateGame(ctx context.Context, g *model.Game) (int64, error)
	DeleteGame(ctx context.Context, id int64) error
	CreateVersion(ctx context.Context, v *model.GameVersion) (int64, error)
	// SaveLadder replaces every rank and tier of l.VersionID with those in
	// l.  IDs in l are ignored and fresh ones assigned; Order fields are
	// taken from slice position.
	SaveLadder(ctx context.Context, l *model.Ladder) error
}

type LadderStorage interface {
	Closer
	LadderReader
	LadderWriter

	FetchOverview(ctx context.Context) (*model.Overview, error)
}

type SiteStorage interface {
	Closer

	FetchSiteConfig(ctx context.Context) (*model.SiteConfig, error)
	SaveSiteConfig(ctx context.Context, config *model.SiteConfig) error
}

type UserStorage interface {
	Closer

	FetchUsers(ctx context.Context) ([]*model.UserIdentity, error)
	CreateUser(ctx context.Context, nick string, emailAddress string, passwordHash string, isAdmin bool) error
	FetchUserByUserID(ctx context.Context, id int64) (*model.UserIdentity, error)
	FetchUserRow(ctx context.Context, nick string) (*model.UserRow, error)
	DeleteUserByNick(ctx context.Context, nick string) error

	AddPassword(ctx context.Context, userID int64, passwordHash string) error
	RemoveExpiredPasswords(ctx context.Context, before time.Time) error
	ReplacePassword(ctx context.Context, userID int64, newPasswordHash string, oldPasswordsExpire time.Time) error
}
