package permission

import (
	"context"

	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
)

// LadderStorage lets anyone read ladders and only admins change them.
// Reads pass straight through the embedded storage.
type LadderStorage struct {
	state.LadderReader
	next state.LadderStorage
}

var _ state.LadderStorage = &LadderStorage{}

func NewLadderStorage(nx state.LadderStorage) *LadderStorage {
	return &LadderStorage{LadderReader: nx, next: nx}
}

func (s *LadderStorage) Close() {
	s.next.Close()
}

func (s *LadderStorage) FetchOverview(ctx context.Context) (*model.Overview, error) {
	o, err := s.next.FetchOverview(ctx)
	if err == nil {
		o.IsAdmin = IsAdmin(ctx)
	}
	return o, err
}

func (s *LadderStorage) CreateGame(ctx context.Context, g *model.Game) (int64, error) {
	return guardedReturning(ctx, adminOnly, func() (int64, error) {
		return s.next.CreateGame(ctx, g)
	})
}

func (s *LadderStorage) DeleteGame(ctx context.Context, id int64) error {
	return guarded(ctx, adminOnly, func() error {
		return s.next.DeleteGame(ctx, id)
	})
}

func (s *LadderStorage) CreateVersion(ctx context.Context, v *model.GameVersion) (int64, error) {
	return guardedReturning(ctx, adminOnly, func() (int64, error) {
		return s.next.CreateVersion(ctx, v)
	})
}

func (s *LadderStorage) SaveLadder(ctx context.Context, l *model.Ladder) error {
	return guarded(ctx, adminOnly, func() error {
		return s.next.SaveLadder(ctx, l)
	})
}
