package gossip

import (
	"context"
	"log"

	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
)

// LadderStorage intercepts writes and tells the gossiper about them.
//
// When the database notifies back this is at best an optimization, but it
// is the only source of news for the SQLite and memory backends.
type LadderStorage struct {
	state.LadderStorage

	gossiper *LadderGossiper
}

var _ state.LadderStorage = (*LadderStorage)(nil)

func NewLadderStorage(nx state.LadderStorage, g *LadderGossiper) *LadderStorage {
	return &LadderStorage{LadderStorage: nx, gossiper: g}
}

func (s *LadderStorage) SaveLadder(ctx context.Context, l *model.Ladder) error {
	if err := s.LadderStorage.SaveLadder(ctx, l); err != nil {
		return err
	}
	// Read it back for the IDs storage assigned.
	saved, err := s.LadderStorage.FetchLadder(ctx, l.VersionID)
	if err != nil {
		log.Printf("saved ladder %d but can't read it back to gossip: %v", l.VersionID, err)
		return nil
	}
	s.gossiper.NotifyUpdated(saved)
	return nil
}

func (s *LadderStorage) DeleteGame(ctx context.Context, id int64) error {
	versions, err := s.LadderStorage.FetchVersions(ctx, id)
	if err != nil {
		versions = nil
	}
	if err := s.LadderStorage.DeleteGame(ctx, id); err != nil {
		return err
	}
	for _, v := range versions {
		s.gossiper.NotifyDeleted(v.ID)
	}
	return nil
}
