// Package fakes has storage doubles for tests.
package fakes

import (
	"context"
	"errors"
	"sync"

	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
)

// ErrInjected is what a FlakyStorage returns when told to fail.
var ErrInjected = he.New(503, errors.New("injected failure"))

// FlakyStorage wraps a real LadderStorage, counts the calls that reach it,
// and fails the ones it's told to.
type FlakyStorage struct {
	state.LadderStorage

	lock         sync.Mutex
	calls        map[string]int
	failGames    bool
	failVersions map[int64]bool // by game ID
	failLadders  map[int64]bool // by version ID
	blockLadders chan struct{}
}

var _ state.LadderStorage = (*FlakyStorage)(nil)

func NewFlakyStorage(next state.LadderStorage) *FlakyStorage {
	return &FlakyStorage{
		LadderStorage: next,
		calls:         map[string]int{},
		failVersions:  map[int64]bool{},
		failLadders:   map[int64]bool{},
	}
}

func (s *FlakyStorage) Lock() func() {
	s.lock.Lock()
	return func() { s.lock.Unlock() }
}

// Calls is how many times the named method has been called.
func (s *FlakyStorage) Calls(method string) int {
	unlock := s.Lock()
	defer unlock()
	return s.calls[method]
}

func (s *FlakyStorage) FailGames(fail bool) {
	unlock := s.Lock()
	defer unlock()
	s.failGames = fail
}

func (s *FlakyStorage) FailVersions(gameID int64) {
	unlock := s.Lock()
	defer unlock()
	s.failVersions[gameID] = true
}

func (s *FlakyStorage) FailLadder(versionID int64) {
	unlock := s.Lock()
	defer unlock()
	s.failLadders[versionID] = true
}

// BlockLadders makes FetchLadder wait until the returned function is called
// or the context ends.
func (s *FlakyStorage) BlockLadders() (release func()) {
	unlock := s.Lock()
	defer unlock()
	ch := make(chan struct{})
	s.blockLadders = ch
	return func() { close(ch) }
}

func (s *FlakyStorage) count(method string) {
	unlock := s.Lock()
	defer unlock()
	s.calls[method]++
}

func (s *FlakyStorage) FetchGames(ctx context.Context) ([]*model.Game, error) {
	s.count("FetchGames")
	unlock := s.Lock()
	fail := s.failGames
	unlock()
	if fail {
		return nil, ErrInjected
	}
	return s.LadderStorage.FetchGames(ctx)
}

func (s *FlakyStorage) FetchVersions(ctx context.Context, gameID int64) ([]*model.GameVersion, error) {
	s.count("FetchVersions")
	unlock := s.Lock()
	fail := s.failVersions[gameID]
	unlock()
	if fail {
		return nil, ErrInjected
	}
	return s.LadderStorage.FetchVersions(ctx, gameID)
}

func (s *FlakyStorage) FetchLadder(ctx context.Context, versionID int64) (*model.Ladder, error) {
	s.count("FetchLadder")
	unlock := s.Lock()
	fail := s.failLadders[versionID]
	block := s.blockLadders
	unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, ErrInjected
	}
	return s.LadderStorage.FetchLadder(ctx, versionID)
}
