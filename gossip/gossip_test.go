package gossip

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
)

type listenResult struct {
	ladder *model.Ladder
	err    error
}

// listen starts a Listen and waits until the gossiper has registered it.
func listen(t *testing.T, ctx context.Context, g *LadderGossiper, versionID int64) <-chan listenResult {
	t.Helper()
	before := g.Waiting(versionID)
	ch := make(chan listenResult, 1)
	go func() {
		l, err := g.Listen(ctx, versionID)
		ch <- listenResult{l, err}
	}()
	deadline := time.Now().Add(5 * time.Second)
	for g.Waiting(versionID) == before {
		if time.Now().After(deadline) {
			t.Fatalf("listener on %d never registered", versionID)
		}
		time.Sleep(time.Millisecond)
	}
	return ch
}

func receive(t *testing.T, ch <-chan listenResult) listenResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("listener never woke")
		return listenResult{}
	}
}

func TestNotifyUpdatedWakesOnlyThatVersion(t *testing.T) {
	g := NewLadderGossiper()
	ctx := context.Background()

	a1 := listen(t, ctx, g, 1)
	a2 := listen(t, ctx, g, 1)
	other := listen(t, ctx, g, 2)

	g.NotifyUpdated(&model.Ladder{VersionID: 1, Ranks: []*model.Rank{{ID: 5, Name: "Gold"}}})

	for _, ch := range []<-chan listenResult{a1, a2} {
		r := receive(t, ch)
		if r.err != nil || r.ladder.VersionID != 1 || len(r.ladder.Ranks) != 1 {
			t.Errorf("got %+v", r)
		}
	}
	if g.Waiting(1) != 0 {
		t.Errorf("version 1 still has %d listeners", g.Waiting(1))
	}
	if g.Waiting(2) != 1 {
		t.Errorf("version 2 has %d listeners, want 1", g.Waiting(2))
	}

	g.NotifyDeleted(2)
	r := receive(t, other)
	if !errors.Is(r.err, ErrGone) || he.StatusCode(r.err) != 410 {
		t.Errorf("deleted: got %+v", r)
	}
}

func TestListenersGetTheirOwnCopy(t *testing.T) {
	g := NewLadderGossiper()
	ctx := context.Background()
	a := listen(t, ctx, g, 1)
	b := listen(t, ctx, g, 1)

	g.NotifyUpdated(&model.Ladder{VersionID: 1, Ranks: []*model.Rank{{ID: 5, Name: "Gold"}}})
	ra, rb := receive(t, a), receive(t, b)
	ra.ladder.Ranks[0].Name = "scribbled"
	if rb.ladder.Ranks[0].Name != "Gold" {
		t.Errorf("listeners share a ladder")
	}
}

func TestListenCancelled(t *testing.T) {
	g := NewLadderGossiper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := listen(t, ctx, g, 3)
	cancel()

	r := receive(t, ch)
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", r.err)
	}
	if g.Waiting(3) != 0 {
		t.Errorf("cancelled listener left behind")
	}
	// Nobody is left to hear this; it must not block.
	g.NotifyUpdated(&model.Ladder{VersionID: 3})
}

func TestStorageGossipsWrites(t *testing.T) {
	ctx := context.Background()
	mem := state.NewMemoryStorage()
	g := NewLadderGossiper()
	s := NewLadderStorage(mem, g)

	gameID, err := s.CreateGame(ctx, &model.Game{Name: "Chess"})
	if err != nil {
		t.Fatal(err)
	}
	versionID, err := s.CreateVersion(ctx, &model.GameVersion{GameID: gameID, Name: "2025"})
	if err != nil {
		t.Fatal(err)
	}

	saved := listen(t, ctx, g, versionID)
	p := 0.5
	err = s.SaveLadder(ctx, &model.Ladder{VersionID: versionID, Ranks: []*model.Rank{
		{Name: "Pawn", Tiers: []*model.Tier{{Name: "I", Percentile: &p}}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	r := receive(t, saved)
	if r.err != nil || len(r.ladder.Ranks) != 1 {
		t.Fatalf("got %+v", r)
	}
	if r.ladder.Ranks[0].ID == 0 || r.ladder.Ranks[0].Tiers[0].ID == 0 {
		t.Errorf("gossiped ladder is missing stored IDs: %+v", r.ladder.Ranks[0])
	}

	gone := listen(t, ctx, g, versionID)
	if err := s.DeleteGame(ctx, gameID); err != nil {
		t.Fatal(err)
	}
	if r := receive(t, gone); !errors.Is(r.err, ErrGone) {
		t.Errorf("delete: got %+v", r)
	}
}
