package gossip

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/varz"
)

var (
	listenersWaiting = varz.NewInt("gossipListenersWaiting")
	laddersGossiped  = varz.NewInt("laddersGossiped")
)

// ErrGone is what a listener gets when the version it was waiting on is
// deleted.
var ErrGone = he.New(http.StatusGone, errors.New("version was deleted"))

// A waiter receives exactly one result.  The channel is buffered so the
// sender never blocks on a client that has already left.
type waiter struct {
	ch chan result
}

type result struct {
	ladder *model.Ladder
	err    error
}

// LadderGossiper provides a tattletale for changes to ladders.  Clients wait
// on a version; the next save or delete of that version wakes them all.
type LadderGossiper struct {
	mu        sync.Mutex
	listeners map[int64][]*waiter
}

func NewLadderGossiper() *LadderGossiper {
	return &LadderGossiper{
		listeners: make(map[int64][]*waiter),
	}
}

// Listen blocks until versionID's ladder changes or ctx ends.  A change that
// lands between the caller's last fetch and this call is missed; callers
// that care should fetch again after Listen returns with ctx.Err().
func (g *LadderGossiper) Listen(ctx context.Context, versionID int64) (*model.Ladder, error) {
	w := &waiter{ch: make(chan result, 1)}

	g.mu.Lock()
	g.listeners[versionID] = append(g.listeners[versionID], w)
	g.mu.Unlock()
	listenersWaiting.Add(1)
	defer listenersWaiting.Add(-1)

	select {
	case r := <-w.ch:
		return r.ladder, r.err
	case <-ctx.Done():
		g.forget(versionID, w)
		return nil, ctx.Err()
	}
}

func (g *LadderGossiper) forget(versionID int64, w *waiter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ws := g.listeners[versionID]
	for i, x := range ws {
		if x == w {
			ws = append(ws[:i:i], ws[i+1:]...)
			break
		}
	}
	if len(ws) == 0 {
		delete(g.listeners, versionID)
	} else {
		g.listeners[versionID] = ws
	}
}

func (g *LadderGossiper) take(versionID int64) []*waiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	ws := g.listeners[versionID]
	delete(g.listeners, versionID)
	return ws
}

// Waiting is the number of clients waiting on versionID.
func (g *LadderGossiper) Waiting(versionID int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.listeners[versionID])
}

// NotifyUpdated hands l to everyone waiting on its version.
func (g *LadderGossiper) NotifyUpdated(l *model.Ladder) {
	ws := g.take(l.VersionID)
	for _, w := range ws {
		w.ch <- result{ladder: l.Clone()}
	}
	laddersGossiped.Add(1)
	if len(ws) > 0 {
		log.Printf("notified %d listeners of ladder %d change", len(ws), l.VersionID)
	}
}

// NotifyDeleted wakes everyone waiting on versionID with ErrGone.
func (g *LadderGossiper) NotifyDeleted(versionID int64) {
	for _, w := range g.take(versionID) {
		w.ch <- result{err: ErrGone}
	}
}
