package dbcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/ts4z/rungs/fakes"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
)

// memRedis understands just enough of the protocol for the ladder cache.
type memRedis struct {
	lock    sync.Mutex
	data    map[string][]byte
	expires map[string]int64
	down    bool
}

type memConn struct {
	r *memRedis
}

func (c *memConn) Close() error                      { return nil }
func (c *memConn) Err() error                        { return nil }
func (c *memConn) Send(string, ...interface{}) error { return nil }
func (c *memConn) Flush() error                      { return nil }
func (c *memConn) Receive() (interface{}, error)     { return nil, nil }

func (c *memConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	c.r.lock.Lock()
	defer c.r.lock.Unlock()
	if cmd == "" {
		return nil, nil
	}
	if c.r.down {
		return nil, errors.New("connection refused")
	}
	key := fmt.Sprint(args[0])
	switch strings.ToUpper(cmd) {
	case "GET":
		v, ok := c.r.data[key]
		if !ok {
			return nil, nil
		}
		return v, nil
	case "SET":
		if len(args) == 4 {
			if ex, _ := args[3].(int64); ex <= 0 {
				return nil, errors.New("ERR invalid expire time in 'set' command")
			}
			c.r.expires[key] = args[3].(int64)
		}
		c.r.data[key] = args[1].([]byte)
		return "OK", nil
	case "DEL":
		_, ok := c.r.data[key]
		delete(c.r.data, key)
		if ok {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, fmt.Errorf("memRedis: unsupported %s", cmd)
}

func newRedisCache(t *testing.T) (*RedisLadderStorage, *memRedis, *fakes.FlakyStorage) {
	t.Helper()
	return newRedisCacheTTL(t, 10*time.Minute)
}

func newRedisCacheTTL(t *testing.T, ttl time.Duration) (*RedisLadderStorage, *memRedis, *fakes.FlakyStorage) {
	t.Helper()
	mem, err := state.NewDemoStorage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	flaky := fakes.NewFlakyStorage(mem)
	r := &memRedis{data: map[string][]byte{}, expires: map[string]int64{}}
	pool := &redis.Pool{Dial: func() (redis.Conn, error) { return &memConn{r: r}, nil }}
	return NewRedisLadderStorage(pool, ttl, flaky), r, flaky
}

func TestRedisLadderCache(t *testing.T) {
	ctx := context.Background()
	s, r, flaky := newRedisCache(t)
	_, v := firstVersion(t, s)

	l1, err := s.FetchLadder(ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.data[ladderKey(v.ID)]; !ok {
		t.Fatalf("ladder not stored in redis")
	}
	l2, err := s.FetchLadder(ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if flaky.Calls("FetchLadder") != 1 {
		t.Errorf("second fetch missed redis")
	}
	if l2.TierCount() != l1.TierCount() || l2.Ranks[0].Name != l1.Ranks[0].Name {
		t.Errorf("redis round trip changed the ladder")
	}
	for i, rk := range l1.Ranks {
		for j, tr := range rk.Tiers {
			got := l2.Ranks[i].Tiers[j]
			if (tr.Percentile == nil) != (got.Percentile == nil) ||
				(tr.Percentile != nil && *tr.Percentile != *got.Percentile) {
				t.Errorf("percentile of %s %s changed", rk.Name, tr.Name)
			}
		}
	}

	if err := s.SaveLadder(ctx, &model.Ladder{VersionID: v.ID}); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.data[ladderKey(v.ID)]; ok {
		t.Errorf("save didn't invalidate redis")
	}
}

func TestRedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	s, r, flaky := newRedisCache(t)
	_, v := firstVersion(t, s)
	r.down = true

	l, err := s.FetchLadder(ctx, v.ID)
	if err != nil {
		t.Fatalf("redis outage leaked: %v", err)
	}
	if l.TierCount() == 0 {
		t.Errorf("empty ladder")
	}
	if flaky.Calls("FetchLadder") != 1 {
		t.Errorf("storage not consulted")
	}
}

func TestRedisShortTTLStillStores(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int64
	}{
		{0, 1},
		{500 * time.Millisecond, 1},
		{1500 * time.Millisecond, 2},
		{10 * time.Minute, 600},
	}
	for _, tt := range tests {
		t.Run(tt.ttl.String(), func(t *testing.T) {
			s, r, _ := newRedisCacheTTL(t, tt.ttl)
			_, v := firstVersion(t, s)
			if _, err := s.FetchLadder(context.Background(), v.ID); err != nil {
				t.Fatal(err)
			}
			if _, ok := r.data[ladderKey(v.ID)]; !ok {
				t.Fatalf("ladder not stored")
			}
			if got := r.expires[ladderKey(v.ID)]; got != tt.want {
				t.Errorf("EX %d, want %d", got, tt.want)
			}
		})
	}
}
