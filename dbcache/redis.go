package dbcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
	"github.com/ts4z/rungs/varz"
)

var (
	redisHits   = varz.NewInt("redisHits")
	redisMisses = varz.NewInt("redisMisses")
	redisErrors = varz.NewInt("redisErrors")
)

// NewRedisPool makes a connection pool for a redis:// URL.
func NewRedisPool(url string) *redis.Pool {
	return &redis.Pool{
		Wait:        true,
		MaxIdle:     4,
		MaxActive:   16,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(url,
				redis.DialConnectTimeout(2*time.Second),
				redis.DialReadTimeout(2*time.Second),
				redis.DialWriteTimeout(2*time.Second))
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// RedisLadderStorage shares fetched ladders between server processes.  It
// sits under the in-process LRU, so a miss there costs one GET here rather
// than a database query.  Redis trouble is logged and otherwise ignored:
// the database is still there.
type RedisLadderStorage struct {
	state.LadderStorage

	pool *redis.Pool
	ttl  time.Duration
}

func NewRedisLadderStorage(pool *redis.Pool, ttl time.Duration, nx state.LadderStorage) *RedisLadderStorage {
	return &RedisLadderStorage{
		LadderStorage: nx,
		pool:          pool,
		ttl:           ttl,
	}
}

// expireSeconds rounds ttl up to whole seconds.  Redis refuses EX 0.
func expireSeconds(ttl time.Duration) int64 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func ladderKey(versionID int64) string {
	return fmt.Sprintf("rungs:ladder:%d", versionID)
}

func (s *RedisLadderStorage) Close() {
	if err := s.pool.Close(); err != nil {
		log.Printf("closing redis pool: %v", err)
	}
	s.LadderStorage.Close()
}

func (s *RedisLadderStorage) get(ctx context.Context, versionID int64) (*model.Ladder, bool) {
	c, err := s.pool.GetContext(ctx)
	if err != nil {
		redisErrors.Add(1)
		log.Printf("redis: can't get connection: %v", err)
		return nil, false
	}
	defer c.Close()

	bytes, err := redis.Bytes(c.Do("GET", ladderKey(versionID)))
	if errors.Is(err, redis.ErrNil) {
		return nil, false
	}
	if err != nil {
		redisErrors.Add(1)
		log.Printf("redis: GET ladder %d: %v", versionID, err)
		return nil, false
	}
	l := &model.Ladder{}
	if err := json.Unmarshal(bytes, l); err != nil {
		redisErrors.Add(1)
		log.Printf("redis: bad ladder %d: %v", versionID, err)
		return nil, false
	}
	return l, true
}

func (s *RedisLadderStorage) put(ctx context.Context, l *model.Ladder) {
	bytes, err := json.Marshal(l)
	if err != nil {
		log.Printf("redis: can't encode ladder %d: %v", l.VersionID, err)
		return
	}
	c, err := s.pool.GetContext(ctx)
	if err != nil {
		redisErrors.Add(1)
		log.Printf("redis: can't get connection: %v", err)
		return
	}
	defer c.Close()
	if _, err := c.Do("SET", ladderKey(l.VersionID), bytes, "EX", expireSeconds(s.ttl)); err != nil {
		redisErrors.Add(1)
		log.Printf("redis: SET ladder %d: %v", l.VersionID, err)
	}
}

// InvalidateLadder removes a version's ladder from redis.
func (s *RedisLadderStorage) InvalidateLadder(versionID int64) {
	c := s.pool.Get()
	defer c.Close()
	if _, err := c.Do("DEL", ladderKey(versionID)); err != nil {
		redisErrors.Add(1)
		log.Printf("redis: DEL ladder %d: %v", versionID, err)
	}
}

func (s *RedisLadderStorage) FetchLadder(ctx context.Context, versionID int64) (*model.Ladder, error) {
	if l, ok := s.get(ctx, versionID); ok {
		redisHits.Add(1)
		return l, nil
	}
	redisMisses.Add(1)
	l, err := s.LadderStorage.FetchLadder(ctx, versionID)
	if err != nil {
		return nil, err
	}
	s.put(ctx, l)
	return l, nil
}

func (s *RedisLadderStorage) SaveLadder(ctx context.Context, l *model.Ladder) error {
	err := s.LadderStorage.SaveLadder(ctx, l)
	s.InvalidateLadder(l.VersionID)
	return err
}

func (s *RedisLadderStorage) DeleteGame(ctx context.Context, id int64) error {
	versions, err := s.LadderStorage.FetchVersions(ctx, id)
	if err != nil {
		return err
	}
	if err := s.LadderStorage.DeleteGame(ctx, id); err != nil {
		return err
	}
	for _, v := range versions {
		s.InvalidateLadder(v.ID)
	}
	return nil
}
