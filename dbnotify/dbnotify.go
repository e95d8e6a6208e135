/*
package dbnotify provides a backchannel from the database to push changes to
models out to other locations.

The schema's triggers send a JSON NotificationEvent on "<table>_changes"
whenever a game, a game's versions, or a version's ranks change.  Each
server process listens and drops what it has cached.
*/
package dbnotify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ts4z/rungs/varz"
)

const (
	sleepOnErrorTime = 5 * time.Second

	GamesTable    = "games"
	VersionsTable = "game_versions"
	LaddersTable  = "ladders"
)

var (
	eventsReceived = varz.NewInt("eventsReceived")
	eventsDropped  = varz.NewInt("eventsDropped")
)

// NotificationEvent is the trigger payload.  OnID is the game ID for games
// and game_versions, and the version ID for ladders.
type NotificationEvent struct {
	Table   string
	OnID    int64
	Version int64
}

type DBNotifyListener struct {
	db                  *sql.DB
	tableNameToConsumer map[string]Consumer
}

type CacheInvalidator interface {
	CacheInvalidate(ctx context.Context, key int64)
}

type CacheInvalidatorFunc func(ctx context.Context, key int64)

func (f CacheInvalidatorFunc) CacheInvalidate(ctx context.Context, key int64) {
	f(ctx, key)
}

type StorageFetcher[StoredType any] interface {
	Fetch(ctx context.Context, id int64) (StoredType, error)
}

type FetcherFunc[StoredType any] func(ctx context.Context, id int64) (StoredType, error)

func (f FetcherFunc[StoredType]) Fetch(ctx context.Context, id int64) (StoredType, error) {
	return f(ctx, id)
}

// ChangeDispatcher is a Consumer that drops a cache entry and, if it has a
// fetcher, reads the entry back in so the next request finds it warm.
type ChangeDispatcher[StoredType any] struct {
	tableName    string
	cacheStorage CacheInvalidator
	fetcher      StorageFetcher[StoredType]
}

func (cd *ChangeDispatcher[StoredType]) TableName() string {
	return cd.tableName
}

// NewChangeDispatcher makes a dispatcher for tableName.  fetcher may be nil.
func NewChangeDispatcher[StoredType any](tableName string, cacheStorage CacheInvalidator, fetcher StorageFetcher[StoredType]) *ChangeDispatcher[StoredType] {
	return &ChangeDispatcher[StoredType]{
		tableName:    tableName,
		cacheStorage: cacheStorage,
		fetcher:      fetcher,
	}
}

type Consumer interface {
	TableName() string
	Consume(ctx context.Context, event *NotificationEvent)
}

func NewDBNotifyListener(db *sql.DB, consumers ...Consumer) (*DBNotifyListener, error) {
	m := make(map[string]Consumer)
	for _, c := range consumers {
		tableName := c.TableName()
		if _, exists := m[tableName]; exists {
			return nil, fmt.Errorf("duplicate consumer for table %s", tableName)
		}
		m[tableName] = c
	}

	return &DBNotifyListener{db: db, tableNameToConsumer: m}, nil
}

// Channels returns the Postgres channels to LISTEN on, sorted.
func (cl *DBNotifyListener) Channels() []string {
	channels := []string{}
	for table := range cl.tableNameToConsumer {
		channels = append(channels, fmt.Sprintf("%s_changes", table))
	}
	sort.Strings(channels)
	return channels
}

// Listen blocks, handing notifications to consumers, until ctx ends or the
// connection fails.
func (cl *DBNotifyListener) Listen(ctx context.Context) error {
	conn, err := cl.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var pgxConn *stdlib.Conn
	err = conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("not a pgx connection: %T", driverConn)
		}
		pgxConn = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get pgx connection: %w", err)
	}

	for _, channel := range cl.Channels() {
		_, err := pgxConn.Conn().Exec(ctx, fmt.Sprintf("LISTEN %s", channel))
		if err != nil {
			return fmt.Errorf("failed to listen on channel %s: %w", channel, err)
		}
	}

	for {
		var notification *pgconn.Notification
		if nf, err := pgxConn.Conn().WaitForNotification(ctx); err == nil {
			notification = nf
		} else {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("error waiting for notification: %w", err)
		}

		event := &NotificationEvent{}
		if err := json.Unmarshal([]byte(notification.Payload), event); err != nil {
			log.Printf("can't unmarshal notification payload '%s': %v", notification.Payload, err)
			time.Sleep(sleepOnErrorTime)
			continue
		}

		go cl.Dispatch(ctx, event)
	}
}

// ListenForever restarts Listen after failures until ctx ends.
func (cl *DBNotifyListener) ListenForever(ctx context.Context) {
	for {
		err := cl.Listen(ctx)
		if ctx.Err() != nil {
			log.Printf("stopping db notification listener: %v", ctx.Err())
			return
		}
		log.Printf("db notification listener failed, restarting: %v", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepOnErrorTime):
		}
	}
}

// Dispatch hands event to the consumer for its table.
func (cl *DBNotifyListener) Dispatch(ctx context.Context, event *NotificationEvent) {
	eventsReceived.Add(1)
	consumer, ok := cl.tableNameToConsumer[event.Table]
	if !ok {
		eventsDropped.Add(1)
		log.Printf("no listener for table %s", event.Table)
		return
	}
	consumer.Consume(ctx, event)
}

func (cd *ChangeDispatcher[StoredType]) Consume(ctx context.Context, event *NotificationEvent) {
	cd.cacheStorage.CacheInvalidate(ctx, event.OnID)

	if cd.fetcher == nil {
		return
	}
	// Read-through.
	if _, err := cd.fetcher.Fetch(ctx, event.OnID); err != nil {
		log.Printf("can't rewarm %s %d: %v", cd.tableName, event.OnID, err)
	}
}
