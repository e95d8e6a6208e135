package main

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ts4z/rungs/assets"
	"github.com/ts4z/rungs/config"
	"github.com/ts4z/rungs/dbcache"
	"github.com/ts4z/rungs/dbnotify"
	"github.com/ts4z/rungs/gossip"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/permission"
	"github.com/ts4z/rungs/state"
	"github.com/ts4z/rungs/ts"
	"github.com/ts4z/rungs/webapp"
)

// sqlBacked is a storage that can hand over its database handle, which is
// only true of the Postgres backend.
type sqlBacked interface {
	DB() *sql.DB
}

type ladderInvalidator interface {
	InvalidateLadder(versionID int64)
}

// listenForChanges keeps the caches honest when another process (or psql)
// edits the ladder tables.
func listenForChanges(ctx context.Context, db *sql.DB, cache *dbcache.LadderStorage, shared ladderInvalidator, gossiper *gossip.LadderGossiper) {
	ladders := func(_ context.Context, versionID int64) {
		cache.InvalidateLadder(versionID)
		if shared != nil {
			shared.InvalidateLadder(versionID)
		}
	}
	listener, err := dbnotify.NewDBNotifyListener(db,
		dbnotify.NewChangeDispatcher[*model.Ladder](dbnotify.LaddersTable,
			dbnotify.CacheInvalidatorFunc(ladders),
			dbnotify.FetcherFunc[*model.Ladder](func(ctx context.Context, versionID int64) (*model.Ladder, error) {
				l, err := cache.FetchLadder(ctx, versionID)
				if err == nil {
					gossiper.NotifyUpdated(l)
				}
				return l, err
			})),
		dbnotify.NewChangeDispatcher[[]*model.GameVersion](dbnotify.VersionsTable,
			dbnotify.CacheInvalidatorFunc(func(_ context.Context, gameID int64) {
				cache.InvalidateVersions(gameID)
			}),
			dbnotify.FetcherFunc[[]*model.GameVersion](cache.FetchVersions)),
		dbnotify.NewChangeDispatcher[any](dbnotify.GamesTable,
			dbnotify.CacheInvalidatorFunc(func(context.Context, int64) {
				cache.InvalidateGames()
			}), nil),
	)
	if err != nil {
		log.Fatalf("can't set up change listener: %v", err)
	}
	log.Printf("listening for changes on %v", listener.Channels())
	go listener.ListenForever(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.Init()

	clock := ts.NewRealClock()
	subFS, err := fs.Sub(assets.FS, "fs")
	if err != nil {
		log.Fatalf("fs.Sub: %v", err)
	}

	unprotectedStorage, err := state.Open(ctx)
	if err != nil {
		log.Fatalf("can't configure storage: %v", err)
	}
	defer unprotectedStorage.Close()

	var ladderBackend state.LadderStorage = unprotectedStorage
	var shared *dbcache.RedisLadderStorage
	if url := config.RedisURL(); url != "" {
		log.Printf("sharing ladders through redis at %s", url)
		shared = dbcache.NewRedisLadderStorage(dbcache.NewRedisPool(url), config.RedisTTL(), ladderBackend)
		ladderBackend = shared
	}
	ladderCache := dbcache.NewLadderStorage(config.CacheSize(), config.GamesTTL(), clock, ladderBackend)
	gossiper := gossip.NewLadderGossiper()

	if db, ok := unprotectedStorage.(sqlBacked); ok {
		var inv ladderInvalidator
		if shared != nil {
			inv = shared
		}
		listenForChanges(ctx, db.DB(), ladderCache, inv, gossiper)
	}

	siteCache := dbcache.NewSiteConfigStorage(unprotectedStorage, clock)
	userCache := dbcache.NewUserStorage(config.CacheSize(), config.UserTTL(), unprotectedStorage)

	app, err := webapp.New(ctx, &webapp.Config{
		LadderStorage:       permission.NewLadderStorage(gossip.NewLadderStorage(ladderCache, gossiper)),
		SiteStorage:         siteCache,
		UserStorage:         permission.NewUserStorage(userCache),
		BakeryFactory:       permission.NewBakeryFactory(clock, siteCache, config.SecureCookies()),
		Clock:               clock,
		SubFS:               subFS,
		FetchConcurrency:    config.FetchConcurrency(),
		ExtraAllowedOrigins: config.AllowedOrigins(),
		Gossiper:            gossiper,
	})
	if err != nil {
		log.Fatalf("can't create app: %v", err)
	}

	if err := app.Serve(ctx, config.ListenAddress()); err != nil {
		log.Fatalf("can't serve: %v", err)
	}
}
