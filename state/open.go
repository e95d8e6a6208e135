package state

import (
	"context"
	"fmt"

	"github.com/ts4z/rungs/config"
	"github.com/ts4z/rungs/dbutil"
)

// Storage is everything a backend provides.
type Storage interface {
	LadderStorage
	SiteStorage
	UserStorage
}

// Open returns the backend named by the storage_backend setting.
func Open(ctx context.Context) (Storage, error) {
	switch backend := config.StorageBackend(); backend {
	case config.BackendPostgres:
		db, err := dbutil.Connect(ctx)
		if err != nil {
			return nil, err
		}
		return NewDBStorage(ctx, db)
	case config.BackendSQLite:
		return NewGormStorage(config.SQLitePath())
	case config.BackendMemory:
		return NewDemoStorage(ctx)
	default:
		return nil, fmt.Errorf("unknown storage_backend %q", backend)
	}
}
