package permission

import (
	"context"

	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
)

// SiteStorage keeps the site config, with its cookie keys and CORS origins,
// to admins.  The bakery and the CORS setup read it before anyone is logged
// in, so they are handed the unguarded storage instead.
type SiteStorage struct {
	state.SiteStorage
}

var _ state.SiteStorage = &SiteStorage{}

func NewSiteConfigStorage(nx state.SiteStorage) *SiteStorage {
	return &SiteStorage{SiteStorage: nx}
}

func (s *SiteStorage) FetchSiteConfig(ctx context.Context) (*model.SiteConfig, error) {
	return guardedReturning(ctx, adminOnly, func() (*model.SiteConfig, error) {
		return s.SiteStorage.FetchSiteConfig(ctx)
	})
}

func (s *SiteStorage) SaveSiteConfig(ctx context.Context, sc *model.SiteConfig) error {
	return guarded(ctx, adminOnly, func() error {
		return s.SiteStorage.SaveSiteConfig(ctx, sc)
	})
}
