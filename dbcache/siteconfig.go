package dbcache

import (
	"context"
	"sync"
	"time"

	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
	"github.com/ts4z/rungs/varz"
)

// Keys rotated by rungsadmin show up here within this long.
const siteConfigTTL = 30 * time.Minute

var (
	siteConfigHits   = varz.NewInt("siteConfigHits")
	siteConfigMisses = varz.NewInt("siteConfigMisses")
)

// SiteStorage holds on to the one site config row, which every cookie
// check needs.
type SiteStorage struct {
	state.SiteStorage
	clock Nower

	mu        sync.Mutex
	config    *model.SiteConfig
	expiresAt time.Time
}

var _ state.SiteStorage = (*SiteStorage)(nil)

func NewSiteConfigStorage(next state.SiteStorage, clock Nower) *SiteStorage {
	return &SiteStorage{SiteStorage: next, clock: clock}
}

// remember must be called with mu held.
func (s *SiteStorage) remember(config *model.SiteConfig) {
	s.config = config.Clone()
	s.expiresAt = s.clock.Now().Add(siteConfigTTL)
}

func (s *SiteStorage) FetchSiteConfig(ctx context.Context) (*model.SiteConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config != nil && s.clock.Now().Before(s.expiresAt) {
		siteConfigHits.Add(1)
		return s.config.Clone(), nil
	}
	siteConfigMisses.Add(1)
	config, err := s.SiteStorage.FetchSiteConfig(ctx)
	if err != nil {
		return nil, err
	}
	s.remember(config)
	return config, nil
}

func (s *SiteStorage) SaveSiteConfig(ctx context.Context, config *model.SiteConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.SiteStorage.SaveSiteConfig(ctx, config); err != nil {
		// Unknown what got written.
		s.config = nil
		return err
	}
	s.remember(config)
	return nil
}
