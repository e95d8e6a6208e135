package permission

import (
	"github.com/ts4z/rungs/state"
)

// Storage guards everything a backend provides.
type Storage struct {
	*LadderStorage
	*SiteStorage
	*UserStorage

	next state.Storage
}

var _ state.Storage = &Storage{}

func NewStorage(nx state.Storage) *Storage {
	return &Storage{
		LadderStorage: NewLadderStorage(nx),
		SiteStorage:   NewSiteConfigStorage(nx),
		UserStorage:   NewUserStorage(nx),
		next:          nx,
	}
}

// Close closes the backend once.
func (s *Storage) Close() {
	s.next.Close()
}
