package provider

import (
	"context"
	"sync"

	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	"github.com/gregoritrentin/prospera-api-sub003/pkg/platform/sentinel"
)

// InMemoryStore holds configurations in a map, keyed by city code.
type InMemoryStore struct {
	mu      sync.RWMutex
	configs map[id.CityCode]Configuration
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{configs: make(map[id.CityCode]Configuration)}
}

// Put registers a configuration. Used by seeds and tests; the administrative
// flow that edits configurations lives outside this core.
func (s *InMemoryStore) Put(cfg Configuration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.CityCode] = cfg
}

func (s *InMemoryStore) FindByCityCode(_ context.Context, cityCode id.CityCode) (*Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[cityCode]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &cfg, nil
}
