package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
	"github.com/gregoritrentin/prospera-api-sub003/pkg/platform/sentinel"
)

// Store is the persistence contract for city configurations.
type Store interface {
	FindByCityCode(ctx context.Context, cityCode id.CityCode) (*Configuration, error)
}

// Registry answers per-city configuration lookups. Configurations are
// immutable reference data, so a small TTL cache in front of the store keeps
// the hot path off the database.
type Registry struct {
	store    Store
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[id.CityCode]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	config    *Configuration
	refreshed time.Time
}

func NewRegistry(store Store, cacheTTL time.Duration) *Registry {
	return &Registry{
		store:    store,
		cacheTTL: cacheTTL,
		cache:    make(map[id.CityCode]cacheEntry),
		now:      time.Now,
	}
}

// FindByCityCode returns the configuration for a municipality.
func (r *Registry) FindByCityCode(ctx context.Context, cityCode id.CityCode) (*Configuration, error) {
	if cfg, ok := r.cached(cityCode); ok {
		return cfg, nil
	}

	cfg, err := r.store.FindByCityCode(ctx, cityCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domerrors.Newf(domerrors.CodeProviderNotFound,
				"no provider configured for city %s", cityCode)
		}
		return nil, domerrors.Wrap(domerrors.CodeInternal, "load city configuration", err)
	}

	r.mu.Lock()
	r.cache[cityCode] = cacheEntry{config: cfg, refreshed: r.now()}
	r.mu.Unlock()
	return cfg, nil
}

// ResolveEndpoint returns the destination URL for a configuration in the
// given environment.
func (r *Registry) ResolveEndpoint(cfg *Configuration, env id.Environment) (string, error) {
	return cfg.Endpoint(env)
}

func (r *Registry) cached(cityCode id.CityCode) (*Configuration, bool) {
	if r.cacheTTL <= 0 {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[cityCode]
	if !ok || r.now().Sub(entry.refreshed) > r.cacheTTL {
		return nil, false
	}
	return entry.config, true
}
