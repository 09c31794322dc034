package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

// DefaultCatalogTTL is how long a loaded catalog is served before reload.
const DefaultCatalogTTL = 10 * time.Minute

// CatalogCache serves the competence catalog, reloading it once the TTL has
// elapsed. When a reload fails and a catalog was loaded before, the old
// catalog keeps being served.
type CatalogCache struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  Clock
	logger *zap.Logger

	mu       sync.Mutex
	catalog  *entities.Catalog
	loadedAt time.Time
}

// NewCatalogCache creates a new CatalogCache.
func NewCatalogCache(loader CatalogLoader, ttl time.Duration, clock Clock, logger *zap.Logger) *CatalogCache {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &CatalogCache{
		loader: loader,
		ttl:    ttl,
		clock:  clock,
		logger: logger,
	}
}

// Catalog returns the cached catalog, loading it when missing or expired.
func (c *CatalogCache) Catalog(_ context.Context) (*entities.Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.catalog != nil && now.Sub(c.loadedAt) < c.ttl {
		return c.catalog, nil
	}

	catalog, err := c.loader.Load()
	if err != nil {
		if c.catalog != nil {
			c.logger.Warn("catalog reload failed, serving cached copy",
				zap.Time("loaded_at", c.loadedAt),
				zap.Error(err),
			)
			return c.catalog, nil
		}
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	c.catalog = catalog
	c.loadedAt = now
	return catalog, nil
}

// Invalidate forces the next call to reload.
func (c *CatalogCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadedAt = time.Time{}
}
