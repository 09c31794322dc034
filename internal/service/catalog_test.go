package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

type countingLoader struct {
	loads int
	err   error
}

func (l *countingLoader) Load() (*entities.Catalog, error) {
	l.loads++
	if l.err != nil {
		return nil, l.err
	}
	return testCatalog(), nil
}

func TestCatalogCache_TTL(t *testing.T) {
	clock := newFakeClock()
	loader := &countingLoader{}
	cache := NewCatalogCache(loader, time.Minute, clock, zap.NewNop())
	ctx := context.Background()

	first, err := cache.Catalog(ctx)
	require.NoError(t, err)
	second, err := cache.Catalog(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, loader.loads)

	clock.Advance(time.Minute)
	third, err := cache.Catalog(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, loader.loads)

	cache.Invalidate()
	_, err = cache.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, loader.loads)
}

func TestCatalogCache_ServesStaleOnReloadFailure(t *testing.T) {
	clock := newFakeClock()
	loader := &countingLoader{}
	cache := NewCatalogCache(loader, time.Minute, clock, zap.NewNop())
	ctx := context.Background()

	first, err := cache.Catalog(ctx)
	require.NoError(t, err)

	loader.err = errors.New("disk gone")
	clock.Advance(2 * time.Minute)

	got, err := cache.Catalog(ctx)
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestCatalogCache_FirstLoadFailure(t *testing.T) {
	loader := &countingLoader{err: errors.New("missing file")}
	cache := NewCatalogCache(loader, time.Minute, newFakeClock(), zap.NewNop())

	_, err := cache.Catalog(context.Background())
	assert.Error(t, err)
}
