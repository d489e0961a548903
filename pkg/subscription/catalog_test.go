package subscription_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cutsync/pkg/redis"
	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

func newCatalogCache(t *testing.T) (*miniredis.Miniredis, *redis.JSONCache[subscription.CatalogEntry]) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.NewJSONCache[subscription.CatalogEntry](client, "catalog", time.Minute)
}

func TestCatalogSync(t *testing.T) {
	t.Parallel()

	provider := &MockProvider{}
	store := subscription.NewMemoryStore()
	reg := prometheus.NewRegistry()
	catalog := subscription.NewCatalog(provider, store, baseOptions(subscription.WithMetrics(subscription.NewMetrics(reg)))...)

	oneOff := priceFor(planA())
	oneOff.ID, oneOff.Recurring = "price_once", false
	noCuts := priceFor(planA())
	noCuts.ID, noCuts.CutsIncluded = "price_free", 0
	provider.On("ListCatalogPrices", mock.Anything).Return([]subscription.Price{*priceFor(planA()), *priceFor(planB()), *oneOff, *noCuts}, nil)

	n, err := catalog.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := store.ListCatalog(t.Context(), true)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, planA(), entries[0])
	assert.Equal(t, planB(), entries[1])

	expected := `
# HELP cutsync_catalog_prices_synced Prices upserted by the last catalog sync.
# TYPE cutsync_catalog_prices_synced gauge
cutsync_catalog_prices_synced 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cutsync_catalog_prices_synced"))
}

func TestCatalogSyncProviderError(t *testing.T) {
	t.Parallel()

	provider := &MockProvider{}
	provider.On("ListCatalogPrices", mock.Anything).Return(nil, subscription.ErrProviderUnavailable)

	_, err := subscription.NewCatalog(provider, subscription.NewMemoryStore(), baseOptions()...).Sync(t.Context())
	assert.ErrorIs(t, err, subscription.ErrProviderUnavailable)
}

func TestCatalogLookupReadThroughCache(t *testing.T) {
	t.Parallel()

	mr, cache := newCatalogCache(t)
	provider := &MockProvider{}
	store := subscription.NewMemoryStore()
	require.NoError(t, store.UpsertCatalog(t.Context(), []subscription.CatalogEntry{planA()}))
	catalog := subscription.NewCatalog(provider, store, baseOptions(subscription.WithCatalogCache(cache))...)

	entry, err := catalog.Lookup(t.Context(), "price_a")
	require.NoError(t, err)
	assert.Equal(t, "Basic", entry.Name)
	assert.True(t, mr.Exists("catalog:price_a"))

	cached, err := cache.Get(t.Context(), "price_a")
	require.NoError(t, err)
	assert.Equal(t, planA(), cached)

	require.NoError(t, catalog.Deactivate(t.Context(), "price_a"))
	assert.False(t, mr.Exists("catalog:price_a"), "deactivation invalidates the cache")

	entry, err = catalog.Lookup(t.Context(), "price_a")
	require.NoError(t, err)
	assert.False(t, entry.Active)
}

func TestCatalogLookupFallsBackToProvider(t *testing.T) {
	t.Parallel()

	_, cache := newCatalogCache(t)
	provider := &MockProvider{}
	provider.On("GetPrice", mock.Anything, "price_b").Return(priceFor(planB()), nil).Once()
	catalog := subscription.NewCatalog(provider, subscription.NewMemoryStore(), baseOptions(subscription.WithCatalogCache(cache))...)

	for range 2 {
		entry, err := catalog.Lookup(t.Context(), "price_b")
		require.NoError(t, err)
		assert.Equal(t, 8, entry.CutsIncluded)
	}
	provider.AssertExpectations(t)
}

func TestCatalogLookupRejectsPriceWithoutCuts(t *testing.T) {
	t.Parallel()

	provider := &MockProvider{}
	noCuts := priceFor(planA())
	noCuts.CutsIncluded = 0
	provider.On("GetPrice", mock.Anything, "price_a").Return(noCuts, nil)
	provider.On("GetPrice", mock.Anything, "price_x").Return(nil, subscription.ErrProviderRejected)
	provider.On("GetPrice", mock.Anything, "price_y").Return(nil, subscription.ErrProviderUnavailable)
	catalog := subscription.NewCatalog(provider, subscription.NewMemoryStore(), baseOptions()...)

	_, err := catalog.Lookup(t.Context(), "price_a")
	assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	assert.ErrorIs(t, err, subscription.ErrMissingCredits)

	_, err = catalog.Lookup(t.Context(), "price_x")
	assert.ErrorIs(t, err, subscription.ErrPlanNotFound)

	_, err = catalog.Lookup(t.Context(), "price_y")
	assert.ErrorIs(t, err, subscription.ErrProviderUnavailable)
	assert.NotErrorIs(t, err, subscription.ErrPlanNotFound)

	_, err = catalog.Lookup(t.Context(), "")
	assert.ErrorIs(t, err, subscription.ErrInvalidPriceID)
}

func TestCatalogSyncInvalidatesCache(t *testing.T) {
	t.Parallel()

	mr, cache := newCatalogCache(t)
	provider := &MockProvider{}
	store := subscription.NewMemoryStore()
	catalog := subscription.NewCatalog(provider, store, baseOptions(subscription.WithCatalogCache(cache))...)
	require.NoError(t, cache.Set(t.Context(), "price_a", subscription.CatalogEntry{PriceID: "price_a", Name: "Stale"}))

	provider.On("ListCatalogPrices", mock.Anything).Return([]subscription.Price{*priceFor(planA())}, nil)
	_, err := catalog.Sync(t.Context())
	require.NoError(t, err)
	assert.False(t, mr.Exists("catalog:price_a"))

	entry, err := catalog.Lookup(t.Context(), "price_a")
	require.NoError(t, err)
	assert.Equal(t, "Basic", entry.Name)
}

func TestCatalogRun(t *testing.T) {
	t.Parallel()

	provider := &MockProvider{}
	synced := make(chan struct{}, 8)
	provider.On("ListCatalogPrices", mock.Anything).Run(func(mock.Arguments) {
		select {
		case synced <- struct{}{}:
		default:
		}
	}).Return([]subscription.Price{*priceFor(planA())}, nil)
	catalog := subscription.NewCatalog(provider, subscription.NewMemoryStore(), baseOptions()...)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- catalog.Run(ctx, 10*time.Millisecond) }()

	for range 2 {
		select {
		case <-synced:
		case <-time.After(2 * time.Second):
			t.Fatal("catalog was not synced")
		}
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
