package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/dmitrymomot/cutsync/pkg/logger"
)

// CatalogEntry is a mirrored provider price. Rows are written whole.
type CatalogEntry struct {
	ProductID    string   `json:"product_id"`
	PriceID      string   `json:"price_id"`
	Name         string   `json:"name"`
	CutsIncluded int      `json:"cuts_included"`
	Interval     Interval `json:"interval"`
	Active       bool     `json:"active"`
	Amount       int64    `json:"amount"`
	Currency     string   `json:"currency"`
}

func (e *CatalogEntry) Terms() PlanTerms {
	return PlanTerms{PriceID: e.PriceID, PlanName: e.Name, Interval: e.Interval, CutsIncluded: e.CutsIncluded}
}

// CatalogCache is a read-through cache keyed by price id. Any Get error is
// treated as a miss.
type CatalogCache interface {
	Get(ctx context.Context, priceID string) (CatalogEntry, error)
	Set(ctx context.Context, priceID string, entry CatalogEntry) error
	Delete(ctx context.Context, priceIDs ...string) error
}

// Catalog syncs provider prices into the local catalog and serves lookups.
type Catalog struct {
	provider BillingProvider
	store    CatalogStore
	cache    CatalogCache
	metrics  *Metrics
	log      *slog.Logger
}

func NewCatalog(provider BillingProvider, store CatalogStore, opts ...Option) *Catalog {
	o := newOptions(opts)
	return &Catalog{
		provider: provider,
		store:    store,
		cache:    o.cache,
		metrics:  o.metrics,
		log:      o.log.With(logger.Component("catalog")),
	}
}

// Sync upserts every active recurring price carrying a positive cuts_included
// value and returns how many were written. Other prices are logged and
// skipped. Stale rows are left alone.
func (c *Catalog) Sync(ctx context.Context) (int, error) {
	prices, err := c.provider.ListCatalogPrices(ctx)
	if err != nil {
		return 0, fmt.Errorf("list catalog prices: %w", err)
	}

	usable := func(p Price, _ int) bool { return p.Recurring && p.CutsIncluded > 0 }
	valid, skipped := lo.Filter(prices, usable), lo.Reject(prices, usable)
	for _, p := range skipped {
		c.log.WarnContext(ctx, "skipping catalog price",
			logger.PriceID(p.ID),
			slog.String("product_id", p.ProductID),
			slog.Bool("recurring", p.Recurring),
			logger.Error(ErrMissingCredits))
	}
	if len(valid) == 0 {
		c.metrics.catalogSynced(0)
		return 0, nil
	}

	entries := lo.Map(valid, func(p Price, _ int) CatalogEntry { return p.CatalogEntry() })
	if err := c.store.UpsertCatalog(ctx, entries); err != nil {
		return 0, fmt.Errorf("upsert catalog: %w", err)
	}
	c.invalidate(ctx, lo.Map(entries, func(e CatalogEntry, _ int) string { return e.PriceID })...)

	c.metrics.catalogSynced(len(entries))
	c.log.InfoContext(ctx, "catalog synced", slog.Int("prices", len(entries)), slog.Int("skipped", len(skipped)))
	return len(entries), nil
}

// Deactivate marks a price inactive locally; plan changes to it are refused.
func (c *Catalog) Deactivate(ctx context.Context, priceID string) error {
	if priceID == "" {
		return ErrInvalidPriceID
	}
	if err := c.store.DeactivatePrice(ctx, priceID); err != nil {
		return err
	}
	c.invalidate(ctx, priceID)
	return nil
}

// Lookup resolves plan terms for priceID from the cache, then the catalog
// table, then the provider. Provider results are cached but not written to
// the catalog table.
func (c *Catalog) Lookup(ctx context.Context, priceID string) (*CatalogEntry, error) {
	if priceID == "" {
		return nil, ErrInvalidPriceID
	}
	if c.cache != nil {
		if e, err := c.cache.Get(ctx, priceID); err == nil {
			return &e, nil
		}
	}

	entry, err := c.store.GetCatalogEntry(ctx, priceID)
	if err != nil && !errors.Is(err, ErrPlanNotFound) {
		return nil, err
	}
	if entry == nil {
		price, err := c.provider.GetPrice(ctx, priceID)
		if err != nil {
			if errors.Is(err, ErrProviderRejected) {
				return nil, errors.Join(ErrPlanNotFound, err)
			}
			return nil, err
		}
		if price.CutsIncluded <= 0 {
			return nil, errors.Join(ErrPlanNotFound, ErrMissingCredits)
		}
		e := price.CatalogEntry()
		entry = &e
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, priceID, *entry); err != nil {
			c.log.WarnContext(ctx, "catalog cache write failed", logger.PriceID(priceID), logger.Error(err))
		}
	}
	return entry, nil
}

// Run syncs immediately and then every interval until ctx is done. Sync
// failures are logged and retried on the next tick.
func (c *Catalog) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.Sync(ctx); err != nil && ctx.Err() == nil {
			c.log.ErrorContext(ctx, "catalog sync failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Catalog) invalidate(ctx context.Context, priceIDs ...string) {
	if c.cache == nil || len(priceIDs) == 0 {
		return
	}
	if err := c.cache.Delete(ctx, priceIDs...); err != nil {
		c.log.WarnContext(ctx, "catalog cache invalidation failed", logger.Error(err))
	}
}
