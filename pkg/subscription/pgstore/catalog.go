package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/cutsync/pkg/pg"
	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

const catalogColumns = `product_id, price_id, name, cuts_included, billing_interval, active, amount, currency`

func scanCatalogEntry(row pgx.Row) (subscription.CatalogEntry, error) {
	var (
		e        subscription.CatalogEntry
		interval string
	)
	err := row.Scan(&e.ProductID, &e.PriceID, &e.Name, &e.CutsIncluded, &interval, &e.Active, &e.Amount, &e.Currency)
	e.Interval = subscription.Interval(interval)
	return e, err
}

// UpsertCatalog writes all entries in one batch.
func (s *Store) UpsertCatalog(ctx context.Context, entries []subscription.CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO plan_catalog (`+catalogColumns+`, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (price_id) DO UPDATE SET
				product_id = EXCLUDED.product_id,
				name = EXCLUDED.name,
				cuts_included = EXCLUDED.cuts_included,
				billing_interval = EXCLUDED.billing_interval,
				active = EXCLUDED.active,
				amount = EXCLUDED.amount,
				currency = EXCLUDED.currency,
				updated_at = now()`,
			e.ProductID, e.PriceID, e.Name, e.CutsIncluded, string(e.Interval), e.Active, e.Amount, e.Currency)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *Store) GetCatalogEntry(ctx context.Context, priceID string) (*subscription.CatalogEntry, error) {
	e, err := scanCatalogEntry(s.pool.QueryRow(ctx,
		`SELECT `+catalogColumns+` FROM plan_catalog WHERE price_id = $1`, priceID))
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListCatalog(ctx context.Context, activeOnly bool) ([]subscription.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+catalogColumns+` FROM plan_catalog
		WHERE active OR NOT $1
		ORDER BY cuts_included, price_id`, activeOnly)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (subscription.CatalogEntry, error) {
		return scanCatalogEntry(row)
	})
}

func (s *Store) DeactivatePrice(ctx context.Context, priceID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE plan_catalog SET active = FALSE, updated_at = now() WHERE price_id = $1`, priceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrPlanNotFound
	}
	return nil
}
