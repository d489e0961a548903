package pgstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/cutsync/pkg/pg"
	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

func (s *Store) GetCustomerID(ctx context.Context, userID uuid.UUID) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT customer_id FROM customer_mappings WHERE user_id = $1`, userID).Scan(&id)
	if pg.IsNotFoundError(err) {
		return "", subscription.ErrCustomerNotFound
	}
	return id, err
}

func (s *Store) GetUserID(ctx context.Context, customerID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT user_id FROM customer_mappings WHERE customer_id = $1`, customerID).Scan(&id)
	if pg.IsNotFoundError(err) {
		return uuid.Nil, subscription.ErrCustomerNotFound
	}
	return id, err
}

// InsertCustomer never overwrites a mapping. The CTE insert is invisible to
// the second SELECT, so exactly one branch yields a row.
func (s *Store) InsertCustomer(ctx context.Context, userID uuid.UUID, customerID string) (string, error) {
	var stored string
	err := s.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO customer_mappings (user_id, customer_id) VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING
			RETURNING customer_id
		)
		SELECT customer_id FROM inserted
		UNION ALL
		SELECT customer_id FROM customer_mappings WHERE user_id = $1
		LIMIT 1`, userID, customerID).Scan(&stored)
	return stored, err
}
