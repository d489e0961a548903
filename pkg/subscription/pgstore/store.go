package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/cutsync/pkg/pg"
	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

// Store implements subscription.Stores on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ subscription.Stores = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const subscriptionColumns = `user_id, provider_subscription_id, provider_price_id, plan_name, status,
	current_period_start, current_period_end, billing_interval, cuts_included, cuts_used,
	cancel_at_period_end, scheduled_schedule_id, scheduled_plan_name, scheduled_price_id,
	scheduled_effective_at, updated_at`

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		s          subscription.Subscription
		status     string
		interval   string
		schedID    *string
		schedName  *string
		schedPrice *string
		schedAt    *time.Time
	)
	err := row.Scan(
		&s.UserID, &s.ProviderSubscriptionID, &s.ProviderPriceID, &s.PlanName, &status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &interval, &s.CutsIncluded, &s.CutsUsed,
		&s.CancelAtPeriodEnd, &schedID, &schedName, &schedPrice, &schedAt, &s.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, err
	}
	s.Status = subscription.Status(status)
	s.Interval = subscription.Interval(interval)
	s.CurrentPeriodStart = s.CurrentPeriodStart.UTC()
	s.CurrentPeriodEnd = s.CurrentPeriodEnd.UTC()
	if schedID != nil && schedName != nil && schedPrice != nil && schedAt != nil {
		s.Scheduled = &subscription.ScheduledChange{
			ScheduleID:  *schedID,
			PlanName:    *schedName,
			PriceID:     *schedPrice,
			EffectiveAt: schedAt.UTC(),
		}
	}
	return &s, nil
}

func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID))
}

func (s *Store) GetByProviderID(ctx context.Context, providerSubscriptionID string) (*subscription.Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE provider_subscription_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`, providerSubscriptionID))
}

// upsertSubscriptionSQL mirrors subscription.ResolveCutsUsed: usage survives
// only for the same provider subscription and period start, and a pending
// change only for the same provider subscription. SET expressions see the
// pre-update row.
const upsertSubscriptionSQL = `
INSERT INTO subscriptions AS s (
	user_id, provider_subscription_id, provider_price_id, plan_name, status,
	current_period_start, current_period_end, billing_interval, cuts_included, cuts_used,
	cancel_at_period_end, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, now())
ON CONFLICT (user_id) DO UPDATE SET
	cuts_used = CASE
		WHEN s.provider_subscription_id = EXCLUDED.provider_subscription_id
			AND s.current_period_start = EXCLUDED.current_period_start
		THEN s.cuts_used
		ELSE 0
	END,
	scheduled_schedule_id = CASE WHEN s.provider_subscription_id = EXCLUDED.provider_subscription_id THEN s.scheduled_schedule_id END,
	scheduled_plan_name = CASE WHEN s.provider_subscription_id = EXCLUDED.provider_subscription_id THEN s.scheduled_plan_name END,
	scheduled_price_id = CASE WHEN s.provider_subscription_id = EXCLUDED.provider_subscription_id THEN s.scheduled_price_id END,
	scheduled_effective_at = CASE WHEN s.provider_subscription_id = EXCLUDED.provider_subscription_id THEN s.scheduled_effective_at END,
	provider_subscription_id = EXCLUDED.provider_subscription_id,
	provider_price_id = EXCLUDED.provider_price_id,
	plan_name = EXCLUDED.plan_name,
	status = EXCLUDED.status,
	current_period_start = EXCLUDED.current_period_start,
	current_period_end = EXCLUDED.current_period_end,
	billing_interval = EXCLUDED.billing_interval,
	cuts_included = EXCLUDED.cuts_included,
	cancel_at_period_end = EXCLUDED.cancel_at_period_end,
	updated_at = now()
RETURNING ` + subscriptionColumns

func (s *Store) UpsertFromProvider(ctx context.Context, userID uuid.UUID, state subscription.CanonicalState) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, upsertSubscriptionSQL,
		userID, state.ProviderSubscriptionID, state.ProviderPriceID, state.PlanName, string(state.Status),
		state.PeriodStart, state.PeriodEnd, string(state.Interval), state.CutsIncluded, state.CancelAtPeriodEnd,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) ApplyPlanChange(ctx context.Context, userID uuid.UUID, terms subscription.PlanTerms) (*subscription.Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx, `
		UPDATE subscriptions SET
			provider_price_id = $2,
			plan_name = $3,
			billing_interval = $4,
			cuts_included = $5,
			updated_at = now()
		WHERE user_id = $1
		RETURNING `+subscriptionColumns,
		userID, terms.PriceID, terms.PlanName, string(terms.Interval), terms.CutsIncluded,
	))
}

func (s *Store) MarkCanceled(ctx context.Context, providerSubscriptionID string, at time.Time) (*subscription.Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx, `
		UPDATE subscriptions SET status = $2, updated_at = $3
		WHERE provider_subscription_id = $1
		RETURNING `+subscriptionColumns,
		providerSubscriptionID, string(subscription.StatusCanceled), at,
	))
}

func (s *Store) SetScheduledChange(ctx context.Context, userID uuid.UUID, change subscription.ScheduledChange) (*subscription.Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx, `
		UPDATE subscriptions SET
			scheduled_schedule_id = $2,
			scheduled_plan_name = $3,
			scheduled_price_id = $4,
			scheduled_effective_at = $5,
			updated_at = now()
		WHERE user_id = $1
		RETURNING `+subscriptionColumns,
		userID, change.ScheduleID, change.PlanName, change.PriceID, change.EffectiveAt,
	))
}

func (s *Store) ClearScheduledChange(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx, `
		UPDATE subscriptions SET
			scheduled_schedule_id = NULL,
			scheduled_plan_name = NULL,
			scheduled_price_id = NULL,
			scheduled_effective_at = NULL,
			updated_at = now()
		WHERE user_id = $1
		RETURNING `+subscriptionColumns,
		userID,
	))
}

// ConsumeCredit increments usage only while the subscription allows it. When
// no row matches, the current row explains why.
func (s *Store) ConsumeCredit(ctx context.Context, userID uuid.UUID, now time.Time) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		UPDATE subscriptions SET cuts_used = cuts_used + 1, updated_at = now()
		WHERE user_id = $1
			AND status IN ($3, $4)
			AND current_period_end >= $2
			AND cuts_used < cuts_included
		RETURNING `+subscriptionColumns,
		userID, now, string(subscription.StatusActive), string(subscription.StatusTrialing),
	))
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return nil, err
	}

	current, err := s.Get(ctx, userID)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return nil, subscription.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	if reason := subscription.ConsumeRejection(current, now); reason != nil {
		return nil, reason
	}
	// The row changed between the two statements.
	return nil, subscription.ErrConsumeConflict
}

func (s *Store) RefundCredit(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		UPDATE subscriptions SET cuts_used = GREATEST(cuts_used - 1, 0), updated_at = now()
		WHERE user_id = $1 AND status <> $2
		RETURNING `+subscriptionColumns,
		userID, string(subscription.StatusCanceled),
	))
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		// Absent or canceled; Get tells which.
		return s.Get(ctx, userID)
	}
	return sub, err
}
