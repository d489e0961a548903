package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStore persists the one-row-per-user subscription mirror.
// Implementations must make every mutation a single atomic statement.
type SubscriptionStore interface {
	// Get returns ErrSubscriptionNotFound when the user has no row.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	GetByProviderID(ctx context.Context, providerSubscriptionID string) (*Subscription, error)

	// UpsertFromProvider overwrites the row with state, resetting CutsUsed
	// as ResolveCutsUsed describes. The scheduled change survives only while
	// the provider subscription id is unchanged.
	UpsertFromProvider(ctx context.Context, userID uuid.UUID, state CanonicalState) (*Subscription, error)

	// ApplyPlanChange replaces plan terms and keeps usage and period.
	ApplyPlanChange(ctx context.Context, userID uuid.UUID, terms PlanTerms) (*Subscription, error)

	// MarkCanceled flips status to canceled; the row is kept.
	MarkCanceled(ctx context.Context, providerSubscriptionID string, at time.Time) (*Subscription, error)

	SetScheduledChange(ctx context.Context, userID uuid.UUID, change ScheduledChange) (*Subscription, error)
	ClearScheduledChange(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// ConsumeCredit increments CutsUsed by one only if ConsumeRejection
	// would return nil, and returns its verdict otherwise.
	ConsumeCredit(ctx context.Context, userID uuid.UUID, now time.Time) (*Subscription, error)

	// RefundCredit decrements CutsUsed, never below zero. Canceled rows are
	// returned unchanged.
	RefundCredit(ctx context.Context, userID uuid.UUID) (*Subscription, error)
}

// CustomerStore holds the immutable user to provider customer mapping.
type CustomerStore interface {
	// GetCustomerID returns ErrCustomerNotFound when no mapping exists.
	GetCustomerID(ctx context.Context, userID uuid.UUID) (string, error)
	GetUserID(ctx context.Context, customerID string) (uuid.UUID, error)

	// InsertCustomer keeps an existing mapping and returns the persisted
	// customer id, which may differ from customerID after a lost race.
	InsertCustomer(ctx context.Context, userID uuid.UUID, customerID string) (string, error)
}

// CatalogStore mirrors provider prices.
type CatalogStore interface {
	UpsertCatalog(ctx context.Context, entries []CatalogEntry) error
	// GetCatalogEntry returns ErrPlanNotFound for unknown prices.
	GetCatalogEntry(ctx context.Context, priceID string) (*CatalogEntry, error)
	ListCatalog(ctx context.Context, activeOnly bool) ([]CatalogEntry, error)
	DeactivatePrice(ctx context.Context, priceID string) error
}

// EventStore is the webhook idempotency gate.
type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkEventProcessed reports false when the id was already recorded.
	MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

// ResolveCutsUsed applies the reset rule: a new provider subscription or a new
// period starts from zero, anything else keeps the recorded usage.
func ResolveCutsUsed(existing *Subscription, incoming CanonicalState) int {
	if existing == nil {
		return 0
	}
	if existing.ProviderSubscriptionID != incoming.ProviderSubscriptionID {
		return 0
	}
	if !existing.CurrentPeriodStart.Equal(incoming.PeriodStart) {
		return 0
	}
	return existing.CutsUsed
}

// ApplyCanonicalState builds the row UpsertFromProvider must persist.
func ApplyCanonicalState(existing *Subscription, userID uuid.UUID, state CanonicalState, now time.Time) *Subscription {
	next := &Subscription{
		UserID:                 userID,
		ProviderSubscriptionID: state.ProviderSubscriptionID,
		ProviderPriceID:        state.ProviderPriceID,
		PlanName:               state.PlanName,
		Status:                 state.Status,
		CurrentPeriodStart:     state.PeriodStart,
		CurrentPeriodEnd:       state.PeriodEnd,
		Interval:               state.Interval,
		CutsIncluded:           state.CutsIncluded,
		CutsUsed:               ResolveCutsUsed(existing, state),
		CancelAtPeriodEnd:      state.CancelAtPeriodEnd,
		UpdatedAt:              now,
	}
	if existing != nil && existing.ProviderSubscriptionID == state.ProviderSubscriptionID && existing.Scheduled != nil {
		sc := *existing.Scheduled
		next.Scheduled = &sc
	}
	return next
}

// ConsumeRejection explains why a credit cannot be drawn from sub at now,
// or returns nil when it can.
func ConsumeRejection(sub *Subscription, now time.Time) error {
	if sub == nil || !sub.Status.AllowsConsumption() || sub.CurrentPeriodEnd.Before(now) {
		return ErrNoActiveSubscription
	}
	if sub.CutsUsed >= sub.CutsIncluded {
		return ErrQuotaExceeded
	}
	return nil
}
