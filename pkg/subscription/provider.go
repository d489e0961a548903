package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BillingProvider is the subset of the billing provider API the
// reconciliation core calls. Errors are wrapped with ErrProviderUnavailable
// (transient) or ErrProviderRejected (permanent).
type BillingProvider interface {
	// CreateCustomer creates a customer tagged with the local user id. The
	// idempotency key makes concurrent first calls collapse provider-side.
	CreateCustomer(ctx context.Context, userID uuid.UUID, idempotencyKey string) (string, error)

	// GetPrice returns the price with its product expanded.
	GetPrice(ctx context.Context, priceID string) (*Price, error)

	// ListCatalogPrices returns the default prices of all active products.
	ListCatalogPrices(ctx context.Context) ([]Price, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)

	// SwapSubscriptionPrice replaces the subscription item's price, invoicing
	// the proration now and keeping the billing cycle anchor.
	SwapSubscriptionPrice(ctx context.Context, req SwapRequest) (*ProviderSubscription, error)

	// ScheduleSubscriptionPrice attaches a two-phase schedule that moves the
	// subscription to req.NewPriceID at req.PeriodEnd without proration.
	ScheduleSubscriptionPrice(ctx context.Context, req ScheduleRequest) (*ProviderSchedule, error)

	// CancelSchedule detaches the schedule and leaves the subscription
	// running on its current terms.
	CancelSchedule(ctx context.Context, scheduleID string) error

	// ParseWebhook verifies the signature over the raw payload and returns a
	// normalized event. Failures wrap ErrWebhookVerificationFailed.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// Price is a provider price joined with its product.
type Price struct {
	ID           string
	ProductID    string
	Name         string
	CutsIncluded int // 0 when the metadata is missing or invalid
	Interval     Interval
	Amount       int64
	Currency     string
	Active       bool
	Recurring    bool
}

func (p *Price) CatalogEntry() CatalogEntry {
	return CatalogEntry{
		ProductID:    p.ProductID,
		PriceID:      p.ID,
		Name:         p.Name,
		CutsIncluded: p.CutsIncluded,
		Interval:     p.Interval,
		Active:       p.Active,
		Amount:       p.Amount,
		Currency:     p.Currency,
	}
}

type ProviderSubscription struct {
	ID                string
	CustomerID        string
	UserID            string // metadata.user_id, may be empty
	Status            string
	ItemID            string
	PriceID           string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	ScheduleID        string
}

type SchedulePhase struct {
	PriceID string
	Start   time.Time
	End     time.Time
}

type ProviderSchedule struct {
	ID             string
	SubscriptionID string
	Status         string
	Phases         []SchedulePhase
}

type SwapRequest struct {
	SubscriptionID string
	ItemID         string
	PriceID        string
	IdempotencyKey string
}

type ScheduleRequest struct {
	SubscriptionID string
	CurrentPriceID string
	NewPriceID     string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	IdempotencyKey string
}

type EventType string

const (
	EventSubscriptionCreated EventType = "subscription.created"
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventSubscriptionDeleted EventType = "subscription.deleted"
	EventInvoicePaid         EventType = "invoice.paid"
	EventScheduleCreated     EventType = "schedule.created"
	EventScheduleUpdated     EventType = "schedule.updated"
	EventScheduleCompleted   EventType = "schedule.completed"
	EventScheduleCanceled    EventType = "schedule.canceled"
	EventScheduleReleased    EventType = "schedule.released"
	EventUnknown             EventType = "unknown"
)

// WebhookEvent is a verified provider event. Exactly one of Subscription,
// Schedule or InvoiceSubscriptionID is populated for known types.
type WebhookEvent struct {
	ID                    string
	Type                  EventType
	ProviderType          string
	Subscription          *ProviderSubscription
	Schedule              *ProviderSchedule
	InvoiceSubscriptionID string
}
