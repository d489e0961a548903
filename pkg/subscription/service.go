package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Service is the read and command surface used by transport layers.
type Service interface {
	GetSummary(ctx context.Context, userID uuid.UUID) (*Summary, error)

	ConsumeCredit(ctx context.Context, userID, appointmentID uuid.UUID) (*Balance, error)
	RefundCredit(ctx context.Context, userID uuid.UUID) (*Balance, error)

	ChangePlan(ctx context.Context, userID uuid.UUID, priceID string) (*ChangeResult, error)
	CancelScheduledChange(ctx context.Context, userID uuid.UUID) error

	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	SyncCatalog(ctx context.Context) (int, error)
}

type service struct {
	store    SubscriptionStore
	ledger   *Ledger
	changer  *PlanChanger
	webhooks *WebhookProcessor
	catalog  *Catalog
}

// Components bundles the wired reconciliation parts behind Service.
type Components struct {
	Store    SubscriptionStore
	Ledger   *Ledger
	Changer  *PlanChanger
	Webhooks *WebhookProcessor
	Catalog  *Catalog
}

// NewService panics on missing components so wiring mistakes fail at startup.
func NewService(c Components) Service {
	if c.Store == nil || c.Ledger == nil || c.Changer == nil || c.Webhooks == nil || c.Catalog == nil {
		panic("subscription: all service components are required")
	}
	return &service{
		store:    c.Store,
		ledger:   c.Ledger,
		changer:  c.Changer,
		webhooks: c.Webhooks,
		catalog:  c.Catalog,
	}
}

// Stores groups the persistence contracts; MemoryStore and pgstore.Store
// implement all of them.
type Stores interface {
	SubscriptionStore
	CustomerStore
	CatalogStore
	EventStore
}

// Wire builds every component over one provider and one store set.
func Wire(provider BillingProvider, stores Stores, verifier AppointmentVerifier, opts ...Option) (Service, Components) {
	catalog := NewCatalog(provider, stores, opts...)
	customers := NewCustomerResolver(stores, provider, opts...)
	reconciler := NewScheduleReconciler(stores, catalog, opts...)
	c := Components{
		Store:    stores,
		Ledger:   NewLedger(stores, verifier, opts...),
		Changer:  NewPlanChanger(provider, stores, customers, catalog, opts...),
		Webhooks: NewWebhookProcessor(provider, stores, stores, stores, reconciler, opts...),
		Catalog:  catalog,
	}
	return NewService(c), c
}

func (s *service) GetSummary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}
	return NewSummary(sub), nil
}

func (s *service) ConsumeCredit(ctx context.Context, userID, appointmentID uuid.UUID) (*Balance, error) {
	return s.ledger.ConsumeCredit(ctx, userID, appointmentID)
}

func (s *service) RefundCredit(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	return s.ledger.RefundCredit(ctx, userID)
}

func (s *service) ChangePlan(ctx context.Context, userID uuid.UUID, priceID string) (*ChangeResult, error) {
	return s.changer.ChangePlan(ctx, userID, priceID)
}

func (s *service) CancelScheduledChange(ctx context.Context, userID uuid.UUID) error {
	return s.changer.CancelScheduledChange(ctx, userID)
}

func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return s.webhooks.Process(ctx, payload, signature)
}

func (s *service) SyncCatalog(ctx context.Context) (int, error) {
	return s.catalog.Sync(ctx)
}
