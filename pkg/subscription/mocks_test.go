package subscription_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

// MockProvider is a mock implementation of subscription.BillingProvider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreateCustomer(ctx context.Context, userID uuid.UUID, idempotencyKey string) (string, error) {
	args := m.Called(ctx, userID, idempotencyKey)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) GetPrice(ctx context.Context, priceID string) (*subscription.Price, error) {
	args := m.Called(ctx, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Price), args.Error(1)
}

func (m *MockProvider) ListCatalogPrices(ctx context.Context) ([]subscription.Price, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.Price), args.Error(1)
}

func (m *MockProvider) GetSubscription(ctx context.Context, subscriptionID string) (*subscription.ProviderSubscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.ProviderSubscription), args.Error(1)
}

func (m *MockProvider) SwapSubscriptionPrice(ctx context.Context, req subscription.SwapRequest) (*subscription.ProviderSubscription, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.ProviderSubscription), args.Error(1)
}

func (m *MockProvider) ScheduleSubscriptionPrice(ctx context.Context, req subscription.ScheduleRequest) (*subscription.ProviderSchedule, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.ProviderSchedule), args.Error(1)
}

func (m *MockProvider) CancelSchedule(ctx context.Context, scheduleID string) error {
	args := m.Called(ctx, scheduleID)
	return args.Error(0)
}

func (m *MockProvider) ParseWebhook(payload []byte, signature string) (*subscription.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.WebhookEvent), args.Error(1)
}

// recordingRewards captures enqueued rewards.
type recordingRewards struct {
	mu     sync.Mutex
	events []subscription.RewardEvent
	err    error
}

func (r *recordingRewards) EnqueueReward(_ context.Context, e subscription.RewardEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingRewards) Events() []subscription.RewardEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]subscription.RewardEvent(nil), r.events...)
}

var (
	testNow         = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	testPeriodStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	testPeriodEnd   = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
)

func fixedClock() func() time.Time { return func() time.Time { return testNow } }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseOptions(extra ...subscription.Option) []subscription.Option {
	return append([]subscription.Option{
		subscription.WithLogger(quietLogger()),
		subscription.WithClock(fixedClock()),
	}, extra...)
}

// Plan A includes 4 cuts, plan B includes 8.
func planA() subscription.CatalogEntry {
	return subscription.CatalogEntry{ProductID: "prod_a", PriceID: "price_a", Name: "Basic", CutsIncluded: 4, Interval: subscription.IntervalMonth, Active: true, Amount: 2000, Currency: "usd"}
}

func planB() subscription.CatalogEntry {
	return subscription.CatalogEntry{ProductID: "prod_b", PriceID: "price_b", Name: "Premium", CutsIncluded: 8, Interval: subscription.IntervalMonth, Active: true, Amount: 3500, Currency: "usd"}
}

func priceFor(e subscription.CatalogEntry) *subscription.Price {
	return &subscription.Price{
		ID:           e.PriceID,
		ProductID:    e.ProductID,
		Name:         e.Name,
		CutsIncluded: e.CutsIncluded,
		Interval:     e.Interval,
		Amount:       e.Amount,
		Currency:     e.Currency,
		Active:       e.Active,
		Recurring:    true,
	}
}

func activeState(subID string, plan subscription.CatalogEntry) subscription.CanonicalState {
	return subscription.CanonicalState{
		ProviderSubscriptionID: subID,
		ProviderPriceID:        plan.PriceID,
		PlanName:               plan.Name,
		Status:                 subscription.StatusActive,
		PeriodStart:            testPeriodStart,
		PeriodEnd:              testPeriodEnd,
		Interval:               plan.Interval,
		CutsIncluded:           plan.CutsIncluded,
	}
}

// seededStore returns a memory store holding an active plan A subscription
// with usedCuts already drawn, plus the catalog.
func seededStore(t interface{ Helper() }, userID uuid.UUID, usedCuts int) *subscription.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := subscription.NewMemoryStore(subscription.WithClock(fixedClock()))
	_ = store.UpsertCatalog(ctx, []subscription.CatalogEntry{planA(), planB()})
	_, _ = store.UpsertFromProvider(ctx, userID, activeState("sub_1", planA()))
	for range usedCuts {
		_, _ = store.ConsumeCredit(ctx, userID, testNow)
	}
	return store
}
