package subscription

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements every store contract in process memory. It backs
// tests and local runs without PostgreSQL.
type MemoryStore struct {
	mu        sync.Mutex
	subs      map[uuid.UUID]*Subscription
	customers map[uuid.UUID]string
	catalog   map[string]CatalogEntry
	events    map[string]time.Time
	now       func() time.Time
}

// NewMemoryStore honours WithClock for UpdatedAt stamps.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := newOptions(opts)
	return &MemoryStore{
		subs:      make(map[uuid.UUID]*Subscription),
		customers: make(map[uuid.UUID]string),
		catalog:   make(map[string]CatalogEntry),
		events:    make(map[string]time.Time),
		now:       o.now,
	}
}

func (m *MemoryStore) Get(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return cloneSubscription(sub), nil
}

func (m *MemoryStore) GetByProviderID(_ context.Context, providerSubscriptionID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := m.byProviderID(providerSubscriptionID)
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return cloneSubscription(sub), nil
}

func (m *MemoryStore) UpsertFromProvider(_ context.Context, userID uuid.UUID, state CanonicalState) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := ApplyCanonicalState(m.subs[userID], userID, state, m.now())
	m.subs[userID] = next
	return cloneSubscription(next), nil
}

func (m *MemoryStore) ApplyPlanChange(_ context.Context, userID uuid.UUID, terms PlanTerms) (*Subscription, error) {
	return m.mutate(userID, func(s *Subscription) {
		s.ProviderPriceID = terms.PriceID
		s.PlanName = terms.PlanName
		s.Interval = terms.Interval
		s.CutsIncluded = terms.CutsIncluded
	})
}

func (m *MemoryStore) MarkCanceled(_ context.Context, providerSubscriptionID string, at time.Time) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := m.byProviderID(providerSubscriptionID)
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	sub.Status = StatusCanceled
	sub.UpdatedAt = at
	return cloneSubscription(sub), nil
}

func (m *MemoryStore) SetScheduledChange(_ context.Context, userID uuid.UUID, change ScheduledChange) (*Subscription, error) {
	return m.mutate(userID, func(s *Subscription) { s.Scheduled = &change })
}

func (m *MemoryStore) ClearScheduledChange(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	return m.mutate(userID, func(s *Subscription) { s.Scheduled = nil })
}

func (m *MemoryStore) ConsumeCredit(_ context.Context, userID uuid.UUID, now time.Time) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := m.subs[userID]
	if err := ConsumeRejection(sub, now); err != nil {
		return nil, err
	}
	sub.CutsUsed++
	sub.UpdatedAt = m.now()
	return cloneSubscription(sub), nil
}

func (m *MemoryStore) RefundCredit(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	if sub.Status != StatusCanceled && sub.CutsUsed > 0 {
		sub.CutsUsed--
		sub.UpdatedAt = m.now()
	}
	return cloneSubscription(sub), nil
}

func (m *MemoryStore) GetCustomerID(_ context.Context, userID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.customers[userID]
	if !ok {
		return "", ErrCustomerNotFound
	}
	return id, nil
}

func (m *MemoryStore) GetUserID(_ context.Context, customerID string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, id := range m.customers {
		if id == customerID {
			return userID, nil
		}
	}
	return uuid.Nil, ErrCustomerNotFound
}

func (m *MemoryStore) InsertCustomer(_ context.Context, userID uuid.UUID, customerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.customers[userID]; ok {
		return id, nil
	}
	m.customers[userID] = customerID
	return customerID, nil
}

func (m *MemoryStore) UpsertCatalog(_ context.Context, entries []CatalogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.catalog[e.PriceID] = e
	}
	return nil
}

func (m *MemoryStore) GetCatalogEntry(_ context.Context, priceID string) (*CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.catalog[priceID]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return &e, nil
}

func (m *MemoryStore) ListCatalog(_ context.Context, activeOnly bool) ([]CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CatalogEntry, 0, len(m.catalog))
	for _, e := range m.catalog {
		if activeOnly && !e.Active {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b CatalogEntry) int {
		if a.CutsIncluded != b.CutsIncluded {
			return a.CutsIncluded - b.CutsIncluded
		}
		return strings.Compare(a.PriceID, b.PriceID)
	})
	return out, nil
}

func (m *MemoryStore) DeactivatePrice(_ context.Context, priceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.catalog[priceID]
	if !ok {
		return ErrPlanNotFound
	}
	e.Active = false
	m.catalog[priceID] = e
	return nil
}

func (m *MemoryStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[eventID]
	return ok, nil
}

func (m *MemoryStore) MarkEventProcessed(_ context.Context, eventID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; ok {
		return false, nil
	}
	m.events[eventID] = m.now()
	return true, nil
}

func (m *MemoryStore) mutate(userID uuid.UUID, fn func(*Subscription)) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	fn(sub)
	sub.UpdatedAt = m.now()
	return cloneSubscription(sub), nil
}

func (m *MemoryStore) byProviderID(id string) *Subscription {
	for _, s := range m.subs {
		if s.ProviderSubscriptionID == id {
			return s
		}
	}
	return nil
}

func cloneSubscription(s *Subscription) *Subscription {
	c := *s
	if s.Scheduled != nil {
		sc := *s.Scheduled
		c.Scheduled = &sc
	}
	return &c
}
