package subscription_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

func newReconciler(t *testing.T, usedCuts int) (*subscription.ScheduleReconciler, *subscription.MemoryStore, *MockProvider, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	store := seededStore(t, userID, usedCuts)
	b := planB()
	_, err := store.ApplyPlanChange(t.Context(), userID, b.Terms())
	require.NoError(t, err)
	provider := &MockProvider{}
	catalog := subscription.NewCatalog(provider, store, baseOptions()...)
	return subscription.NewScheduleReconciler(store, catalog, baseOptions()...), store, provider, userID
}

func twoPhase(id, status, nextPrice string, nextStart time.Time) *subscription.ProviderSchedule {
	return &subscription.ProviderSchedule{
		ID:             id,
		SubscriptionID: "sub_1",
		Status:         status,
		Phases: []subscription.SchedulePhase{
			{PriceID: "price_b", Start: testPeriodStart, End: nextStart},
			{PriceID: nextPrice, Start: nextStart},
		},
	}
}

func TestReconcileRecordsNextPhase(t *testing.T) {
	t.Parallel()

	r, store, _, userID := newReconciler(t, 2)

	changed, err := r.Reconcile(t.Context(), twoPhase("sched_1", "not_started", "price_a", testPeriodEnd))
	require.NoError(t, err)
	assert.True(t, changed)

	sub, err := store.Get(t.Context(), userID)
	require.NoError(t, err)
	require.NotNil(t, sub.Scheduled)
	assert.Equal(t, "price_a", sub.Scheduled.PriceID)
	assert.Equal(t, "Basic", sub.Scheduled.PlanName)
	assert.Equal(t, testPeriodEnd, sub.Scheduled.EffectiveAt)
	assert.Equal(t, 2, sub.CutsUsed)
	assert.Equal(t, 8, sub.CutsIncluded)

	changed, err = r.Reconcile(t.Context(), twoPhase("sched_1", "active", "price_a", testPeriodEnd))
	require.NoError(t, err)
	assert.False(t, changed, "identical projection is not rewritten")
}

func TestReconcileIgnoresSinglePhaseSchedule(t *testing.T) {
	t.Parallel()

	r, store, _, userID := newReconciler(t, 0)
	_, err := store.SetScheduledChange(t.Context(), userID, subscription.ScheduledChange{ScheduleID: "sched_1", PlanName: "Basic", PriceID: "price_a", EffectiveAt: testPeriodEnd})
	require.NoError(t, err)

	changed, err := r.Reconcile(t.Context(), &subscription.ProviderSchedule{
		ID: "sched_1", SubscriptionID: "sub_1", Status: "active",
		Phases: []subscription.SchedulePhase{{PriceID: "price_b", Start: testPeriodStart, End: testPeriodEnd}},
	})
	require.NoError(t, err)
	assert.False(t, changed)

	sub, err := store.Get(t.Context(), userID)
	require.NoError(t, err)
	assert.NotNil(t, sub.Scheduled)
}

func TestReconcileClears(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		sched *subscription.ProviderSchedule
	}{
		{"next phase already started", twoPhase("sched_1", "active", "price_a", testNow.Add(-time.Minute))},
		{"schedule canceled", twoPhase("sched_1", "canceled", "price_a", testPeriodEnd)},
		{"schedule completed", twoPhase("sched_1", "completed", "price_a", testPeriodEnd)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, _, userID := newReconciler(t, 0)
			_, err := store.SetScheduledChange(t.Context(), userID, subscription.ScheduledChange{ScheduleID: "sched_1", PlanName: "Basic", PriceID: "price_a", EffectiveAt: testPeriodEnd})
			require.NoError(t, err)

			changed, err := r.Reconcile(t.Context(), tt.sched)
			require.NoError(t, err)
			assert.True(t, changed)

			sub, err := store.Get(t.Context(), userID)
			require.NoError(t, err)
			assert.Nil(t, sub.Scheduled)
			assert.Equal(t, "price_b", sub.ProviderPriceID)
		})
	}
}

func TestClearLeavesNewerSchedule(t *testing.T) {
	t.Parallel()

	r, store, _, userID := newReconciler(t, 0)
	_, err := store.SetScheduledChange(t.Context(), userID, subscription.ScheduledChange{ScheduleID: "sched_2", PlanName: "Basic", PriceID: "price_a", EffectiveAt: testPeriodEnd})
	require.NoError(t, err)

	changed, err := r.Clear(t.Context(), twoPhase("sched_1", "released", "price_a", testPeriodEnd))
	require.NoError(t, err)
	assert.False(t, changed)

	sub, err := store.Get(t.Context(), userID)
	require.NoError(t, err)
	require.NotNil(t, sub.Scheduled)
	assert.Equal(t, "sched_2", sub.Scheduled.ScheduleID)
}

func TestReconcileUnknownPriceLeavesProjection(t *testing.T) {
	t.Parallel()

	r, store, provider, userID := newReconciler(t, 0)
	provider.On("GetPrice", mock.Anything, "price_gone").Return(nil, subscription.ErrProviderRejected)

	changed, err := r.Reconcile(t.Context(), twoPhase("sched_1", "active", "price_gone", testPeriodEnd))
	require.NoError(t, err)
	assert.False(t, changed)

	sub, err := store.Get(t.Context(), userID)
	require.NoError(t, err)
	assert.Nil(t, sub.Scheduled)
}

func TestReconcileUnknownSubscription(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newReconciler(t, 0)
	sched := twoPhase("sched_1", "active", "price_a", testPeriodEnd)
	sched.SubscriptionID = "sub_other"

	changed, err := r.Reconcile(t.Context(), sched)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = r.Reconcile(t.Context(), nil)
	require.NoError(t, err)
	assert.False(t, changed)
}
