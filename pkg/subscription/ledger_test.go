package subscription_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

func completed(ok bool, err error) subscription.AppointmentVerifier {
	return subscription.AppointmentVerifierFunc(func(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
		return ok, err
	})
}

func TestLedgerConsumeCredit(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := seededStore(t, userID, 0)
	ledger := subscription.NewLedger(store, completed(true, nil), baseOptions()...)

	for i := 1; i <= 4; i++ {
		bal, err := ledger.ConsumeCredit(t.Context(), userID, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, i, bal.CutsUsed)
		assert.Equal(t, 4-i, bal.CutsRemaining)
	}

	_, err := ledger.ConsumeCredit(t.Context(), userID, uuid.New())
	assert.ErrorIs(t, err, subscription.ErrQuotaExceeded)

	sub, err := store.Get(t.Context(), userID)
	require.NoError(t, err)
	assert.Equal(t, 4, sub.CutsUsed)
}

func TestLedgerConsumeRejections(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := seededStore(t, userID, 0)

	_, err := subscription.NewLedger(store, completed(false, nil), baseOptions()...).ConsumeCredit(t.Context(), userID, uuid.New())
	assert.ErrorIs(t, err, subscription.ErrAppointmentNotCompleted)

	boom := errors.New("booking db down")
	_, err = subscription.NewLedger(store, completed(true, boom), baseOptions()...).ConsumeCredit(t.Context(), userID, uuid.New())
	assert.ErrorIs(t, err, boom)

	ledger := subscription.NewLedger(store, completed(true, nil), baseOptions()...)
	_, err = ledger.ConsumeCredit(t.Context(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, subscription.ErrNoActiveSubscription)

	_, err = store.MarkCanceled(t.Context(), "sub_1", testNow)
	require.NoError(t, err)
	_, err = ledger.ConsumeCredit(t.Context(), userID, uuid.New())
	assert.ErrorIs(t, err, subscription.ErrNoActiveSubscription)

	sub, err := store.Get(t.Context(), userID)
	require.NoError(t, err)
	assert.Zero(t, sub.CutsUsed, "rejected calls never mutate usage")
}

func TestLedgerConcurrentConsumeAtBoundary(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := seededStore(t, userID, 3)
	ledger := subscription.NewLedger(store, completed(true, nil), baseOptions()...)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		exceeded  atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.ConsumeCredit(context.Background(), userID, uuid.New())
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, subscription.ErrQuotaExceeded):
				exceeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, 9, exceeded.Load())
	sub, err := store.Get(t.Context(), userID)
	require.NoError(t, err)
	assert.Equal(t, 4, sub.CutsUsed)
}

func TestLedgerRefundCredit(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := seededStore(t, userID, 2)
	reg := prometheus.NewRegistry()
	ledger := subscription.NewLedger(store, completed(true, nil), baseOptions(subscription.WithMetrics(subscription.NewMetrics(reg)))...)

	bal, err := ledger.RefundCredit(t.Context(), userID)
	require.NoError(t, err)
	assert.Equal(t, &subscription.Balance{CutsUsed: 1, CutsRemaining: 3}, bal)

	bal, err = ledger.RefundCredit(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, bal)

	expected := `
# HELP cutsync_credit_operations_total Credit consume and refund calls by result.
# TYPE cutsync_credit_operations_total counter
cutsync_credit_operations_total{op="refund",result="ok"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cutsync_credit_operations_total"))
}
