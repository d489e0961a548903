package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

func TestCustomerResolverConcurrentFirstCalls(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := subscription.NewMemoryStore()
	provider := &MockProvider{}
	provider.On("CreateCustomer", mock.Anything, userID, "customer-"+userID.String()).
		After(20*time.Millisecond).Return("cus_1", nil).Once()
	resolver := subscription.NewCustomerResolver(store, provider, baseOptions()...)

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := resolver.Resolve(context.Background(), userID)
			assert.NoError(t, err)
			results[i] = id
		}()
	}
	wg.Wait()

	for _, id := range results {
		assert.Equal(t, "cus_1", id)
	}
	provider.AssertNumberOfCalls(t, "CreateCustomer", 1)
}

func TestCustomerResolverExistingMapping(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := subscription.NewMemoryStore()
	_, err := store.InsertCustomer(t.Context(), userID, "cus_existing")
	require.NoError(t, err)
	provider := &MockProvider{}

	id, err := subscription.NewCustomerResolver(store, provider, baseOptions()...).Resolve(t.Context(), userID)
	require.NoError(t, err)
	assert.Equal(t, "cus_existing", id)
	provider.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
}

// racingStore reports no mapping on read but already holds one on insert,
// as when another process won the race.
type racingStore struct {
	*subscription.MemoryStore
}

func (racingStore) GetCustomerID(context.Context, uuid.UUID) (string, error) {
	return "", subscription.ErrCustomerNotFound
}

func TestCustomerResolverLostRaceKeepsStoredMapping(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := racingStore{subscription.NewMemoryStore()}
	_, err := store.InsertCustomer(t.Context(), userID, "cus_winner")
	require.NoError(t, err)
	provider := &MockProvider{}
	provider.On("CreateCustomer", mock.Anything, userID, mock.Anything).Return("cus_loser", nil)

	id, err := subscription.NewCustomerResolver(store, provider, baseOptions()...).Resolve(t.Context(), userID)
	require.NoError(t, err)
	assert.Equal(t, "cus_winner", id)
}

func TestCustomerResolverProviderFailure(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := subscription.NewMemoryStore()
	provider := &MockProvider{}
	provider.On("CreateCustomer", mock.Anything, userID, mock.Anything).Return("", subscription.ErrProviderUnavailable)

	_, err := subscription.NewCustomerResolver(store, provider, baseOptions()...).Resolve(t.Context(), userID)
	assert.ErrorIs(t, err, subscription.ErrProviderUnavailable)

	_, err = store.GetCustomerID(t.Context(), userID)
	assert.ErrorIs(t, err, subscription.ErrCustomerNotFound)
}
