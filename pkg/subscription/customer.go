package subscription

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/cutsync/pkg/logger"
)

// CustomerResolver maps local users to provider customers, creating the
// provider customer on first use.
type CustomerResolver struct {
	store    CustomerStore
	provider BillingProvider
	log      *slog.Logger
	group    singleflight.Group
}

func NewCustomerResolver(store CustomerStore, provider BillingProvider, opts ...Option) *CustomerResolver {
	o := newOptions(opts)
	return &CustomerResolver{store: store, provider: provider, log: o.log.With(logger.Component("customers"))}
}

// Resolve returns the provider customer id for userID. Concurrent first calls
// in one process share a single provider round trip; across processes the
// provider idempotency key and the unique mapping row keep one customer.
func (r *CustomerResolver) Resolve(ctx context.Context, userID uuid.UUID) (string, error) {
	v, err, _ := r.group.Do(userID.String(), func() (any, error) {
		id, err := r.store.GetCustomerID(ctx, userID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrCustomerNotFound) {
			return "", err
		}

		created, err := r.provider.CreateCustomer(ctx, userID, "customer-"+userID.String())
		if err != nil {
			return "", err
		}

		stored, err := r.store.InsertCustomer(ctx, userID, created)
		if err != nil {
			return "", err
		}
		if stored != created {
			r.log.WarnContext(ctx, "customer mapping already existed, discarding created customer",
				logger.UserID(userID), logger.CustomerID(created), slog.String("kept_customer_id", stored))
		} else {
			r.log.InfoContext(ctx, "provider customer created", logger.UserID(userID), logger.CustomerID(stored))
		}
		return stored, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
