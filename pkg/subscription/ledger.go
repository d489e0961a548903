package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/cutsync/pkg/logger"
)

// AppointmentVerifier confirms an appointment belongs to the user and has
// reached the completed state. Appointments are owned by the booking system.
type AppointmentVerifier interface {
	IsCompleted(ctx context.Context, userID, appointmentID uuid.UUID) (bool, error)
}

type AppointmentVerifierFunc func(ctx context.Context, userID, appointmentID uuid.UUID) (bool, error)

func (f AppointmentVerifierFunc) IsCompleted(ctx context.Context, userID, appointmentID uuid.UUID) (bool, error) {
	return f(ctx, userID, appointmentID)
}

// Ledger draws and returns credits against the current period.
type Ledger struct {
	store    SubscriptionStore
	verifier AppointmentVerifier
	metrics  *Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewLedger(store SubscriptionStore, verifier AppointmentVerifier, opts ...Option) *Ledger {
	o := newOptions(opts)
	return &Ledger{
		store:    store,
		verifier: verifier,
		metrics:  o.metrics,
		log:      o.log.With(logger.Component("ledger")),
		now:      o.now,
	}
}

// ConsumeCredit uses one credit for a completed appointment. Quota and
// status checks happen inside the store's atomic increment, so concurrent
// calls can never push usage past the allowance.
func (l *Ledger) ConsumeCredit(ctx context.Context, userID, appointmentID uuid.UUID) (*Balance, error) {
	ok, err := l.verifier.IsCompleted(ctx, userID, appointmentID)
	if err != nil {
		l.metrics.creditOp("consume", err)
		return nil, err
	}
	if !ok {
		l.metrics.creditOp("consume", ErrAppointmentNotCompleted)
		return nil, ErrAppointmentNotCompleted
	}

	sub, err := l.store.ConsumeCredit(ctx, userID, l.now())
	l.metrics.creditOp("consume", err)
	if err != nil {
		if !errors.Is(err, ErrQuotaExceeded) && !errors.Is(err, ErrNoActiveSubscription) {
			l.log.ErrorContext(ctx, "consume credit failed", logger.UserID(userID), logger.Error(err))
		}
		return nil, err
	}

	l.log.InfoContext(ctx, "credit consumed",
		logger.UserID(userID),
		slog.String("appointment_id", appointmentID.String()),
		logger.Cuts(sub.CutsUsed, sub.CutsIncluded))
	return sub.Balance(), nil
}

// RefundCredit returns one credit after a cancellation. It returns nil, nil
// when the user has no subscription and the unchanged balance when the
// subscription is canceled.
func (l *Ledger) RefundCredit(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	sub, err := l.store.RefundCredit(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		l.metrics.creditOp("refund", nil)
		return nil, nil
	}
	l.metrics.creditOp("refund", err)
	if err != nil {
		return nil, err
	}

	l.log.InfoContext(ctx, "credit refunded", logger.UserID(userID), logger.Cuts(sub.CutsUsed, sub.CutsIncluded))
	return sub.Balance(), nil
}
