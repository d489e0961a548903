package billing

import (
	"errors"

	"github.com/dmitrymomot/cutsync/handler"
	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

var ErrMissingUserID = errors.New("missing or malformed X-User-ID header")

// mapError translates subscription errors into HTTP errors. Unknown errors
// stay unmapped and render as 500, which makes the provider redeliver
// webhooks.
func mapError(err error) error {
	var httpErr handler.HTTPError
	var valErr handler.ValidationError
	if errors.As(err, &httpErr) || errors.As(err, &valErr) {
		return err
	}

	switch {
	case errors.Is(err, subscription.ErrWebhookVerificationFailed):
		return handler.ErrBadRequest.Wrap(err)
	case errors.Is(err, subscription.ErrNoActiveSubscription),
		errors.Is(err, subscription.ErrSubscriptionNotFound):
		return handler.ErrNotFound.Wrap(err)
	case errors.Is(err, subscription.ErrQuotaExceeded):
		return handler.ErrPaymentRequired.Wrap(err)
	case errors.Is(err, subscription.ErrAlreadyOnPlan),
		errors.Is(err, subscription.ErrNoScheduledChange),
		errors.Is(err, subscription.ErrConsumeConflict):
		return handler.ErrConflict.Wrap(err)
	case errors.Is(err, subscription.ErrPlanNotFound),
		errors.Is(err, subscription.ErrInvalidPriceID),
		errors.Is(err, subscription.ErrAppointmentNotCompleted):
		return handler.ErrUnprocessableEntity.Wrap(err)
	}
	return err
}
