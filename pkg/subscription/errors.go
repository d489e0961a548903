package subscription

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrQuotaExceeded        = errors.New("cuts quota exceeded for the current period")
	ErrAlreadyOnPlan        = errors.New("subscription is already on the requested plan")
	ErrNoScheduledChange    = errors.New("no scheduled plan change")
	ErrPlanNotFound         = errors.New("plan not found in catalog")
	ErrCustomerNotFound     = errors.New("customer mapping not found")

	ErrAppointmentNotCompleted = errors.New("appointment not found or not completed")
	ErrConsumeConflict         = errors.New("concurrent credit update, retry later")

	// ErrMissingCredits marks a provider price without a positive cuts_included attribute.
	ErrMissingCredits = errors.New("price has no cuts_included metadata")
	ErrUnresolvedUser = errors.New("cannot resolve local user for provider object")

	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrProviderUnavailable       = errors.New("billing provider unavailable")
	ErrProviderRejected          = errors.New("billing provider rejected the request")

	ErrMissingAPIKey        = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret = errors.New("billing provider webhook secret is required")
	ErrInvalidPriceID       = errors.New("price ID is required")
)
