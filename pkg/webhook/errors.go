package webhook

import "errors"

var (
	ErrWebhookDeliveryFailed = errors.New("webhook delivery failed")
	ErrPermanentFailure      = errors.New("permanent webhook failure")
	ErrTemporaryFailure      = errors.New("temporary webhook failure")
	ErrTimeout               = errors.New("webhook request timeout")
	ErrInvalidURL            = errors.New("invalid webhook URL")
	ErrInvalidPayload        = errors.New("invalid webhook payload")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrMissingSecret         = errors.New("webhook secret is required")
)

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentFailure)
}
