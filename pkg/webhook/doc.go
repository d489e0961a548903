// Package webhook delivers signed JSON notifications to external HTTP
// endpoints and verifies signatures on the receiving side.
//
// Each request carries X-Webhook-Signature, X-Webhook-Timestamp and
// X-Webhook-ID headers. The signature is hex(HMAC-SHA256(secret,
// "<timestamp>.<body>")). 4xx responses other than 408, 425 and 429 are
// permanent and are not retried.
//
//	s := webhook.NewSender()
//	err := s.Send(ctx, url, payload,
//		webhook.WithSignature(secret),
//		webhook.WithIdempotencyKey(key),
//		webhook.WithMaxRetries(2),
//	)
package webhook
