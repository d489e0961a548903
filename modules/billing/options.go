package billing

import (
	"log/slog"

	"github.com/dmitrymomot/cutsync/handler"
)

// DefaultMaxWebhookBody caps provider webhook payloads.
const DefaultMaxWebhookBody = 256 << 10

type options struct {
	log            *slog.Logger
	maxWebhookBody int64
}

// Option configures the billing handlers.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxWebhookBody overrides DefaultMaxWebhookBody.
func WithMaxWebhookBody(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxWebhookBody = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{log: slog.Default(), maxWebhookBody: DefaultMaxWebhookBody}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) errorHandler() handler.ErrorHandler[handler.Context] {
	return handler.NewErrorHandler(o.log, mapError)
}
