package subscription

import (
	"log/slog"
	"time"
)

// Option configures the reconciliation components. Each component reads the
// fields it needs and ignores the rest.
type Option func(*options)

type options struct {
	log             *slog.Logger
	metrics         *Metrics
	now             func() time.Time
	providerTimeout time.Duration
	rewards         RewardEnqueuer
	cache           CatalogCache
}

func newOptions(opts []Option) options {
	o := options{
		log:             slog.Default(),
		now:             time.Now,
		providerTimeout: 10 * time.Second,
		rewards:         noopRewards{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithProviderTimeout bounds each provider call made while handling a
// webhook or plan change.
func WithProviderTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.providerTimeout = d
		}
	}
}

func WithRewards(r RewardEnqueuer) Option {
	return func(o *options) {
		if r != nil {
			o.rewards = r
		}
	}
}

func WithCatalogCache(c CatalogCache) Option {
	return func(o *options) { o.cache = c }
}
