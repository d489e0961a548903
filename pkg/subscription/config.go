package subscription

import "time"

// Config carries the reconciliation tunables.
type Config struct {
	WebhookTolerance    time.Duration `env:"BILLING_WEBHOOK_TOLERANCE" envDefault:"5m"`
	ProviderTimeout     time.Duration `env:"BILLING_PROVIDER_TIMEOUT" envDefault:"10s"`
	CatalogSyncInterval time.Duration `env:"BILLING_CATALOG_SYNC_INTERVAL" envDefault:"1h"`
	CatalogCacheTTL     time.Duration `env:"BILLING_CATALOG_CACHE_TTL" envDefault:"10m"`
	RewardWebhookURL    string        `env:"BILLING_REWARD_WEBHOOK_URL"`
	RewardWebhookSecret string        `env:"BILLING_REWARD_WEBHOOK_SECRET"`
}

// StripeConfig holds the Stripe credentials passed to NewStripeProvider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}
