// Package config loads environment-driven configuration structs.
//
// Fields are described with github.com/caarlos0/env tags; a .env file in the
// working directory is read once (if present) before the first parse.
//
//	var cfg struct {
//		PG     pg.Config
//		Stripe subscription.StripeConfig
//	}
//	config.MustLoad(&cfg)
package config
