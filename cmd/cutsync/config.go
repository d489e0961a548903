package main

import (
	"github.com/dmitrymomot/cutsync/pkg/httpserver"
	"github.com/dmitrymomot/cutsync/pkg/pg"
	"github.com/dmitrymomot/cutsync/pkg/queue"
	"github.com/dmitrymomot/cutsync/pkg/redis"
	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"APP_SERVICE_NAME" envDefault:"cutsync"`

	HTTP    httpserver.Config
	PG      pg.Config
	Redis   redis.Config
	Queue   queue.Config
	Billing subscription.Config
	Stripe  subscription.StripeConfig
}
