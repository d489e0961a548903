// Package httpserver runs the service's HTTP listener.
//
// Server.Run blocks until its context is cancelled and then shuts the listener
// down gracefully, which makes it a natural errgroup member:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// The package also carries the middleware every route shares (request ids,
// access logging, panic recovery) and a readiness handler over named checks.
package httpserver
