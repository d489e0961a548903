// Package logger builds the service's *slog.Logger and keeps attribute naming
// consistent across packages.
//
// New returns a logger whose handler is wrapped by a context decorator: every
// record picks up attributes registered through WithContextValue or
// WithContextExtractors (request id, user id) at the time it is written.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.AppEnv, "cutsync"),
//		logger.WithContextValue("request_id", middleware.RequestIDKey),
//	)
//	log.InfoContext(ctx, "credit consumed", logger.UserID(userID), logger.Cuts(used, included))
//
// Attribute helpers return an empty slog.Attr for nil input so they can be
// passed unconditionally.
package logger
