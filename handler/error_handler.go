package handler

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/cutsync/pkg/logger"
)

// ErrorMapper translates domain errors into HTTPError or ValidationError
// values. Errors it returns unchanged end up as 500.
type ErrorMapper func(error) error

// NewErrorHandler creates an error handler that maps err, logs it at a level
// matching the resulting status and renders it as JSON.
func NewErrorHandler(log *slog.Logger, mapErr ErrorMapper) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	if mapErr == nil {
		mapErr = func(err error) error { return err }
	}

	return func(ctx Context, err error) {
		err = mapErr(err)
		status := StatusCode(err)

		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(ctx.Request().Context(), level, "request error",
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", ctx.Request().Method),
			slog.String("path", ctx.Request().URL.Path),
			logger.Component("http"),
		)

		if renderErr := JSONError(err).Render(ctx.ResponseWriter(), ctx.Request()); renderErr != nil {
			log.LogAttrs(ctx.Request().Context(), slog.LevelError, "failed to render error response",
				logger.Error(renderErr),
				logger.Component("http"),
			)
		}
	}
}
