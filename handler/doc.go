// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a Context and a decoded request value and returns a
// Response. Wrap turns it into an http.HandlerFunc, running the configured
// binders first and routing bind, handler and render errors through a single
// ErrorHandler.
//
//	type ConsumeRequest struct {
//		AppointmentID uuid.UUID `json:"appointment_id"`
//	}
//
//	r.Post("/credits/consume", handler.Wrap(h.consume,
//		handler.WithBinders[handler.Context, ConsumeRequest](binder.JSON()),
//		handler.WithErrorHandler[handler.Context, ConsumeRequest](errHandler),
//	))
//
// Handlers report failures by returning Error(err), which hands err to the
// ErrorHandler. The default handlers render JSONError, whose status comes
// from an HTTPError or ValidationError in the chain and defaults to 500.
package handler
