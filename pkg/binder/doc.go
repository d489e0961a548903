// Package binder decodes HTTP request data into typed request structs.
//
// Binders are plain functions matching handler.Bind and are applied in order
// by handler.Wrap. A binder that does not apply to a request (for example the
// JSON binder on a request without a body) returns ErrBinderNotApplicable and
// is skipped.
//
//	r.Post("/plan", handler.Wrap(h.changePlan,
//		handler.WithBinders[handler.Context, ChangePlanRequest](binder.JSON()),
//	))
package binder
