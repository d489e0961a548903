package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions configures which handlers to mount in the billing module.
// Each handler is optional and is only mounted if provided.
type RouterOptions struct {
	// Webhooks receives provider callbacks and is mounted under /webhooks.
	Webhooks Mountable
	// API serves the user-facing subscription and credit endpoints.
	API Mountable
}

// Router creates the billing module router.
//
//	svc, _ := subscription.Wire(provider, store, verifier, opts...)
//	r.Mount("/", billing.Router(billing.RouterOptions{
//		Webhooks: billing.NewWebhookHandler(svc, billing.WithLogger(log)),
//		API:      billing.NewAPIHandler(svc, billing.WithLogger(log)),
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	if opts.Webhooks != nil {
		r.Mount("/webhooks", opts.Webhooks.Handle())
	}
	if opts.API != nil {
		r.Mount("/", opts.API.Handle())
	}

	return r
}
