package billing

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/cutsync/handler"
	"github.com/dmitrymomot/cutsync/pkg/binder"
	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

// StripeSignatureHeader carries the signed timestamp and HMAC of a delivery.
const StripeSignatureHeader = "Stripe-Signature"

type WebhookRequest struct {
	Payload   []byte
	Signature string
}

// WebhookHandler receives provider webhook deliveries.
type WebhookHandler struct {
	svc  subscription.Service
	opts options
}

func NewWebhookHandler(svc subscription.Service, opts ...Option) *WebhookHandler {
	return &WebhookHandler{svc: svc, opts: newOptions(opts)}
}

func (h *WebhookHandler) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/stripe", handler.Wrap(h.stripe,
		handler.WithBinders[handler.Context, WebhookRequest](bindWebhook(h.opts.maxWebhookBody)),
		handler.WithErrorHandler[handler.Context, WebhookRequest](h.opts.errorHandler()),
	))

	return r
}

func (h *WebhookHandler) stripe(ctx handler.Context, req WebhookRequest) handler.Response {
	if err := h.svc.HandleWebhook(ctx, req.Payload, req.Signature); err != nil {
		return handler.Error(err)
	}
	return handler.JSON(map[string]bool{"received": true})
}

// bindWebhook keeps the raw body intact; the signature covers its exact bytes.
func bindWebhook(maxBody int64) handler.Bind {
	return func(r *http.Request, v any) error {
		req, ok := v.(*WebhookRequest)
		if !ok {
			return fmt.Errorf("%w: unexpected target %T", binder.ErrBinderNotApplicable, v)
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			return fmt.Errorf("%w: %v", binder.ErrFailedToParseJSON, err)
		}
		if int64(len(body)) > maxBody {
			return fmt.Errorf("%w: max %d bytes", binder.ErrRequestTooLarge, maxBody)
		}
		req.Payload = body
		req.Signature = r.Header.Get(StripeSignatureHeader)
		return nil
	}
}
