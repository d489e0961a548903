package billing

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/cutsync/handler"
	"github.com/dmitrymomot/cutsync/pkg/binder"
	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

// UserIDHeader identifies the caller. Authentication happens upstream.
const UserIDHeader = "X-User-ID"

var userIDKey = handler.NewContextKey("billing_user_id")

type ChangePlanRequest struct {
	PriceID string `json:"price_id"`
}

type ConsumeRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

type SyncResult struct {
	Synced int `json:"synced"`
}

// APIHandler serves subscription and credit endpoints for the calling user.
type APIHandler struct {
	svc  subscription.Service
	opts options
}

func NewAPIHandler(svc subscription.Service, opts ...Option) *APIHandler {
	return &APIHandler{svc: svc, opts: newOptions(opts)}
}

func (h *APIHandler) Handle() http.Handler {
	r := chi.NewRouter()
	eh := h.opts.errorHandler()

	r.Post("/catalog/sync", handler.Wrap(h.syncCatalog,
		handler.WithErrorHandler[handler.Context, struct{}](eh),
	))

	r.Group(func(r chi.Router) {
		r.Use(requireUser(eh))

		r.Get("/subscription", handler.Wrap(h.summary,
			handler.WithErrorHandler[handler.Context, struct{}](eh),
		))
		r.Post("/subscription/plan", handler.Wrap(h.changePlan,
			handler.WithBinders[handler.Context, ChangePlanRequest](binder.JSON()),
			handler.WithErrorHandler[handler.Context, ChangePlanRequest](eh),
		))
		r.Delete("/subscription/plan/scheduled", handler.Wrap(h.cancelScheduled,
			handler.WithErrorHandler[handler.Context, struct{}](eh),
		))
		r.Post("/credits/consume", handler.Wrap(h.consume,
			handler.WithBinders[handler.Context, ConsumeRequest](binder.JSON()),
			handler.WithErrorHandler[handler.Context, ConsumeRequest](eh),
		))
		r.Post("/credits/refund", handler.Wrap(h.refund,
			handler.WithErrorHandler[handler.Context, struct{}](eh),
		))
	})

	return r
}

func (h *APIHandler) summary(ctx handler.Context, _ struct{}) handler.Response {
	uid, err := userID(ctx)
	if err != nil {
		return handler.Error(err)
	}
	s, err := h.svc.GetSummary(ctx, uid)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(s)
}

func (h *APIHandler) changePlan(ctx handler.Context, req ChangePlanRequest) handler.Response {
	if req.PriceID == "" {
		v := handler.NewValidationError()
		v.Add("price_id", "is required")
		return handler.Error(v)
	}
	uid, err := userID(ctx)
	if err != nil {
		return handler.Error(err)
	}
	res, err := h.svc.ChangePlan(ctx, uid, req.PriceID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(res)
}

func (h *APIHandler) cancelScheduled(ctx handler.Context, _ struct{}) handler.Response {
	uid, err := userID(ctx)
	if err != nil {
		return handler.Error(err)
	}
	if err := h.svc.CancelScheduledChange(ctx, uid); err != nil {
		return handler.Error(err)
	}
	return handler.Empty()
}

func (h *APIHandler) consume(ctx handler.Context, req ConsumeRequest) handler.Response {
	if req.AppointmentID == uuid.Nil {
		v := handler.NewValidationError()
		v.Add("appointment_id", "is required")
		return handler.Error(v)
	}
	uid, err := userID(ctx)
	if err != nil {
		return handler.Error(err)
	}
	b, err := h.svc.ConsumeCredit(ctx, uid, req.AppointmentID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(b)
}

func (h *APIHandler) refund(ctx handler.Context, _ struct{}) handler.Response {
	uid, err := userID(ctx)
	if err != nil {
		return handler.Error(err)
	}
	b, err := h.svc.RefundCredit(ctx, uid)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(b)
}

func (h *APIHandler) syncCatalog(ctx handler.Context, _ struct{}) handler.Response {
	n, err := h.svc.SyncCatalog(ctx)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(SyncResult{Synced: n})
}

// userID returns the caller set by requireUser. Routes mounted without it
// get 401 instead of acting on uuid.Nil.
func userID(ctx context.Context) (uuid.UUID, error) {
	id, ok := handler.ContextValueOK[uuid.UUID](ctx, userIDKey)
	if !ok || id == uuid.Nil {
		return uuid.Nil, handler.ErrUnauthorized.Wrap(ErrMissingUserID)
	}
	return id, nil
}

// requireUser rejects requests without a valid caller id.
func requireUser(eh handler.ErrorHandler[handler.Context]) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(r.Header.Get(UserIDHeader))
			if err != nil || id == uuid.Nil {
				eh(handler.NewContext(w, r), handler.ErrUnauthorized.Wrap(ErrMissingUserID))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
		})
	}
}
