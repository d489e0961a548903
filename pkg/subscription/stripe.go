package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	metadataUserID = "user_id"
	metadataCuts   = "cuts_included"
)

var stripeEventTypes = map[string]EventType{
	"customer.subscription.created":   EventSubscriptionCreated,
	"customer.subscription.updated":   EventSubscriptionUpdated,
	"customer.subscription.deleted":   EventSubscriptionDeleted,
	"invoice.paid":                    EventInvoicePaid,
	"subscription_schedule.created":   EventScheduleCreated,
	"subscription_schedule.updated":   EventScheduleUpdated,
	"subscription_schedule.completed": EventScheduleCompleted,
	"subscription_schedule.canceled":  EventScheduleCanceled,
	"subscription_schedule.released":  EventScheduleReleased,
}

// StripeProvider implements BillingProvider on the Stripe API.
type StripeProvider struct {
	client        *stripe.Client
	webhookSecret string
	tolerance     time.Duration
}

// NewStripeProvider validates credentials. tolerance bounds the accepted
// webhook timestamp skew and defaults to five minutes.
func NewStripeProvider(cfg StripeConfig, tolerance time.Duration) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeProvider{
		client:        stripe.NewClient(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
		tolerance:     tolerance,
	}, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, userID uuid.UUID, idempotencyKey string) (string, error) {
	params := &stripe.CustomerCreateParams{}
	params.AddMetadata(metadataUserID, userID.String())
	params.SetIdempotencyKey(idempotencyKey)

	cust, err := p.client.V1Customers.Create(ctx, params)
	if err != nil {
		return "", wrapStripeError(err)
	}
	return cust.ID, nil
}

func (p *StripeProvider) GetPrice(ctx context.Context, priceID string) (*Price, error) {
	if priceID == "" {
		return nil, ErrInvalidPriceID
	}
	params := &stripe.PriceRetrieveParams{}
	params.AddExpand("product")

	price, err := p.client.V1Prices.Retrieve(ctx, priceID, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	out := convertPrice(price)
	return &out, nil
}

func (p *StripeProvider) ListCatalogPrices(ctx context.Context) ([]Price, error) {
	params := &stripe.ProductListParams{Active: stripe.Bool(true)}
	params.AddExpand("data.default_price")

	var out []Price
	for product, err := range p.client.V1Products.List(ctx, params) {
		if err != nil {
			return nil, wrapStripeError(err)
		}
		if product.DefaultPrice == nil || product.DefaultPrice.ID == "" {
			continue
		}
		price := *product.DefaultPrice
		price.Product = product
		out = append(out, convertPrice(&price))
	}
	return out, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	sub, err := p.client.V1Subscriptions.Retrieve(ctx, subscriptionID, &stripe.SubscriptionRetrieveParams{})
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return convertSubscription(sub), nil
}

func (p *StripeProvider) SwapSubscriptionPrice(ctx context.Context, req SwapRequest) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{{
			ID:    stripe.String(req.ItemID),
			Price: stripe.String(req.PriceID),
		}},
		ProrationBehavior: stripe.String("always_invoice"),
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sub, err := p.client.V1Subscriptions.Update(ctx, req.SubscriptionID, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return convertSubscription(sub), nil
}

// ScheduleSubscriptionPrice creates a schedule from the live subscription and
// rewrites its phases: current terms until PeriodEnd, then one iteration of
// the new price, released back to a plain subscription afterwards.
func (p *StripeProvider) ScheduleSubscriptionPrice(ctx context.Context, req ScheduleRequest) (*ProviderSchedule, error) {
	create := &stripe.SubscriptionScheduleCreateParams{FromSubscription: stripe.String(req.SubscriptionID)}
	if req.IdempotencyKey != "" {
		create.SetIdempotencyKey(req.IdempotencyKey + "-create")
	}
	sched, err := p.client.V1SubscriptionSchedules.Create(ctx, create)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	start := req.PeriodStart.Unix()
	if len(sched.Phases) > 0 && sched.Phases[0].StartDate > 0 {
		start = sched.Phases[0].StartDate
	}
	update := &stripe.SubscriptionScheduleUpdateParams{
		EndBehavior:       stripe.String("release"),
		ProrationBehavior: stripe.String("none"),
		Phases: []*stripe.SubscriptionScheduleUpdatePhaseParams{
			{
				Items: []*stripe.SubscriptionScheduleUpdatePhaseItemParams{{
					Price:    stripe.String(req.CurrentPriceID),
					Quantity: stripe.Int64(1),
				}},
				StartDate: stripe.Int64(start),
				EndDate:   stripe.Int64(req.PeriodEnd.Unix()),
			},
			{
				Items: []*stripe.SubscriptionScheduleUpdatePhaseItemParams{{
					Price:    stripe.String(req.NewPriceID),
					Quantity: stripe.Int64(1),
				}},
				Iterations:        stripe.Int64(1),
				ProrationBehavior: stripe.String("none"),
			},
		},
	}
	if req.IdempotencyKey != "" {
		update.SetIdempotencyKey(req.IdempotencyKey + "-phases")
	}

	updated, err := p.client.V1SubscriptionSchedules.Update(ctx, sched.ID, update)
	if err != nil {
		// Do not leave a single-phase schedule attached to the subscription.
		_, _ = p.client.V1SubscriptionSchedules.Release(ctx, sched.ID, &stripe.SubscriptionScheduleReleaseParams{})
		return nil, wrapStripeError(err)
	}
	return convertSchedule(updated), nil
}

// CancelSchedule releases rather than cancels: canceling a Stripe schedule
// also cancels its subscription.
func (p *StripeProvider) CancelSchedule(ctx context.Context, scheduleID string) error {
	_, err := p.client.V1SubscriptionSchedules.Release(ctx, scheduleID, &stripe.SubscriptionScheduleReleaseParams{})
	return wrapStripeError(err)
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	return decodeStripeEvent(event)
}

func decodeStripeEvent(event stripe.Event) (*WebhookEvent, error) {
	out := &WebhookEvent{ID: event.ID, ProviderType: string(event.Type), Type: EventUnknown}
	if t, ok := stripeEventTypes[out.ProviderType]; ok {
		out.Type = t
	}
	if event.Data == nil {
		return out, nil
	}

	var err error
	switch out.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err = json.Unmarshal(event.Data.Raw, &sub); err == nil {
			out.Subscription = convertSubscription(&sub)
		}
	case EventInvoicePaid:
		var inv stripeInvoice
		if err = json.Unmarshal(event.Data.Raw, &inv); err == nil {
			out.InvoiceSubscriptionID = inv.subscriptionID()
		}
	case EventScheduleCreated, EventScheduleUpdated, EventScheduleCompleted, EventScheduleCanceled, EventScheduleReleased:
		var sched stripe.SubscriptionSchedule
		if err = json.Unmarshal(event.Data.Raw, &sched); err == nil {
			out.Schedule = convertSchedule(&sched)
		}
	}
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, fmt.Errorf("decode %s: %w", out.ProviderType, err))
	}
	return out, nil
}

// stripeInvoice reads the subscription id from both the current
// parent.subscription_details location and the legacy top-level field.
type stripeInvoice struct {
	Subscription json.RawMessage `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (i stripeInvoice) subscriptionID() string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		if id := expandableID(i.Parent.SubscriptionDetails.Subscription); id != "" {
			return id
		}
	}
	return expandableID(i.Subscription)
}

// expandableID accepts either "id" or {"id": "..."}.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// convertSubscription reads period bounds from the first item, where the
// current API version keeps them.
func convertSubscription(s *stripe.Subscription) *ProviderSubscription {
	out := &ProviderSubscription{
		ID:                s.ID,
		Status:            string(s.Status),
		UserID:            s.Metadata[metadataUserID],
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Schedule != nil {
		out.ScheduleID = s.Schedule.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.ItemID = item.ID
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		out.PeriodStart = unixTime(item.CurrentPeriodStart)
		out.PeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return out
}

func convertSchedule(s *stripe.SubscriptionSchedule) *ProviderSchedule {
	out := &ProviderSchedule{ID: s.ID, Status: string(s.Status)}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	for _, ph := range s.Phases {
		if ph == nil {
			continue
		}
		phase := SchedulePhase{Start: unixTime(ph.StartDate), End: unixTime(ph.EndDate)}
		if len(ph.Items) > 0 && ph.Items[0].Price != nil {
			phase.PriceID = ph.Items[0].Price.ID
		}
		out.Phases = append(out.Phases, phase)
	}
	return out
}

// convertPrice prefers cuts_included on the price and falls back to the
// product's metadata.
func convertPrice(pr *stripe.Price) Price {
	out := Price{
		ID:       pr.ID,
		Name:     pr.Nickname,
		Active:   pr.Active,
		Amount:   pr.UnitAmount,
		Currency: string(pr.Currency),
	}
	if pr.Recurring != nil {
		out.Recurring = true
		out.Interval = Interval(pr.Recurring.Interval)
	}

	cuts := pr.Metadata[metadataCuts]
	if pr.Product != nil {
		out.ProductID = pr.Product.ID
		if pr.Product.Name != "" {
			out.Name = pr.Product.Name
		}
		if cuts == "" {
			cuts = pr.Product.Metadata[metadataCuts]
		}
	}
	if out.Name == "" {
		out.Name = pr.ID
	}
	if n, err := strconv.Atoi(strings.TrimSpace(cuts)); err == nil && n > 0 {
		out.CutsIncluded = n
	}
	return out
}

// wrapStripeError classifies API failures: rate limits, 5xx and transport
// errors are transient, other API errors are permanent.
func wrapStripeError(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError {
			return errors.Join(ErrProviderUnavailable, err)
		}
		return errors.Join(ErrProviderRejected, err)
	}
	return errors.Join(ErrProviderUnavailable, err)
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
