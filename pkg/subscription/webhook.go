package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/cutsync/pkg/logger"
)

// WebhookProcessor applies verified provider events to the local mirror.
// Every event id is applied at most once; failures are returned so the
// provider redelivers.
type WebhookProcessor struct {
	provider   BillingProvider
	store      SubscriptionStore
	customers  CustomerStore
	events     EventStore
	reconciler *ScheduleReconciler
	rewards    RewardEnqueuer
	metrics    *Metrics
	log        *slog.Logger
	now        func() time.Time
	timeout    time.Duration
}

func NewWebhookProcessor(
	provider BillingProvider,
	store SubscriptionStore,
	customers CustomerStore,
	events EventStore,
	reconciler *ScheduleReconciler,
	opts ...Option,
) *WebhookProcessor {
	o := newOptions(opts)
	return &WebhookProcessor{
		provider:   provider,
		store:      store,
		customers:  customers,
		events:     events,
		reconciler: reconciler,
		rewards:    o.rewards,
		metrics:    o.metrics,
		log:        o.log.With(logger.Component("webhooks")),
		now:        o.now,
		timeout:    o.providerTimeout,
	}
}

// followUp is work that runs only after the event is recorded.
type followUp func(ctx context.Context)

// Process verifies payload, checks the idempotency gate, applies the event
// and records its id. Errors wrapping ErrWebhookVerificationFailed must be
// answered with a 4xx; any other error with a 5xx.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) error {
	event, err := p.provider.ParseWebhook(payload, signature)
	if err != nil {
		p.log.WarnContext(ctx, "rejected webhook", logger.Error(err))
		if !errors.Is(err, ErrWebhookVerificationFailed) {
			err = errors.Join(ErrWebhookVerificationFailed, err)
		}
		return err
	}

	log := p.log.With(logger.EventID(event.ID), logger.EventType(event.ProviderType))

	done, err := p.events.IsEventProcessed(ctx, event.ID)
	if err != nil {
		p.metrics.webhookEvent(event.Type, OutcomeFailed)
		return fmt.Errorf("check event %s: %w", event.ID, err)
	}
	if done {
		p.metrics.webhookEvent(event.Type, OutcomeDuplicate)
		log.InfoContext(ctx, "duplicate webhook event ignored")
		return nil
	}

	start := time.Now()
	outcome, after, err := p.dispatch(ctx, log, event)
	if err != nil {
		p.metrics.webhookEvent(event.Type, OutcomeFailed)
		log.ErrorContext(ctx, "webhook event failed", logger.Error(err), logger.Duration(time.Since(start)))
		return err
	}

	recorded, err := p.events.MarkEventProcessed(ctx, event.ID, event.ProviderType)
	if err != nil {
		p.metrics.webhookEvent(event.Type, OutcomeFailed)
		return fmt.Errorf("record event %s: %w", event.ID, err)
	}
	if !recorded {
		// A concurrent delivery won the race; its follow-ups already ran.
		p.metrics.webhookEvent(event.Type, OutcomeDuplicate)
		return nil
	}

	p.metrics.webhookEvent(event.Type, outcome)
	log.InfoContext(ctx, "webhook event handled", slog.String("outcome", outcome), logger.Duration(time.Since(start)))
	for _, fn := range after {
		fn(ctx)
	}
	return nil
}

func (p *WebhookProcessor) dispatch(ctx context.Context, log *slog.Logger, event *WebhookEvent) (string, []followUp, error) {
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return p.syncSubscription(ctx, log, event.Subscription)

	case EventSubscriptionDeleted:
		return p.cancelSubscription(ctx, log, event.Subscription)

	case EventInvoicePaid:
		if event.InvoiceSubscriptionID == "" {
			return OutcomeSkipped, nil, nil
		}
		ps, err := p.fetchSubscription(ctx, event.InvoiceSubscriptionID)
		if err != nil {
			return "", nil, err
		}
		return p.syncSubscription(ctx, log, ps)

	case EventScheduleCreated, EventScheduleUpdated:
		changed, err := p.reconciler.Reconcile(ctx, event.Schedule)
		return changedOutcome(changed), nil, err

	case EventScheduleCompleted, EventScheduleCanceled, EventScheduleReleased:
		changed, err := p.reconciler.Clear(ctx, event.Schedule)
		return changedOutcome(changed), nil, err
	}

	log.DebugContext(ctx, "unhandled webhook event type")
	return OutcomeSkipped, nil, nil
}

// syncSubscription writes the provider's view of ps over the local row.
func (p *WebhookProcessor) syncSubscription(ctx context.Context, log *slog.Logger, ps *ProviderSubscription) (string, []followUp, error) {
	if ps == nil || ps.PriceID == "" {
		return OutcomeSkipped, nil, nil
	}
	log = log.With(logger.SubscriptionID(ps.ID))

	userID, err := p.resolveUser(ctx, ps)
	if errors.Is(err, ErrUnresolvedUser) {
		log.WarnContext(ctx, "subscription without local user", logger.CustomerID(ps.CustomerID))
		return OutcomeSkipped, nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	price, err := p.fetchPrice(ctx, ps.PriceID)
	if err != nil {
		return "", nil, err
	}
	if price.CutsIncluded <= 0 {
		log.WarnContext(ctx, "price has no cuts_included, subscription not mirrored",
			logger.UserID(userID), logger.PriceID(ps.PriceID), logger.Error(ErrMissingCredits))
		return OutcomeSkipped, nil, nil
	}

	existing, err := p.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return "", nil, err
	}

	sub, err := p.store.UpsertFromProvider(ctx, userID, CanonicalState{
		ProviderSubscriptionID: ps.ID,
		ProviderPriceID:        ps.PriceID,
		PlanName:               price.Name,
		Status:                 ParseStatus(ps.Status),
		PeriodStart:            ps.PeriodStart,
		PeriodEnd:              ps.PeriodEnd,
		Interval:               price.Interval,
		CutsIncluded:           price.CutsIncluded,
		CancelAtPeriodEnd:      ps.CancelAtPeriodEnd,
	})
	if err != nil {
		return "", nil, fmt.Errorf("upsert subscription %s: %w", ps.ID, err)
	}
	log.InfoContext(ctx, "subscription mirrored",
		logger.UserID(userID), logger.PriceID(sub.ProviderPriceID),
		slog.String("status", string(sub.Status)), logger.Cuts(sub.CutsUsed, sub.CutsIncluded))

	var after []followUp
	if isUpgrade(existing, sub) {
		previous := existing.CutsIncluded
		after = append(after, func(ctx context.Context) {
			p.enqueueReward(ctx, NewRewardEvent(sub, previous, RewardSourceWebhook))
		})
	}
	return OutcomeProcessed, after, nil
}

func (p *WebhookProcessor) cancelSubscription(ctx context.Context, log *slog.Logger, ps *ProviderSubscription) (string, []followUp, error) {
	if ps == nil {
		return OutcomeSkipped, nil, nil
	}
	sub, err := p.store.MarkCanceled(ctx, ps.ID, p.now())
	if errors.Is(err, ErrSubscriptionNotFound) {
		log.WarnContext(ctx, "deleted subscription not mirrored locally", logger.SubscriptionID(ps.ID))
		return OutcomeSkipped, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("cancel subscription %s: %w", ps.ID, err)
	}
	log.InfoContext(ctx, "subscription canceled", logger.UserID(sub.UserID), logger.SubscriptionID(ps.ID))
	return OutcomeProcessed, nil, nil
}

// resolveUser prefers metadata.user_id and falls back to the customer mapping.
func (p *WebhookProcessor) resolveUser(ctx context.Context, ps *ProviderSubscription) (uuid.UUID, error) {
	if ps.UserID != "" {
		if id, err := uuid.Parse(ps.UserID); err == nil {
			return id, nil
		}
	}
	if ps.CustomerID == "" {
		return uuid.Nil, ErrUnresolvedUser
	}
	id, err := p.customers.GetUserID(ctx, ps.CustomerID)
	if errors.Is(err, ErrCustomerNotFound) {
		return uuid.Nil, ErrUnresolvedUser
	}
	return id, err
}

func (p *WebhookProcessor) fetchPrice(ctx context.Context, priceID string) (*Price, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.provider.GetPrice(ctx, priceID)
}

func (p *WebhookProcessor) fetchSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.provider.GetSubscription(ctx, id)
}

func (p *WebhookProcessor) enqueueReward(ctx context.Context, event RewardEvent) {
	err := p.rewards.EnqueueReward(ctx, event)
	p.metrics.reward("enqueue", err)
	if err != nil {
		p.log.ErrorContext(ctx, "reward enqueue failed",
			logger.UserID(event.UserID), logger.SubscriptionID(event.SubscriptionID),
			slog.Any("reward", event), logger.Error(err))
	}
}

// isUpgrade reports a same-subscription increase in allowance.
func isUpgrade(before, after *Subscription) bool {
	return before != nil &&
		before.ProviderSubscriptionID == after.ProviderSubscriptionID &&
		after.Status.AllowsConsumption() &&
		after.CutsIncluded > before.CutsIncluded
}

func changedOutcome(changed bool) string {
	if changed {
		return OutcomeProcessed
	}
	return OutcomeSkipped
}
