package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/cutsync/pkg/logger"
	"github.com/dmitrymomot/cutsync/pkg/queue"
	"github.com/dmitrymomot/cutsync/pkg/webhook"
)

const (
	RewardSourcePlanChange = "plan_change"
	RewardSourceWebhook    = "webhook"
)

// RewardEvent is the loyalty bonus for an upgrade. IdempotencyKey is the same
// whichever path detected the upgrade, so the receiver can drop duplicates.
type RewardEvent struct {
	UserID         uuid.UUID `json:"user_id"`
	SubscriptionID string    `json:"subscription_id"`
	PriceID        string    `json:"price_id"`
	PlanName       string    `json:"plan_name"`
	PreviousCuts   int       `json:"previous_cuts"`
	NewCuts        int       `json:"new_cuts"`
	PeriodStart    time.Time `json:"period_start"`
	Source         string    `json:"source"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewRewardEvent(sub *Subscription, previousCuts int, source string) RewardEvent {
	return RewardEvent{
		UserID:         sub.UserID,
		SubscriptionID: sub.ProviderSubscriptionID,
		PriceID:        sub.ProviderPriceID,
		PlanName:       sub.PlanName,
		PreviousCuts:   previousCuts,
		NewCuts:        sub.CutsIncluded,
		PeriodStart:    sub.CurrentPeriodStart,
		Source:         source,
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", sub.ProviderSubscriptionID, sub.ProviderPriceID, sub.CurrentPeriodStart.Unix()),
	}
}

// RewardEnqueuer hands reward events to background delivery. It is only
// called after the subscription mutation is stored.
type RewardEnqueuer interface {
	EnqueueReward(ctx context.Context, event RewardEvent) error
}

type noopRewards struct{}

func (noopRewards) EnqueueReward(context.Context, RewardEvent) error { return nil }

// QueueRewards enqueues reward events as queue tasks.
type QueueRewards struct {
	enqueuer    *queue.Enqueuer
	maxAttempts int
}

func NewQueueRewards(enqueuer *queue.Enqueuer, maxAttempts int) *QueueRewards {
	return &QueueRewards{enqueuer: enqueuer, maxAttempts: maxAttempts}
}

func (q *QueueRewards) EnqueueReward(ctx context.Context, event RewardEvent) error {
	_, err := q.enqueuer.Enqueue(ctx, event, queue.WithMaxAttempts(q.maxAttempts))
	return err
}

// RewardDelivery posts reward events to the loyalty endpoint as signed JSON.
type RewardDelivery struct {
	sender  *webhook.Sender
	url     string
	secret  string
	metrics *Metrics
	log     *slog.Logger
}

func NewRewardDelivery(sender *webhook.Sender, url, secret string, opts ...Option) *RewardDelivery {
	o := newOptions(opts)
	return &RewardDelivery{
		sender:  sender,
		url:     url,
		secret:  secret,
		metrics: o.metrics,
		log:     o.log.With(logger.Component("rewards")),
	}
}

// Handler returns the queue handler for RewardEvent tasks.
func (d *RewardDelivery) Handler() queue.Handler {
	return queue.NewTaskHandler(d.Deliver)
}

// Deliver sends one reward. Permanent rejections are logged and dropped;
// other failures are returned so the queue retries.
func (d *RewardDelivery) Deliver(ctx context.Context, event RewardEvent) error {
	log := d.log.With(logger.UserID(event.UserID), logger.SubscriptionID(event.SubscriptionID),
		slog.String("idempotency_key", event.IdempotencyKey))
	if d.url == "" {
		log.InfoContext(ctx, "reward endpoint not configured, dropping reward")
		return nil
	}

	opts := []webhook.SendOption{
		webhook.WithIdempotencyKey(event.IdempotencyKey),
		webhook.WithMaxRetries(1),
	}
	if d.secret != "" {
		opts = append(opts, webhook.WithSignature(d.secret))
	}

	err := d.sender.Send(ctx, d.url, event, opts...)
	d.metrics.reward("deliver", err)
	switch {
	case err == nil:
		log.InfoContext(ctx, "reward delivered", slog.Int("new_cuts", event.NewCuts))
		return nil
	case webhook.IsPermanent(err):
		log.ErrorContext(ctx, "reward rejected by endpoint", logger.Error(err))
		return nil
	default:
		return err
	}
}
