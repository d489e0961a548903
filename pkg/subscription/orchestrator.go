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

type ChangeKind string

const (
	ChangeUpgrade   ChangeKind = "upgrade"
	ChangeLateral   ChangeKind = "lateral"
	ChangeDowngrade ChangeKind = "downgrade"
)

// ClassifyChange compares allowances. Equal allowance on a different price
// is lateral and applied like an upgrade.
func ClassifyChange(currentCuts, newCuts int) ChangeKind {
	switch {
	case newCuts > currentCuts:
		return ChangeUpgrade
	case newCuts == currentCuts:
		return ChangeLateral
	default:
		return ChangeDowngrade
	}
}

type ChangeResult struct {
	Kind            ChangeKind       `json:"kind"`
	Subscription    *Summary         `json:"subscription"`
	ScheduledChange *ScheduledChange `json:"scheduled_change,omitempty"`
	RewardQueued    bool             `json:"reward_queued"`
}

// PlanChanger runs user-initiated plan switches against the provider and
// mirrors the confirmed result locally. Calls for one user must not overlap.
type PlanChanger struct {
	provider  BillingProvider
	store     SubscriptionStore
	customers *CustomerResolver
	catalog   planLookup
	rewards   RewardEnqueuer
	metrics   *Metrics
	log       *slog.Logger
	timeout   time.Duration
}

func NewPlanChanger(provider BillingProvider, store SubscriptionStore, customers *CustomerResolver, catalog planLookup, opts ...Option) *PlanChanger {
	o := newOptions(opts)
	return &PlanChanger{
		provider:  provider,
		store:     store,
		customers: customers,
		catalog:   catalog,
		rewards:   o.rewards,
		metrics:   o.metrics,
		log:       o.log.With(logger.Component("plan_changes")),
		timeout:   o.providerTimeout,
	}
}

// ChangePlan switches userID to newPriceID. Upgrades and lateral moves are
// swapped immediately with prorations invoiced now; downgrades are scheduled
// for the end of the current period and leave the live plan untouched.
func (c *PlanChanger) ChangePlan(ctx context.Context, userID uuid.UUID, newPriceID string) (*ChangeResult, error) {
	if newPriceID == "" {
		return nil, ErrInvalidPriceID
	}
	sub, err := c.activeSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.ProviderPriceID == newPriceID {
		return nil, ErrAlreadyOnPlan
	}

	target, err := c.lookupPlan(ctx, newPriceID)
	if err != nil {
		return nil, err
	}
	if !target.Active {
		return nil, fmt.Errorf("%w: price %s is inactive", ErrPlanNotFound, newPriceID)
	}

	// The mapping lets webhooks resolve the user when metadata is missing.
	if err := c.resolveCustomer(ctx, userID); err != nil {
		return nil, fmt.Errorf("resolve customer: %w", err)
	}

	kind := ClassifyChange(sub.CutsIncluded, target.CutsIncluded)
	log := c.log.With(logger.UserID(userID), logger.SubscriptionID(sub.ProviderSubscriptionID),
		logger.PriceID(newPriceID), slog.String("kind", string(kind)))

	var result *ChangeResult
	if kind == ChangeDowngrade {
		result, err = c.scheduleDowngrade(ctx, log, sub, target)
	} else {
		result, err = c.applyNow(ctx, log, sub, target, kind)
	}
	c.metrics.planChange(kind, err)
	if err != nil {
		log.ErrorContext(ctx, "plan change failed", logger.Error(err))
		return nil, err
	}
	return result, nil
}

func (c *PlanChanger) applyNow(ctx context.Context, log *slog.Logger, sub *Subscription, target *CatalogEntry, kind ChangeKind) (*ChangeResult, error) {
	current, err := c.fetchSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}
	if err := c.swapPrice(ctx, SwapRequest{
		SubscriptionID: sub.ProviderSubscriptionID,
		ItemID:         current.ItemID,
		PriceID:        target.PriceID,
		IdempotencyKey: idempotencyKey("swap", sub.ProviderSubscriptionID, target.PriceID),
	}); err != nil {
		return nil, fmt.Errorf("swap price: %w", err)
	}

	// A pending downgrade would otherwise take effect over the new plan. It is
	// released only once the swap went through, so a failed swap keeps it.
	if sub.Scheduled != nil {
		if err := c.releaseScheduled(ctx, log, sub); err != nil {
			log.ErrorContext(ctx, "plan swapped but pending downgrade not released",
				logger.ScheduleID(sub.Scheduled.ScheduleID), logger.Error(err))
		}
	}

	updated, err := c.store.ApplyPlanChange(ctx, sub.UserID, target.Terms())
	if err != nil {
		return nil, fmt.Errorf("apply plan change locally: %w", err)
	}
	log.InfoContext(ctx, "plan changed", logger.Cuts(updated.CutsUsed, updated.CutsIncluded))

	result := &ChangeResult{Kind: kind, Subscription: NewSummary(updated), ScheduledChange: updated.Scheduled}
	if kind == ChangeUpgrade {
		err := c.rewards.EnqueueReward(ctx, NewRewardEvent(updated, sub.CutsIncluded, RewardSourcePlanChange))
		c.metrics.reward("enqueue", err)
		if err != nil {
			log.ErrorContext(ctx, "reward enqueue failed", logger.Error(err))
		} else {
			result.RewardQueued = true
		}
	}
	return result, nil
}

func (c *PlanChanger) scheduleDowngrade(ctx context.Context, log *slog.Logger, sub *Subscription, target *CatalogEntry) (*ChangeResult, error) {
	previous := sub.Scheduled
	if previous != nil {
		if previous.PriceID == target.PriceID {
			return &ChangeResult{Kind: ChangeDowngrade, Subscription: NewSummary(sub), ScheduledChange: previous}, nil
		}
		// A subscription carries at most one schedule.
		if err := c.cancelSchedule(ctx, previous.ScheduleID); err != nil {
			return nil, fmt.Errorf("release previous schedule: %w", err)
		}
		log.InfoContext(ctx, "previous scheduled change released", logger.ScheduleID(previous.ScheduleID))
	}

	change, err := c.schedulePrice(ctx, sub, target.PriceID, target.Name)
	if err != nil {
		err = fmt.Errorf("schedule downgrade: %w", err)
		if previous != nil {
			return nil, c.restoreScheduled(ctx, log, sub, *previous, err)
		}
		return nil, err
	}

	updated, err := c.store.SetScheduledChange(ctx, sub.UserID, change)
	if err != nil {
		return nil, fmt.Errorf("record scheduled change: %w", err)
	}
	log.InfoContext(ctx, "downgrade scheduled", logger.ScheduleID(change.ScheduleID), slog.Time("effective_at", change.EffectiveAt))

	return &ChangeResult{Kind: ChangeDowngrade, Subscription: NewSummary(updated), ScheduledChange: updated.Scheduled}, nil
}

// restoreScheduled puts back a downgrade that was released for a replacement
// that then failed. cause is returned either way.
func (c *PlanChanger) restoreScheduled(ctx context.Context, log *slog.Logger, sub *Subscription, previous ScheduledChange, cause error) error {
	change, err := c.schedulePrice(ctx, sub, previous.PriceID, previous.PlanName)
	if err != nil {
		log.ErrorContext(ctx, "previous scheduled change lost", slog.String("previous_price_id", previous.PriceID), logger.Error(err))
		if _, clearErr := c.store.ClearScheduledChange(ctx, sub.UserID); clearErr != nil {
			log.WarnContext(ctx, "stale scheduled change not cleared", logger.Error(clearErr))
		}
		return errors.Join(cause, fmt.Errorf("restore previous schedule: %w", err))
	}
	if _, err := c.store.SetScheduledChange(ctx, sub.UserID, change); err != nil {
		log.WarnContext(ctx, "restored schedule not recorded", logger.ScheduleID(change.ScheduleID), logger.Error(err))
	}
	log.InfoContext(ctx, "previous scheduled change restored", logger.ScheduleID(change.ScheduleID))
	return cause
}

// schedulePrice moves sub to priceID at the end of its current period.
func (c *PlanChanger) schedulePrice(ctx context.Context, sub *Subscription, priceID, planName string) (ScheduledChange, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	sched, err := c.provider.ScheduleSubscriptionPrice(ctx, ScheduleRequest{
		SubscriptionID: sub.ProviderSubscriptionID,
		CurrentPriceID: sub.ProviderPriceID,
		NewPriceID:     priceID,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		IdempotencyKey: idempotencyKey("downgrade", sub.ProviderSubscriptionID, priceID),
	})
	if err != nil {
		return ScheduledChange{}, err
	}
	return ScheduledChange{
		ScheduleID:  sched.ID,
		PlanName:    planName,
		PriceID:     priceID,
		EffectiveAt: sub.CurrentPeriodEnd,
	}, nil
}

// CancelScheduledChange releases the pending provider schedule. A failure to
// clear the local projection afterwards is logged only; the schedule release
// webhook clears it again.
func (c *PlanChanger) CancelScheduledChange(ctx context.Context, userID uuid.UUID) error {
	sub, err := c.activeSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if sub.Scheduled == nil {
		return ErrNoScheduledChange
	}
	log := c.log.With(logger.UserID(userID), logger.ScheduleID(sub.Scheduled.ScheduleID))

	if err := c.cancelSchedule(ctx, sub.Scheduled.ScheduleID); err != nil {
		return fmt.Errorf("cancel schedule: %w", err)
	}
	if _, err := c.store.ClearScheduledChange(ctx, userID); err != nil {
		log.ErrorContext(ctx, "schedule released but local projection not cleared", logger.Error(err))
		return nil
	}
	log.InfoContext(ctx, "scheduled change canceled")
	return nil
}

func (c *PlanChanger) releaseScheduled(ctx context.Context, log *slog.Logger, sub *Subscription) error {
	if err := c.cancelSchedule(ctx, sub.Scheduled.ScheduleID); err != nil {
		return fmt.Errorf("release previous schedule: %w", err)
	}
	if _, err := c.store.ClearScheduledChange(ctx, sub.UserID); err != nil {
		log.WarnContext(ctx, "previous schedule released but projection not cleared", logger.Error(err))
	}
	log.InfoContext(ctx, "previous scheduled change released", logger.ScheduleID(sub.Scheduled.ScheduleID))
	sub.Scheduled = nil
	return nil
}

func (c *PlanChanger) activeSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, err := c.store.Get(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusCanceled || sub.ProviderSubscriptionID == "" {
		return nil, ErrNoActiveSubscription
	}
	return sub, nil
}

// idempotencyKey is unique per request. Stripe replays a reused key for a
// day, so a key shared by two separate intents would skip the second one.
func idempotencyKey(op, subscriptionID, priceID string) string {
	return fmt.Sprintf("%s-%s-%s-%s", op, subscriptionID, priceID, uuid.NewString())
}

func (c *PlanChanger) lookupPlan(ctx context.Context, priceID string) (*CatalogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.catalog.Lookup(ctx, priceID)
}

func (c *PlanChanger) resolveCustomer(ctx context.Context, userID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.customers.Resolve(ctx, userID)
	return err
}

func (c *PlanChanger) fetchSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.provider.GetSubscription(ctx, id)
}

func (c *PlanChanger) swapPrice(ctx context.Context, req SwapRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.provider.SwapSubscriptionPrice(ctx, req)
	return err
}

func (c *PlanChanger) cancelSchedule(ctx context.Context, scheduleID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.provider.CancelSchedule(ctx, scheduleID)
}
