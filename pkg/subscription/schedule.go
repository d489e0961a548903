package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/cutsync/pkg/logger"
)

// planLookup resolves price ids to plan terms; *Catalog implements it.
type planLookup interface {
	Lookup(ctx context.Context, priceID string) (*CatalogEntry, error)
}

// ScheduleReconciler projects a provider schedule onto the scheduled_*
// fields of the subscription it governs.
type ScheduleReconciler struct {
	store   SubscriptionStore
	catalog planLookup
	log     *slog.Logger
	now     func() time.Time
}

func NewScheduleReconciler(store SubscriptionStore, catalog planLookup, opts ...Option) *ScheduleReconciler {
	o := newOptions(opts)
	return &ScheduleReconciler{
		store:   store,
		catalog: catalog,
		log:     o.log.With(logger.Component("schedules")),
		now:     o.now,
	}
}

// Reconcile mirrors the schedule's next phase (index 1). A schedule that is
// no longer pending or whose next phase already began clears the projection.
// A single-phase schedule (as sent on creation, before phases are set) is
// ignored. It reports whether a row was changed.
func (r *ScheduleReconciler) Reconcile(ctx context.Context, sched *ProviderSchedule) (bool, error) {
	sub, err := r.subscriptionFor(ctx, sched)
	if err != nil || sub == nil {
		return false, err
	}

	if !schedulePending(sched.Status) {
		return r.clear(ctx, sub, sched.ID)
	}
	if len(sched.Phases) < 2 {
		return false, nil
	}
	next := sched.Phases[1]
	if !next.Start.After(r.now()) {
		return r.clear(ctx, sub, sched.ID)
	}

	entry, err := r.catalog.Lookup(ctx, next.PriceID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			r.log.WarnContext(ctx, "scheduled price unknown, projection left untouched",
				logger.ScheduleID(sched.ID), logger.PriceID(next.PriceID), logger.Error(err))
			return false, nil
		}
		return false, err
	}

	change := ScheduledChange{
		ScheduleID:  sched.ID,
		PlanName:    entry.Name,
		PriceID:     next.PriceID,
		EffectiveAt: next.Start,
	}
	if sub.Scheduled != nil && *sub.Scheduled == change {
		return false, nil
	}
	if _, err := r.store.SetScheduledChange(ctx, sub.UserID, change); err != nil {
		return false, err
	}
	r.log.InfoContext(ctx, "scheduled change recorded",
		logger.UserID(sub.UserID), logger.ScheduleID(sched.ID), logger.PriceID(change.PriceID),
		slog.Time("effective_at", change.EffectiveAt))
	return true, nil
}

// Clear removes the projection after the schedule completed, was canceled or
// was released. The live plan is not touched.
func (r *ScheduleReconciler) Clear(ctx context.Context, sched *ProviderSchedule) (bool, error) {
	sub, err := r.subscriptionFor(ctx, sched)
	if err != nil || sub == nil {
		return false, err
	}
	return r.clear(ctx, sub, sched.ID)
}

func (r *ScheduleReconciler) clear(ctx context.Context, sub *Subscription, scheduleID string) (bool, error) {
	if sub.Scheduled == nil {
		return false, nil
	}
	// A newer schedule may already own the projection.
	if sub.Scheduled.ScheduleID != "" && sub.Scheduled.ScheduleID != scheduleID {
		return false, nil
	}
	if _, err := r.store.ClearScheduledChange(ctx, sub.UserID); err != nil {
		return false, err
	}
	r.log.InfoContext(ctx, "scheduled change cleared", logger.UserID(sub.UserID), logger.ScheduleID(scheduleID))
	return true, nil
}

func (r *ScheduleReconciler) subscriptionFor(ctx context.Context, sched *ProviderSchedule) (*Subscription, error) {
	if sched == nil || sched.SubscriptionID == "" {
		return nil, nil
	}
	sub, err := r.store.GetByProviderID(ctx, sched.SubscriptionID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		r.log.WarnContext(ctx, "schedule for unknown subscription",
			logger.ScheduleID(sched.ID), logger.SubscriptionID(sched.SubscriptionID))
		return nil, nil
	}
	return sub, err
}

func schedulePending(status string) bool {
	return status == "" || status == "not_started" || status == "active"
}
