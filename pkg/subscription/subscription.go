package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status mirrors the provider's subscription status.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusTrialing   Status = "trialing"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusUnpaid     Status = "unpaid"
)

// ParseStatus maps provider statuses onto the local enum. Provider-only
// states (incomplete_expired, paused) collapse to the nearest local one.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusIncomplete, StatusTrialing, StatusActive, StatusPastDue, StatusCanceled, StatusUnpaid:
		return Status(s)
	case "incomplete_expired":
		return StatusCanceled
	case "paused":
		return StatusUnpaid
	}
	return StatusIncomplete
}

// AllowsConsumption reports whether credits can be drawn in this status.
func (s Status) AllowsConsumption() bool {
	return s == StatusActive || s == StatusTrialing
}

type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// ScheduledChange is the flat projection of a provider schedule's next phase.
// Either all fields are set or the change is absent.
type ScheduledChange struct {
	ScheduleID  string    `json:"schedule_id"`
	PlanName    string    `json:"plan_name"`
	PriceID     string    `json:"price_id"`
	EffectiveAt time.Time `json:"effective_at"`
}

// Subscription is the local mirror of a user's provider subscription. There
// is at most one per user; canceled rows are kept.
type Subscription struct {
	UserID                 uuid.UUID
	ProviderSubscriptionID string
	ProviderPriceID        string
	PlanName               string
	Status                 Status
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	Interval               Interval
	CutsIncluded           int
	CutsUsed               int
	CancelAtPeriodEnd      bool
	Scheduled              *ScheduledChange
	UpdatedAt              time.Time
}

// CutsRemaining never goes negative, even when a mid-period plan change left
// CutsUsed above CutsIncluded.
func (s *Subscription) CutsRemaining() int {
	return max(0, s.CutsIncluded-s.CutsUsed)
}

func (s *Subscription) Balance() *Balance {
	return &Balance{CutsUsed: s.CutsUsed, CutsRemaining: s.CutsRemaining()}
}

// CanonicalState is the authoritative provider snapshot written over the
// local row.
type CanonicalState struct {
	ProviderSubscriptionID string
	ProviderPriceID        string
	PlanName               string
	Status                 Status
	PeriodStart            time.Time
	PeriodEnd              time.Time
	Interval               Interval
	CutsIncluded           int
	CancelAtPeriodEnd      bool
}

// PlanTerms are the plan fields replaced by an immediate plan change.
type PlanTerms struct {
	PriceID      string
	PlanName     string
	Interval     Interval
	CutsIncluded int
}

type Balance struct {
	CutsUsed      int `json:"cuts_used"`
	CutsRemaining int `json:"cuts_remaining"`
}

// Summary is the read model exposed to clients.
type Summary struct {
	PlanName           string           `json:"plan_name"`
	PriceID            string           `json:"price_id"`
	Status             Status           `json:"status"`
	CurrentPeriodStart time.Time        `json:"current_period_start"`
	CurrentPeriodEnd   time.Time        `json:"current_period_end"`
	CutsIncluded       int              `json:"cuts_included"`
	CutsUsed           int              `json:"cuts_used"`
	CutsRemaining      int              `json:"cuts_remaining"`
	CancelAtPeriodEnd  bool             `json:"cancel_at_period_end"`
	ScheduledChange    *ScheduledChange `json:"scheduled_change,omitempty"`
}

func NewSummary(s *Subscription) *Summary {
	return &Summary{
		PlanName:           s.PlanName,
		PriceID:            s.ProviderPriceID,
		Status:             s.Status,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CutsIncluded:       s.CutsIncluded,
		CutsUsed:           s.CutsUsed,
		CutsRemaining:      s.CutsRemaining(),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		ScheduledChange:    s.Scheduled,
	}
}
