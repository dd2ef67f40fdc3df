// Package risk implements transaction risk scoring for money movement.
//
// Every transfer is evaluated against additive, independent rules: transfer
// velocity (per minute and per hour), recent reversals, KYC tier, open
// compliance flags, and proximity to the daily limit. Scores range 0–100 and
// map to a tier (low/medium/high) and a recommended action (allow, step-up
// verification, block). The engine recommends; the caller enforces.
package risk

import (
	"context"
	"time"
)

// Level is the risk tier derived from the score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Action is the recommended handling for a transaction.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionStepUp Action = "step_up"
	ActionBlock  Action = "block"
)

// Signal identifies a scoring rule that fired.
type Signal string

const (
	SignalVelocityBurst          Signal = "VELOCITY_BURST"
	SignalVelocityElevated       Signal = "VELOCITY_ELEVATED"
	SignalVelocityHourlyHigh     Signal = "VELOCITY_HOURLY_HIGH"
	SignalVelocityHourlyModerate Signal = "VELOCITY_HOURLY_MODERATE"
	SignalReversalPattern        Signal = "REVERSAL_PATTERN"
	SignalReversalRecent         Signal = "REVERSAL_RECENT"
	SignalNoKYC                  Signal = "NO_KYC"
	SignalBasicKYC               Signal = "BASIC_KYC"
	SignalPriorFlag              Signal = "PRIOR_FLAG"
	SignalNearDailyLimit         Signal = "NEAR_DAILY_LIMIT"
)

// Tier boundaries. Contiguous and non-overlapping: [0,30) low, [30,60)
// medium, [60,100] high.
const (
	MediumThreshold = 30
	HighThreshold   = 60
)

// MaxScore caps the additive total.
const MaxScore = 100

// Input carries the signals for a single evaluation. Constructed fresh per
// transaction from recent-activity counters; never persisted as-is.
type Input struct {
	VelocityPerMinute int      `json:"velocityPerMinute"` // transfers in the trailing 60s
	VelocityPerHour   int      `json:"velocityPerHour"`   // transfers in the trailing 60m
	Reversals24h      int      `json:"reversals24h"`      // reversed/disputed in the trailing 24h
	KYCTier           int      `json:"kycTier"`           // 0 = none, 1 = basic, 2 = full
	HasUnresolvedFlag bool     `json:"hasUnresolvedFlag"` // open fraud/compliance flag
	Amount            *float64 `json:"amount,omitempty"`  // transaction value, operating currency
	DailyLimit        *float64 `json:"dailyLimit,omitempty"`
}

// Result is the complete outcome of one evaluation.
type Result struct {
	Score   int      `json:"score"`
	Level   Level    `json:"level"`
	Signals []Signal `json:"signals"`
	Action  Action   `json:"action"`
}

// Assessment is the audit-trail record of one evaluation: who was scored,
// with what inputs, and what came out. The engine never writes these; the
// decision handler does.
type Assessment struct {
	ID          string    `json:"id"`
	ActorID     string    `json:"actorId"`
	Region      string    `json:"region,omitempty"`
	Input       Input     `json:"input"`
	Score       int       `json:"score"`
	Level       Level     `json:"level"`
	Signals     []Signal  `json:"signals"`
	Action      Action    `json:"action"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// ListFilter narrows an assessment listing. Zero fields are ignored.
type ListFilter struct {
	ActorID string
	Region  string // region scope pushed into the query
	Action  Action
	Limit   int

	// Cursor position for pagination: return records strictly older than
	// (BeforeTime, BeforeID). Ignored when BeforeTime is zero.
	BeforeTime time.Time
	BeforeID   string
}

// Store persists assessments for the audit trail.
type Store interface {
	Record(ctx context.Context, a *Assessment) error
	List(ctx context.Context, f ListFilter) ([]*Assessment, error)
}
