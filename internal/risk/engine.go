package risk

import "fmt"

// Point values per rule. Within a category (per-minute velocity, hourly
// velocity, reversals, KYC) only the highest threshold met contributes.
const (
	pointsVelocityBurst          = 35
	pointsVelocityElevated       = 15
	pointsVelocityHourlyHigh     = 20
	pointsVelocityHourlyModerate = 10
	pointsReversalPattern        = 25
	pointsReversalRecent         = 10
	pointsNoKYC                  = 20
	pointsBasicKYC               = 5
	pointsPriorFlag              = 15
	pointsNearDailyLimit         = 10
)

// nearLimitRatio is the fraction of the daily limit above which a
// transaction counts as near-limit.
const nearLimitRatio = 0.8

// Evaluate scores a single transaction. Pure and deterministic: no I/O, no
// clock, no randomness. Rules run in a fixed order so the signal list is
// reproducible; each rule fires at most once.
//
// Evaluate does not validate its input; see ValidateInput. Out-of-range
// values still produce a clamped score, they just are not meaningful.
func Evaluate(in Input) Result {
	score := 0
	signals := []Signal{}

	fire := func(points int, sig Signal) {
		score += points
		signals = append(signals, sig)
	}

	// Per-minute velocity: highest tier wins.
	switch {
	case in.VelocityPerMinute >= 5:
		fire(pointsVelocityBurst, SignalVelocityBurst)
	case in.VelocityPerMinute >= 3:
		fire(pointsVelocityElevated, SignalVelocityElevated)
	}

	// Hourly velocity.
	switch {
	case in.VelocityPerHour >= 30:
		fire(pointsVelocityHourlyHigh, SignalVelocityHourlyHigh)
	case in.VelocityPerHour >= 15:
		fire(pointsVelocityHourlyModerate, SignalVelocityHourlyModerate)
	}

	// Reversals in the trailing 24h.
	switch {
	case in.Reversals24h >= 3:
		fire(pointsReversalPattern, SignalReversalPattern)
	case in.Reversals24h >= 1:
		fire(pointsReversalRecent, SignalReversalRecent)
	}

	// KYC: full verification (tier 2+) is the risk-neutral baseline.
	switch in.KYCTier {
	case 0:
		fire(pointsNoKYC, SignalNoKYC)
	case 1:
		fire(pointsBasicKYC, SignalBasicKYC)
	}

	if in.HasUnresolvedFlag {
		fire(pointsPriorFlag, SignalPriorFlag)
	}

	// Near-limit requires both fields; absence of either suppresses the
	// signal without error.
	if in.Amount != nil && in.DailyLimit != nil && *in.Amount > nearLimitRatio*(*in.DailyLimit) {
		fire(pointsNearDailyLimit, SignalNearDailyLimit)
	}

	if score > MaxScore {
		score = MaxScore
	}

	level := LevelForScore(score)
	return Result{
		Score:   score,
		Level:   level,
		Signals: signals,
		Action:  ActionForLevel(level),
	}
}

// LevelForScore maps a clamped score to its tier.
func LevelForScore(score int) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ActionForLevel maps a tier to the recommended action.
func ActionForLevel(level Level) Action {
	switch level {
	case LevelHigh:
		return ActionBlock
	case LevelMedium:
		return ActionStepUp
	default:
		return ActionAllow
	}
}

// ValidateInput enforces the engine's input contract at the boundary.
// Policy is reject, not clamp: negative counters or an out-of-range KYC tier
// mean the upstream counter pipeline is broken, and a silently clamped score
// would hide that.
func ValidateInput(in Input) error {
	if in.VelocityPerMinute < 0 {
		return fmt.Errorf("risk: velocityPerMinute must be non-negative, got %d", in.VelocityPerMinute)
	}
	if in.VelocityPerHour < 0 {
		return fmt.Errorf("risk: velocityPerHour must be non-negative, got %d", in.VelocityPerHour)
	}
	if in.Reversals24h < 0 {
		return fmt.Errorf("risk: reversals24h must be non-negative, got %d", in.Reversals24h)
	}
	if in.KYCTier < 0 || in.KYCTier > 2 {
		return fmt.Errorf("risk: kycTier must be 0, 1, or 2, got %d", in.KYCTier)
	}
	if in.Amount != nil && *in.Amount < 0 {
		return fmt.Errorf("risk: amount must be non-negative, got %v", *in.Amount)
	}
	if in.DailyLimit != nil && *in.DailyLimit <= 0 {
		return fmt.Errorf("risk: dailyLimit must be positive, got %v", *in.DailyLimit)
	}
	return nil
}
