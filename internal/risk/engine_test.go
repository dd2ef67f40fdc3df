package risk

import (
	"reflect"
	"testing"
)

func f64(v float64) *float64 { return &v }

func TestBaselineScoresZero(t *testing.T) {
	// Fully verified account, no activity signals at all.
	result := Evaluate(Input{KYCTier: 2})

	if result.Score != 0 {
		t.Errorf("baseline score = %d, want 0", result.Score)
	}
	if result.Level != LevelLow {
		t.Errorf("baseline level = %s, want low", result.Level)
	}
	if result.Action != ActionAllow {
		t.Errorf("baseline action = %s, want allow", result.Action)
	}
	if len(result.Signals) != 0 {
		t.Errorf("baseline signals = %v, want none", result.Signals)
	}
}

func TestScoringTable(t *testing.T) {
	tests := []struct {
		name    string
		in      Input
		score   int
		level   Level
		action  Action
		signals []Signal
	}{
		{
			name:    "burst plus no kyc",
			in:      Input{VelocityPerMinute: 5, KYCTier: 0},
			score:   55,
			level:   LevelMedium,
			action:  ActionStepUp,
			signals: []Signal{SignalVelocityBurst, SignalNoKYC},
		},
		{
			name:    "reversal pattern plus basic kyc plus flag",
			in:      Input{Reversals24h: 3, KYCTier: 1, HasUnresolvedFlag: true},
			score:   45,
			level:   LevelMedium,
			action:  ActionStepUp,
			signals: []Signal{SignalReversalPattern, SignalBasicKYC, SignalPriorFlag},
		},
		{
			name:    "elevated minute velocity only",
			in:      Input{VelocityPerMinute: 3, KYCTier: 2},
			score:   15,
			level:   LevelLow,
			action:  ActionAllow,
			signals: []Signal{SignalVelocityElevated},
		},
		{
			name:    "hourly moderate only",
			in:      Input{VelocityPerHour: 15, KYCTier: 2},
			score:   10,
			level:   LevelLow,
			action:  ActionAllow,
			signals: []Signal{SignalVelocityHourlyModerate},
		},
		{
			name:    "hourly high only",
			in:      Input{VelocityPerHour: 30, KYCTier: 2},
			score:   20,
			level:   LevelLow,
			action:  ActionAllow,
			signals: []Signal{SignalVelocityHourlyHigh},
		},
		{
			name:    "single reversal",
			in:      Input{Reversals24h: 1, KYCTier: 2},
			score:   10,
			level:   LevelLow,
			action:  ActionAllow,
			signals: []Signal{SignalReversalRecent},
		},
		{
			name:    "near daily limit",
			in:      Input{KYCTier: 2, Amount: f64(90), DailyLimit: f64(100)},
			score:   10,
			level:   LevelLow,
			action:  ActionAllow,
			signals: []Signal{SignalNearDailyLimit},
		},
		{
			name: "everything fires and clamps at 100",
			in: Input{
				VelocityPerMinute: 10,
				VelocityPerHour:   40,
				Reversals24h:      5,
				KYCTier:           0,
				HasUnresolvedFlag: true,
				Amount:            f64(95),
				DailyLimit:        f64(100),
			},
			score:  100, // 35+20+25+20+15+10 = 125, clamped
			level:  LevelHigh,
			action: ActionBlock,
			signals: []Signal{
				SignalVelocityBurst, SignalVelocityHourlyHigh,
				SignalReversalPattern, SignalNoKYC, SignalPriorFlag,
				SignalNearDailyLimit,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.in)
			if got.Score != tt.score {
				t.Errorf("score = %d, want %d", got.Score, tt.score)
			}
			if got.Level != tt.level {
				t.Errorf("level = %s, want %s", got.Level, tt.level)
			}
			if got.Action != tt.action {
				t.Errorf("action = %s, want %s", got.Action, tt.action)
			}
			if !reflect.DeepEqual(got.Signals, tt.signals) {
				t.Errorf("signals = %v, want %v", got.Signals, tt.signals)
			}
		})
	}
}

func TestVelocityTiersDoNotStack(t *testing.T) {
	// A per-minute velocity of 10 hits burst only, not burst + elevated.
	result := Evaluate(Input{VelocityPerMinute: 10, KYCTier: 2})
	if result.Score != 35 {
		t.Errorf("score = %d, want 35 (burst tier only)", result.Score)
	}
	if len(result.Signals) != 1 || result.Signals[0] != SignalVelocityBurst {
		t.Errorf("signals = %v, want [VELOCITY_BURST]", result.Signals)
	}
}

func TestVelocityMonotonic(t *testing.T) {
	prev := -1
	for _, v := range []int{2, 3, 5} {
		score := Evaluate(Input{VelocityPerMinute: v, KYCTier: 2}).Score
		if score < prev {
			t.Errorf("score decreased at velocity %d: %d < %d", v, score, prev)
		}
		prev = score
	}

	// Exact tier deltas: 0 at 2, 15 at 3, 35 at 5.
	if got := Evaluate(Input{VelocityPerMinute: 2, KYCTier: 2}).Score; got != 0 {
		t.Errorf("velocity 2 score = %d, want 0", got)
	}
	if got := Evaluate(Input{VelocityPerMinute: 3, KYCTier: 2}).Score; got != 15 {
		t.Errorf("velocity 3 score = %d, want 15", got)
	}
	if got := Evaluate(Input{VelocityPerMinute: 5, KYCTier: 2}).Score; got != 35 {
		t.Errorf("velocity 5 score = %d, want 35", got)
	}
}

func TestFullKYCNeverContributes(t *testing.T) {
	withFlags := Evaluate(Input{VelocityPerMinute: 5, Reversals24h: 3, KYCTier: 2, HasUnresolvedFlag: true})
	for _, sig := range withFlags.Signals {
		if sig == SignalNoKYC || sig == SignalBasicKYC {
			t.Errorf("kycTier=2 produced KYC signal %s", sig)
		}
	}
}

func TestNearLimitRequiresBothFields(t *testing.T) {
	if got := Evaluate(Input{KYCTier: 2, Amount: f64(90)}); got.Score != 0 {
		t.Errorf("amount without limit scored %d, want 0", got.Score)
	}
	if got := Evaluate(Input{KYCTier: 2, DailyLimit: f64(100)}); got.Score != 0 {
		t.Errorf("limit without amount scored %d, want 0", got.Score)
	}
	// Exactly at 80% does not fire; strictly above does.
	if got := Evaluate(Input{KYCTier: 2, Amount: f64(80), DailyLimit: f64(100)}); got.Score != 0 {
		t.Errorf("amount at exactly 80%% scored %d, want 0", got.Score)
	}
	if got := Evaluate(Input{KYCTier: 2, Amount: f64(80.01), DailyLimit: f64(100)}); got.Score != 10 {
		t.Errorf("amount above 80%% scored %d, want 10", got.Score)
	}
}

func TestScoreAlwaysClamped(t *testing.T) {
	// Sweep a broad grid of inputs and assert the clamping property.
	for vm := 0; vm <= 12; vm += 3 {
		for vh := 0; vh <= 45; vh += 15 {
			for rev := 0; rev <= 6; rev += 2 {
				for tier := 0; tier <= 2; tier++ {
					r := Evaluate(Input{
						VelocityPerMinute: vm,
						VelocityPerHour:   vh,
						Reversals24h:      rev,
						KYCTier:           tier,
						HasUnresolvedFlag: true,
						Amount:            f64(99),
						DailyLimit:        f64(100),
					})
					if r.Score < 0 || r.Score > 100 {
						t.Fatalf("score %d out of [0,100] for vm=%d vh=%d rev=%d tier=%d",
							r.Score, vm, vh, rev, tier)
					}
				}
			}
		}
	}
}

func TestTierBoundaries(t *testing.T) {
	tests := []struct {
		score  int
		level  Level
		action Action
	}{
		{0, LevelLow, ActionAllow},
		{29, LevelLow, ActionAllow},
		{30, LevelMedium, ActionStepUp},
		{59, LevelMedium, ActionStepUp},
		{60, LevelHigh, ActionBlock},
		{100, LevelHigh, ActionBlock},
	}
	for _, tt := range tests {
		level := LevelForScore(tt.score)
		if level != tt.level {
			t.Errorf("LevelForScore(%d) = %s, want %s", tt.score, level, tt.level)
		}
		if action := ActionForLevel(level); action != tt.action {
			t.Errorf("ActionForLevel(%s) = %s, want %s", level, action, tt.action)
		}
	}
}

func TestValidateInput(t *testing.T) {
	valid := Input{VelocityPerMinute: 1, VelocityPerHour: 5, KYCTier: 1, Amount: f64(10), DailyLimit: f64(100)}
	if err := ValidateInput(valid); err != nil {
		t.Errorf("valid input rejected: %v", err)
	}

	bad := []Input{
		{VelocityPerMinute: -1},
		{VelocityPerHour: -1},
		{Reversals24h: -1},
		{KYCTier: -1},
		{KYCTier: 3},
		{Amount: f64(-5)},
		{DailyLimit: f64(0)},
	}
	for i, in := range bad {
		if err := ValidateInput(in); err == nil {
			t.Errorf("bad input %d accepted: %+v", i, in)
		}
	}
}
