package reputation

import (
	"fmt"

	"github.com/hyperdag-network/repid/internal/domain"
)

// ─── Policy Constants ───────────────────────────────────────────────────────

const (
	// DefaultRepID is the score assigned to a never-seen agent.
	DefaultRepID = 100.0

	// DefaultDecayRate attenuates a stored score by 5% per idle day.
	DefaultDecayRate = 0.95

	// DefaultRecoveryBonus multiplies rewards while an agent is recovering.
	DefaultRecoveryBonus = 1.2

	// DefaultBaseReward is the raw reward for a correct validation at
	// difficulty 1.0.
	DefaultBaseReward = 10.0

	// DefaultBasePenalty is the raw penalty for an incorrect validation
	// before context shaping.
	DefaultBasePenalty = 15.0

	// DefaultMinRepID and DefaultMaxRepID bound every observable score.
	DefaultMinRepID = 10.0
	DefaultMaxRepID = 1000.0
)

// Policy holds every tunable constant of the trust policy. The shaping values
// below encode actual fairness decisions, so they are named fields rather
// than inline literals — operations can retune them without a code change.
type Policy struct {
	DecayRate     float64 // per-day retention factor, (0, 1]
	RecoveryBonus float64 // reward multiplier while recovering, ≥ 1
	BaseReward    float64
	BasePenalty   float64
	MinRepID      float64
	MaxRepID      float64
	DefaultRepID  float64

	// BlendNewWeight is the share of the freshly evaluated score in the
	// final blend; the decayed prior score gets the remainder. Smooths
	// single-event volatility.
	BlendNewWeight float64

	// ConfidentMissThreshold and ConfidentMissMultiplier punish confident
	// mistakes harder: confidence above the threshold scales the penalty.
	ConfidentMissThreshold  float64
	ConfidentMissMultiplier float64

	// EdgeCaseMultiplier softens penalties on inherently hard cases.
	EdgeCaseMultiplier float64

	// RecoveryWindow is how many recent validations the recovery detector
	// inspects (split into two equal halves). RecoveryThreshold is the
	// minimum correct-rate improvement between halves.
	RecoveryWindow    int
	RecoveryThreshold float64

	// TrendWindow is how many recent updates feed trend classification.
	// Mean change above +TrendThreshold is improving, below −TrendThreshold
	// is declining.
	TrendWindow    int
	TrendThreshold float64

	// History capacities. Oldest entries are evicted first.
	ValidationHistoryCap int
	UpdateHistoryCap     int
}

// DefaultPolicy returns the production trust policy.
func DefaultPolicy() Policy {
	return Policy{
		DecayRate:     DefaultDecayRate,
		RecoveryBonus: DefaultRecoveryBonus,
		BaseReward:    DefaultBaseReward,
		BasePenalty:   DefaultBasePenalty,
		MinRepID:      DefaultMinRepID,
		MaxRepID:      DefaultMaxRepID,
		DefaultRepID:  DefaultRepID,

		BlendNewWeight:          0.7,
		ConfidentMissThreshold:  0.9,
		ConfidentMissMultiplier: 1.5,
		EdgeCaseMultiplier:      0.7,
		RecoveryWindow:          10,
		RecoveryThreshold:       0.15,
		TrendWindow:             5,
		TrendThreshold:          2.0,
		ValidationHistoryCap:    100,
		UpdateHistoryCap:        50,
	}
}

// Validate fails fast on a policy that would break engine invariants.
func (p Policy) Validate() error {
	if p.MinRepID >= p.MaxRepID {
		return fmt.Errorf("%w: min_repid %.2f must be below max_repid %.2f",
			domain.ErrInvalidPolicy, p.MinRepID, p.MaxRepID)
	}
	if p.DecayRate <= 0 || p.DecayRate > 1 {
		return fmt.Errorf("%w: decay_rate %.3f must be in (0, 1]",
			domain.ErrInvalidPolicy, p.DecayRate)
	}
	if p.RecoveryBonus < 1 {
		return fmt.Errorf("%w: recovery_bonus %.3f must be ≥ 1",
			domain.ErrInvalidPolicy, p.RecoveryBonus)
	}
	if p.BlendNewWeight < 0 || p.BlendNewWeight > 1 {
		return fmt.Errorf("%w: blend_new_weight %.3f must be in [0, 1]",
			domain.ErrInvalidPolicy, p.BlendNewWeight)
	}
	if p.RecoveryWindow < 2 || p.RecoveryWindow%2 != 0 {
		return fmt.Errorf("%w: recovery_window %d must be even and ≥ 2",
			domain.ErrInvalidPolicy, p.RecoveryWindow)
	}
	if p.TrendWindow < 1 {
		return fmt.Errorf("%w: trend_window %d must be ≥ 1",
			domain.ErrInvalidPolicy, p.TrendWindow)
	}
	if p.ValidationHistoryCap < p.RecoveryWindow {
		return fmt.Errorf("%w: validation_history_cap %d below recovery_window %d",
			domain.ErrInvalidPolicy, p.ValidationHistoryCap, p.RecoveryWindow)
	}
	if p.UpdateHistoryCap < p.TrendWindow {
		return fmt.Errorf("%w: update_history_cap %d below trend_window %d",
			domain.ErrInvalidPolicy, p.UpdateHistoryCap, p.TrendWindow)
	}
	if p.DefaultRepID < p.MinRepID || p.DefaultRepID > p.MaxRepID {
		return fmt.Errorf("%w: default_repid %.2f outside [%.2f, %.2f]",
			domain.ErrInvalidPolicy, p.DefaultRepID, p.MinRepID, p.MaxRepID)
	}
	return nil
}
