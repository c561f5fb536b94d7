package lrate

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

// #region policy

// Policy selects the post-warmup schedule.
type Policy string

const (
	PolicyCosine      Policy = "cosine"
	PolicyPlateau     Policy = "plateau"
	PolicyExponential Policy = "exponential"
	PolicyPolynomial  Policy = "polynomial"
	PolicyCyclical    Policy = "cyclical"
)

// Mode selects the improvement direction for plateau tracking.
type Mode string

const (
	ModeMin Mode = "min"
	ModeMax Mode = "max"
)

// #endregion policy

// #region config

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid learning-rate config")

// polynomial decay horizon in steps
const polynomialHorizon = 100000

// Config enumerates every recognized scheduling option. Fixed at
// construction.
type Config struct {
	Policy      Policy             `json:"policy"`
	InitialLR   float64            `json:"initial_lr"`
	MinLR       float64            `json:"min_lr"`
	MaxLR       float64            `json:"max_lr"`
	WarmupSteps int                `json:"warmup_steps"`
	CycleLength int                `json:"cycle_length"` // cosine period in steps
	Patience    int                `json:"patience"`     // plateau
	Factor      float64            `json:"factor"`       // plateau multiplier
	MinDelta    float64            `json:"min_delta"`    // plateau improvement tolerance
	Mode        Mode               `json:"mode"`         // plateau direction
	Monitor     metrics.MonitorKey `json:"monitor"`      // plateau monitored value
	StepSize    int                `json:"step_size"`    // exponential interval / cyclical half-period
	Gamma       float64            `json:"gamma"`        // exponential multiplier
	Power       float64            `json:"power"`        // polynomial exponent
	HistorySize int                `json:"history_size"` // loss samples kept for analytics
}

// DefaultConfig returns a cosine schedule between 1e-5 and 1e-2.
func DefaultConfig() Config {
	return Config{
		Policy:      PolicyCosine,
		InitialLR:   1e-3,
		MinLR:       1e-5,
		MaxLR:       1e-2,
		CycleLength: 1000,
		Patience:    10,
		Factor:      0.5,
		MinDelta:    1e-4,
		Mode:        ModeMin,
		Monitor:     metrics.MonitorLoss,
		StepSize:    100,
		Gamma:       0.95,
		Power:       1.0,
		HistorySize: 1000,
	}
}

// Validate rejects out-of-range bounds at construction.
func (c Config) Validate() error {
	switch c.Policy {
	case PolicyCosine, PolicyPlateau, PolicyExponential, PolicyPolynomial, PolicyCyclical:
	default:
		return fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, c.Policy)
	}
	if c.MinLR <= 0 {
		return fmt.Errorf("%w: min lr %v <= 0", ErrInvalidConfig, c.MinLR)
	}
	if c.MinLR > c.InitialLR || c.InitialLR > c.MaxLR {
		return fmt.Errorf("%w: need min %v <= initial %v <= max %v",
			ErrInvalidConfig, c.MinLR, c.InitialLR, c.MaxLR)
	}
	if c.WarmupSteps < 0 {
		return fmt.Errorf("%w: warmup steps %d < 0", ErrInvalidConfig, c.WarmupSteps)
	}
	switch c.Policy {
	case PolicyCosine:
		if c.CycleLength <= 0 {
			return fmt.Errorf("%w: cycle length %d <= 0", ErrInvalidConfig, c.CycleLength)
		}
	case PolicyPlateau:
		if c.Patience <= 0 {
			return fmt.Errorf("%w: patience %d <= 0", ErrInvalidConfig, c.Patience)
		}
		if c.Factor <= 0 || c.Factor >= 1 {
			return fmt.Errorf("%w: factor %v outside (0,1)", ErrInvalidConfig, c.Factor)
		}
		if c.Mode != ModeMin && c.Mode != ModeMax {
			return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
		}
	case PolicyExponential:
		if c.StepSize <= 0 {
			return fmt.Errorf("%w: step size %d <= 0", ErrInvalidConfig, c.StepSize)
		}
		if c.Gamma <= 0 || c.Gamma >= 1 {
			return fmt.Errorf("%w: gamma %v outside (0,1)", ErrInvalidConfig, c.Gamma)
		}
	case PolicyPolynomial:
		if c.Power <= 0 {
			return fmt.Errorf("%w: power %v <= 0", ErrInvalidConfig, c.Power)
		}
	case PolicyCyclical:
		if c.StepSize <= 0 {
			return fmt.Errorf("%w: step size %d <= 0", ErrInvalidConfig, c.StepSize)
		}
	}
	return nil
}

// #endregion config

// #region state

// State is the controller's mutable scheduling state. CurrentLR always stays
// within [MinLR, MaxLR]; TotalSteps is monotonically non-decreasing.
type State struct {
	CurrentLR float64 `json:"current_lr"`
	// BestMetric is +/-Inf until plateau tracking records a finite value, so
	// it is excluded from the JSON form; Snapshot carries it as a nullable.
	BestMetric      float64 `json:"-"`
	PatienceCounter int     `json:"patience_counter"`
	WarmupCounter   int     `json:"warmup_counter"`
	CycleCounter    int     `json:"cycle_counter"`
	TotalSteps      int     `json:"total_steps"`
	Improvements    int     `json:"improvements"`
	Reductions      int     `json:"reductions"`
}

// #endregion state

// #region analytics

// Analytics summarizes scheduling behavior over the bounded loss history.
type Analytics struct {
	ConvergenceRate float64  `json:"convergence_rate"` // positive when loss is falling
	Efficiency      float64  `json:"efficiency"`       // loss drop per step
	Stability       float64  `json:"stability"`        // 1 - rate-change frequency
	Improvements    int      `json:"improvements"`
	Reductions      int      `json:"reductions"`
	Recommendations []string `json:"recommendations"`
}

// #endregion analytics
