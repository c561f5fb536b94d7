package earlystop

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

// #region mode

// Mode selects the improvement direction of the monitored metric.
type Mode string

const (
	ModeMin Mode = "min"
	ModeMax Mode = "max"
)

// #endregion mode

// #region stop-reason

// StopReason records why the monitor transitioned to Stopped.
type StopReason string

const (
	ReasonNone                StopReason = ""
	ReasonPatienceExceeded    StopReason = "patience_exceeded"
	ReasonConvergenceDetected StopReason = "convergence_detected"
	ReasonBaselineReached     StopReason = "baseline_reached"
)

// #endregion stop-reason

// #region config

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid early-stopping config")

// Config enumerates every recognized monitoring option. Fixed at
// construction.
type Config struct {
	Monitor            metrics.MonitorKey `json:"monitor"`
	Mode               Mode               `json:"mode"`
	Patience           int                `json:"patience"`
	MinDelta           float64            `json:"min_delta"`
	StartFromEpoch     int                `json:"start_from_epoch"`
	Baseline           *float64           `json:"baseline,omitempty"`
	RestoreBestWeights bool               `json:"restore_best_weights"`
	AdaptivePatience   bool               `json:"adaptive_patience"`
	MinPatience        int                `json:"min_patience"`
	MaxPatience        int                `json:"max_patience"`
	HistorySize        int                `json:"history_size"`
	// AssumedTotalEpochs anchors the estimated-savings analytic when a run
	// stops early.
	AssumedTotalEpochs int `json:"assumed_total_epochs"`
}

// DefaultConfig monitors validation loss with patience 10.
func DefaultConfig() Config {
	return Config{
		Monitor:            metrics.MonitorValLoss,
		Mode:               ModeMin,
		Patience:           10,
		MinDelta:           1e-4,
		MinPatience:        3,
		MaxPatience:        30,
		HistorySize:        100,
		AssumedTotalEpochs: 100,
	}
}

// Validate rejects out-of-range bounds at construction.
func (c Config) Validate() error {
	if c.Mode != ModeMin && c.Mode != ModeMax {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.Patience <= 0 {
		return fmt.Errorf("%w: patience %d <= 0", ErrInvalidConfig, c.Patience)
	}
	if c.MinDelta < 0 {
		return fmt.Errorf("%w: min delta %v < 0", ErrInvalidConfig, c.MinDelta)
	}
	if c.StartFromEpoch < 0 {
		return fmt.Errorf("%w: start epoch %d < 0", ErrInvalidConfig, c.StartFromEpoch)
	}
	if c.AdaptivePatience {
		if c.MinPatience <= 0 || c.MinPatience > c.MaxPatience {
			return fmt.Errorf("%w: need 0 < min patience %d <= max patience %d",
				ErrInvalidConfig, c.MinPatience, c.MaxPatience)
		}
	}
	return nil
}

// #endregion config

// #region state

// State is the monitor's mutable state. Once Stopped is true the state is
// terminal: no further epoch processing is accepted, only read-only queries.
type State struct {
	// BestMetric is +/-Inf until the first improvement, so it is excluded
	// from the JSON form; Snapshot carries it as a nullable.
	BestMetric          float64    `json:"-"`
	BestEpoch           int        `json:"best_epoch"`
	WaitCount           int        `json:"wait_count"`
	Stopped             bool       `json:"stopped"`
	StopReason          StopReason `json:"stop_reason"`
	RestoredWeights     bool       `json:"restored_weights"`
	ConvergenceDetected bool       `json:"convergence_detected"`
	TotalEpochs         int        `json:"total_epochs"`
	Improvements        int        `json:"improvements"`
	StagnationPeriods   int        `json:"stagnation_periods"`
	// Patience may drift from the configured value under adaptive patience.
	Patience int `json:"patience"`
}

// #endregion state

// #region weight-source

// WeightSource exposes model parameters for best-weights snapshotting and
// restoration. The monitor takes an owned, exclusive copy on improvement.
type WeightSource interface {
	Weights() map[string][]float32
	SetWeights(map[string][]float32)
}

// #endregion weight-source

// #region analytics

// Analytics summarizes the monitoring session.
type Analytics struct {
	EpochsToConvergence  int      `json:"epochs_to_convergence"` // 0 when never converged
	EstimatedSavedEpochs int      `json:"estimated_saved_epochs"`
	ResourceEfficiency   float64  `json:"resource_efficiency"` // improvements per epoch
	Recommendations      []string `json:"recommendations"`
}

// #endregion analytics
