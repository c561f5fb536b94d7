package lrate

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

// #region snapshot

// Snapshot is the plain structured record produced by SaveState: config,
// state, and the bounded loss history needed to resume a session. BestMetric
// is nil until plateau tracking has recorded a finite value; the in-memory
// +/-Inf sentinel cannot be represented in JSON.
type Snapshot struct {
	Config      Config    `json:"config"`
	State       State     `json:"state"`
	BestMetric  *float64  `json:"best_metric,omitempty"`
	LossHistory []float64 `json:"loss_history"`
	RateChanges int       `json:"rate_changes"`
}

// SaveState captures the full controller state for persistence.
func (c *Controller) SaveState() Snapshot {
	snap := Snapshot{
		Config:      c.config,
		State:       c.state,
		LossHistory: c.lossHistory.Values(),
		RateChanges: c.rateChanges,
	}
	if !math.IsInf(c.state.BestMetric, 0) {
		best := c.state.BestMetric
		snap.BestMetric = &best
	}
	return snap
}

// LoadState restores a previously saved snapshot. The snapshot's config
// replaces the controller's and is re-validated.
func (c *Controller) LoadState(snap Snapshot) error {
	if err := snap.Config.Validate(); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	c.config = snap.Config
	c.state = snap.State
	c.state.BestMetric = math.Inf(1)
	if snap.Config.Mode == ModeMax {
		c.state.BestMetric = math.Inf(-1)
	}
	if snap.BestMetric != nil {
		c.state.BestMetric = *snap.BestMetric
	}
	c.rateChanges = snap.RateChanges
	c.lossHistory = metrics.NewWindow(snap.Config.HistorySize)
	for _, v := range snap.LossHistory {
		c.lossHistory.Push(v)
	}
	return nil
}

// #endregion snapshot
