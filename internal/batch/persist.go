package batch

import "fmt"

// #region snapshot

// Snapshot is the plain structured record produced by SaveState.
type Snapshot struct {
	Config         Config            `json:"config"`
	State          OptimizationState `json:"state"`
	History        []BatchMetrics    `json:"history"`
	BestThroughput float64           `json:"best_throughput"`
}

// SaveState captures the full controller state for persistence.
func (c *Controller) SaveState() Snapshot {
	history := make([]BatchMetrics, len(c.history))
	copy(history, c.history)
	return Snapshot{
		Config:         c.config,
		State:          c.state,
		History:        history,
		BestThroughput: c.bestThroughput,
	}
}

// LoadState restores a previously saved snapshot. The snapshot's config
// replaces the controller's and is re-validated.
func (c *Controller) LoadState(snap Snapshot) error {
	if err := snap.Config.Validate(); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	c.config = snap.Config
	c.state = snap.State
	c.bestThroughput = snap.BestThroughput
	c.history = make([]BatchMetrics, len(snap.History))
	copy(c.history, snap.History)
	return nil
}

// #endregion snapshot
