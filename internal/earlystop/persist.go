package earlystop

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

// #region snapshot

// Snapshot is the plain structured record produced by SaveState. The
// best-weights snapshot is included so a resumed session can still restore.
// BestMetric is nil until the first improvement; the in-memory +/-Inf
// sentinel cannot be represented in JSON.
type Snapshot struct {
	Config      Config               `json:"config"`
	State       State                `json:"state"`
	BestMetric  *float64             `json:"best_metric,omitempty"`
	History     []float64            `json:"history"`
	Scores      []float64            `json:"scores"`
	BestWeights map[string][]float32 `json:"best_weights,omitempty"`
}

// SaveState captures the full monitor state for persistence.
func (m *Monitor) SaveState() Snapshot {
	snap := Snapshot{
		Config:  m.config,
		State:   m.state,
		History: m.window.Values(),
	}
	if !math.IsInf(m.state.BestMetric, 0) {
		best := m.state.BestMetric
		snap.BestMetric = &best
	}
	snap.Scores = make([]float64, len(m.scores))
	copy(snap.Scores, m.scores)
	if m.snapshot != nil {
		snap.BestWeights = make(map[string][]float32, len(m.snapshot))
		for name, data := range m.snapshot {
			cp := make([]float32, len(data))
			copy(cp, data)
			snap.BestWeights[name] = cp
		}
	}
	return snap
}

// LoadState restores a previously saved snapshot. The snapshot's config
// replaces the monitor's and is re-validated. Any currently held weights
// snapshot is released.
func (m *Monitor) LoadState(snap Snapshot) error {
	if err := snap.Config.Validate(); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	m.config = snap.Config
	m.state = snap.State
	m.state.BestMetric = math.Inf(1)
	if snap.Config.Mode == ModeMax {
		m.state.BestMetric = math.Inf(-1)
	}
	if snap.BestMetric != nil {
		m.state.BestMetric = *snap.BestMetric
	}
	m.window = metrics.NewWindow(snap.Config.HistorySize)
	for _, v := range snap.History {
		m.window.Push(v)
	}
	m.scores = make([]float64, len(snap.Scores))
	copy(m.scores, snap.Scores)
	m.snapshot = nil
	if snap.BestWeights != nil {
		m.snapshot = make(map[string][]float32, len(snap.BestWeights))
		for name, data := range snap.BestWeights {
			cp := make([]float32, len(data))
			copy(cp, data)
			m.snapshot[name] = cp
		}
	}
	return nil
}

// #endregion snapshot
