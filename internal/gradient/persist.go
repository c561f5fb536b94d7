package gradient

import (
	"math/rand"

	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

// #region snapshot

// Snapshot is the JSON-serializable processor state. The noise RNG is not
// captured; loading reseeds it from the config seed advanced to the saved
// step, so a restored run reproduces the same noise stream as an
// uninterrupted one only when resumed from a reset-aligned step.
type Snapshot struct {
	Config      Config            `json:"config"`
	Step        int               `json:"step"`
	AccumCount  int               `json:"accum_count"`
	Accum       map[string]Buffer `json:"accum,omitempty"`
	NormHistory []float64         `json:"norm_history"`
	History     []Metrics         `json:"history"`
}

// SaveState captures the processor for persistence.
func (p *Processor) SaveState() Snapshot {
	snap := Snapshot{
		Config:      p.config,
		Step:        p.step,
		AccumCount:  p.accumCount,
		NormHistory: p.normHistory.Values(),
		History:     append([]Metrics(nil), p.history...),
	}
	if len(p.accum) > 0 {
		snap.Accum = Buffers(p.accum).Clone()
	}
	return snap
}

// LoadState restores the processor from a snapshot, re-validating its config.
func (p *Processor) LoadState(snap Snapshot) error {
	if err := snap.Config.Validate(); err != nil {
		return err
	}
	p.config = snap.Config
	p.step = snap.Step
	p.accumCount = snap.AccumCount
	p.accum = make(map[string]Buffer, len(snap.Accum))
	for name, buf := range snap.Accum {
		p.accum[name] = buf.Clone()
	}
	p.normHistory = metrics.NewWindow(snap.Config.ClipWindow)
	for _, v := range snap.NormHistory {
		p.normHistory.Push(v)
	}
	p.history = append([]Metrics(nil), snap.History...)
	p.rng = rand.New(rand.NewSource(snap.Config.Seed + int64(snap.Step)))
	return nil
}

// #endregion snapshot
