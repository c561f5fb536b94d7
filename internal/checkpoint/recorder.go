package checkpoint

import (
	"log"

	"github.com/danielpatrickdp/adaptive-training/internal/events"
)

// #region recorder

// Recorder is an events.Listener that persists every controller adjustment
// to the store's provenance log. Write failures are logged, not returned:
// provenance must never interrupt a training step.
type Recorder struct {
	store     *Store
	sessionID string
}

// NewRecorder returns a listener that logs adjustments under sessionID.
func NewRecorder(store *Store, sessionID string) *Recorder {
	return &Recorder{store: store, sessionID: sessionID}
}

func (r *Recorder) OnRateChanged(e events.RateChanged) {
	r.log(Adjustment{
		Controller: "lrate",
		EventType:  "rate_changed",
		OldValue:   e.Old,
		NewValue:   e.New,
		Reason:     e.Reason,
		Step:       e.Step,
	})
}

func (r *Recorder) OnBatchSizeChanged(e events.BatchSizeChanged) {
	r.log(Adjustment{
		Controller: "batch",
		EventType:  "batch_size_changed",
		OldValue:   float64(e.Old),
		NewValue:   float64(e.New),
		Reason:     e.Reason,
		Step:       e.Batch,
	})
}

func (r *Recorder) OnImprovement(e events.Improvement) {
	r.log(Adjustment{
		Controller: "earlystop",
		EventType:  "improvement",
		OldValue:   e.Best,
		NewValue:   e.Value,
		Reason:     e.Metric,
		Step:       e.Epoch,
	})
}

func (r *Recorder) OnEarlyStopped(e events.EarlyStopped) {
	r.log(Adjustment{
		Controller: "earlystop",
		EventType:  "early_stopped",
		OldValue:   float64(e.BestEpoch),
		NewValue:   e.BestMetric,
		Reason:     e.Reason,
		Step:       e.Epoch,
	})
}

func (r *Recorder) OnGradientProcessed(e events.GradientProcessed) {
	// Only clip events carry provenance value; unclipped steps are routine.
	if !e.Clipped {
		return
	}
	r.log(Adjustment{
		Controller: "gradient",
		EventType:  "gradient_clipped",
		OldValue:   e.GlobalNorm,
		NewValue:   e.GlobalNorm,
		Reason:     "clip",
		Step:       e.Step,
	})
}

func (r *Recorder) log(entry Adjustment) {
	entry.SessionID = r.sessionID
	if err := r.store.LogAdjustment(entry); err != nil {
		log.Printf("checkpoint: log adjustment (%s/%s): %v", entry.Controller, entry.EventType, err)
	}
}

// #endregion recorder
