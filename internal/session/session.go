package session

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/adaptive-training/internal/batch"
	"github.com/danielpatrickdp/adaptive-training/internal/checkpoint"
	"github.com/danielpatrickdp/adaptive-training/internal/earlystop"
	"github.com/danielpatrickdp/adaptive-training/internal/events"
	"github.com/danielpatrickdp/adaptive-training/internal/gradient"
	"github.com/danielpatrickdp/adaptive-training/internal/lrate"
	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

// #region session-struct

// Session is the top-level coordinator for one training run: it routes
// gradients through the processor, keeps the learning rate and batch size
// adjusted, watches for the stopping condition, and optionally persists
// snapshots and provenance through a checkpoint store.
type Session struct {
	id      string
	config  Config
	grads   *gradient.Processor
	rates   *lrate.Controller
	batches *batch.Controller
	stopper *earlystop.Monitor
	store   *checkpoint.Store
	step    int
}

// #endregion session-struct

// #region options

// Option customizes a session at construction time.
type Option func(*Session)

// WithStore attaches a checkpoint store; the session logs every step and
// controller adjustment to it and persists periodic snapshots.
func WithStore(store *checkpoint.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithModel attaches a weight source so the stopping monitor can snapshot
// and restore best weights.
func WithModel(ws earlystop.WeightSource) Option {
	return func(s *Session) { s.stopper.AttachModel(ws) }
}

// WithListener registers a listener with all four controllers.
func WithListener(l events.Listener) Option {
	return func(s *Session) {
		s.grads.AddListener(l)
		s.rates.AddListener(l)
		s.batches.AddListener(l)
		s.stopper.AddListener(l)
	}
}

// #endregion options

// #region constructor

// New creates a fully wired session with a fresh UUID.
func New(config Config, opts ...Option) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	grads, err := gradient.NewProcessor(config.Gradient)
	if err != nil {
		return nil, err
	}
	rates, err := lrate.NewController(config.LR)
	if err != nil {
		return nil, err
	}
	batches, err := batch.NewController(config.Batch)
	if err != nil {
		return nil, err
	}
	stopper, err := earlystop.NewMonitor(config.Stop)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:      uuid.New().String(),
		config:  config,
		grads:   grads,
		rates:   rates,
		batches: batches,
		stopper: stopper,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store != nil {
		rec := checkpoint.NewRecorder(s.store, s.id)
		s.grads.AddListener(rec)
		s.rates.AddListener(rec)
		s.batches.AddListener(rec)
		s.stopper.AddListener(rec)
	}
	return s, nil
}

// #endregion constructor

// #region accessors

// ID returns the session UUID.
func (s *Session) ID() string { return s.id }

// Gradients returns the gradient processor.
func (s *Session) Gradients() *gradient.Processor { return s.grads }

// Rates returns the learning-rate controller.
func (s *Session) Rates() *lrate.Controller { return s.rates }

// Batches returns the batch-size controller.
func (s *Session) Batches() *batch.Controller { return s.batches }

// Stopper returns the early-stopping monitor.
func (s *Session) Stopper() *earlystop.Monitor { return s.stopper }

// Stopped reports whether the stopping monitor has fired.
func (s *Session) Stopped() bool { return s.stopper.Stopped() }

// #endregion accessors

// #region step

// Step processes one training step: transforms the raw gradients and
// advances the learning-rate schedule with the step's metrics. The returned
// plan carries nil gradients while an accumulation round is still pending.
func (s *Session) Step(raw gradient.Buffers, m metrics.StepMetrics) StepPlan {
	s.step++

	result := s.grads.Process(raw)
	state := s.rates.Update(m)

	plan := StepPlan{
		LR:        state.CurrentLR,
		BatchSize: s.batches.BatchSize(),
		Pending:   result.Pending,
		Clipped:   result.Clipped,
	}
	if !result.Pending {
		plan.Gradients = result.Output
	}

	if s.store != nil {
		rec := checkpoint.StepRecord{
			SessionID: s.id,
			Epoch:     m.Epoch,
			Step:      s.step,
			Loss:      m.Loss,
			ValLoss:   m.ValLoss,
			LR:        state.CurrentLR,
			BatchSize: plan.BatchSize,
		}
		if err := s.store.LogStep(rec); err != nil {
			log.Printf("session %s: log step %d: %v", s.id, s.step, err)
		}
	}
	return plan
}

// ObserveBatch feeds batch telemetry to the batch-size controller and
// returns the size to use for the next batch.
func (s *Session) ObserveBatch(bm batch.BatchMetrics) int {
	return s.batches.ObserveBatch(bm)
}

// #endregion step

// #region epoch

// EndEpoch feeds end-of-epoch metrics to the stopping monitor and persists a
// periodic snapshot when due. Returns true when training should stop.
func (s *Session) EndEpoch(m metrics.StepMetrics) bool {
	stopped := s.stopper.Update(m)

	if s.store != nil && s.config.SnapshotEveryEpochs > 0 {
		due := m.Epoch > 0 && m.Epoch%s.config.SnapshotEveryEpochs == 0
		if due || stopped {
			if err := s.Snapshot(); err != nil {
				log.Printf("session %s: snapshot at epoch %d: %v", s.id, m.Epoch, err)
			}
		}
	}
	return stopped
}

// #endregion epoch

// #region snapshots

// Snapshot persists all four controller snapshots under the current step.
func (s *Session) Snapshot() error {
	if s.store == nil {
		return fmt.Errorf("session %s: no store attached", s.id)
	}
	if _, err := s.store.SaveSnapshot(s.id, "gradient", s.step, s.grads.SaveState()); err != nil {
		return err
	}
	if _, err := s.store.SaveSnapshot(s.id, "lrate", s.step, s.rates.SaveState()); err != nil {
		return err
	}
	if _, err := s.store.SaveSnapshot(s.id, "batch", s.step, s.batches.SaveState()); err != nil {
		return err
	}
	if _, err := s.store.SaveSnapshot(s.id, "earlystop", s.step, s.stopper.SaveState()); err != nil {
		return err
	}
	return nil
}

// Restore reloads every controller from its latest stored snapshot for the
// given session ID and adopts that ID so the run continues under it.
func (s *Session) Restore(sessionID string) error {
	if s.store == nil {
		return fmt.Errorf("session %s: no store attached", s.id)
	}
	var gradSnap gradient.Snapshot
	if err := s.store.LatestSnapshot(sessionID, "gradient", &gradSnap); err != nil {
		return err
	}
	if err := s.grads.LoadState(gradSnap); err != nil {
		return err
	}
	var lrSnap lrate.Snapshot
	if err := s.store.LatestSnapshot(sessionID, "lrate", &lrSnap); err != nil {
		return err
	}
	if err := s.rates.LoadState(lrSnap); err != nil {
		return err
	}
	var batchSnap batch.Snapshot
	if err := s.store.LatestSnapshot(sessionID, "batch", &batchSnap); err != nil {
		return err
	}
	if err := s.batches.LoadState(batchSnap); err != nil {
		return err
	}
	var stopSnap earlystop.Snapshot
	if err := s.store.LatestSnapshot(sessionID, "earlystop", &stopSnap); err != nil {
		return err
	}
	if err := s.stopper.LoadState(stopSnap); err != nil {
		return err
	}
	s.id = sessionID
	s.step = s.rates.State().TotalSteps
	return nil
}

// #endregion snapshots
