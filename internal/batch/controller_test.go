package batch

import (
	"testing"

	"github.com/danielpatrickdp/adaptive-training/internal/events"
	"github.com/danielpatrickdp/adaptive-training/internal/gradient"
)

func newTestController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := NewController(cfg)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

// feedWarmup pushes enough neutral batches to exit the warmup phase.
func feedWarmup(c *Controller, m BatchMetrics) {
	for c.State().TotalBatches <= c.Config().WarmupBatches {
		c.ObserveBatch(m)
	}
}

func TestWarmupSuppressesAdjustments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyMemoryAware
	cfg.WarmupBatches = 5
	c := newTestController(t, cfg)

	// Severe memory pressure during warmup must not resize.
	hot := BatchMetrics{BatchSize: 32, MemoryUsageMB: 0.99 * cfg.MemoryThresholdMB, Throughput: 100}
	for i := 0; i < 5; i++ {
		if got := c.ObserveBatch(hot); got != cfg.InitialBatchSize {
			t.Fatalf("warmup batch %d resized to %d", i, got)
		}
	}
	if c.State().Adjustments != 0 {
		t.Fatalf("expected no adjustments during warmup, got %d", c.State().Adjustments)
	}
}

func TestMemoryAwareEmergencyHalving(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyMemoryAware
	cfg.WarmupBatches = 0
	cfg.InitialBatchSize = 64
	c := newTestController(t, cfg)

	// Anything above 95% of the budget halves the batch size.
	hot := BatchMetrics{BatchSize: 64, MemoryUsageMB: 0.96 * cfg.MemoryThresholdMB, Throughput: 100}
	if got := c.ObserveBatch(hot); got != 32 {
		t.Fatalf("expected emergency halving to 32, got %d", got)
	}
}

func TestMemoryAwareGrowsUnderLowUtilization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyMemoryAware
	cfg.WarmupBatches = 0
	c := newTestController(t, cfg)

	cold := BatchMetrics{BatchSize: 32, MemoryUsageMB: 0.3 * cfg.MemoryThresholdMB, Throughput: 100}
	c.ObserveBatch(cold)
	got := c.ObserveBatch(cold)
	if got <= cfg.InitialBatchSize {
		t.Fatalf("expected growth under low utilization, got %d", got)
	}
}

func TestSizeNeverEscapesBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyMemoryAware
	cfg.WarmupBatches = 0
	cfg.MinBatchSize = 8
	cfg.MaxBatchSize = 64
	c := newTestController(t, cfg)

	hot := BatchMetrics{BatchSize: 32, MemoryUsageMB: 0.99 * cfg.MemoryThresholdMB, Throughput: 10}
	for i := 0; i < 20; i++ {
		if got := c.ObserveBatch(hot); got < 8 || got > 64 {
			t.Fatalf("size %d escaped [8, 64]", got)
		}
	}
	cold := BatchMetrics{BatchSize: 32, MemoryUsageMB: 0.1 * cfg.MemoryThresholdMB, Throughput: 10}
	for i := 0; i < 40; i++ {
		if got := c.ObserveBatch(cold); got < 8 || got > 64 {
			t.Fatalf("size %d escaped [8, 64]", got)
		}
	}
}

func TestScheduledStages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyScheduled
	cfg.WarmupBatches = 0
	cfg.InitialBatchSize = 16
	cfg.MaxBatchSize = 128
	c := newTestController(t, cfg)

	m := BatchMetrics{BatchSize: 16, MemoryUsageMB: 100, Throughput: 100}
	for i := 0; i < 99; i++ {
		c.ObserveBatch(m)
	}
	if got := c.BatchSize(); got != 16 {
		t.Fatalf("stage 1 should keep initial size, got %d", got)
	}
	for i := 0; i < 200; i++ {
		c.ObserveBatch(m)
	}
	if got := c.BatchSize(); got != 32 {
		t.Fatalf("stage 2 should double, got %d", got)
	}
	for i := 0; i < 200; i++ {
		c.ObserveBatch(m)
	}
	if got := c.BatchSize(); got != 64 {
		t.Fatalf("stage 3 should quadruple, got %d", got)
	}
}

func TestFixedPolicyNeverResizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyFixed
	cfg.WarmupBatches = 0
	c := newTestController(t, cfg)

	hot := BatchMetrics{BatchSize: 32, MemoryUsageMB: 0.99 * cfg.MemoryThresholdMB, Throughput: 1}
	for i := 0; i < 20; i++ {
		c.ObserveBatch(hot)
	}
	if c.BatchSize() != cfg.InitialBatchSize || c.State().Adjustments != 0 {
		t.Fatalf("fixed policy resized: size=%d adjustments=%d", c.BatchSize(), c.State().Adjustments)
	}
}

func TestResizeNotification(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyMemoryAware
	cfg.WarmupBatches = 0
	cfg.InitialBatchSize = 64
	c := newTestController(t, cfg)
	rec := &events.Recorder{}
	c.AddListener(rec)

	hot := BatchMetrics{BatchSize: 64, MemoryUsageMB: 0.96 * cfg.MemoryThresholdMB, Throughput: 100}
	c.ObserveBatch(hot)
	c.ObserveBatch(hot)

	if len(rec.Resizes) == 0 {
		t.Fatal("expected a resize notification")
	}
	e := rec.Resizes[0]
	if e.Old != 64 || e.New != 32 {
		t.Fatalf("unexpected transition %d -> %d", e.Old, e.New)
	}
	if e.Reason == "" {
		t.Fatal("resize event should carry a reason")
	}
}

func TestProcessBatchAccumulatesGradients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyFixed
	cfg.InitialBatchSize = 8
	cfg.MinBatchSize = 1
	cfg.AccumulationSteps = 4
	c := newTestController(t, cfg)

	model := &stubModel{}
	opt := &stubOptimizer{}

	inputs := make([][]float32, 8)
	targets := make([][]float32, 8)
	for i := range inputs {
		inputs[i] = []float32{1}
		targets[i] = []float32{0}
	}

	result, err := c.ProcessBatch(inputs, targets, model, opt)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if model.calls != 4 {
		t.Fatalf("expected 4 micro-batches, got %d", model.calls)
	}
	if opt.calls != 1 {
		t.Fatalf("expected exactly one optimizer step, got %d", opt.calls)
	}
	// Each micro-step returns gradient 1.0; the average is 1.0.
	if g := opt.last["w"].Data[0]; g != 1.0 {
		t.Fatalf("expected averaged gradient 1.0, got %f", g)
	}
	if len(result.Predictions) != 8 {
		t.Fatalf("expected 8 predictions, got %d", len(result.Predictions))
	}
}

func TestProcessBatchInputMismatch(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	_, err := c.ProcessBatch(make([][]float32, 3), make([][]float32, 2), &stubModel{}, &stubOptimizer{})
	if err == nil {
		t.Fatal("expected error for mismatched inputs/targets")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyMemoryAware
	cfg.WarmupBatches = 0
	c := newTestController(t, cfg)

	cold := BatchMetrics{BatchSize: 32, MemoryUsageMB: 100, Throughput: 50}
	for i := 0; i < 5; i++ {
		c.ObserveBatch(cold)
	}
	snap := c.SaveState()

	fresh := newTestController(t, DefaultConfig())
	if err := fresh.LoadState(snap); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if fresh.State() != c.State() {
		t.Fatalf("state mismatch: %+v != %+v", fresh.State(), c.State())
	}
	if fresh.BatchSize() != c.BatchSize() {
		t.Fatalf("size mismatch: %d != %d", fresh.BatchSize(), c.BatchSize())
	}
}

// #region stubs

type stubModel struct {
	calls int
}

func (m *stubModel) TrainStep(inputs, targets [][]float32) (StepOutput, error) {
	m.calls++
	preds := make([][]float32, len(inputs))
	for i := range preds {
		preds[i] = []float32{0.5}
	}
	return StepOutput{
		Loss:        0.1,
		Predictions: preds,
		Gradients:   gradient.Buffers{"w": {Data: []float32{1}, Rank: 1}},
	}, nil
}

type stubOptimizer struct {
	calls int
	last  gradient.Buffers
}

func (o *stubOptimizer) Step(grads gradient.Buffers) error {
	o.calls++
	o.last = grads
	return nil
}

// #endregion stubs

func TestAdaptiveGrowsOnHighScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyAdaptive
	cfg.WarmupBatches = 0
	c := newTestController(t, cfg)

	// Best-so-far throughput with plenty of memory headroom clears the grow
	// cutoff: 0.6*1.0 + 0.4*0.8 = 0.92.
	m := BatchMetrics{BatchSize: 32, MemoryUsageMB: 0.2 * cfg.MemoryThresholdMB, Throughput: 500}
	if got := c.ObserveBatch(m); got != 40 {
		t.Fatalf("expected growth to 40 (32 * 1.25), got %d", got)
	}
}

func TestAdaptiveShrinksOnMemoryPressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyAdaptive
	cfg.WarmupBatches = 0
	c := newTestController(t, cfg)

	// Utilization above 90% shrinks even at peak throughput.
	m := BatchMetrics{BatchSize: 32, MemoryUsageMB: 0.92 * cfg.MemoryThresholdMB, Throughput: 500}
	if got := c.ObserveBatch(m); got != 26 {
		t.Fatalf("expected shrink to 26 (32 / 1.25), got %d", got)
	}
}

func TestAdaptiveShrinksOnLowScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyAdaptive
	cfg.WarmupBatches = 0
	c := newTestController(t, cfg)

	// Mid utilization with best-so-far throughput scores 0.7: no change.
	mid := 0.75 * cfg.MemoryThresholdMB
	if got := c.ObserveBatch(BatchMetrics{BatchSize: 32, MemoryUsageMB: mid, Throughput: 1000}); got != 32 {
		t.Fatalf("mid score should not resize, got %d", got)
	}
	// Throughput collapsing to a fifth of the best scores 0.22: shrink.
	if got := c.ObserveBatch(BatchMetrics{BatchSize: 32, MemoryUsageMB: mid, Throughput: 200}); got != 26 {
		t.Fatalf("expected shrink to 26 on low score, got %d", got)
	}
}

func TestPerformanceBasedGrowsOnThroughputGain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyPerformanceBased
	cfg.WarmupBatches = 0
	c := newTestController(t, cfg)

	mid := 0.5 * cfg.MemoryThresholdMB
	for i := 0; i < 5; i++ {
		if got := c.ObserveBatch(BatchMetrics{BatchSize: 32, MemoryUsageMB: mid, Throughput: 100}); got != 32 {
			t.Fatalf("steady throughput should not resize, got %d", got)
		}
	}
	// Recent window mean 200 against running average 183: ratio 1.09 > 1.05.
	if got := c.ObserveBatch(BatchMetrics{BatchSize: 32, MemoryUsageMB: mid, Throughput: 600}); got != 35 {
		t.Fatalf("expected growth to 35 (32 * 1.1), got %d", got)
	}
}

func TestPerformanceBasedShrinksOnThroughputLoss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyPerformanceBased
	cfg.WarmupBatches = 0
	c := newTestController(t, cfg)

	mid := 0.5 * cfg.MemoryThresholdMB
	for i := 0; i < 5; i++ {
		c.ObserveBatch(BatchMetrics{BatchSize: 32, MemoryUsageMB: mid, Throughput: 1000})
	}
	// One collapsed batch leaves the recent/average ratio at 0.96: no change.
	if got := c.ObserveBatch(BatchMetrics{BatchSize: 32, MemoryUsageMB: mid, Throughput: 10}); got != 32 {
		t.Fatalf("single slow batch should not resize yet, got %d", got)
	}
	// A second one drags the ratio to 0.84 < 0.95: shrink.
	if got := c.ObserveBatch(BatchMetrics{BatchSize: 32, MemoryUsageMB: mid, Throughput: 10}); got != 29 {
		t.Fatalf("expected shrink to 29 (32 * 0.9), got %d", got)
	}
}
