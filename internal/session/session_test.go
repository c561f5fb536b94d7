package session

import (
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/adaptive-training/internal/batch"
	"github.com/danielpatrickdp/adaptive-training/internal/checkpoint"
	"github.com/danielpatrickdp/adaptive-training/internal/events"
	"github.com/danielpatrickdp/adaptive-training/internal/gradient"
	"github.com/danielpatrickdp/adaptive-training/internal/lrate"
	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Stop.Patience = 2
	cfg.SnapshotEveryEpochs = 2
	return cfg
}

func grads() gradient.Buffers {
	return gradient.Buffers{"w": {Data: []float32{0.1, 0.2}, Rank: 2}}
}

func TestSessionStepProducesPlan(t *testing.T) {
	sess, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plan := sess.Step(grads(), metrics.StepMetrics{Loss: 1.0, Epoch: 0})
	if plan.Pending {
		t.Fatal("no accumulation configured; plan should not be pending")
	}
	if plan.Gradients == nil {
		t.Fatal("expected processed gradients")
	}
	if plan.LR <= 0 {
		t.Fatalf("expected positive learning rate, got %g", plan.LR)
	}
	if plan.BatchSize != sess.Batches().BatchSize() {
		t.Fatalf("plan batch size diverged: %d", plan.BatchSize)
	}
}

func TestSessionStopsViaMonitor(t *testing.T) {
	sess, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	v := 1.0
	stoppedAt := -1
	for epoch := 0; epoch < 10; epoch++ {
		if sess.EndEpoch(metrics.StepMetrics{Loss: v, ValLoss: &v, Epoch: epoch}) {
			stoppedAt = epoch
			break
		}
	}
	// Patience 2: best at epoch 0, stops on the 3rd consecutive bad epoch.
	if stoppedAt != 3 {
		t.Fatalf("expected stop at epoch 3, got %d", stoppedAt)
	}
	if !sess.Stopped() {
		t.Fatal("session should report stopped")
	}
}

func TestSessionPersistsStepsAndSnapshots(t *testing.T) {
	store, err := checkpoint.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	sess, err := New(testConfig(), WithStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	v := 1.0
	for epoch := 0; epoch < 3; epoch++ {
		for step := 0; step < 2; step++ {
			sess.Step(grads(), metrics.StepMetrics{Loss: 1.0, Epoch: epoch})
		}
		sess.EndEpoch(metrics.StepMetrics{Loss: 1.0, ValLoss: &v, Epoch: epoch})
	}

	steps, err := store.ListSteps(sess.ID())
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 6 {
		t.Fatalf("expected 6 logged steps, got %d", len(steps))
	}

	// Epoch 2 hit the snapshot interval.
	infos, err := store.ListSnapshots(sess.ID(), 20)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(infos) == 0 {
		t.Fatal("expected periodic snapshots")
	}
}

func TestSessionRestoreContinuesRun(t *testing.T) {
	store, err := checkpoint.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	cfg := testConfig()
	first, err := New(cfg, WithStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for step := 0; step < 5; step++ {
		first.Step(grads(), metrics.StepMetrics{Loss: 1.0, Epoch: 0})
	}
	if err := first.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	second, err := New(cfg, WithStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := second.Restore(first.ID()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if second.ID() != first.ID() {
		t.Fatalf("restored session should adopt the stored ID, got %s", second.ID())
	}
	if second.Rates().State() != first.Rates().State() {
		t.Fatalf("rate state mismatch: %+v != %+v",
			second.Rates().State(), first.Rates().State())
	}
}

func TestSessionListenerSeesAllControllers(t *testing.T) {
	cfg := testConfig()
	cfg.LR.Policy = "plateau"
	cfg.LR.Patience = 1
	rec := &events.Recorder{}

	sess, err := New(cfg, WithListener(rec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Flat loss: a plateau reduction and per-step gradient notifications.
	for step := 0; step < 3; step++ {
		sess.Step(grads(), metrics.StepMetrics{Loss: 1.0, Epoch: 0})
	}
	if len(rec.Gradients) != 3 {
		t.Fatalf("expected 3 gradient events, got %d", len(rec.Gradients))
	}
	if len(rec.Rates) == 0 {
		t.Fatal("expected a rate-change event from the plateau reduction")
	}

	cold := batch.BatchMetrics{BatchSize: 32, MemoryUsageMB: 100, Throughput: 50}
	warm := sess.Batches().Config().WarmupBatches
	for i := 0; i <= warm+5; i++ {
		sess.ObserveBatch(cold)
	}
	if len(rec.Resizes) == 0 {
		t.Fatal("expected a batch resize event")
	}
}

func TestConfigValidationPropagates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LR.MinLR = -1
	if _, err := New(cfg); err == nil {
		t.Fatal("expected invalid sub-config to fail session construction")
	}
}

func TestSnapshotSucceedsWithDefaultConfig(t *testing.T) {
	// The default LR policy is cosine and the stop monitor has seen no
	// improvement, so both carry infinite best-metric sentinels; snapshotting
	// must still persist every controller.
	store, err := checkpoint.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	sess, err := New(DefaultConfig(), WithStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess.Step(grads(), metrics.StepMetrics{Loss: 1.0, Epoch: 0})

	if err := sess.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	for _, controller := range []string{"gradient", "lrate", "batch", "earlystop"} {
		var raw map[string]any
		if err := store.LatestSnapshot(sess.ID(), controller, &raw); err != nil {
			t.Fatalf("LatestSnapshot(%s): %v", controller, err)
		}
	}

	var snap lrate.Snapshot
	if err := store.LatestSnapshot(sess.ID(), "lrate", &snap); err != nil {
		t.Fatalf("LatestSnapshot(lrate): %v", err)
	}
	if snap.BestMetric != nil {
		t.Fatalf("cosine policy should persist no best metric, got %v", *snap.BestMetric)
	}
	if snap.State.TotalSteps != 1 {
		t.Fatalf("expected 1 recorded step, got %d", snap.State.TotalSteps)
	}
}
