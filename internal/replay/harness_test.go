package replay

import (
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/adaptive-training/internal/earlystop"
	"github.com/danielpatrickdp/adaptive-training/internal/lrate"
	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

func lossEpoch(epoch int, loss float64) FixtureEpoch {
	v := loss
	return FixtureEpoch{Metrics: metrics.StepMetrics{Loss: loss, ValLoss: &v, Epoch: epoch}}
}

func plateauFixture() *Fixture {
	lrCfg := lrate.DefaultConfig()
	lrCfg.Policy = lrate.PolicyPlateau
	lrCfg.Patience = 2

	stopCfg := earlystop.DefaultConfig()
	stopCfg.Patience = 3

	f := &Fixture{
		Description: "plateau schedule over a stalling loss curve",
		LRConfig:    &lrCfg,
		StopConfig:  &stopCfg,
	}
	losses := []float64{1.0, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9}
	for i, l := range losses {
		f.Epochs = append(f.Epochs, lossEpoch(i, l))
	}
	return f
}

func TestReplayPlateauTrace(t *testing.T) {
	f := plateauFixture()

	results, summary, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	// Two bad epochs after the epoch-1 improvement trigger the reduction at
	// epoch 3.
	if results[3].LR != f.LRConfig.InitialLR*f.LRConfig.Factor {
		t.Fatalf("expected reduction at epoch 3, got %g", results[3].LR)
	}

	// Stop patience 3: best at epoch 1, stops on the 4th bad epoch (epoch 5).
	if summary.StoppedAtEpoch != 5 {
		t.Fatalf("expected stop at epoch 5, got %d", summary.StoppedAtEpoch)
	}
	if summary.BestEpoch != 1 {
		t.Fatalf("expected best epoch 1, got %d", summary.BestEpoch)
	}
	// The trace ends at the stop even though more epochs were recorded.
	if summary.TotalEpochs != 6 {
		t.Fatalf("expected 6 replayed epochs, got %d", summary.TotalEpochs)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	f := plateauFixture()

	first, _, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	second, _, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d != %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("replay diverged at epoch %d: %+v != %+v", i, first[i], second[i])
		}
	}
}

func TestVerifyReportsMismatches(t *testing.T) {
	f := plateauFixture()
	wrong := 123.0
	stopped := false
	f.ExpectedResults = []ExpectedResult{
		{Epoch: 0, LR: &f.LRConfig.InitialLR},
		{Epoch: 3, LR: &wrong},
		{Epoch: 5, Stopped: &stopped},
		{Epoch: 99},
	}

	results, _, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	mismatches := Verify(f, results)
	if len(mismatches) != 3 {
		t.Fatalf("expected 3 mismatches, got %d: %v", len(mismatches), mismatches)
	}
}

func TestVerifyPassesOnMatchingExpectations(t *testing.T) {
	f := plateauFixture()
	reduced := f.LRConfig.InitialLR * f.LRConfig.Factor
	stopped := true
	f.ExpectedResults = []ExpectedResult{
		{Epoch: 0, LR: &f.LRConfig.InitialLR},
		{Epoch: 3, LR: &reduced},
		{Epoch: 5, Stopped: &stopped},
	}

	results, _, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if mismatches := Verify(f, results); len(mismatches) != 0 {
		t.Fatalf("unexpected mismatches: %v", mismatches)
	}
}

func TestFixtureFileRoundTrip(t *testing.T) {
	f := plateauFixture()
	path := filepath.Join(t.TempDir(), "fixture.json")

	if err := SaveFixture(path, f); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}
	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if loaded.Description != f.Description {
		t.Fatalf("description lost: %q", loaded.Description)
	}
	if len(loaded.Epochs) != len(f.Epochs) {
		t.Fatalf("epochs lost: %d != %d", len(loaded.Epochs), len(f.Epochs))
	}
	if loaded.LRConfig == nil || loaded.LRConfig.Patience != 2 {
		t.Fatalf("lr config lost: %+v", loaded.LRConfig)
	}

	// A loaded fixture replays identically to the in-memory one.
	a, _, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	b, _, err := Replay(loaded)
	if err != nil {
		t.Fatalf("Replay loaded: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("loaded fixture diverged at epoch %d", i)
		}
	}
}

func TestInvalidConfigSurfacesError(t *testing.T) {
	bad := lrate.DefaultConfig()
	bad.MinLR = -1
	f := &Fixture{LRConfig: &bad, Epochs: []FixtureEpoch{lossEpoch(0, 1.0)}}
	if _, _, err := Replay(f); err == nil {
		t.Fatal("expected config validation error")
	}
}
