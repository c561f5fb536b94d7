package earlystop

import (
	"testing"

	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

func TestAnalyticsSavedEpochsAfterStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Monitor = metrics.MonitorLoss
	cfg.Patience = 2
	cfg.AssumedTotalEpochs = 100
	m := newTestMonitor(t, cfg)

	m.Update(metrics.StepMetrics{Loss: 1.0, Epoch: 1})
	for epoch := 2; epoch <= 5; epoch++ {
		if m.Update(metrics.StepMetrics{Loss: 1.0, Epoch: epoch}) {
			break
		}
	}
	if !m.State().Stopped {
		t.Fatal("monitor should have stopped on the stalled metric")
	}

	a := m.Analytics()
	if a.EstimatedSavedEpochs != cfg.AssumedTotalEpochs-m.State().TotalEpochs {
		t.Fatalf("expected %d saved epochs, got %d",
			cfg.AssumedTotalEpochs-m.State().TotalEpochs, a.EstimatedSavedEpochs)
	}
}

func TestAnalyticsResourceEfficiency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Monitor = metrics.MonitorLoss
	cfg.Patience = 50
	m := newTestMonitor(t, cfg)

	// Every second epoch improves: 5 improvements over 10 epochs.
	losses := []float64{1.0, 1.0, 0.8, 0.8, 0.6, 0.6, 0.4, 0.4, 0.2, 0.2}
	for i, loss := range losses {
		m.Update(metrics.StepMetrics{Loss: loss, Epoch: i + 1})
	}

	a := m.Analytics()
	if a.ResourceEfficiency != 0.5 {
		t.Fatalf("expected efficiency 0.5, got %f", a.ResourceEfficiency)
	}
}

func TestAnalyticsRecommendsOnVolatileMetric(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Monitor = metrics.MonitorLoss
	cfg.Patience = 100
	m := newTestMonitor(t, cfg)

	// Oscillating loss keeps the relative volatility well above the cutoff.
	for epoch := 1; epoch <= 12; epoch++ {
		loss := 1.0
		if epoch%2 == 0 {
			loss = 0.1
		}
		m.Update(metrics.StepMetrics{Loss: loss, Epoch: epoch})
	}

	a := m.Analytics()
	if len(a.Recommendations) == 0 {
		t.Fatal("a volatile run should produce recommendations")
	}
}
