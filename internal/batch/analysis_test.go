package batch

import "testing"

func TestAnalysisEmptyHistory(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	a := c.GetPerformanceAnalysis()
	if a.OptimalBatchSize != c.Config().InitialBatchSize {
		t.Fatalf("empty history should report the current size, got %d", a.OptimalBatchSize)
	}
	if a.Efficiency != 0 || a.ThroughputGain != 0 {
		t.Fatalf("empty history should score zero, got eff=%f gain=%f", a.Efficiency, a.ThroughputGain)
	}
}

func TestAnalysisPicksBestThroughputPerMB(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyFixed
	c := newTestController(t, cfg)

	mid := 0.7 * cfg.MemoryThresholdMB
	// Batch size 64 has the best throughput per MB observed.
	c.ObserveBatch(BatchMetrics{BatchSize: 32, MemoryUsageMB: mid, Throughput: 100})
	c.ObserveBatch(BatchMetrics{BatchSize: 64, MemoryUsageMB: mid, Throughput: 300})
	c.ObserveBatch(BatchMetrics{BatchSize: 128, MemoryUsageMB: 2 * mid, Throughput: 400})

	a := c.GetPerformanceAnalysis()
	if a.OptimalBatchSize != 64 {
		t.Fatalf("expected optimal size 64, got %d", a.OptimalBatchSize)
	}
	if a.Efficiency <= 0 || a.Efficiency > 1 {
		t.Fatalf("efficiency must be in (0, 1], got %f", a.Efficiency)
	}
}

func TestAnalysisMemoryEfficiencyInsideBand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyFixed
	c := newTestController(t, cfg)

	for i := 0; i < 4; i++ {
		c.ObserveBatch(BatchMetrics{BatchSize: 32, MemoryUsageMB: 0.7 * cfg.MemoryThresholdMB, Throughput: 100})
	}
	if a := c.GetPerformanceAnalysis(); a.MemoryEfficiency != 1 {
		t.Fatalf("utilization inside the target band should score 1, got %f", a.MemoryEfficiency)
	}
}

func TestAnalysisThroughputGain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyFixed
	c := newTestController(t, cfg)

	mid := 0.7 * cfg.MemoryThresholdMB
	for i := 0; i < 4; i++ {
		c.ObserveBatch(BatchMetrics{BatchSize: 32, MemoryUsageMB: mid, Throughput: 100})
	}
	for i := 0; i < 4; i++ {
		c.ObserveBatch(BatchMetrics{BatchSize: 32, MemoryUsageMB: mid, Throughput: 200})
	}

	// Recent quarter averages 200 against an early quarter of 100.
	if a := c.GetPerformanceAnalysis(); a.ThroughputGain < 0.9 {
		t.Fatalf("expected roughly doubled throughput, got gain %f", a.ThroughputGain)
	}
}
