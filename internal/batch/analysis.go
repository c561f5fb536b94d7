package batch

// #region memory-band

// Target memory utilization band; efficiency is penalized on both sides.
const (
	memBandLow  = 0.6
	memBandHigh = 0.8
)

// #endregion memory-band

// #region analysis

// GetPerformanceAnalysis identifies the best-performing batch size from
// history and scores overall efficiency, memory fit, throughput gain, and
// stability.
func (c *Controller) GetPerformanceAnalysis() PerformanceAnalysis {
	a := PerformanceAnalysis{
		OptimalBatchSize: c.state.CurrentBatchSize,
		Stability:        c.state.StabilityIndex,
	}
	if len(c.history) == 0 {
		return a
	}

	// Optimal size: the batch size with the best observed throughput per MB.
	bestRatio := -1.0
	var peakThroughput float64
	for _, m := range c.history {
		if m.Throughput > peakThroughput {
			peakThroughput = m.Throughput
		}
		mem := m.MemoryUsageMB
		if mem <= 0 {
			mem = 1
		}
		if ratio := m.Throughput / mem; ratio > bestRatio {
			bestRatio = ratio
			a.OptimalBatchSize = m.BatchSize
		}
	}

	if peakThroughput > 0 {
		a.Efficiency = c.state.AvgThroughput / peakThroughput
	}

	a.MemoryEfficiency = c.memoryEfficiency()
	a.ThroughputGain = c.throughputGain()
	a.Recommendations = c.recommendations(a)
	return a
}

// memoryEfficiency scores the recent utilization against the target band:
// 1 inside the band, decaying towards 0 on both sides.
func (c *Controller) memoryEfficiency() float64 {
	var sum float64
	for _, m := range c.history {
		sum += m.MemoryUsageMB
	}
	util := sum / float64(len(c.history)) / c.config.MemoryThresholdMB

	switch {
	case util >= memBandLow && util <= memBandHigh:
		return 1
	case util < memBandLow:
		return util / memBandLow
	case util >= 1:
		return 0
	default:
		return (1 - util) / (1 - memBandHigh)
	}
}

// throughputGain compares the mean throughput of the most recent quarter of
// history against the earliest quarter.
func (c *Controller) throughputGain() float64 {
	span := len(c.history) / 4
	if span < 1 {
		return 0
	}
	var early, recent float64
	for _, m := range c.history[:span] {
		early += m.Throughput
	}
	for _, m := range c.history[len(c.history)-span:] {
		recent += m.Throughput
	}
	if early <= 0 {
		return 0
	}
	return recent/early - 1
}

func (c *Controller) recommendations(a PerformanceAnalysis) []string {
	var recs []string
	if a.MemoryEfficiency < 0.5 {
		recs = append(recs, "memory utilization is far from the 60-80% target band: revisit batch bounds or memory budget")
	}
	if a.Stability < 0.5 {
		recs = append(recs, "throughput is unstable: consider a longer warmup or the fixed policy")
	}
	if a.Efficiency < 0.5 && c.state.TotalBatches > c.config.WarmupBatches {
		recs = append(recs, "average throughput is well below the observed ceiling: try the optimal batch size from this analysis")
	}
	if a.OptimalBatchSize != c.state.CurrentBatchSize && len(c.history) >= 20 {
		recs = append(recs, "a different batch size has shown better throughput per MB")
	}
	return recs
}

// #endregion analysis
