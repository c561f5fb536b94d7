package batch

import "math"

// #region thresholds

const (
	adaptiveGrowScore     = 0.8
	adaptiveGrowMemCap    = 0.7
	adaptiveShrinkScore   = 0.5
	adaptiveShrinkMemCap  = 0.9
	emergencyMemUtil      = 0.95
	highMemUtil           = 0.8
	lowMemUtil            = 0.5
	perfWindow            = 5
	perfGainThreshold     = 1.05
	perfLossThreshold     = 0.95
	scheduledFirstBoundary  = 100
	scheduledSecondBoundary = 300
)

// #endregion thresholds

// #region decide

// decide evaluates the configured sizing policy against the recorded history
// and returns the proposed next batch size with the triggering reason. Pure:
// the caller owns clamping and state mutation.
func decide(cfg Config, state OptimizationState, history []BatchMetrics, bestThroughput float64) (int, string) {
	if len(history) == 0 {
		return state.CurrentBatchSize, ""
	}
	last := history[len(history)-1]
	util := last.MemoryUsageMB / cfg.MemoryThresholdMB

	switch cfg.Policy {
	case PolicyAdaptive:
		score := performanceScore(cfg, last, bestThroughput)
		if score > adaptiveGrowScore && util < adaptiveGrowMemCap {
			return scaleSize(state.CurrentBatchSize, cfg.AdjustmentFactor), "high performance, memory headroom available"
		}
		if score < adaptiveShrinkScore || util > adaptiveShrinkMemCap {
			return scaleSize(state.CurrentBatchSize, 1/cfg.AdjustmentFactor), "low performance or memory pressure"
		}
	case PolicyMemoryAware:
		switch {
		case util > emergencyMemUtil:
			return state.CurrentBatchSize / 2, "memory budget exceeded, emergency reduction"
		case util > highMemUtil:
			return scaleSize(state.CurrentBatchSize, 0.8), "high memory utilization"
		case util < lowMemUtil:
			return scaleSize(state.CurrentBatchSize, 1.2), "low memory utilization"
		}
	case PolicyPerformanceBased:
		if len(history) < perfWindow || state.AvgThroughput <= 0 {
			return state.CurrentBatchSize, ""
		}
		var recent float64
		for _, m := range history[len(history)-perfWindow:] {
			recent += m.Throughput
		}
		recent /= perfWindow
		ratio := recent / state.AvgThroughput
		if ratio > perfGainThreshold {
			return scaleSize(state.CurrentBatchSize, 1.1), "recent throughput above average"
		}
		if ratio < perfLossThreshold {
			return scaleSize(state.CurrentBatchSize, 0.9), "recent throughput below average"
		}
	case PolicyScheduled:
		switch {
		case state.TotalBatches < scheduledFirstBoundary:
			return cfg.InitialBatchSize, "schedule stage 1"
		case state.TotalBatches < scheduledSecondBoundary:
			return 2 * cfg.InitialBatchSize, "schedule stage 2"
		default:
			return 4 * cfg.InitialBatchSize, "schedule stage 3"
		}
	case PolicyFixed:
	}
	return state.CurrentBatchSize, ""
}

// scaleSize multiplies and rounds, moving at least one sample so small sizes
// still adjust.
func scaleSize(size int, factor float64) int {
	next := int(math.Round(float64(size) * factor))
	if next == size {
		if factor > 1 {
			next = size + 1
		} else if factor < 1 {
			next = size - 1
		}
	}
	return next
}

// #endregion decide

// #region scoring

// performanceScore blends normalized throughput against the best observed
// with memory headroom. Bounded to [0,1].
func performanceScore(cfg Config, m BatchMetrics, bestThroughput float64) float64 {
	var tput float64
	if bestThroughput > 0 {
		tput = m.Throughput / bestThroughput
	}
	headroom := 1 - m.MemoryUsageMB/cfg.MemoryThresholdMB
	if headroom < 0 {
		headroom = 0
	}
	score := 0.6*tput + 0.4*headroom
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// throughputStability is the inverse coefficient of variation of recorded
// throughput, bounded to [0,1].
func throughputStability(history []BatchMetrics) float64 {
	if len(history) < 2 {
		return 1
	}
	var sum float64
	for _, m := range history {
		sum += m.Throughput
	}
	mean := sum / float64(len(history))
	if mean <= 0 {
		return 0
	}
	var sumSq float64
	for _, m := range history {
		d := m.Throughput - mean
		sumSq += d * d
	}
	cv := math.Sqrt(sumSq/float64(len(history)-1)) / mean
	return 1 / (1 + cv)
}

// #endregion scoring
