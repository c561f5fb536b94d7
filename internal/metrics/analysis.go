package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// #region analyze

// analysisSpan is how many recent samples the estimator inspects.
const analysisSpan = 10

// Analyze computes trend, volatility, and a convergence score from a window
// of monitored values. lowerIsBetter selects the improvement direction
// (true for loss-like metrics). currentEpoch anchors the predicted
// convergence epoch extrapolation.
func Analyze(w *Window, lowerIsBetter bool, currentEpoch int) ConvergenceAnalysis {
	recent := w.Last(analysisSpan)
	if len(recent) < 2 {
		return ConvergenceAnalysis{Trend: TrendStagnating}
	}

	trend := classifyTrend(w, lowerIsBetter)
	volatility := relativeVolatility(recent)
	score := convergenceScore(recent, volatility, lowerIsBetter)

	analysis := ConvergenceAnalysis{
		Trend:      trend,
		Volatility: volatility,
		Score:      score,
	}
	if trend == TrendImproving {
		analysis.PredictedEpoch = predictConvergenceEpoch(recent, currentEpoch, lowerIsBetter)
	}
	return analysis
}

// #endregion analyze

// #region trend-classification

// classifyTrend compares the mean of the most recent 5 samples against the
// prior 5. Relative changes under 1% count as stagnation.
func classifyTrend(w *Window, lowerIsBetter bool) Trend {
	vals := w.Last(analysisSpan)
	if len(vals) < 4 {
		return TrendStagnating
	}
	half := len(vals) / 2
	prior := stat.Mean(vals[:half], nil)
	latest := stat.Mean(vals[half:], nil)

	denom := math.Abs(prior)
	if denom < 1e-12 {
		denom = 1e-12
	}
	change := (latest - prior) / denom
	if lowerIsBetter {
		change = -change
	}

	switch {
	case change > 0.01:
		return TrendImproving
	case change < -0.01:
		return TrendDegrading
	default:
		return TrendStagnating
	}
}

// #endregion trend-classification

// #region volatility

// relativeVolatility is std/|mean| of the samples (coefficient of variation).
func relativeVolatility(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := stat.Mean(vals, nil)
	std := stat.StdDev(vals, nil)
	denom := math.Abs(m)
	if denom < 1e-12 {
		return std
	}
	return std / denom
}

// #endregion volatility

// #region convergence-score

// convergenceScore blends stability (inverse volatility) with the fraction
// of improving steps among the recent samples. Bounded to [0,1].
func convergenceScore(vals []float64, volatility float64, lowerIsBetter bool) float64 {
	stability := 1.0 - volatility
	if stability < 0 {
		stability = 0
	}

	var improving int
	for i := 1; i < len(vals); i++ {
		if lowerIsBetter && vals[i] < vals[i-1] {
			improving++
		}
		if !lowerIsBetter && vals[i] > vals[i-1] {
			improving++
		}
	}
	improvingFrac := float64(improving) / float64(len(vals)-1)

	score := 0.6*stability + 0.4*improvingFrac
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// #endregion convergence-score

// #region prediction

// predictConvergenceEpoch extrapolates from the per-step improvement rate
// how many more epochs until the metric reaches its recent best. Returns 0
// when the rate is too small to extrapolate.
func predictConvergenceEpoch(vals []float64, currentEpoch int, lowerIsBetter bool) int {
	first, last := vals[0], vals[len(vals)-1]
	rate := (first - last) / float64(len(vals)-1)
	if !lowerIsBetter {
		rate = -rate
	}
	if rate <= 1e-12 {
		return 0
	}

	best := vals[0]
	for _, v := range vals {
		if lowerIsBetter && v < best {
			best = v
		}
		if !lowerIsBetter && v > best {
			best = v
		}
	}
	gap := math.Abs(last - best)
	remaining := int(math.Ceil(gap / rate))
	return currentEpoch + remaining
}

// #endregion prediction
