package gradient

import "math"

// #region compute-metrics

// computeMetrics summarizes one gradient collection. An empty collection
// yields the degenerate sample: zero norm, full sparsity, vanishing score 1.
// NaN or Inf anywhere is folded into a maximal exploding score rather than
// reported as an error.
func computeMetrics(grads Buffers, step int) Metrics {
	total := 0
	for _, buf := range grads {
		total += len(buf.Data)
	}
	if total == 0 {
		return Metrics{Sparsity: 1, VanishingScore: 1, Step: step}
	}

	var (
		sumSq, sumAbs, sum float64
		maxAbs             float64
		minAbs             = math.Inf(1)
		nearZero           int
		vanishing          int
		exploding          int
		unstable           bool
	)

	for _, buf := range grads {
		for _, v := range buf.Data {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				unstable = true
				exploding++
				continue
			}
			abs := math.Abs(f)
			sumSq += f * f
			sumAbs += abs
			sum += f
			if abs > maxAbs {
				maxAbs = abs
			}
			if abs < minAbs {
				minAbs = abs
			}
			if abs < nearZeroThreshold {
				nearZero++
			}
			if abs < vanishingThreshold {
				vanishing++
			}
			if abs > explodingThreshold {
				exploding++
			}
		}
	}
	if math.IsInf(minAbs, 1) {
		minAbs = 0
	}

	n := float64(total)
	m := Metrics{
		GlobalNorm:     math.Sqrt(sumSq),
		AverageNorm:    sumAbs / n,
		MaxAbs:         maxAbs,
		MinAbs:         minAbs,
		Sparsity:       float64(nearZero) / n,
		VanishingScore: float64(vanishing) / n,
		ExplodingScore: float64(exploding) / n,
		Step:           step,
	}
	if unstable {
		m.ExplodingScore = 1
		m.FlowEfficiency = 0
		return m
	}
	m.FlowEfficiency = flowEfficiency(sum/n, sumSq/n)
	return m
}

// #endregion compute-metrics

// #region flow-efficiency

// Target standard deviation band for healthy gradient flow.
const (
	flowStdLow  = 1e-4
	flowStdHigh = 1.0
)

// flowEfficiency rewards a near-zero mean and a standard deviation inside
// the target band. Bounded to [0,1].
func flowEfficiency(mean, meanSq float64) float64 {
	variance := meanSq - mean*mean
	if variance < 0 {
		variance = 0
	}
	std := math.Sqrt(variance)

	meanScore := 1 / (1 + 100*math.Abs(mean))

	var stdScore float64
	switch {
	case std >= flowStdLow && std <= flowStdHigh:
		stdScore = 1
	case std < flowStdLow:
		stdScore = std / flowStdLow
	default:
		stdScore = flowStdHigh / std
	}

	score := 0.5*meanScore + 0.5*stdScore
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// #endregion flow-efficiency
