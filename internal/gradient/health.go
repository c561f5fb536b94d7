package gradient

import "math"

// #region thresholds

const (
	healthSpan              = 20
	vanishingPatternCutoff  = 0.5
	explodingPatternCutoff  = 0.1
	oscillationScoreCutoff  = 0.7
	lowFlowEfficiencyCutoff = 0.3
)

// #endregion thresholds

// #region analyze

// Analyze inspects the recent metric samples and classifies the gradient
// flow regime. Recommendations are derived deterministically from which
// thresholds triggered.
func (p *Processor) Analyze() HealthReport {
	if len(p.history) == 0 {
		return HealthReport{
			FlowPattern:     FlowHealthy,
			HealthScore:     1,
			Stability:       1,
			Recommendations: nil,
		}
	}

	recent := p.history
	if len(recent) > healthSpan {
		recent = recent[len(recent)-healthSpan:]
	}

	var vanishSum, explodeSum, effSum float64
	norms := make([]float64, 0, len(recent))
	for _, m := range recent {
		vanishSum += m.VanishingScore
		explodeSum += m.ExplodingScore
		effSum += m.FlowEfficiency
		if !math.IsNaN(m.GlobalNorm) && !math.IsInf(m.GlobalNorm, 0) {
			norms = append(norms, m.GlobalNorm)
		}
	}
	n := float64(len(recent))
	avgVanish := vanishSum / n
	avgExplode := explodeSum / n
	avgEff := effSum / n

	oscillation := oscillationScore(norms)
	stability := 1 - oscillation

	pattern := FlowHealthy
	switch {
	case avgExplode > explodingPatternCutoff:
		pattern = FlowExploding
	case avgVanish > vanishingPatternCutoff:
		pattern = FlowVanishing
	case oscillation > oscillationScoreCutoff:
		pattern = FlowOscillating
	}

	health := 0.4*avgEff + 0.3*(1-avgVanish) + 0.2*(1-avgExplode) + 0.1*stability
	if health < 0 {
		health = 0
	}
	if health > 1 {
		health = 1
	}

	return HealthReport{
		HealthScore:          health,
		FlowPattern:          pattern,
		Stability:            stability,
		ConvergenceIndicator: convergenceIndicator(norms),
		Recommendations:      recommendations(pattern, avgVanish, avgExplode, avgEff, oscillation),
	}
}

// #endregion analyze

// #region oscillation

// oscillationScore counts direction changes in the norm sequence, normalized
// to the number of opportunities.
func oscillationScore(norms []float64) float64 {
	if len(norms) < 3 {
		return 0
	}
	changes := 0
	for i := 2; i < len(norms); i++ {
		prev := norms[i-1] - norms[i-2]
		curr := norms[i] - norms[i-1]
		if prev*curr < 0 {
			changes++
		}
	}
	return float64(changes) / float64(len(norms)-2)
}

// convergenceIndicator maps a shrinking norm trend to (0.5, 1] and a growing
// one to [0, 0.5).
func convergenceIndicator(norms []float64) float64 {
	if len(norms) < 2 {
		return 0.5
	}
	first := norms[0]
	last := norms[len(norms)-1]
	if first <= 0 {
		return 0.5
	}
	ratio := last / first
	indicator := 1 / (1 + ratio)
	if indicator < 0 {
		indicator = 0
	}
	if indicator > 1 {
		indicator = 1
	}
	return indicator
}

// #endregion oscillation

// #region recommendations

func recommendations(pattern FlowPattern, vanish, explode, eff, oscillation float64) []string {
	var recs []string
	if pattern == FlowVanishing || vanish > vanishingPatternCutoff {
		recs = append(recs,
			"gradients are vanishing: consider residual connections or layer normalization",
			"consider raising the learning rate or reducing network depth")
	}
	if pattern == FlowExploding || explode > explodingPatternCutoff {
		recs = append(recs,
			"gradients are exploding: lower the learning rate or tighten gradient clipping")
	}
	if pattern == FlowOscillating || oscillation > oscillationScoreCutoff {
		recs = append(recs,
			"gradient norms are oscillating: reduce the learning rate or increase batch size")
	}
	if eff < lowFlowEfficiencyCutoff {
		recs = append(recs,
			"low gradient flow efficiency: review weight initialization and activation choices")
	}
	return recs
}

// #endregion recommendations
