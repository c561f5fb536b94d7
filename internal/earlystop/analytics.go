package earlystop

// epochs-to-convergence uses a stricter score cutoff than the stop check
const convergedScoreCutoff = 0.95

// #region analytics

// Analytics summarizes the monitoring session: when convergence was first
// observed, how many epochs an uncapped run would have wasted, and how
// productive the observed epochs were.
func (m *Monitor) Analytics() Analytics {
	a := Analytics{}

	for i, score := range m.scores {
		if score >= convergedScoreCutoff {
			a.EpochsToConvergence = i + 1
			break
		}
	}

	if m.state.Stopped && m.config.AssumedTotalEpochs > m.state.TotalEpochs {
		a.EstimatedSavedEpochs = m.config.AssumedTotalEpochs - m.state.TotalEpochs
	}

	if m.state.TotalEpochs > 0 {
		a.ResourceEfficiency = float64(m.state.Improvements) / float64(m.state.TotalEpochs)
	}

	a.Recommendations = m.recommendations(a)
	return a
}

func (m *Monitor) recommendations(a Analytics) []string {
	var recs []string

	if m.state.TotalEpochs >= 10 {
		analysis := m.Convergence(m.state.TotalEpochs)
		if analysis.Volatility > 0.2 {
			recs = append(recs, "monitored metric is volatile: consider a larger patience or smoothing the validation signal")
		}
	}
	if m.state.TotalEpochs >= 20 && m.state.Improvements == 0 {
		recs = append(recs, "no improvements observed: the monitored metric or the mode may be misconfigured")
	}
	if m.state.StagnationPeriods >= 3 {
		recs = append(recs, "repeated stagnation periods: consider pairing with a plateau learning-rate schedule")
	}
	if m.state.Stopped && m.state.StopReason == ReasonPatienceExceeded && !m.state.RestoredWeights && m.config.RestoreBestWeights {
		recs = append(recs, "stopped without restoring weights: no improvement was ever snapshotted")
	}
	return recs
}

// #endregion analytics
