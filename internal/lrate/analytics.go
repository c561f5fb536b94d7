package lrate

// #region analytics

// Analytics computes scheduling diagnostics over the bounded loss history.
func (c *Controller) Analytics() Analytics {
	a := Analytics{
		Improvements: c.state.Improvements,
		Reductions:   c.state.Reductions,
		Stability:    1,
	}

	// Convergence rate: negated least-squares slope of recent losses, so a
	// falling loss reads as a positive rate.
	a.ConvergenceRate = -c.lossHistory.Slope()

	if c.lossHistory.Len() >= 2 {
		vals := c.lossHistory.Values()
		a.Efficiency = (vals[0] - vals[len(vals)-1]) / float64(len(vals)-1)
	}

	if c.state.TotalSteps > 0 {
		a.Stability = 1 - float64(c.rateChanges)/float64(c.state.TotalSteps)
		if a.Stability < 0 {
			a.Stability = 0
		}
	}

	a.Recommendations = c.recommendations(a)
	return a
}

// recommendations derive deterministically from the computed diagnostics.
func (c *Controller) recommendations(a Analytics) []string {
	var recs []string
	if c.state.TotalSteps >= 50 && c.state.Improvements == 0 {
		recs = append(recs, "no improvements observed: consider a different schedule or a lower initial rate")
	}
	if a.Stability < 0.5 {
		recs = append(recs, "rate changes frequently: consider a longer cycle or larger step size")
	}
	if c.lossHistory.Len() >= 10 && a.Efficiency <= 0 {
		recs = append(recs, "loss is not decreasing: consider reducing the learning rate or reviewing the data pipeline")
	}
	return recs
}

// #endregion analytics
