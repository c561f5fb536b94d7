package metrics

// #region step-metrics

// StepMetrics is one observation produced by the training loop per step or
// epoch. Immutable once recorded. Optional fields are nil when the loop did
// not measure them.
type StepMetrics struct {
	Loss        float64  `json:"loss"`
	Accuracy    *float64 `json:"accuracy,omitempty"`
	ValLoss     *float64 `json:"val_loss,omitempty"`
	ValAccuracy *float64 `json:"val_accuracy,omitempty"`
	Epoch       int      `json:"epoch"`
	BatchIndex  *int     `json:"batch_index,omitempty"`
}

// #endregion step-metrics

// #region monitor-key

// MonitorKey selects which StepMetrics field a controller watches.
type MonitorKey string

const (
	MonitorLoss        MonitorKey = "loss"
	MonitorAccuracy    MonitorKey = "accuracy"
	MonitorValLoss     MonitorKey = "val_loss"
	MonitorValAccuracy MonitorKey = "val_accuracy"
)

// Monitored extracts the selected value. The second return is false when the
// field was not recorded for this step.
func (m StepMetrics) Monitored(key MonitorKey) (float64, bool) {
	switch key {
	case MonitorLoss:
		return m.Loss, true
	case MonitorAccuracy:
		if m.Accuracy == nil {
			return 0, false
		}
		return *m.Accuracy, true
	case MonitorValLoss:
		if m.ValLoss == nil {
			return 0, false
		}
		return *m.ValLoss, true
	case MonitorValAccuracy:
		if m.ValAccuracy == nil {
			return 0, false
		}
		return *m.ValAccuracy, true
	}
	return 0, false
}

// #endregion monitor-key

// #region trend

// Trend classifies the recent direction of a monitored metric.
type Trend string

const (
	TrendImproving  Trend = "improving"
	TrendStagnating Trend = "stagnating"
	TrendDegrading  Trend = "degrading"
)

// #endregion trend

// #region convergence-analysis

// ConvergenceAnalysis is the shared estimator output consumed by the
// stateful controllers.
type ConvergenceAnalysis struct {
	Trend          Trend   `json:"trend"`
	Volatility     float64 `json:"volatility"`
	Score          float64 `json:"score"`
	PredictedEpoch int     `json:"predicted_epoch"` // 0 when not extrapolable
}

// #endregion convergence-analysis
