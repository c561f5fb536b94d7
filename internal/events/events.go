package events

// #region event-types

// RateChanged is emitted when the learning-rate controller produces a value
// different from the previous call.
type RateChanged struct {
	Step   int
	Old    float64
	New    float64
	Reason string
}

// BatchSizeChanged is emitted when the batch-size controller resizes.
type BatchSizeChanged struct {
	Batch  int
	Old    int
	New    int
	Reason string
}

// Improvement is emitted when the early-stopping monitor observes a new best
// monitored value.
type Improvement struct {
	Epoch  int
	Metric string
	Value  float64
	Best   float64 // previous best
}

// EarlyStopped is emitted once, on the transition into the terminal state.
type EarlyStopped struct {
	Epoch      int
	Reason     string
	BestEpoch  int
	BestMetric float64
}

// GradientProcessed is emitted after every completed gradient transform.
type GradientProcessed struct {
	Step       int
	GlobalNorm float64
	Clipped    bool
}

// #endregion event-types

// #region listener

// Listener receives controller notifications. Controllers invoke listeners
// synchronously in registration order; implementations must not block.
type Listener interface {
	OnRateChanged(RateChanged)
	OnBatchSizeChanged(BatchSizeChanged)
	OnImprovement(Improvement)
	OnEarlyStopped(EarlyStopped)
	OnGradientProcessed(GradientProcessed)
}

// BaseListener provides no-op implementations so listeners can override only
// the events they care about.
type BaseListener struct{}

func (BaseListener) OnRateChanged(RateChanged)             {}
func (BaseListener) OnBatchSizeChanged(BatchSizeChanged)   {}
func (BaseListener) OnImprovement(Improvement)             {}
func (BaseListener) OnEarlyStopped(EarlyStopped)           {}
func (BaseListener) OnGradientProcessed(GradientProcessed) {}

// #endregion listener

// #region recorder

// Recorder accumulates every event in order received. Intended for tests and
// replay verification.
type Recorder struct {
	Rates     []RateChanged
	Resizes   []BatchSizeChanged
	Improved  []Improvement
	Stops     []EarlyStopped
	Gradients []GradientProcessed
}

func (r *Recorder) OnRateChanged(e RateChanged)             { r.Rates = append(r.Rates, e) }
func (r *Recorder) OnBatchSizeChanged(e BatchSizeChanged)   { r.Resizes = append(r.Resizes, e) }
func (r *Recorder) OnImprovement(e Improvement)             { r.Improved = append(r.Improved, e) }
func (r *Recorder) OnEarlyStopped(e EarlyStopped)           { r.Stops = append(r.Stops, e) }
func (r *Recorder) OnGradientProcessed(e GradientProcessed) { r.Gradients = append(r.Gradients, e) }

// #endregion recorder
