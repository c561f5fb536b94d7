package earlystop

import (
	"log"
	"math"

	"github.com/danielpatrickdp/adaptive-training/internal/events"
	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

// #region thresholds

const (
	convergenceScoreCutoff      = 0.9
	convergenceVolatilityCutoff = 0.01
	adaptiveVolatilityFloor     = 0.05
)

// #endregion thresholds

// #region monitor

// Monitor makes the per-epoch stop decision for a training run. The state
// machine is Monitoring -> Stopped with no way back; once stopped, updates
// are rejected and only read-only queries are accepted.
type Monitor struct {
	config    Config
	state     State
	model     WeightSource
	snapshot  map[string][]float32
	window    *metrics.Window
	scores    []float64
	listeners []events.Listener
}

// NewMonitor validates the config and returns a monitor in the Monitoring
// state.
func NewMonitor(config Config) (*Monitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		config: config,
		window: metrics.NewWindow(config.HistorySize),
	}
	m.resetState()
	return m, nil
}

func (m *Monitor) resetState() {
	best := math.Inf(1)
	if m.config.Mode == ModeMax {
		best = math.Inf(-1)
	}
	m.state = State{
		BestMetric: best,
		BestEpoch:  -1,
		Patience:   m.config.Patience,
	}
}

// AttachModel supplies the weight source used for best-weights snapshots.
func (m *Monitor) AttachModel(ws WeightSource) { m.model = ws }

// AddListener registers an observer for improvement and stop notifications.
func (m *Monitor) AddListener(l events.Listener) {
	m.listeners = append(m.listeners, l)
}

// State returns a copy of the current monitoring state.
func (m *Monitor) State() State { return m.state }

// Stopped reports whether the monitor reached its terminal state.
func (m *Monitor) Stopped() bool { return m.state.Stopped }

// Config returns the immutable configuration.
func (m *Monitor) Config() Config { return m.config }

// Reset returns the monitor to Monitoring with cleared history, releasing
// any held weights snapshot.
func (m *Monitor) Reset() {
	m.resetState()
	m.window.Reset()
	m.scores = nil
	m.snapshot = nil
}

// #endregion monitor

// #region update

// Update processes one epoch's metrics and reports whether training should
// stop. Calls after the stop are no-ops that keep reporting true.
func (m *Monitor) Update(sm metrics.StepMetrics) bool {
	if m.state.Stopped {
		return true
	}
	if sm.Epoch < m.config.StartFromEpoch {
		return false
	}

	value, ok := sm.Monitored(m.config.Monitor)
	if !ok {
		log.Printf("earlystop: monitored metric %q absent at epoch %d, skipping",
			m.config.Monitor, sm.Epoch)
		return false
	}

	m.state.TotalEpochs++
	m.window.Push(value)
	analysis := metrics.Analyze(m.window, m.config.Mode == ModeMin, sm.Epoch)
	m.recordScore(analysis.Score)

	if m.improved(value) {
		prevBest := m.state.BestMetric
		m.state.BestMetric = value
		m.state.BestEpoch = sm.Epoch
		m.state.WaitCount = 0
		m.state.Improvements++
		m.takeSnapshot()
		for _, l := range m.listeners {
			l.OnImprovement(events.Improvement{
				Epoch:  sm.Epoch,
				Metric: string(m.config.Monitor),
				Value:  value,
				Best:   prevBest,
			})
		}
	} else {
		// patience is checked before the wait counter advances, so a run
		// stops on the (patience+1)-th consecutive bad epoch
		if m.state.WaitCount >= m.state.Patience {
			m.stop(ReasonPatienceExceeded, sm.Epoch)
			return true
		}
		if m.state.WaitCount == 0 {
			m.state.StagnationPeriods++
		}
		m.state.WaitCount++
	}

	if analysis.Score > convergenceScoreCutoff && analysis.Volatility < convergenceVolatilityCutoff {
		m.state.ConvergenceDetected = true
		m.stop(ReasonConvergenceDetected, sm.Epoch)
		return true
	}

	if m.baselineReached(value) {
		m.stop(ReasonBaselineReached, sm.Epoch)
		return true
	}

	if m.config.AdaptivePatience {
		m.adaptPatience(analysis)
	}
	return false
}

func (m *Monitor) improved(value float64) bool {
	if m.config.Mode == ModeMax {
		return value > m.state.BestMetric+m.config.MinDelta
	}
	return value < m.state.BestMetric-m.config.MinDelta
}

func (m *Monitor) baselineReached(value float64) bool {
	if m.config.Baseline == nil {
		return false
	}
	if m.config.Mode == ModeMax {
		return value >= *m.config.Baseline
	}
	return value <= *m.config.Baseline
}

// adaptPatience widens patience while the run is improving but noisy, and
// tightens it while stagnating quietly, within the configured bounds.
func (m *Monitor) adaptPatience(a metrics.ConvergenceAnalysis) {
	switch {
	case a.Trend == metrics.TrendImproving && a.Volatility > adaptiveVolatilityFloor:
		if m.state.Patience < m.config.MaxPatience {
			m.state.Patience++
		}
	case a.Trend == metrics.TrendStagnating && a.Volatility < convergenceVolatilityCutoff:
		if m.state.Patience > m.config.MinPatience {
			m.state.Patience--
		}
	}
}

func (m *Monitor) recordScore(score float64) {
	m.scores = append(m.scores, score)
	if len(m.scores) > m.config.HistorySize {
		m.scores = m.scores[len(m.scores)-m.config.HistorySize:]
	}
}

// #endregion update

// #region stop

// stop performs the one-way transition into the terminal state, restoring
// the best weights snapshot when configured.
func (m *Monitor) stop(reason StopReason, epoch int) {
	m.state.Stopped = true
	m.state.StopReason = reason

	if m.config.RestoreBestWeights && m.snapshot != nil && m.model != nil {
		m.model.SetWeights(m.snapshot)
		m.state.RestoredWeights = true
		m.snapshot = nil
	}

	for _, l := range m.listeners {
		l.OnEarlyStopped(events.EarlyStopped{
			Epoch:      epoch,
			Reason:     string(reason),
			BestEpoch:  m.state.BestEpoch,
			BestMetric: m.state.BestMetric,
		})
	}
}

// takeSnapshot replaces the held snapshot with an owned, exclusive copy of
// the model's current parameters. The superseded snapshot is released.
func (m *Monitor) takeSnapshot() {
	if !m.config.RestoreBestWeights || m.model == nil {
		return
	}
	weights := m.model.Weights()
	snapshot := make(map[string][]float32, len(weights))
	for name, buf := range weights {
		data := make([]float32, len(buf))
		copy(data, buf)
		snapshot[name] = data
	}
	m.snapshot = snapshot
}

// #endregion stop

// #region convergence

// Convergence exposes the shared estimator over the monitored history.
func (m *Monitor) Convergence(currentEpoch int) metrics.ConvergenceAnalysis {
	return metrics.Analyze(m.window, m.config.Mode == ModeMin, currentEpoch)
}

// #endregion convergence
