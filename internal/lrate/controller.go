package lrate

import (
	"log"
	"math"

	"github.com/danielpatrickdp/adaptive-training/internal/events"
	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

// #region controller

// Controller maintains one scalar learning rate, updated once per call with
// the latest step metrics. Single-threaded, call-driven.
type Controller struct {
	config      Config
	state       State
	lossHistory *metrics.Window
	rateChanges int
	listeners   []events.Listener
}

// NewController validates the config and returns a controller positioned at
// the initial learning rate.
func NewController(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		config:      config,
		lossHistory: metrics.NewWindow(config.HistorySize),
	}
	c.resetState()
	return c, nil
}

func (c *Controller) resetState() {
	best := math.Inf(1)
	if c.config.Mode == ModeMax {
		best = math.Inf(-1)
	}
	c.state = State{
		CurrentLR:  c.config.InitialLR,
		BestMetric: best,
	}
}

// AddListener registers an observer for rate-change notifications.
func (c *Controller) AddListener(l events.Listener) {
	c.listeners = append(c.listeners, l)
}

// State returns a copy of the current scheduling state.
func (c *Controller) State() State { return c.state }

// Rate returns the current learning rate.
func (c *Controller) Rate() float64 { return c.state.CurrentLR }

// Config returns the immutable configuration.
func (c *Controller) Config() Config { return c.config }

// Reset returns the controller to its initial state and clears history, for
// reuse across independent training runs.
func (c *Controller) Reset() {
	c.resetState()
	c.lossHistory.Reset()
	c.rateChanges = 0
}

// #endregion controller

// #region update

// Update advances the schedule one step and returns the new state. The rate
// always stays within [MinLR, MaxLR]. A rate-change notification fires only
// when the value actually differs from the previous call.
func (c *Controller) Update(m metrics.StepMetrics) State {
	prev := c.state.CurrentLR

	var reason string
	if c.state.WarmupCounter < c.config.WarmupSteps {
		c.state.WarmupCounter++
		c.state.CurrentLR = c.config.InitialLR *
			float64(c.state.WarmupCounter) / float64(c.config.WarmupSteps)
		reason = "warmup"
	} else {
		var ok bool
		reason, ok = c.applyPolicy(m)
		if !ok {
			return c.state
		}
	}

	c.state.CurrentLR = c.clamp(c.state.CurrentLR)
	c.state.TotalSteps++
	c.lossHistory.Push(m.Loss)

	if c.state.CurrentLR != prev {
		c.rateChanges++
		for _, l := range c.listeners {
			l.OnRateChanged(events.RateChanged{
				Step:   c.state.TotalSteps,
				Old:    prev,
				New:    c.state.CurrentLR,
				Reason: reason,
			})
		}
	}
	return c.state
}

// applyPolicy dispatches on the configured policy. The bool return is false
// only when the monitored metric was absent, which leaves state untouched.
func (c *Controller) applyPolicy(m metrics.StepMetrics) (string, bool) {
	switch c.config.Policy {
	case PolicyCosine:
		c.state.CycleCounter = c.state.TotalSteps % c.config.CycleLength
		c.state.CurrentLR = cosineRate(c.config, c.state.TotalSteps)
		return "cosine_schedule", true
	case PolicyPlateau:
		return c.applyPlateau(m)
	case PolicyExponential:
		if c.state.TotalSteps > 0 && c.state.TotalSteps%c.config.StepSize == 0 {
			c.state.CurrentLR *= c.config.Gamma
			c.state.Reductions++
		}
		return "exponential_decay", true
	case PolicyPolynomial:
		c.state.CurrentLR = polynomialRate(c.config, c.state.TotalSteps)
		return "polynomial_decay", true
	case PolicyCyclical:
		c.state.CurrentLR = cyclicalRate(c.config, c.state.TotalSteps)
		return "cyclical_schedule", true
	}
	return "", true
}

// applyPlateau tracks the monitored value and multiplies the rate by Factor
// once patience is exhausted.
func (c *Controller) applyPlateau(m metrics.StepMetrics) (string, bool) {
	value, ok := m.Monitored(c.config.Monitor)
	if !ok {
		log.Printf("lrate: monitored metric %q absent at epoch %d, skipping update",
			c.config.Monitor, m.Epoch)
		return "", false
	}

	improved := value < c.state.BestMetric-c.config.MinDelta
	if c.config.Mode == ModeMax {
		improved = value > c.state.BestMetric+c.config.MinDelta
	}

	if improved {
		c.state.BestMetric = value
		c.state.PatienceCounter = 0
		c.state.Improvements++
		return "plateau_tracking", true
	}

	c.state.PatienceCounter++
	if c.state.PatienceCounter >= c.config.Patience {
		c.state.CurrentLR *= c.config.Factor
		c.state.Reductions++
		c.state.PatienceCounter = 0
		return "plateau_reduction", true
	}
	return "plateau_tracking", true
}

func (c *Controller) clamp(lr float64) float64 {
	if lr < c.config.MinLR {
		return c.config.MinLR
	}
	if lr > c.config.MaxLR {
		return c.config.MaxLR
	}
	return lr
}

// #endregion update

// #region schedules

// cosineRate sweeps one full cosine period per cycle: MaxLR at the cycle
// start, MinLR at the half cycle.
func cosineRate(cfg Config, steps int) float64 {
	progress := float64(steps%cfg.CycleLength) / float64(cfg.CycleLength)
	return cfg.MinLR + (cfg.MaxLR-cfg.MinLR)*(1+math.Cos(2*math.Pi*progress))/2
}

// polynomialRate decays from the initial rate to MinLR over a fixed horizon.
func polynomialRate(cfg Config, steps int) float64 {
	frac := float64(steps) / float64(polynomialHorizon)
	if frac >= 1 {
		return cfg.MinLR
	}
	rate := cfg.InitialLR * math.Pow(1-frac, cfg.Power)
	if rate < cfg.MinLR {
		return cfg.MinLR
	}
	return rate
}

// cyclicalRate is a triangular wave between MinLR and MaxLR with half-period
// StepSize.
func cyclicalRate(cfg Config, steps int) float64 {
	period := 2 * cfg.StepSize
	pos := steps % period
	span := cfg.MaxLR - cfg.MinLR
	if pos < cfg.StepSize {
		return cfg.MinLR + span*float64(pos)/float64(cfg.StepSize)
	}
	return cfg.MaxLR - span*float64(pos-cfg.StepSize)/float64(cfg.StepSize)
}

// #endregion schedules
