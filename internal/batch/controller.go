package batch

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/danielpatrickdp/adaptive-training/internal/events"
	"github.com/danielpatrickdp/adaptive-training/internal/gradient"
)

// #region controller

// Controller decides the batch size for the next (micro-)batch and
// optionally accumulates gradients across micro-batches to emulate a larger
// effective batch. Single-threaded, call-driven.
type Controller struct {
	config         Config
	state          OptimizationState
	history        []BatchMetrics
	sampler        MemorySampler
	bestThroughput float64
	listeners      []events.Listener
}

// NewController validates the config and returns a controller at the initial
// batch size, sampling the Go heap for memory readings by default.
func NewController(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		config:  config,
		state:   OptimizationState{CurrentBatchSize: config.InitialBatchSize, StabilityIndex: 1},
		sampler: heapSampler{},
	}, nil
}

// SetMemorySampler replaces the default heap sampler, typically with a
// device memory reading supplied by the training loop.
func (c *Controller) SetMemorySampler(s MemorySampler) {
	if s != nil {
		c.sampler = s
	}
}

// AddListener registers an observer for size-change notifications.
func (c *Controller) AddListener(l events.Listener) {
	c.listeners = append(c.listeners, l)
}

// BatchSize returns the size to use for the next batch.
func (c *Controller) BatchSize() int { return c.state.CurrentBatchSize }

// State returns a copy of the current optimization state.
func (c *Controller) State() OptimizationState { return c.state }

// Config returns the immutable configuration.
func (c *Controller) Config() Config { return c.config }

// Reset returns the controller to its initial state and clears history.
func (c *Controller) Reset() {
	c.state = OptimizationState{CurrentBatchSize: c.config.InitialBatchSize, StabilityIndex: 1}
	c.history = nil
	c.bestThroughput = 0
}

// heapSampler reads the Go heap in MB.
type heapSampler struct{}

func (heapSampler) UsageMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1024 * 1024)
}

// #endregion controller

// #region process-batch

// ProcessBatch slices the input to at most the current batch size, runs the
// model over it (splitting into micro-batches and accumulating gradients
// when configured), applies exactly one optimizer update, records batch
// metrics, and evaluates the sizing policy for the next batch.
func (c *Controller) ProcessBatch(inputs, targets [][]float32, model Model, opt Optimizer) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, fmt.Errorf("process batch: empty input")
	}
	if len(inputs) != len(targets) {
		return Result{}, fmt.Errorf("process batch: %d inputs vs %d targets", len(inputs), len(targets))
	}

	n := len(inputs)
	if n > c.state.CurrentBatchSize {
		n = c.state.CurrentBatchSize
	}
	inputs, targets = inputs[:n], targets[:n]

	start := time.Now()

	var (
		lossSum     float64
		predictions [][]float32
		accum       gradient.Buffers
		microSteps  int
	)

	microSize := n
	if c.config.AccumulationSteps > 1 {
		microSize = (n + c.config.AccumulationSteps - 1) / c.config.AccumulationSteps
	}

	for lo := 0; lo < n; lo += microSize {
		hi := lo + microSize
		if hi > n {
			hi = n
		}
		out, err := model.TrainStep(inputs[lo:hi], targets[lo:hi])
		if err != nil {
			return Result{}, fmt.Errorf("train step [%d:%d]: %w", lo, hi, err)
		}
		lossSum += out.Loss
		predictions = append(predictions, out.Predictions...)
		microSteps++

		if accum == nil {
			accum = out.Gradients.Clone()
			continue
		}
		for name, buf := range out.Gradients {
			acc, ok := accum[name]
			if !ok || len(acc.Data) != len(buf.Data) {
				accum[name] = buf.Clone()
				continue
			}
			for i := range acc.Data {
				acc.Data[i] += buf.Data[i]
			}
		}
	}

	if microSteps > 1 {
		scale := float32(1) / float32(microSteps)
		for _, buf := range accum {
			for i := range buf.Data {
				buf.Data[i] *= scale
			}
		}
	}
	if err := opt.Step(accum); err != nil {
		return Result{}, fmt.Errorf("optimizer step: %w", err)
	}

	elapsed := time.Since(start)
	loss := lossSum / float64(microSteps)
	norm := bufferNorm(accum)

	m := BatchMetrics{
		BatchSize:        n,
		ProcessingTimeMs: float64(elapsed.Microseconds()) / 1000,
		MemoryUsageMB:    c.sampler.UsageMB(),
		GradientNorm:     &norm,
		Loss:             &loss,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		m.Throughput = float64(n) / secs
	}

	c.ObserveBatch(m)
	return Result{Loss: loss, Predictions: predictions, Metrics: m}, nil
}

// bufferNorm is the global L2 norm over a gradient collection.
func bufferNorm(grads gradient.Buffers) float64 {
	var sumSq float64
	for _, buf := range grads {
		for _, v := range buf.Data {
			f := float64(v)
			sumSq += f * f
		}
	}
	return math.Sqrt(sumSq)
}

// #endregion process-batch

// #region observe

// ObserveBatch records externally measured batch metrics and evaluates the
// sizing policy. It returns the batch size to use for the next batch. The
// sizing decision is skipped during the configured warmup batches.
func (c *Controller) ObserveBatch(m BatchMetrics) int {
	c.record(m)

	if c.state.TotalBatches <= c.config.WarmupBatches {
		return c.state.CurrentBatchSize
	}

	next, reason := decide(c.config, c.state, c.history, c.bestThroughput)
	next = c.clampSize(next)
	if next == c.state.CurrentBatchSize {
		return next
	}

	old := c.state.CurrentBatchSize
	c.state.CurrentBatchSize = next
	c.state.Adjustments++
	for _, l := range c.listeners {
		l.OnBatchSizeChanged(events.BatchSizeChanged{
			Batch:  c.state.TotalBatches,
			Old:    old,
			New:    next,
			Reason: reason,
		})
	}
	return next
}

// record folds one batch into the running aggregates and bounded history.
func (c *Controller) record(m BatchMetrics) {
	c.history = append(c.history, m)
	if len(c.history) > c.config.HistorySize {
		c.history = c.history[len(c.history)-c.config.HistorySize:]
	}

	c.state.TotalBatches++
	c.state.TotalSamples += m.BatchSize
	n := float64(c.state.TotalBatches)
	c.state.AvgProcessingTime += (m.ProcessingTimeMs - c.state.AvgProcessingTime) / n
	c.state.AvgThroughput += (m.Throughput - c.state.AvgThroughput) / n
	if m.MemoryUsageMB > c.state.MemoryPeakUsage {
		c.state.MemoryPeakUsage = m.MemoryUsageMB
	}
	if m.Throughput > c.bestThroughput {
		c.bestThroughput = m.Throughput
	}

	c.state.PerformanceScore = performanceScore(c.config, m, c.bestThroughput)
	c.state.StabilityIndex = throughputStability(c.history)
}

func (c *Controller) clampSize(size int) int {
	if size < c.config.MinBatchSize {
		return c.config.MinBatchSize
	}
	if size > c.config.MaxBatchSize {
		return c.config.MaxBatchSize
	}
	return size
}

// #endregion observe
