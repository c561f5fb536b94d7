package batch

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-training/internal/gradient"
)

// #region policy

// Policy selects the batch sizing strategy.
type Policy string

const (
	PolicyAdaptive         Policy = "adaptive"
	PolicyMemoryAware      Policy = "memory_aware"
	PolicyPerformanceBased Policy = "performance_based"
	PolicyScheduled        Policy = "scheduled"
	PolicyFixed            Policy = "fixed"
)

// #endregion policy

// #region config

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid batch config")

// Config enumerates every recognized sizing option. Fixed at construction.
type Config struct {
	Policy            Policy  `json:"policy"`
	InitialBatchSize  int     `json:"initial_batch_size"`
	MinBatchSize      int     `json:"min_batch_size"`
	MaxBatchSize      int     `json:"max_batch_size"`
	AdjustmentFactor  float64 `json:"adjustment_factor"` // adaptive grow/shrink multiplier
	WarmupBatches     int     `json:"warmup_batches"`    // sizing decisions skipped during warmup
	AccumulationSteps int     `json:"accumulation_steps"`
	MemoryThresholdMB float64 `json:"memory_threshold_mb"` // budget against which utilization is measured
	HistorySize       int     `json:"history_size"`
}

// DefaultConfig returns an adaptive policy between 8 and 512 samples.
func DefaultConfig() Config {
	return Config{
		Policy:            PolicyAdaptive,
		InitialBatchSize:  32,
		MinBatchSize:      8,
		MaxBatchSize:      512,
		AdjustmentFactor:  1.25,
		WarmupBatches:     10,
		AccumulationSteps: 1,
		MemoryThresholdMB: 4096,
		HistorySize:       1000,
	}
}

// Validate rejects out-of-range bounds at construction.
func (c Config) Validate() error {
	switch c.Policy {
	case PolicyAdaptive, PolicyMemoryAware, PolicyPerformanceBased, PolicyScheduled, PolicyFixed:
	default:
		return fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, c.Policy)
	}
	if c.MinBatchSize <= 0 {
		return fmt.Errorf("%w: min batch size %d <= 0", ErrInvalidConfig, c.MinBatchSize)
	}
	if c.MinBatchSize > c.InitialBatchSize || c.InitialBatchSize > c.MaxBatchSize {
		return fmt.Errorf("%w: need min %d <= initial %d <= max %d",
			ErrInvalidConfig, c.MinBatchSize, c.InitialBatchSize, c.MaxBatchSize)
	}
	if c.AdjustmentFactor <= 1 {
		return fmt.Errorf("%w: adjustment factor %v <= 1", ErrInvalidConfig, c.AdjustmentFactor)
	}
	if c.AccumulationSteps < 1 {
		return fmt.Errorf("%w: accumulation steps %d < 1", ErrInvalidConfig, c.AccumulationSteps)
	}
	if c.MemoryThresholdMB <= 0 {
		return fmt.Errorf("%w: memory threshold %v <= 0", ErrInvalidConfig, c.MemoryThresholdMB)
	}
	return nil
}

// #endregion config

// #region batch-metrics

// BatchMetrics is one record per processed (micro-)batch.
type BatchMetrics struct {
	BatchSize        int      `json:"batch_size"`
	ProcessingTimeMs float64  `json:"processing_time_ms"`
	MemoryUsageMB    float64  `json:"memory_usage_mb"`
	Throughput       float64  `json:"throughput"` // samples per second
	GradientNorm     *float64 `json:"gradient_norm,omitempty"`
	Loss             *float64 `json:"loss,omitempty"`
}

// #endregion batch-metrics

// #region optimization-state

// OptimizationState is the controller's mutable state. CurrentBatchSize
// always stays within [MinBatchSize, MaxBatchSize].
type OptimizationState struct {
	CurrentBatchSize  int     `json:"current_batch_size"`
	TotalBatches      int     `json:"total_batches"`
	TotalSamples      int     `json:"total_samples"`
	AvgProcessingTime float64 `json:"avg_processing_time"`
	AvgThroughput     float64 `json:"avg_throughput"`
	MemoryPeakUsage   float64 `json:"memory_peak_usage"`
	Adjustments       int     `json:"adjustments"`
	PerformanceScore  float64 `json:"performance_score"`
	StabilityIndex    float64 `json:"stability_index"`
}

// #endregion optimization-state

// #region model-boundary

// StepOutput is what one model micro-step produces.
type StepOutput struct {
	Loss        float64
	Predictions [][]float32
	Gradients   gradient.Buffers
}

// Model computes loss, predictions, and gradients for one micro-batch. The
// tensor runtime behind it is outside this package.
type Model interface {
	TrainStep(inputs, targets [][]float32) (StepOutput, error)
}

// Optimizer applies one averaged gradient update.
type Optimizer interface {
	Step(grads gradient.Buffers) error
}

// MemorySampler reads the current memory usage in MB. Injected so callers
// can supply device readings; the default samples the Go heap.
type MemorySampler interface {
	UsageMB() float64
}

// #endregion model-boundary

// #region result

// Result bundles the output of one ProcessBatch call.
type Result struct {
	Loss        float64
	Predictions [][]float32
	Metrics     BatchMetrics
}

// #endregion result

// #region analysis

// PerformanceAnalysis summarizes sizing behavior over recorded history.
type PerformanceAnalysis struct {
	OptimalBatchSize int      `json:"optimal_batch_size"`
	Efficiency       float64  `json:"efficiency"`        // vs observed throughput ceiling
	MemoryEfficiency float64  `json:"memory_efficiency"` // vs the 60-80% utilization band
	ThroughputGain   float64  `json:"throughput_gain"`   // recent vs early window
	Stability        float64  `json:"stability"`         // inverse CV of throughput
	Recommendations  []string `json:"recommendations"`
}

// #endregion analysis
