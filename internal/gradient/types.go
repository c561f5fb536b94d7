package gradient

import (
	"errors"
	"fmt"
)

// #region buffers

// Buffer is one named gradient tensor flattened to a float32 slice. Rank is
// the tensor's dimensionality; rank <=1 buffers are treated as bias-like and
// skipped by centralization.
type Buffer struct {
	Data []float32
	Rank int
}

// Clone deep-copies the buffer.
func (b Buffer) Clone() Buffer {
	data := make([]float32, len(b.Data))
	copy(data, b.Data)
	return Buffer{Data: data, Rank: b.Rank}
}

// Buffers is a named collection of gradient buffers for a single step.
type Buffers map[string]Buffer

// Clone deep-copies the collection. The processor never mutates caller
// buffers; all transforms run on a clone.
func (b Buffers) Clone() Buffers {
	out := make(Buffers, len(b))
	for name, buf := range b {
		data := make([]float32, len(buf.Data))
		copy(data, buf.Data)
		out[name] = Buffer{Data: data, Rank: buf.Rank}
	}
	return out
}

// #endregion buffers

// #region policies

// ClipPolicy selects how gradients are bounded.
type ClipPolicy string

const (
	ClipNone     ClipPolicy = "none"
	ClipByNorm   ClipPolicy = "norm"
	ClipByValue  ClipPolicy = "value"
	ClipAdaptive ClipPolicy = "adaptive"
)

// NoisePolicy selects how injected noise variance evolves.
type NoisePolicy string

const (
	NoiseOff      NoisePolicy = "off"
	NoiseConstant NoisePolicy = "constant"
	NoiseDecay    NoisePolicy = "decay"
	NoiseAdaptive NoisePolicy = "adaptive"
)

// #endregion policies

// #region config

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid gradient config")

// Config enumerates every recognized processing option. Fixed at
// construction.
type Config struct {
	Centralize        bool        `json:"centralize"`
	Noise             NoisePolicy `json:"noise"`
	NoiseVariance     float64     `json:"noise_variance"`
	AccumulationSteps int         `json:"accumulation_steps"`
	Clip              ClipPolicy  `json:"clip"`
	ClipNorm          float64     `json:"clip_norm"`
	ClipValue         float64     `json:"clip_value"`
	ClipPercentile    float64     `json:"clip_percentile"` // fraction in (0,1]
	ClipWindow        int         `json:"clip_window"`
	Normalize         bool        `json:"normalize"`
	HistorySize       int         `json:"history_size"` // metric samples kept for health analysis
	Seed              int64       `json:"seed"`         // noise RNG seed; fixed for determinism
}

// DefaultConfig returns norm clipping at 1.0 with no noise, centralization,
// accumulation, or normalization.
func DefaultConfig() Config {
	return Config{
		Noise:             NoiseOff,
		NoiseVariance:     0.01,
		AccumulationSteps: 1,
		Clip:              ClipByNorm,
		ClipNorm:          1.0,
		ClipValue:         1.0,
		ClipPercentile:    0.95,
		ClipWindow:        100,
		HistorySize:       100,
		Seed:              1,
	}
}

// Validate rejects out-of-range options at construction.
func (c Config) Validate() error {
	switch c.Clip {
	case ClipNone, ClipByNorm, ClipByValue, ClipAdaptive:
	default:
		return fmt.Errorf("%w: unknown clip policy %q", ErrInvalidConfig, c.Clip)
	}
	switch c.Noise {
	case NoiseOff, NoiseConstant, NoiseDecay, NoiseAdaptive:
	default:
		return fmt.Errorf("%w: unknown noise policy %q", ErrInvalidConfig, c.Noise)
	}
	if c.AccumulationSteps < 1 {
		return fmt.Errorf("%w: accumulation steps %d < 1", ErrInvalidConfig, c.AccumulationSteps)
	}
	if c.Clip == ClipByNorm && c.ClipNorm <= 0 {
		return fmt.Errorf("%w: clip norm %v <= 0", ErrInvalidConfig, c.ClipNorm)
	}
	if c.Clip == ClipByValue && c.ClipValue <= 0 {
		return fmt.Errorf("%w: clip value %v <= 0", ErrInvalidConfig, c.ClipValue)
	}
	if c.Clip == ClipAdaptive {
		if c.ClipPercentile <= 0 || c.ClipPercentile > 1 {
			return fmt.Errorf("%w: clip percentile %v outside (0,1]", ErrInvalidConfig, c.ClipPercentile)
		}
		if c.ClipWindow < 10 {
			return fmt.Errorf("%w: clip window %d < 10", ErrInvalidConfig, c.ClipWindow)
		}
		if c.ClipNorm <= 0 {
			return fmt.Errorf("%w: adaptive clipping needs a positive fallback clip norm", ErrInvalidConfig)
		}
	}
	if c.Noise != NoiseOff && c.NoiseVariance <= 0 {
		return fmt.Errorf("%w: noise variance %v <= 0", ErrInvalidConfig, c.NoiseVariance)
	}
	return nil
}

// #endregion config

// #region metrics

// Metrics summarizes one gradient collection. Scores are in [0,1].
type Metrics struct {
	GlobalNorm     float64 `json:"global_norm"`
	AverageNorm    float64 `json:"average_norm"`
	MaxAbs         float64 `json:"max_abs"`
	MinAbs         float64 `json:"min_abs"`
	Sparsity       float64 `json:"sparsity"`
	VanishingScore float64 `json:"vanishing_score"`
	ExplodingScore float64 `json:"exploding_score"`
	FlowEfficiency float64 `json:"flow_efficiency"`
	Step           int     `json:"step"`
}

// Result bundles the output of one Process call. Output is nil and Pending
// true while gradient accumulation has not yet completed; the caller must
// skip the optimizer step for that call.
type Result struct {
	Output  Buffers
	Pending bool
	Pre     Metrics
	Post    Metrics
	Clipped bool
}

// #endregion metrics

// #region health

// FlowPattern classifies the recent gradient flow regime.
type FlowPattern string

const (
	FlowHealthy     FlowPattern = "healthy"
	FlowVanishing   FlowPattern = "vanishing"
	FlowExploding   FlowPattern = "exploding"
	FlowOscillating FlowPattern = "oscillating"
)

// HealthReport is the output of Processor.Analyze.
type HealthReport struct {
	HealthScore          float64     `json:"health_score"`
	FlowPattern          FlowPattern `json:"flow_pattern"`
	Stability            float64     `json:"stability"`
	ConvergenceIndicator float64     `json:"convergence_indicator"`
	Recommendations      []string    `json:"recommendations"`
}

// #endregion health
