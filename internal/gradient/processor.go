package gradient

import (
	"math"
	"math/rand"

	"github.com/danielpatrickdp/adaptive-training/internal/events"
	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

// #region thresholds

const (
	nearZeroThreshold  = 1e-8
	vanishingThreshold = 1e-6
	explodingThreshold = 100.0
	noiseDecayBase     = 0.99
	// adaptive clipping engages only once this many norm samples exist
	minClipSamples = 10
	// effective norm-clip threshold looks at most this far back
	effectiveNormSpan = 50
)

// #endregion thresholds

// #region processor

// Processor transforms a named collection of gradient buffers once per step:
// centralization, noise injection, accumulation, clipping, normalization.
// Single-threaded, call-driven; owns its accumulation buffers and history.
type Processor struct {
	config      Config
	step        int
	accumCount  int
	accum       map[string]Buffer
	normHistory *metrics.Window
	history     []Metrics
	rng         *rand.Rand
	listeners   []events.Listener
}

// NewProcessor validates the config and returns a ready processor.
func NewProcessor(config Config) (*Processor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Processor{
		config:      config,
		accum:       make(map[string]Buffer),
		normHistory: metrics.NewWindow(config.ClipWindow),
		rng:         rand.New(rand.NewSource(config.Seed)),
	}, nil
}

// AddListener registers an observer for gradient-processed notifications.
func (p *Processor) AddListener(l events.Listener) {
	p.listeners = append(p.listeners, l)
}

// Reset returns the processor to its initial state: step counter, pending
// accumulation, norm history, metric history, and the noise RNG.
func (p *Processor) Reset() {
	p.step = 0
	p.accumCount = 0
	p.accum = make(map[string]Buffer)
	p.normHistory.Reset()
	p.history = nil
	p.rng = rand.New(rand.NewSource(p.config.Seed))
}

// Step returns the number of Process calls so far.
func (p *Processor) Step() int { return p.step }

// #endregion processor

// #region process

// Process runs the transform pipeline over one step's gradients. The caller
// retains ownership of the input; the returned buffers are owned by the
// caller. While accumulation is pending the result carries a nil Output and
// Pending=true, and the caller must skip the optimizer step.
func (p *Processor) Process(grads Buffers) Result {
	p.step++

	pre := computeMetrics(grads, p.step)
	p.recordMetrics(pre)

	if len(grads) == 0 {
		return Result{Output: grads, Pre: pre, Post: pre}
	}

	work := grads.Clone()

	if p.config.Centralize {
		centralize(work)
	}
	if p.config.Noise != NoiseOff {
		p.injectNoise(work)
	}

	if p.config.AccumulationSteps > 1 {
		done := p.accumulate(work)
		if !done {
			return Result{Pending: true, Pre: pre}
		}
		work = p.takeAccumulated()
	}

	clipped := p.clip(work)

	if p.config.Normalize {
		normalize(work)
	}

	post := computeMetrics(work, p.step)
	result := Result{Output: work, Pre: pre, Post: post, Clipped: clipped}

	for _, l := range p.listeners {
		l.OnGradientProcessed(events.GradientProcessed{
			Step:       p.step,
			GlobalNorm: post.GlobalNorm,
			Clipped:    clipped,
		})
	}
	return result
}

// recordMetrics appends to the bounded metric history and the norm window.
func (p *Processor) recordMetrics(m Metrics) {
	if math.IsInf(m.GlobalNorm, 0) || math.IsNaN(m.GlobalNorm) {
		// instability is surfaced through scores, not through the norm window
	} else {
		p.normHistory.Push(m.GlobalNorm)
	}
	p.history = append(p.history, m)
	if len(p.history) > p.config.HistorySize {
		p.history = p.history[len(p.history)-p.config.HistorySize:]
	}
}

// #endregion process

// #region centralization

// centralize subtracts each rank>=2 buffer's own mean from its elements.
func centralize(grads Buffers) {
	for _, buf := range grads {
		if buf.Rank <= 1 || len(buf.Data) == 0 {
			continue
		}
		var sum float64
		for _, v := range buf.Data {
			sum += float64(v)
		}
		mean := float32(sum / float64(len(buf.Data)))
		for i := range buf.Data {
			buf.Data[i] -= mean
		}
	}
}

// #endregion centralization

// #region noise

// injectNoise adds zero-mean Gaussian noise per buffer. Variance follows the
// configured policy: constant, exponential decay, or inversely proportional
// to the recent average global norm.
func (p *Processor) injectNoise(grads Buffers) {
	variance := p.config.NoiseVariance
	switch p.config.Noise {
	case NoiseDecay:
		variance *= math.Pow(noiseDecayBase, float64(p.step))
	case NoiseAdaptive:
		variance /= 1 + p.normHistory.Mean()
	}
	if variance <= 0 {
		return
	}
	std := math.Sqrt(variance)
	for _, buf := range grads {
		for i := range buf.Data {
			buf.Data[i] += float32(p.rng.NormFloat64() * std)
		}
	}
}

// #endregion noise

// #region accumulation

// accumulate sums the transformed gradients into owned buffers. Returns true
// once the configured number of micro-steps has been gathered.
func (p *Processor) accumulate(grads Buffers) bool {
	for name, buf := range grads {
		acc, ok := p.accum[name]
		if !ok || len(acc.Data) != len(buf.Data) {
			data := make([]float32, len(buf.Data))
			copy(data, buf.Data)
			p.accum[name] = Buffer{Data: data, Rank: buf.Rank}
			continue
		}
		for i := range acc.Data {
			acc.Data[i] += buf.Data[i]
		}
	}
	p.accumCount++
	return p.accumCount >= p.config.AccumulationSteps
}

// takeAccumulated averages and releases the accumulation buffers.
func (p *Processor) takeAccumulated() Buffers {
	out := make(Buffers, len(p.accum))
	scale := float32(1) / float32(p.config.AccumulationSteps)
	for name, acc := range p.accum {
		for i := range acc.Data {
			acc.Data[i] *= scale
		}
		out[name] = acc
	}
	p.accum = make(map[string]Buffer)
	p.accumCount = 0
	return out
}

// #endregion accumulation

// #region clipping

// clip applies exactly one clipping policy. Returns true when any buffer was
// rescaled or clamped.
func (p *Processor) clip(grads Buffers) bool {
	switch p.config.Clip {
	case ClipNone:
		return false
	case ClipByValue:
		return clampValues(grads, float32(p.config.ClipValue))
	case ClipAdaptive:
		if p.normHistory.Len() >= minClipSamples {
			threshold := p.normHistory.Percentile(p.config.ClipPercentile)
			return scaleToNorm(grads, threshold)
		}
		return scaleToNorm(grads, p.effectiveClipNorm())
	case ClipByNorm:
		return scaleToNorm(grads, p.effectiveClipNorm())
	}
	return false
}

// effectiveClipNorm is the configured clip norm, raised to half the recent
// mean global norm once enough adaptive history exists.
func (p *Processor) effectiveClipNorm() float64 {
	effective := p.config.ClipNorm
	if p.normHistory.Len() >= minClipSamples {
		recent := p.normHistory.Last(effectiveNormSpan)
		var sum float64
		for _, v := range recent {
			sum += v
		}
		if raised := 0.5 * sum / float64(len(recent)); raised > effective {
			effective = raised
		}
	}
	return effective
}

// scaleToNorm rescales every buffer by threshold/globalNorm when the global
// L2 norm exceeds the threshold. Non-finite norms are left untouched; the
// instability shows up in the exploding score instead.
func scaleToNorm(grads Buffers, threshold float64) bool {
	norm := globalNorm(grads)
	if math.IsNaN(norm) || math.IsInf(norm, 0) || norm <= threshold || norm == 0 {
		return false
	}
	scale := float32(threshold / norm)
	for _, buf := range grads {
		for i := range buf.Data {
			buf.Data[i] *= scale
		}
	}
	return true
}

// clampValues clamps every element to [-limit, limit].
func clampValues(grads Buffers, limit float32) bool {
	clipped := false
	for _, buf := range grads {
		for i, v := range buf.Data {
			if v > limit {
				buf.Data[i] = limit
				clipped = true
			} else if v < -limit {
				buf.Data[i] = -limit
				clipped = true
			}
		}
	}
	return clipped
}

// #endregion clipping

// #region normalization

// normalize divides every buffer by the post-clip global norm.
func normalize(grads Buffers) {
	norm := globalNorm(grads)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return
	}
	inv := float32(1 / norm)
	for _, buf := range grads {
		for i := range buf.Data {
			buf.Data[i] *= inv
		}
	}
}

// #endregion normalization

// #region global-norm

// globalNorm computes the L2 norm over all buffers.
func globalNorm(grads Buffers) float64 {
	var sumSq float64
	for _, buf := range grads {
		for _, v := range buf.Data {
			f := float64(v)
			sumSq += f * f
		}
	}
	return math.Sqrt(sumSq)
}

// #endregion global-norm
