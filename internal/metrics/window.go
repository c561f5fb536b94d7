package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// #region window

// Window is a bounded sliding window of float64 samples. When full, pushing
// a new sample evicts the oldest. The zero value is not usable; construct
// with NewWindow.
type Window struct {
	capacity int
	data     []float64
}

// NewWindow creates a window holding at most capacity samples.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{capacity: capacity, data: make([]float64, 0, capacity)}
}

// Push appends a sample, evicting the oldest when full.
func (w *Window) Push(v float64) {
	if len(w.data) == w.capacity {
		copy(w.data, w.data[1:])
		w.data = w.data[:len(w.data)-1]
	}
	w.data = append(w.data, v)
}

// Len returns the number of stored samples.
func (w *Window) Len() int { return len(w.data) }

// Reset discards all samples.
func (w *Window) Reset() { w.data = w.data[:0] }

// Values returns a copy of the samples, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.data))
	copy(out, w.data)
	return out
}

// Last returns a copy of the most recent n samples, oldest first. When fewer
// than n samples exist, all of them are returned.
func (w *Window) Last(n int) []float64 {
	if n > len(w.data) {
		n = len(w.data)
	}
	out := make([]float64, n)
	copy(out, w.data[len(w.data)-n:])
	return out
}

// #endregion window

// #region statistics

// Mean returns the arithmetic mean, or 0 for an empty window.
func (w *Window) Mean() float64 {
	if len(w.data) == 0 {
		return 0
	}
	return stat.Mean(w.data, nil)
}

// Std returns the sample standard deviation, or 0 for fewer than 2 samples.
func (w *Window) Std() float64 {
	if len(w.data) < 2 {
		return 0
	}
	return stat.StdDev(w.data, nil)
}

// Min returns the smallest sample, or 0 for an empty window.
func (w *Window) Min() float64 {
	if len(w.data) == 0 {
		return 0
	}
	return floats.Min(w.data)
}

// Max returns the largest sample, or 0 for an empty window.
func (w *Window) Max() float64 {
	if len(w.data) == 0 {
		return 0
	}
	return floats.Max(w.data)
}

// Percentile returns the p-th quantile (p in [0,1]) using the empirical
// distribution of the stored samples.
func (w *Window) Percentile(p float64) float64 {
	if len(w.data) == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	sorted := w.Values()
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Slope returns the least-squares slope of the samples against their index,
// or 0 for fewer than 2 samples.
func (w *Window) Slope() float64 {
	if len(w.data) < 2 {
		return 0
	}
	xs := make([]float64, len(w.data))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, w.data, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0
	}
	return beta
}

// #endregion statistics
