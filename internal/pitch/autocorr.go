package pitch

import (
	"math"
)

const (
	// Window energy at or below this is treated as silence
	silenceEnergy = 1e-9

	// Denominators smaller than this are treated as zero
	minDenominator = 1e-12
)

// AutocorrDetector estimates the fundamental frequency of a window with a
// Hann-windowed, energy-normalized autocorrelation restricted to the lags
// of [minHz, maxHz].
//
// A detector keeps scratch buffers between calls and must be used from a
// single goroutine.
type AutocorrDetector struct {
	sampleRate float64
	minHz      float64
	maxHz      float64
	threshold  float64

	hann []float64
	buf  []float64
}

// NewAutocorrDetector creates a new autocorrelation pitch detector
func NewAutocorrDetector(sampleRate int, minHz, maxHz, threshold float64) (*AutocorrDetector, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidRate
	}
	if minHz <= 0 || minHz >= maxHz {
		return nil, ErrInvalidRange
	}
	if threshold < 0 || threshold > 1 {
		return nil, ErrInvalidThreshold
	}

	return &AutocorrDetector{
		sampleRate: float64(sampleRate),
		minHz:      minHz,
		maxHz:      maxHz,
		threshold:  threshold,
	}, nil
}

// Estimate analyzes one window and returns the fundamental frequency.
// The second return is false when no pitch was found with enough
// confidence, including for empty or silent windows.
func (d *AutocorrDetector) Estimate(samples []float32) (Estimate, bool) {
	n := len(samples)
	if n == 0 {
		return Estimate{}, false
	}

	// Lag range covering [minHz, maxHz]
	minLag := int(math.Round(d.sampleRate / d.maxHz))
	maxLag := int(math.Round(d.sampleRate / d.minHz))
	if maxLag+1 >= n {
		return Estimate{}, false
	}

	x := d.prepare(samples)

	energy := 0.0
	for _, v := range x {
		energy += v * v
	}
	if energy <= silenceEnergy {
		return Estimate{}, false
	}

	num := autocorrelate(x, energy)

	// prefix[k] = sum of x[i]^2 for i < k
	prefix := make([]float64, n+1)
	for i, v := range x {
		prefix[i+1] = prefix[i] + v*v
	}

	// r(lag) = 2*sum(x[i]*x[i+lag]) / sum(x[i]^2 + x[i+lag]^2), i in [0, n-lag)
	r := func(lag int) float64 {
		den := prefix[n-lag] + prefix[n] - prefix[lag]
		if den <= minDenominator {
			return 0
		}
		return 2 * num[lag] / den
	}

	bestLag := 0
	bestR := 0.0
	for lag := minLag; lag <= min(maxLag, n-1); lag++ {
		if v := r(lag); v > bestR {
			bestR = v
			bestLag = lag
		}
	}
	if bestLag == 0 || bestR < d.threshold {
		return Estimate{}, false
	}

	// Sub-sample refinement around the peak
	prev, next := bestR, bestR
	if bestLag > 1 {
		prev = r(bestLag - 1)
	}
	if bestLag+1 < n {
		next = r(bestLag + 1)
	}
	lag := float64(bestLag) + parabolicOffset(prev, bestR, next)
	if lag < minDenominator {
		return Estimate{}, false
	}

	freq := d.sampleRate / lag
	if math.IsNaN(freq) || math.IsInf(freq, 0) || freq < d.minHz || freq > d.maxHz {
		return Estimate{}, false
	}

	return Estimate{Frequency: freq, Correlation: bestR}, true
}
