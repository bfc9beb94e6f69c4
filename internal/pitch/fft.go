package pitch

import (
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// hannWindow returns Hann coefficients for n samples, reusing the previous
// set when the length is unchanged
func (d *AutocorrDetector) hannWindow(n int) []float64 {
	if len(d.hann) != n {
		d.hann = window.Hann(n)
	}
	return d.hann
}

// prepare removes the DC offset and applies the Hann window
func (d *AutocorrDetector) prepare(samples []float32) []float64 {
	n := len(samples)
	if cap(d.buf) < n {
		d.buf = make([]float64, n)
	}
	x := d.buf[:n]

	mean := 0.0
	for _, s := range samples {
		mean += float64(s)
	}
	mean /= float64(n)

	coeffs := d.hannWindow(n)
	for i, s := range samples {
		x[i] = (float64(s) - mean) * coeffs[i]
	}
	return x
}

// autocorrelate returns sum(x[i] * x[i+lag]) for every lag in [0, len(x)).
//
// The window is zero padded to at least twice its length so the circular
// correlation of the power spectrum equals the linear one. The result is
// scaled so that lag 0 matches the given energy exactly.
func autocorrelate(x []float64, energy float64) []float64 {
	n := len(x)
	padded := make([]float64, nextPowerOfTwo(2*n))
	copy(padded, x)

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		re, im := real(c), imag(c)
		spectrum[i] = complex(re*re+im*im, 0)
	}
	corr := fft.IFFT(spectrum)

	scale := 1.0
	if zero := real(corr[0]); zero > minDenominator {
		scale = energy / zero
	}

	out := make([]float64, n)
	for lag := range out {
		out[lag] = real(corr[lag]) * scale
	}
	return out
}

// parabolicOffset locates the vertex of the parabola through three
// equally spaced points, relative to the middle one. The offset is
// clamped to [-1, 1] because a near-flat peak makes it unstable.
func parabolicOffset(prev, current, next float64) float64 {
	denom := prev - 2*current + next
	if denom > -minDenominator && denom < minDenominator {
		return 0
	}

	delta := 0.5 * (prev - next) / denom
	if delta < -1 {
		delta = -1
	} else if delta > 1 {
		delta = 1
	}
	return delta
}

// nextPowerOfTwo returns the smallest power of two >= n
func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
