package analysis

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// PowerSpectrum returns the one-sided magnitude spectrum of a signal
// sampled every dt seconds, with its mean removed, and the frequency in Hz
// of each bin.
func PowerSpectrum(data []float64, dt float64) (freqs, power []float64) {
	n := len(data)
	if n < 2 || dt <= 0 {
		return nil, nil
	}

	mean := stat.Mean(data, nil)
	centred := make([]float64, n)
	for i, v := range data {
		centred[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, centred)

	freqs = make([]float64, len(coeffs))
	power = make([]float64, len(coeffs))
	for i, c := range coeffs {
		freqs[i] = fft.Freq(i) / dt
		power[i] = cmplx.Abs(c)
	}
	return freqs, power
}

// DominantFrequency returns the strongest non-DC frequency and its
// magnitude. A constant signal yields zeros.
func DominantFrequency(data []float64, dt float64) (freq, magnitude float64) {
	freqs, power := PowerSpectrum(data, dt)
	for i := 1; i < len(power); i++ {
		if power[i] > magnitude {
			freq, magnitude = freqs[i], power[i]
		}
	}
	return freq, magnitude
}
