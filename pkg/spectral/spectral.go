// Package spectral measures the spectral purity of a received carrier.
//
// Each monitored server transmits a pure sinusoid at a known frequency.
// Channel impairments (loss, jitter, reordering, bursty delay) leak energy
// out of the carrier bin into the rest of the spectrum, so the fraction of
// off-carrier power is a continuous, dimensionless health signal.
package spectral

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// MinSamples is the minimum buffer length Analyze accepts.
	MinSamples = 32

	// noiseFloor keeps the SNR ratio finite on a clean channel.
	noiseFloor = 1e-12
)

// Health is the coarse classification of a spectral-error value.
type Health int

const (
	Healthy Health = iota
	Warning
	Critical
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Analyze computes the spectral error and SNR of a sample buffer against an
// expected carrier frequency.
//
// The buffer is mean-subtracted, Hann-windowed, and transformed with a real
// FFT. Signal power is the sum of the three power bins centered on the bin
// nearest expectedFreq (ties resolve to the lower-indexed bin); everything
// else is noise. Samples are treated as a uniform grid at sampleRate; arrival
// jitter therefore shows up as leakage, which is the measurement.
//
// Returns spectralError in [0, 1] (fraction of off-carrier power) and the
// SNR in dB. Fewer than MinSamples samples returns (1, -Inf), which callers
// treat as "no data yet" rather than degradation.
func Analyze(samples []float64, expectedFreq, sampleRate float64) (spectralError, snrDB float64) {
	n := len(samples)
	if n < MinSamples {
		return 1.0, math.Inf(-1)
	}

	buf := make([]float64, n)
	var mean float64
	for _, s := range samples {
		mean += s
	}
	mean /= float64(n)
	for i, s := range samples {
		buf[i] = s - mean
	}

	window.Hann(buf)

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, buf)

	power := make([]float64, len(coeffs))
	for i, c := range coeffs {
		m := math.Hypot(real(c), imag(c))
		power[i] = m * m
	}

	target := nearestBin(len(power), expectedFreq, sampleRate, n)

	lo := target - 1
	if lo < 0 {
		lo = 0
	}
	hi := target + 1
	if hi > len(power)-1 {
		hi = len(power) - 1
	}

	var signalPower, noisePower float64
	for i, p := range power {
		if i >= lo && i <= hi {
			signalPower += p
		} else {
			noisePower += p
		}
	}

	total := signalPower + noisePower
	if total <= noiseFloor {
		// Flat buffer: no carrier present at all.
		return 1.0, math.Inf(-1)
	}

	snrDB = 10 * math.Log10(signalPower/math.Max(noisePower, noiseFloor))
	spectralError = noisePower / total
	if spectralError < 0 {
		spectralError = 0
	} else if spectralError > 1 {
		spectralError = 1
	}
	return spectralError, snrDB
}

// nearestBin returns the index of the FFT bin whose center frequency
// (k * sampleRate / length) is closest to freq. Ties go to the lower bin.
func nearestBin(bins int, freq, sampleRate float64, length int) int {
	best := 0
	bestDist := math.Inf(1)
	for k := 0; k < bins; k++ {
		center := float64(k) * sampleRate / float64(length)
		dist := math.Abs(center - freq)
		if dist < bestDist {
			best = k
			bestDist = dist
		}
	}
	return best
}

// Classify maps a spectral-error value to a health class.
func Classify(spectralError float64) Health {
	switch {
	case spectralError < 0.2:
		return Healthy
	case spectralError < 0.5:
		return Warning
	default:
		return Critical
	}
}

// ExpectedFreq returns the carrier frequency assigned to a (rack, server)
// pair: (1 + rack_id) + 0.05 * server_id Hz.
func ExpectedFreq(rackID, serverID int) float64 {
	return float64(1+rackID) + 0.05*float64(serverID)
}
