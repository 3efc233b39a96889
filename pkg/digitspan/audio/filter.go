package audio

import (
	"math"
	"math/cmplx"
)

// Biquad is a second-order IIR section with a0 normalised to 1.
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// ButterworthLowPass designs a 2nd-order Butterworth low-pass using the
// bilinear transform with frequency pre-warping. The coefficients match
// scipy.signal.butter(2, cutoff/(rate/2)).
func ButterworthLowPass(cutoffHz, sampleRate float64) Biquad {
	k := math.Tan(math.Pi * cutoffHz / sampleRate)
	k2 := k * k
	norm := 1 / (1 + math.Sqrt2*k + k2)

	b0 := k2 * norm
	return Biquad{
		B0: b0,
		B1: 2 * b0,
		B2: b0,
		A1: 2 * (k2 - 1) * norm,
		A2: (1 - math.Sqrt2*k + k2) * norm,
	}
}

// Filter runs the section over in (transposed direct form II, zero initial
// state) and returns a new slice.
func (f Biquad) Filter(in []float64) []float64 {
	out := make([]float64, len(in))
	var z1, z2 float64
	for i, x := range in {
		y := f.B0*x + z1
		z1 = f.B1*x - f.A1*y + z2
		z2 = f.B2*x - f.A2*y
		out[i] = y
	}
	return out
}

// Magnitude returns |H(e^jw)| at freqHz.
func (f Biquad) Magnitude(freqHz, sampleRate float64) float64 {
	w := 2 * math.Pi * freqHz / sampleRate
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	num := complex(f.B0, 0) + complex(f.B1, 0)*z1 + complex(f.B2, 0)*z2
	den := 1 + complex(f.A1, 0)*z1 + complex(f.A2, 0)*z2
	return cmplx.Abs(num / den)
}

// BandGainDB returns the mean power gain, in dB, of the section between loHz
// and hiHz, sampled every 10 Hz.
func (f Biquad) BandGainDB(loHz, hiHz, sampleRate float64) float64 {
	var sum float64
	n := 0
	for hz := loHz; hz <= hiHz; hz += 10 {
		m := f.Magnitude(hz, sampleRate)
		sum += m * m
		n++
	}
	if n == 0 || sum <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(sum/float64(n))
}
