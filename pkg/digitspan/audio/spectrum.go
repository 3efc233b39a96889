package audio

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	WindowSize = 4096
	HopSize    = 2048
)

func Hamming(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// PowerSpectrum returns |X(k)|² for the first half of the real FFT of frame.
func PowerSpectrum(frame []float64) []float64 {
	spec := fft.FFTReal(frame)
	half := len(spec) / 2
	pow := make([]float64, half)
	for i := 0; i < half; i++ {
		m := cmplx.Abs(spec[i])
		pow[i] = m * m
	}
	return pow
}

// WelchPSD averages windowed power spectra over overlapping frames. Bin k
// sits at k*rate/windowSize Hz.
func WelchPSD(samples []float64, windowSize, hopSize int) ([]float64, error) {
	if windowSize <= 0 || hopSize <= 0 {
		return nil, errors.New("window and hop must be positive")
	}
	if len(samples) < windowSize {
		return nil, errors.New("input shorter than window size")
	}

	win := Hamming(windowSize)
	psd := make([]float64, windowSize/2)
	frames := 0
	frame := make([]float64, windowSize)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		for i := 0; i < windowSize; i++ {
			frame[i] = samples[start+i] * win[i]
		}
		floats.Add(psd, PowerSpectrum(frame))
		frames++
	}
	floats.Scale(1/float64(frames), psd)
	return psd, nil
}

// BandLevelDB returns the mean PSD level, in dB, of the bins between loHz and
// hiHz inclusive.
func BandLevelDB(psd []float64, sampleRate, windowSize int, loHz, hiHz float64) float64 {
	binHz := float64(sampleRate) / float64(windowSize)
	lo := int(math.Ceil(loHz / binHz))
	hi := int(math.Floor(hiHz / binHz))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(psd) {
		hi = len(psd) - 1
	}
	if hi < lo {
		return math.Inf(-1)
	}
	mean := stat.Mean(psd[lo:hi+1], nil)
	if mean <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(mean)
}

// Stats summarises a rendered buffer.
type Stats struct {
	DurationMs  int
	Mean        float64
	StdDev      float64
	Peak        float64
	DBFS        float64
	CentroidHz  float64
	LowHighDiff float64 // dB between the 100–500 Hz and 4–8 kHz bands
}

// ExpectedTiltDB is the LowHighDiff that f imposes on white noise, for
// comparison with a measured Stats.LowHighDiff.
func ExpectedTiltDB(f Biquad, sampleRate float64) float64 {
	return f.BandGainDB(100, 500, sampleRate) - f.BandGainDB(4000, 8000, sampleRate)
}

// Analyze computes level and spectral statistics. Buffers shorter than one
// analysis window get level statistics only.
func Analyze(b *Buffer) Stats {
	st := Stats{
		DurationMs: b.DurationMs(),
		Peak:       b.Peak(),
		DBFS:       b.DBFS(),
	}
	if b.Len() == 0 {
		return st
	}
	st.Mean, st.StdDev = stat.MeanStdDev(b.Samples, nil)

	psd, err := WelchPSD(b.Samples, WindowSize, HopSize)
	if err != nil {
		return st
	}
	binHz := float64(b.SampleRate) / float64(WindowSize)
	freqs := make([]float64, len(psd))
	for i := range freqs {
		freqs[i] = float64(i) * binHz
	}
	if total := floats.Sum(psd); total > 0 {
		st.CentroidHz = floats.Dot(freqs, psd) / total
	}
	st.LowHighDiff = BandLevelDB(psd, b.SampleRate, WindowSize, 100, 500) -
		BandLevelDB(psd, b.SampleRate, WindowSize, 4000, 8000)
	return st
}
