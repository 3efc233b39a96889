package audio

import (
	"math"
)

const (
	// DefaultSampleRate is the rate every stimulus is rendered at.
	DefaultSampleRate = 44100

	// SilenceFloorDBFS is reported for buffers whose RMS is zero or too small
	// to measure. Gain is never computed against the floor.
	SilenceFloorDBFS = -120.0

	maxInt16  = 32767.0
	fullScale = 32768.0
)

// Buffer is mono PCM audio held as float64 samples where ±1.0 is full scale
// of a 16-bit signal.
type Buffer struct {
	SampleRate int
	Samples    []float64
}

// NewBuffer wraps samples without copying.
func NewBuffer(sampleRate int, samples []float64) *Buffer {
	return &Buffer{SampleRate: sampleRate, Samples: samples}
}

// FramesForMs returns the number of frames covering ms milliseconds,
// truncated toward zero.
func FramesForMs(sampleRate, ms int) int {
	if ms <= 0 {
		return 0
	}
	return int(int64(sampleRate) * int64(ms) / 1000)
}

// Silence returns ms milliseconds of digital silence.
func Silence(sampleRate, ms int) *Buffer {
	return NewBuffer(sampleRate, make([]float64, FramesForMs(sampleRate, ms)))
}

// Len returns the number of frames.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}

// DurationMs returns the buffer length in whole milliseconds, rounded to the
// nearest millisecond.
func (b *Buffer) DurationMs() int {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return int(math.Round(float64(len(b.Samples)) * 1000 / float64(b.SampleRate)))
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	out := make([]float64, len(b.Samples))
	copy(out, b.Samples)
	return NewBuffer(b.SampleRate, out)
}

// Concat joins buffers end to end. Parts at a different rate are resampled
// to sampleRate first.
func Concat(sampleRate int, parts ...*Buffer) *Buffer {
	total := 0
	for _, p := range parts {
		total += p.Len()
	}
	out := make([]float64, 0, total)
	for _, p := range parts {
		if p == nil {
			continue
		}
		out = append(out, p.Resample(sampleRate).Samples...)
	}
	return NewBuffer(sampleRate, out)
}

// Overlay mixes other into a copy of b starting at positionMs. The result
// keeps b's length: anything in other past the end of b is dropped. The sum
// saturates at 16-bit full scale.
func (b *Buffer) Overlay(other *Buffer, positionMs int) *Buffer {
	out := b.Clone()
	if other == nil {
		return out
	}
	src := other.Resample(b.SampleRate).Samples
	start := FramesForMs(b.SampleRate, positionMs)
	for i, s := range src {
		j := start + i
		if j >= len(out.Samples) {
			break
		}
		out.Samples[j] = clamp(out.Samples[j] + s)
	}
	return out
}

// RMS returns the root mean square of the samples.
func (b *Buffer) RMS() float64 {
	if b.Len() == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.Samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(b.Samples)))
}

// Peak returns the largest absolute sample value.
func (b *Buffer) Peak() float64 {
	var peak float64
	for _, s := range b.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// DBFS returns the RMS level relative to full scale, floored at
// SilenceFloorDBFS.
func (b *Buffer) DBFS() float64 {
	rms := b.RMS()
	if rms <= 0 {
		return SilenceFloorDBFS
	}
	db := 20 * math.Log10(rms)
	if db < SilenceFloorDBFS {
		return SilenceFloorDBFS
	}
	return db
}

// ApplyGain returns a copy scaled by db decibels, saturating at full scale.
func (b *Buffer) ApplyGain(db float64) *Buffer {
	out := b.Clone()
	g := math.Pow(10, db/20)
	for i, s := range out.Samples {
		out.Samples[i] = clamp(s * g)
	}
	return out
}

// NormalizeTo returns a copy whose RMS level equals target dBFS. A buffer at
// the silence floor is returned unchanged since no finite gain can lift it.
func (b *Buffer) NormalizeTo(target float64) *Buffer {
	level := b.DBFS()
	if level <= SilenceFloorDBFS {
		return b.Clone()
	}
	return b.ApplyGain(target - level)
}

// PeakNormalize scales the buffer in place so its peak equals peak.
func (b *Buffer) PeakNormalize(peak float64) {
	top := b.Peak()
	if top == 0 {
		return
	}
	g := peak / top
	for i := range b.Samples {
		b.Samples[i] *= g
	}
}

// Quantize rounds every sample in place onto the 16-bit grid.
func (b *Buffer) Quantize() {
	for i, s := range b.Samples {
		b.Samples[i] = float64(toInt16(s)) / fullScale
	}
}

// Int16 returns the samples as signed 16-bit PCM.
func (b *Buffer) Int16() []int16 {
	out := make([]int16, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = toInt16(s)
	}
	return out
}

// PCM16LE returns the samples as little-endian signed 16-bit bytes.
func (b *Buffer) PCM16LE() []byte {
	out := make([]byte, 2*len(b.Samples))
	for i, s := range b.Samples {
		v := uint16(toInt16(s))
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// FromInt16 builds a buffer from 16-bit PCM.
func FromInt16(sampleRate int, pcm []int16) *Buffer {
	out := make([]float64, len(pcm))
	for i, s := range pcm {
		out[i] = float64(s) / fullScale
	}
	return NewBuffer(sampleRate, out)
}

// Resample converts the buffer to rate using linear interpolation. When the
// rate already matches the result shares the receiver's samples.
func (b *Buffer) Resample(rate int) *Buffer {
	if b == nil {
		return NewBuffer(rate, nil)
	}
	if b.SampleRate == rate || b.SampleRate <= 0 || len(b.Samples) == 0 {
		return NewBuffer(rate, b.Samples)
	}

	ratio := float64(b.SampleRate) / float64(rate)
	n := int(math.Round(float64(len(b.Samples)) / ratio))
	out := make([]float64, n)
	last := len(b.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = b.Samples[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = b.Samples[idx]*(1-frac) + b.Samples[idx+1]*frac
	}
	return NewBuffer(rate, out)
}

func clamp(s float64) float64 {
	if s > maxInt16/fullScale {
		return maxInt16 / fullScale
	}
	if s < -1 {
		return -1
	}
	return s
}

func toInt16(s float64) int16 {
	v := math.Round(s * fullScale)
	if v > maxInt16 {
		v = maxInt16
	}
	if v < -fullScale {
		v = -fullScale
	}
	return int16(v)
}
