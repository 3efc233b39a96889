package audio

import (
	"math"
	"testing"
)

func sine(rate, ms int, freq, amp float64) *Buffer {
	n := FramesForMs(rate, ms)
	s := make([]float64, n)
	for i := range s {
		s[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return NewBuffer(rate, s)
}

func TestSilenceAndDuration(t *testing.T) {
	tests := []struct {
		ms     int
		frames int
	}{
		{0, 0},
		{200, 8820},
		{500, 22050},
		{1000, 44100},
		{-5, 0},
	}
	for _, tt := range tests {
		b := Silence(DefaultSampleRate, tt.ms)
		if b.Len() != tt.frames {
			t.Errorf("Silence(%d) has %d frames, want %d", tt.ms, b.Len(), tt.frames)
		}
		if tt.ms > 0 && b.DurationMs() != tt.ms {
			t.Errorf("Silence(%d).DurationMs() = %d", tt.ms, b.DurationMs())
		}
	}
}

func TestConcatResamplesParts(t *testing.T) {
	a := Silence(DefaultSampleRate, 300)
	b := Silence(22050, 200) // half rate, 4410 frames
	out := Concat(DefaultSampleRate, a, nil, b)

	if out.SampleRate != DefaultSampleRate {
		t.Fatalf("expected rate %d, got %d", DefaultSampleRate, out.SampleRate)
	}
	if got := out.DurationMs(); got != 500 {
		t.Errorf("expected 500ms, got %d", got)
	}
}

func TestOverlayIsAdditiveAndKeepsLength(t *testing.T) {
	base := NewBuffer(1000, []float64{0.1, 0.1, 0.1, 0.1, 0.1})
	top := NewBuffer(1000, []float64{0.2, 0.2, 0.2, 0.2})

	out := base.Overlay(top, 3) // 3 frames at 1 kHz
	want := []float64{0.1, 0.1, 0.1, 0.3, 0.3}
	if out.Len() != base.Len() {
		t.Fatalf("overlay changed length: %d", out.Len())
	}
	for i, w := range want {
		if math.Abs(out.Samples[i]-w) > 1e-12 {
			t.Errorf("sample %d = %f, want %f", i, out.Samples[i], w)
		}
	}
	if base.Samples[3] != 0.1 {
		t.Error("overlay must not modify the receiver")
	}
}

func TestOverlaySaturates(t *testing.T) {
	base := NewBuffer(1000, []float64{0.9, -0.9})
	out := base.Overlay(NewBuffer(1000, []float64{0.9, -0.9}), 0)
	if out.Samples[0] > 1 || out.Samples[1] < -1 {
		t.Errorf("overlay should saturate, got %v", out.Samples)
	}
}

func TestDBFS(t *testing.T) {
	full := sine(DefaultSampleRate, 1000, 440, 1.0)
	if got := full.DBFS(); math.Abs(got-(-3.0103)) > 0.05 {
		t.Errorf("full-scale sine should be about -3.01 dBFS, got %.3f", got)
	}

	if got := Silence(DefaultSampleRate, 100).DBFS(); got != SilenceFloorDBFS {
		t.Errorf("silence should report the floor, got %f", got)
	}
	if got := NewBuffer(DefaultSampleRate, nil).DBFS(); got != SilenceFloorDBFS {
		t.Errorf("empty buffer should report the floor, got %f", got)
	}
}

func TestNormalizeTo(t *testing.T) {
	quiet := sine(DefaultSampleRate, 500, 300, 0.01)
	for _, target := range []float64{-20, -30, -10} {
		got := quiet.NormalizeTo(target).DBFS()
		if math.Abs(got-target) > 0.01 {
			t.Errorf("NormalizeTo(%.0f) gave %.3f dBFS", target, got)
		}
	}

	silent := Silence(DefaultSampleRate, 500)
	out := silent.NormalizeTo(-20)
	if out.Peak() != 0 {
		t.Error("normalising silence must not introduce signal")
	}
}

func TestPeakNormalizeAndQuantize(t *testing.T) {
	b := NewBuffer(1000, []float64{0.25, -2, 1})
	b.PeakNormalize(0.5)
	if math.Abs(b.Peak()-0.5) > 1e-12 {
		t.Fatalf("peak = %f, want 0.5", b.Peak())
	}
	b.Quantize()
	for _, s := range b.Samples {
		if v := s * 32768; math.Abs(v-math.Round(v)) > 1e-9 {
			t.Errorf("sample %f is off the 16-bit grid", s)
		}
	}
}

func TestInt16RoundTrip(t *testing.T) {
	pcm := []int16{0, 1, -1, 32767, -32768, 12345}
	got := FromInt16(8000, pcm).Int16()
	for i := range pcm {
		if got[i] != pcm[i] {
			t.Errorf("sample %d: got %d want %d", i, got[i], pcm[i])
		}
	}
	if le := FromInt16(8000, []int16{0x0102}).PCM16LE(); le[0] != 0x02 || le[1] != 0x01 {
		t.Errorf("PCM16LE not little-endian: %v", le)
	}
}

func TestResample(t *testing.T) {
	b := sine(24000, 1000, 200, 0.5)
	out := b.Resample(DefaultSampleRate)
	if out.Len() != DefaultSampleRate {
		t.Errorf("expected %d frames, got %d", DefaultSampleRate, out.Len())
	}
	if math.Abs(out.DBFS()-b.DBFS()) > 0.1 {
		t.Errorf("resampling changed level: %.2f vs %.2f", out.DBFS(), b.DBFS())
	}
}
