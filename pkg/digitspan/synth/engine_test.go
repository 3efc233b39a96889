package synth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/logger"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

// fakeCache serves canned WAV clips and counts misses.
type fakeCache struct {
	clips map[string][]byte
}

func (f *fakeCache) GetOrCreate(_ context.Context, code string, digit int) ([]byte, bool, error) {
	data, ok := f.clips[fmt.Sprintf("%s_%d", code, digit)]
	if !ok {
		return nil, false, errors.New("provider unavailable")
	}
	return data, false, nil
}

// toneClip is a clip of ms milliseconds whose first sample is non-zero.
func toneClip(t *testing.T, ms int, freq float64) []byte {
	t.Helper()
	n := audio.FramesForMs(audio.DefaultSampleRate, ms)
	s := make([]float64, n)
	for i := range s {
		s[i] = 0.3 * math.Cos(2*math.Pi*freq*float64(i)/audio.DefaultSampleRate)
	}
	data, err := audio.EncodeWAV(audio.NewBuffer(audio.DefaultSampleRate, s))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestEngine(t *testing.T, clips map[string][]byte) *Engine {
	t.Helper()
	return New(&fakeCache{clips: clips},
		WithEncoder(audio.WAVEncoder{}),
		WithLogger(logger.Nop()),
		WithSeed(42),
	)
}

func TestLanguageCode(t *testing.T) {
	tests := map[string]string{
		"English": "en",
		"Hebrew":  "iw",
		"Arabic":  "ar",
		"Amharic": "am",
		"Klingon": "en",
		"":        "en",
	}
	for lang, want := range tests {
		if got := LanguageCode(lang); got != want {
			t.Errorf("LanguageCode(%q) = %q, want %q", lang, got, want)
		}
	}
	if len(Languages()) != 4 || !IsSupported("Amharic") || IsSupported("english") {
		t.Error("language table mismatch")
	}
}

func TestSpeechShapedNoise(t *testing.T) {
	e := newTestEngine(t, nil)
	noise := e.SpeechShapedNoise(1000)

	if noise.Len() != 44100 || noise.DurationMs() != 1000 {
		t.Fatalf("expected 44100 frames, got %d", noise.Len())
	}
	if math.Abs(noise.Peak()-NoisePeak) > 1.0/32768 {
		t.Errorf("peak = %f, want %f", noise.Peak(), NoisePeak)
	}
	st := audio.Analyze(noise)
	if math.Abs(st.Mean) > 0.05 {
		t.Errorf("noise should be zero-mean, got %f", st.Mean)
	}
	if st.LowHighDiff < 20 {
		t.Errorf("expected low-pass spectral tilt, got %.1f dB", st.LowHighDiff)
	}
	if st.CentroidHz > 2500 {
		t.Errorf("centroid %.0f Hz too high for speech-shaped noise", st.CentroidHz)
	}
}

func TestSpeechShapedNoiseSeeded(t *testing.T) {
	a := newTestEngine(t, nil).SpeechShapedNoise(50)
	b := newTestEngine(t, nil).SpeechShapedNoise(50)
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatalf("same seed diverged at sample %d", i)
		}
	}

	e := newTestEngine(t, nil)
	first, second := e.SpeechShapedNoise(50), e.SpeechShapedNoise(50)
	same := true
	for i := range first.Samples {
		if first.Samples[i] != second.Samples[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("consecutive calls must draw fresh noise")
	}
}

func TestNoiseOnlyTrial(t *testing.T) {
	e := newTestEngine(t, nil)
	for _, snr := range []float64{0, 5, 10} {
		r, err := e.RenderTrial(context.Background(), TrialAudioRequest{
			SNR:          snr,
			ISIMs:        800,
			RetentionMs:  1000,
			NoiseOnsetMs: 1000,
			Language:     "English",
		})
		if err != nil {
			t.Fatalf("RenderTrial failed: %v", err)
		}
		if r.DurationMs != 2000 || r.Mix.DurationMs() != 2000 {
			t.Errorf("snr %g: duration %d/%d, want 2000", snr, r.DurationMs, r.Mix.DurationMs())
		}
		if got, want := r.Mix.DBFS(), ReferenceDBFS-snr; math.Abs(got-want) > 0.05 {
			t.Errorf("snr %g: noise at %.2f dBFS, want %.2f", snr, got, want)
		}
	}
}

func TestTrialTimeline(t *testing.T) {
	clips := map[string][]byte{
		"en_1": toneClip(t, 300, 440),
		"en_2": toneClip(t, 400, 660),
	}
	e := newTestEngine(t, clips)

	r, err := e.RenderTrial(context.Background(), TrialAudioRequest{
		Digits:       []int{1, 2},
		SNR:          5,
		ISIMs:        200,
		RetentionMs:  1000,
		NoiseOnsetMs: 2000,
		Language:     "English",
	})
	if err != nil {
		t.Fatalf("RenderTrial failed: %v", err)
	}

	want := 2000 + (300 + 200 + 400) + 1000
	if r.DurationMs != want {
		t.Errorf("duration = %d, want %d", r.DurationMs, want)
	}
	if r.Mix.DurationMs() != want {
		t.Errorf("mixed buffer lasts %dms, want %d", r.Mix.DurationMs(), want)
	}
	if r.SpeechOnsetMs != 2000 || len(r.Degraded) != 0 {
		t.Errorf("onset %d degraded %v", r.SpeechOnsetMs, r.Degraded)
	}

	if got := r.Speech.DBFS(); math.Abs(got-ReferenceDBFS) > 0.05 {
		t.Errorf("speech at %.2f dBFS, want %.1f", got, ReferenceDBFS)
	}
	if got := r.Noise.DBFS(); math.Abs(got-(ReferenceDBFS-5)) > 0.05 {
		t.Errorf("noise at %.2f dBFS, want %.1f", got, ReferenceDBFS-5)
	}

	onset := audio.FramesForMs(audio.DefaultSampleRate, 2000)
	for i := 0; i < onset; i++ {
		if r.Mix.Samples[i] != r.Noise.Samples[i] {
			t.Fatalf("speech leaked before onset at frame %d", i)
		}
	}
	if r.Mix.Samples[onset] == r.Noise.Samples[onset] {
		t.Fatal("speech should start exactly at the onset frame")
	}
	for i := onset; i < onset+r.Speech.Len(); i++ {
		want := r.Noise.Samples[i] + r.Speech.Samples[i-onset]
		if math.Abs(r.Mix.Samples[i]-want) > 1e-12 {
			t.Fatalf("frame %d is not noise+speech", i)
		}
	}
	tail := onset + r.Speech.Len()
	for i := tail; i < r.Mix.Len(); i++ {
		if r.Mix.Samples[i] != r.Noise.Samples[i] {
			t.Fatalf("retention should be noise only, frame %d differs", i)
		}
	}
}

func TestTrialAudioSubstitutesSilence(t *testing.T) {
	e := newTestEngine(t, map[string][]byte{"iw_4": toneClip(t, 300, 500)})

	art, err := e.TrialAudio(context.Background(), TrialAudioRequest{
		Digits:       []int{4, 8},
		SNR:          0,
		ISIMs:        100,
		RetentionMs:  500,
		NoiseOnsetMs: 500,
		Language:     "Hebrew",
	})
	if err != nil {
		t.Fatalf("TrialAudio failed: %v", err)
	}
	if len(art.Degraded) != 1 || art.Degraded[0] != 8 {
		t.Errorf("expected digit 8 degraded, got %v", art.Degraded)
	}
	if want := 500 + 300 + 100 + FallbackClipMs + 500; art.DurationMs != want {
		t.Errorf("duration = %d, want %d", art.DurationMs, want)
	}
	if art.MIMEType != "audio/wav" || !audio.IsWAV(art.Data) {
		t.Error("artifact should be WAV with the test encoder")
	}
	if _, err := base64.StdEncoding.DecodeString(art.Base64()); err != nil {
		t.Errorf("invalid base64: %v", err)
	}
}

func TestTrialAudioAllClipsMissing(t *testing.T) {
	e := newTestEngine(t, nil)
	r, err := e.RenderTrial(context.Background(), TrialAudioRequest{
		Digits:       []int{1, 2, 3},
		SNR:          10,
		ISIMs:        0,
		RetentionMs:  0,
		NoiseOnsetMs: 0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Speech.Peak() != 0 {
		t.Error("silent speech must stay silent")
	}
	for _, s := range r.Mix.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			t.Fatal("mix contains non-finite samples")
		}
	}
	if got := r.Mix.DBFS(); math.Abs(got-(ReferenceDBFS-10)) > 0.05 {
		t.Errorf("noise at %.2f dBFS, want -30", got)
	}
}

func TestRenderTrialRejectsNegativeTiming(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.RenderTrial(context.Background(), TrialAudioRequest{ISIMs: -1})
	if !errors.Is(err, ErrInvalidTiming) {
		t.Errorf("expected ErrInvalidTiming, got %v", err)
	}
}

func TestRejectsNonFiniteSNR(t *testing.T) {
	e := newTestEngine(t, nil)
	for _, snr := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := e.RenderTrial(context.Background(), TrialAudioRequest{SNR: snr}); !errors.Is(err, ErrInvalidSNR) {
			t.Errorf("RenderTrial(snr=%v): expected ErrInvalidSNR, got %v", snr, err)
		}
		if _, err := e.CalibrationAudio(context.Background(), snr, 1); !errors.Is(err, ErrInvalidSNR) {
			t.Errorf("CalibrationAudio(snr=%v): expected ErrInvalidSNR, got %v", snr, err)
		}
	}
}

func TestDigitAudioRejectsNonDigits(t *testing.T) {
	cache := &countingCache{}
	e := New(cache, WithEncoder(audio.WAVEncoder{}), WithLogger(logger.Nop()), WithSeed(1))

	for _, d := range []int{-5, 10, 12345} {
		res := e.DigitAudio(context.Background(), d, "English")
		if res.OK() || !errors.Is(res.Err, ErrInvalidDigit) {
			t.Errorf("digit %d: expected ErrInvalidDigit, got %+v", d, res)
		}
	}
	if cache.calls != 0 {
		t.Errorf("cache consulted %d times for non-digits", cache.calls)
	}
}

type countingCache struct{ calls int }

func (c *countingCache) GetOrCreate(context.Context, string, int) ([]byte, bool, error) {
	c.calls++
	return nil, false, errors.New("unexpected lookup")
}

func TestDigitAudioStatus(t *testing.T) {
	e := newTestEngine(t, map[string][]byte{"ar_5": toneClip(t, 250, 300)})

	ok := e.DigitAudio(context.Background(), 5, "Arabic")
	if !ok.OK() || ok.Status != models.ClipCached || ok.Audio.DurationMs() != 250 {
		t.Errorf("unexpected result %+v", ok)
	}

	bad := e.DigitAudio(context.Background(), 6, "Arabic")
	if bad.OK() || bad.Status != models.ClipSynthesisFailed || bad.Err == nil {
		t.Errorf("expected failure, got %+v", bad)
	}
	if bad.Audio.DurationMs() != FallbackClipMs {
		t.Errorf("fallback lasts %dms", bad.Audio.DurationMs())
	}
}

func TestDigitBase64(t *testing.T) {
	e := newTestEngine(t, map[string][]byte{"en_1": toneClip(t, 200, 300)})
	if got := e.DigitBase64(context.Background(), 1, "English"); got == "" {
		t.Error("expected encoded clip")
	}
	if got := e.DigitBase64(context.Background(), 2, "English"); got != "" {
		t.Errorf("failed clip should give empty string, got %d chars", len(got))
	}
}

func TestCalibrationAudio(t *testing.T) {
	e := newTestEngine(t, nil)
	art, err := e.CalibrationAudio(context.Background(), 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	if art.DurationMs != 2000 {
		t.Errorf("duration = %d", art.DurationMs)
	}
	buf, err := audio.DecodeClip(art.Data, audio.DefaultSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	if got := buf.DBFS(); math.Abs(got-(-30)) > 0.1 {
		t.Errorf("calibration noise at %.2f dBFS, want -30", got)
	}
}

func TestDemoDigits(t *testing.T) {
	tests := []struct {
		in   []int
		want []int
	}{
		{[]int{1, 2, 3, 4}, []int{1, 2, 3}},
		{[]int{2, 5, 9}, []int{2}},
		{[]int{4, 5, 6, 7}, []int{4, 5, 6}},
		{[]int{8}, []int{8}},
	}
	for _, tt := range tests {
		got := DemoDigits(tt.in)
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("DemoDigits(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
