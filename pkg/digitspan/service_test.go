package digitspan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/session"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/settings"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/tts"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/logger"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

func cannedDigits(t *testing.T, lang string, digits ...int) *tts.Canned {
	t.Helper()
	p := tts.NewCanned()
	for _, d := range digits {
		clip, err := audio.EncodeWAV(audio.NewBuffer(audio.DefaultSampleRate, toneSamples(200+20*d)))
		if err != nil {
			t.Fatal(err)
		}
		p.Set(lang, string(rune('0'+d)), clip)
	}
	return p
}

func toneSamples(ms int) []float64 {
	s := make([]float64, audio.FramesForMs(audio.DefaultSampleRate, ms))
	for i := range s {
		if i%100 < 50 {
			s[i] = 0.2
		} else {
			s[i] = -0.2
		}
	}
	return s
}

func newTestService(t *testing.T, p Synthesizer) Service {
	t.Helper()
	dir := t.TempDir()
	svc, err := NewService(
		WithAssetsDir(filepath.Join(dir, "assets")),
		WithDBPath(filepath.Join(dir, "assets", "clips.sqlite3")),
		WithSynthesizer(p),
		WithEncoder(audio.WAVEncoder{}),
		WithLogger(logger.Nop()),
		WithSeed(11),
	)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestServiceTrialAudioUsesCache(t *testing.T) {
	p := cannedDigits(t, "iw", 1, 2)
	svc := newTestService(t, p)
	ctx := context.Background()

	req := TrialAudioRequest{Digits: []int{1, 2}, SNR: 5, ISIMs: 200, RetentionMs: 1000, NoiseOnsetMs: 2000, Language: "Hebrew"}
	art, err := svc.TrialAudio(ctx, req)
	if err != nil {
		t.Fatalf("TrialAudio failed: %v", err)
	}
	if want := 2000 + 220 + 200 + 240 + 1000; art.DurationMs != want {
		t.Errorf("duration = %d, want %d", art.DurationMs, want)
	}
	if _, err := svc.TrialAudio(ctx, req); err != nil {
		t.Fatal(err)
	}
	if p.Calls() != 2 {
		t.Errorf("provider called %d times, want 2 (one per digit)", p.Calls())
	}

	clips, err := svc.ListClips()
	if err != nil {
		t.Fatal(err)
	}
	if len(clips) != 2 || clips[0].Code != "iw" || clips[0].DurationMs != 220 {
		t.Errorf("unexpected manifest %+v", clips)
	}
}

func TestServiceWarmCache(t *testing.T) {
	svc := newTestService(t, cannedDigits(t, "en", 1, 2, 3))
	failed, err := svc.WarmCache(context.Background(), "English", []int{1, 2, 3, 4})
	if err == nil || len(failed) != 1 || failed[0] != 4 {
		t.Errorf("expected digit 4 to fail, got %v %v", failed, err)
	}
	res := svc.DigitAudio(context.Background(), 2, "English")
	if res.Status != models.ClipCached {
		t.Errorf("warmed clip reported %s", res.Status)
	}
}

func TestServiceVerifyAndForgetClip(t *testing.T) {
	p := cannedDigits(t, "en", 5, 6)
	svc := newTestService(t, p)
	ctx := context.Background()

	if _, err := svc.WarmCache(ctx, "English", []int{5, 6}); err != nil {
		t.Fatal(err)
	}
	clips, _ := svc.ListClips()
	if len(clips) != 2 {
		t.Fatalf("expected 2 manifest rows, got %d", len(clips))
	}

	bad, err := svc.VerifyClips()
	if err != nil || len(bad) != 0 {
		t.Fatalf("fresh cache should verify, got %v %v", bad, err)
	}

	if err := os.WriteFile(clips[1].Path, []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad, _ = svc.VerifyClips()
	if len(bad) != 1 || bad[0].Digit != 6 {
		t.Fatalf("expected digit 6 to fail verification, got %+v", bad)
	}

	if err := svc.ForgetClip("English", 6); err != nil {
		t.Fatalf("ForgetClip failed: %v", err)
	}
	if _, err := os.Stat(clips[1].Path); !os.IsNotExist(err) {
		t.Errorf("clip file should be gone, stat err = %v", err)
	}
	if res := svc.DigitAudio(ctx, 6, "English"); res.Status != models.ClipSynthesized {
		t.Errorf("forgotten clip should be synthesized again, got %s", res.Status)
	}
	if err := svc.ForgetClip("English", 4); err != nil {
		t.Errorf("forgetting an uncached clip should succeed, got %v", err)
	}
}

func TestServiceGenerateTrials(t *testing.T) {
	svc := newTestService(t, tts.NewCanned())
	practice, main, rep, err := svc.GenerateTrials(Design{
		Digits: []int{1, 2, 3}, Loads: []int{3}, SNRs: []int{10, 0}, MainReps: 5, NumPractice: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(practice) != 3 || len(main) != 10 || len(rep.Conditions) != 2 {
		t.Errorf("got %d/%d trials over %d conditions", len(practice), len(main), len(rep.Conditions))
	}

	if _, _, _, err := svc.GenerateTrials(Design{}); !errors.Is(err, ErrNoDigits) {
		t.Errorf("expected ErrNoDigits, got %v", err)
	}

	csv := svc.ExportCSV(nil)
	if !strings.HasPrefix(csv, "timestamp,subject_id,session,block") {
		t.Errorf("unexpected header %q", csv)
	}
}

type scriptedResponder struct{}

func (scriptedResponder) Ready(context.Context, models.Block, int) error { return nil }
func (scriptedResponder) Respond(_ context.Context, tr *models.Trial) (bool, error) {
	return tr.IsMatch, nil
}

type silentPlayer struct{}

func (silentPlayer) Play(context.Context, *models.Artifact) error { return nil }

func TestServiceSession(t *testing.T) {
	svc := newTestService(t, cannedDigits(t, "ar", 1, 2, 3, 4))

	cfg := settings.Default()
	cfg.Stimuli.Digits = []int{1, 2, 3, 4}
	cfg.Stimuli.Language = "Arabic"
	cfg.Design.Loads = []int{2}
	cfg.Design.SNRs = []int{5}
	cfg.Design.MainReps = 3
	cfg.Design.NumPractice = 1
	cfg.Storage.OutputDir = t.TempDir()

	noWait := func(context.Context, time.Duration) error { return nil }
	r, _, err := svc.NewSession(cfg, silentPlayer{}, scriptedResponder{}, session.WithSleep(noWait))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	sum, err := r.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Correct != 3 || sum.Total != 3 || sum.Accuracy != 100 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestOptionsFromSettings(t *testing.T) {
	s := settings.Default()
	s.Audio.Format = "wav"
	s.TTS.Mode = "command"
	s.TTS.Command = "espeak-ng -v {lang} --stdout {text}"
	s.Design.Seed = 42

	opts, err := OptionsFromSettings(s)
	if err != nil {
		t.Fatal(err)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Encoder.Ext() != "wav" {
		t.Errorf("encoder ext = %s, want wav", cfg.Encoder.Ext())
	}
	if cfg.Provider.Name() != "exec:espeak-ng" {
		t.Errorf("provider = %s", cfg.Provider.Name())
	}
	if !cfg.Seeded || cfg.Seed != 42 {
		t.Errorf("seed not applied: %+v", cfg)
	}

	s.TTS.Command = `say "unterminated`
	if _, err := OptionsFromSettings(s); err == nil {
		t.Error("expected an error for an unparsable command")
	}
}
