package digitspan

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/cache"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/record"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/schedule"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/session"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/settings"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/storage"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/synth"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/tts"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/logger"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

// digitSpanService is the default implementation of the Service interface.
type digitSpanService struct {
	engine *synth.Engine
	sched  *schedule.Scheduler
	store  *cache.Store // nil when a custom ClipCache is injected
	index  ClipIndex
	log    Logger
	config *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	index := cfg.ClipIndex
	if index == nil && cfg.DBPath != "" && cfg.ClipCache == nil {
		var err error
		index, err = NewSQLiteIndex(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open clip manifest: %w", err)
		}
	}

	svc := &digitSpanService{index: index, log: cfg.Logger, config: cfg}

	clips := cfg.ClipCache
	if clips == nil {
		provider := cfg.Provider
		if provider == nil {
			provider = tts.NewGoogleTranslate(0)
		}
		storeOpts := []cache.Option{cache.WithLogger(cfg.Logger)}
		if index != nil {
			storeOpts = append(storeOpts, cache.WithIndex(index))
		}
		svc.store = cache.New(cfg.AssetsDir, provider, storeOpts...)
		clips = svc.store
	}

	engineOpts := []synth.Option{
		synth.WithSampleRate(cfg.SampleRate),
		synth.WithLogger(cfg.Logger),
	}
	if cfg.Encoder != nil {
		engineOpts = append(engineOpts, synth.WithEncoder(cfg.Encoder))
	}
	if cfg.Seeded {
		engineOpts = append(engineOpts, synth.WithSeed(cfg.Seed))
		svc.sched = schedule.NewSeeded(cfg.Seed + 1)
	} else {
		svc.sched = schedule.New(nil)
	}
	svc.engine = synth.New(clips, engineOpts...)

	return svc, nil
}

func (s *digitSpanService) SpeechShapedNoise(durationMs int) *audio.Buffer {
	return s.engine.SpeechShapedNoise(durationMs)
}

func (s *digitSpanService) DigitAudio(ctx context.Context, digit int, lang string) models.ClipResult {
	return s.engine.DigitAudio(ctx, digit, lang)
}

func (s *digitSpanService) TrialAudio(ctx context.Context, req TrialAudioRequest) (*Artifact, error) {
	return s.engine.TrialAudio(ctx, req)
}

func (s *digitSpanService) RenderTrial(ctx context.Context, req TrialAudioRequest) (*synth.Rendering, error) {
	return s.engine.RenderTrial(ctx, req)
}

func (s *digitSpanService) DigitArtifact(ctx context.Context, digit int, lang string) (*Artifact, error) {
	return s.engine.DigitArtifact(ctx, digit, lang)
}

func (s *digitSpanService) DigitBase64(ctx context.Context, digit int, lang string) string {
	return s.engine.DigitBase64(ctx, digit, lang)
}

func (s *digitSpanService) CalibrationAudio(ctx context.Context, snr float64, durationSec int) (*Artifact, error) {
	return s.engine.CalibrationAudio(ctx, snr, durationSec)
}

func (s *digitSpanService) DemoAudio(ctx context.Context, available []int, snr float64, isiMs int, lang string) (*Artifact, error) {
	return s.engine.DemoAudio(ctx, available, snr, isiMs, lang)
}

// GenerateTrials lays out practice and main blocks and warns when the design
// had to be altered.
func (s *digitSpanService) GenerateTrials(d Design) ([]Trial, []Trial, Report, error) {
	practice, main, rep, err := s.sched.Generate(d)
	if err != nil {
		return nil, nil, rep, err
	}
	if rep.FallbackLoad {
		s.log.Warnf("no requested load fits %d digits; using load %d", len(schedule.UniqueDigits(d.Digits)), rep.Conditions[0].Load)
	}
	if rep.ForcedMatches > 0 {
		s.log.Warnf("%d trials use every available digit and were forced to match; the match rate is no longer 50%%", rep.ForcedMatches)
	}
	s.log.Infof("Generated %d practice and %d main trials over %d conditions", len(practice), len(main), len(rep.Conditions))
	return practice, main, rep, nil
}

func (s *digitSpanService) ExportCSV(trials []Trial) string {
	return record.ExportCSV(trials)
}

// NewSession generates trials from cfg and returns a runner wired to this
// service's synthesis engine.
func (s *digitSpanService) NewSession(cfg settings.Settings, player session.Player, responder session.Responder, opts ...session.Option) (*session.Runner, Report, error) {
	practice, main, rep, err := s.GenerateTrials(cfg.ScheduleDesign())
	if err != nil {
		return nil, rep, err
	}
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = s.config.OutputDir
	}
	opts = append([]session.Option{session.WithLogger(s.log)}, opts...)
	return session.New(cfg, practice, main, s.engine, player, responder, opts...), rep, nil
}

// WarmCache synthesizes any missing clips for lang.
func (s *digitSpanService) WarmCache(ctx context.Context, lang string, digits []int) ([]int, error) {
	code := synth.LanguageCode(lang)
	if s.store == nil {
		var failed []int
		var first error
		for _, d := range digits {
			if res := s.engine.DigitAudio(ctx, d, lang); !res.OK() {
				failed = append(failed, d)
				if first == nil {
					first = res.Err
				}
			}
		}
		return failed, first
	}
	s.log.Infof("Warming %s clips for digits %v", code, digits)
	return s.store.Warm(ctx, code, digits)
}

// ListClips reports cached clips from the manifest, or from a directory
// scan when no manifest is configured.
func (s *digitSpanService) ListClips() ([]models.ClipInfo, error) {
	if s.index != nil {
		return s.index.ListClips("")
	}
	if s.store == nil {
		return nil, nil
	}
	entries, err := s.store.Entries()
	if err != nil {
		return nil, err
	}
	return entriesToInfo(entries), nil
}

// VerifyClips compares every manifest row with the file on disk and
// returns the rows whose file is missing or whose checksum differs.
func (s *digitSpanService) VerifyClips() ([]models.ClipInfo, error) {
	if s.index == nil {
		return nil, ErrNoManifest
	}
	rows, err := s.index.ListClips("")
	if err != nil {
		return nil, err
	}
	var bad []models.ClipInfo
	for _, row := range rows {
		data, err := os.ReadFile(row.Path)
		if err != nil || cache.Checksum(data) != row.SHA256 {
			bad = append(bad, row)
		}
	}
	if len(bad) > 0 {
		s.log.Warnf("%d of %d cached clips do not match the manifest", len(bad), len(rows))
	}
	return bad, nil
}

// ForgetClip drops the cached clip and its manifest row so the digit is
// synthesized again on next use.
func (s *digitSpanService) ForgetClip(lang string, digit int) error {
	code := synth.LanguageCode(lang)
	if s.index != nil {
		if info, err := s.index.GetClip(code, digit); err == nil && info.Path != "" {
			if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing %s: %w", info.Path, err)
			}
		}
		if err := s.index.DeleteClip(code, digit); err != nil && !errors.Is(err, storage.ErrClipNotFound) {
			return err
		}
	}
	if s.store != nil {
		return s.store.Remove(code, digit)
	}
	return nil
}

func (s *digitSpanService) Close() error {
	if s.index != nil {
		return s.index.Close()
	}
	return nil
}
