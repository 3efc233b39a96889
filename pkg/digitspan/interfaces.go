package digitspan

import (
	"context"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/session"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/settings"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/synth"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/tts"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

type Service interface {
	SpeechShapedNoise(durationMs int) *audio.Buffer
	DigitAudio(ctx context.Context, digit int, lang string) models.ClipResult
	TrialAudio(ctx context.Context, req TrialAudioRequest) (*Artifact, error)
	RenderTrial(ctx context.Context, req TrialAudioRequest) (*synth.Rendering, error)
	DigitArtifact(ctx context.Context, digit int, lang string) (*Artifact, error)
	DigitBase64(ctx context.Context, digit int, lang string) string
	CalibrationAudio(ctx context.Context, snr float64, durationSec int) (*Artifact, error)
	DemoAudio(ctx context.Context, available []int, snr float64, isiMs int, lang string) (*Artifact, error)

	GenerateTrials(d Design) (practice, main []Trial, rep Report, err error)
	ExportCSV(trials []Trial) string
	NewSession(cfg settings.Settings, player session.Player, responder session.Responder, opts ...session.Option) (*session.Runner, Report, error)

	WarmCache(ctx context.Context, lang string, digits []int) (failed []int, err error)
	ListClips() ([]models.ClipInfo, error)
	VerifyClips() (bad []models.ClipInfo, err error)
	ForgetClip(lang string, digit int) error
	Close() error
}

// ClipCache resolves a provider code and digit to an encoded clip.
type ClipCache = synth.ClipCache

// ClipIndex is the manifest of cached clips.
type ClipIndex interface {
	RegisterClip(info models.ClipInfo) error
	GetClip(code string, digit int) (*models.ClipInfo, error)
	ListClips(code string) ([]models.ClipInfo, error)
	DeleteClip(code string, digit int) error
	Close() error
}

type Synthesizer = tts.Provider

type Encoder = audio.Encoder

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
