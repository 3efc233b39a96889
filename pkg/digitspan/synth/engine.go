// Package synth renders trial stimuli: speech-shaped noise, spoken digit
// sequences and their SNR-controlled mix.
package synth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/logger"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

const (
	// ReferenceDBFS is the level speech is normalised to. Noise sits at
	// ReferenceDBFS - snr.
	ReferenceDBFS = -20.0

	NoiseCutoffHz  = 1000.0
	NoisePeak      = 0.5
	FallbackClipMs = 500
)

var (
	ErrInvalidTiming = errors.New("timing values must be non-negative")
	ErrInvalidSNR    = errors.New("snr must be a finite number")
	ErrInvalidDigit  = errors.New("digit must be 0-9")
	ErrNoClip        = errors.New("no speech clip available")
)

// ClipCache resolves a provider code and digit to an encoded clip, creating
// it on a miss. cache.Store satisfies it.
type ClipCache interface {
	GetOrCreate(ctx context.Context, code string, digit int) (data []byte, created bool, err error)
}

type Engine struct {
	sampleRate int
	cache      ClipCache
	encoder    audio.Encoder
	log        logger.Interface

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Engine)

func WithSampleRate(rate int) Option {
	return func(e *Engine) { e.sampleRate = rate }
}

func WithEncoder(enc audio.Encoder) Option {
	return func(e *Engine) { e.encoder = enc }
}

func WithLogger(log logger.Interface) Option {
	return func(e *Engine) { e.log = log }
}

// WithSeed makes noise generation reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

func New(cache ClipCache, opts ...Option) *Engine {
	e := &Engine{
		sampleRate: audio.DefaultSampleRate,
		cache:      cache,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.encoder == nil {
		e.encoder = audio.NewMP3Encoder(audio.MP3Config{})
	}
	if e.log == nil {
		e.log = logger.GetLogger().With("[synth]")
	}
	if e.rng == nil {
		now := uint64(time.Now().UnixNano())
		e.rng = rand.New(rand.NewPCG(now, now>>1))
	}
	return e
}

func (e *Engine) SampleRate() int        { return e.sampleRate }
func (e *Engine) Encoder() audio.Encoder { return e.encoder }

// SpeechShapedNoise returns durationMs of Gaussian noise low-passed at 1 kHz,
// peak-normalised to half scale and quantised to 16 bits. Each call draws
// fresh samples.
func (e *Engine) SpeechShapedNoise(durationMs int) *audio.Buffer {
	n := audio.FramesForMs(e.sampleRate, durationMs)
	white := make([]float64, n)
	e.mu.Lock()
	for i := range white {
		white[i] = e.rng.NormFloat64()
	}
	e.mu.Unlock()

	lp := audio.ButterworthLowPass(NoiseCutoffHz, float64(e.sampleRate))
	noise := audio.NewBuffer(e.sampleRate, lp.Filter(white))
	noise.PeakNormalize(NoisePeak)
	noise.Quantize()
	return noise
}

// DigitAudio resolves one digit to speech. Provider or decode failures are
// reported in the result, which then carries FallbackClipMs of silence.
func (e *Engine) DigitAudio(ctx context.Context, digit int, lang string) models.ClipResult {
	code := LanguageCode(lang)
	res := models.ClipResult{Digit: digit, Code: code}

	fail := func(err error) models.ClipResult {
		e.log.Warnf("Error generating %d (%s): %v", digit, code, err)
		res.Status = models.ClipSynthesisFailed
		res.Audio = audio.Silence(e.sampleRate, FallbackClipMs)
		res.Err = err
		return res
	}

	if digit < 0 || digit > 9 {
		return fail(fmt.Errorf("%w: %d", ErrInvalidDigit, digit))
	}
	if e.cache == nil {
		return fail(ErrNoClip)
	}
	data, created, err := e.cache.GetOrCreate(ctx, code, digit)
	if err != nil {
		return fail(err)
	}
	buf, err := audio.DecodeClip(data, e.sampleRate)
	if err != nil {
		return fail(fmt.Errorf("decoding clip: %w", err))
	}

	res.Status = models.ClipCached
	if created {
		res.Status = models.ClipSynthesized
	}
	res.Audio = buf
	return res
}

// TrialAudioRequest describes one trial timeline.
type TrialAudioRequest struct {
	Digits       []int
	SNR          float64 // dB
	ISIMs        int
	RetentionMs  int
	NoiseOnsetMs int
	Language     string
}

// Rendering is a mixed trial before encoding.
type Rendering struct {
	Mix    *audio.Buffer
	Noise  *audio.Buffer // after gain
	Speech *audio.Buffer // after gain; empty for noise-only trials

	DurationMs    int
	SpeechOnsetMs int
	Degraded      []int
}

// RenderTrial builds noise onset, encoding stream and retention as one
// continuous buffer. Speech is normalised to ReferenceDBFS and noise to
// ReferenceDBFS-snr; the stream is mixed in at NoiseOnsetMs. With no digits
// the result is noise only.
func (e *Engine) RenderTrial(ctx context.Context, req TrialAudioRequest) (*Rendering, error) {
	if req.ISIMs < 0 || req.RetentionMs < 0 || req.NoiseOnsetMs < 0 {
		return nil, ErrInvalidTiming
	}
	if !finite(req.SNR) {
		return nil, ErrInvalidSNR
	}

	r := &Rendering{SpeechOnsetMs: req.NoiseOnsetMs}
	parts := make([]*audio.Buffer, 0, 2*len(req.Digits))
	for i, d := range req.Digits {
		clip := e.DigitAudio(ctx, d, req.Language)
		if !clip.OK() {
			r.Degraded = append(r.Degraded, d)
		}
		parts = append(parts, clip.Audio)
		if i < len(req.Digits)-1 {
			parts = append(parts, audio.Silence(e.sampleRate, req.ISIMs))
		}
	}
	speech := audio.Concat(e.sampleRate, parts...)

	r.DurationMs = req.NoiseOnsetMs + speech.DurationMs() + req.RetentionMs
	noise := e.SpeechShapedNoise(r.DurationMs)
	r.Noise = noise.NormalizeTo(ReferenceDBFS - req.SNR)

	if len(req.Digits) == 0 {
		r.Speech = audio.NewBuffer(e.sampleRate, nil)
		r.Mix = r.Noise
		return r, nil
	}

	r.Speech = speech.NormalizeTo(ReferenceDBFS)
	r.Mix = r.Noise.Overlay(r.Speech, req.NoiseOnsetMs)

	if len(r.Degraded) > 0 {
		e.log.Warnf("trial %v rendered with silence for digits %v", req.Digits, r.Degraded)
	}
	e.log.Debugf("trial %v snr=%g: %dms (speech %dms at %dms)", req.Digits, req.SNR, r.DurationMs, speech.DurationMs(), req.NoiseOnsetMs)
	return r, nil
}

// TrialAudio renders and encodes a trial. The artifact's DurationMs is the
// exact timeline length the caller should wait for.
func (e *Engine) TrialAudio(ctx context.Context, req TrialAudioRequest) (*models.Artifact, error) {
	r, err := e.RenderTrial(ctx, req)
	if err != nil {
		return nil, err
	}
	art, err := e.encode(ctx, r.Mix)
	if err != nil {
		return nil, err
	}
	art.DurationMs = r.DurationMs
	art.SpeechOnsetMs = r.SpeechOnsetMs
	art.Degraded = r.Degraded
	return art, nil
}

// DigitArtifact encodes a single digit clip, e.g. for the probe.
func (e *Engine) DigitArtifact(ctx context.Context, digit int, lang string) (*models.Artifact, error) {
	clip := e.DigitAudio(ctx, digit, lang)
	if !clip.OK() {
		return nil, fmt.Errorf("%w: digit %d (%s): %v", ErrNoClip, digit, clip.Code, clip.Err)
	}
	art, err := e.encode(ctx, clip.Audio)
	if err != nil {
		return nil, err
	}
	art.DurationMs = clip.Audio.DurationMs()
	return art, nil
}

// DigitBase64 returns the encoded digit clip as base64, or "" when no clip
// could be produced.
func (e *Engine) DigitBase64(ctx context.Context, digit int, lang string) string {
	art, err := e.DigitArtifact(ctx, digit, lang)
	if err != nil {
		return ""
	}
	return art.Base64()
}

// CalibrationAudio returns durationSec of noise at the level it would have
// in a trial at snr.
func (e *Engine) CalibrationAudio(ctx context.Context, snr float64, durationSec int) (*models.Artifact, error) {
	if durationSec < 0 {
		return nil, ErrInvalidTiming
	}
	if !finite(snr) {
		return nil, ErrInvalidSNR
	}
	ms := durationSec * 1000
	noise := e.SpeechShapedNoise(ms).NormalizeTo(ReferenceDBFS - snr)
	art, err := e.encode(ctx, noise)
	if err != nil {
		return nil, err
	}
	art.DurationMs = ms
	return art, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// DemoDigits picks the preview sequence: 1, 2 and 3 when available, else the
// first three available digits.
func DemoDigits(available []int) []int {
	set := make(map[int]bool, len(available))
	for _, d := range available {
		set[d] = true
	}
	var out []int
	for _, d := range []int{1, 2, 3} {
		if set[d] {
			out = append(out, d)
		}
	}
	if len(out) > 0 {
		return out
	}
	if len(available) > 3 {
		return append([]int(nil), available[:3]...)
	}
	return append([]int(nil), available...)
}

// DemoAudio renders a short preview trial with 1 s onset and retention.
func (e *Engine) DemoAudio(ctx context.Context, available []int, snr float64, isiMs int, lang string) (*models.Artifact, error) {
	return e.TrialAudio(ctx, TrialAudioRequest{
		Digits:       DemoDigits(available),
		SNR:          snr,
		ISIMs:        isiMs,
		RetentionMs:  1000,
		NoiseOnsetMs: 1000,
		Language:     lang,
	})
}

func (e *Engine) encode(ctx context.Context, b *audio.Buffer) (*models.Artifact, error) {
	data, err := e.encoder.Encode(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", e.encoder.Ext(), err)
	}
	return &models.Artifact{
		Data:     data,
		MIMEType: e.encoder.MIMEType(),
		Format:   e.encoder.Ext(),
	}, nil
}
