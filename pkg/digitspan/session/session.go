// Package session drives one participant through practice and main blocks:
// fixation, trial audio, probe and response, feedback, autosave.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/record"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/settings"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/synth"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/logger"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

type Status string

const (
	StatusSetup     Status = "SETUP"
	StatusPractice  Status = "PRACTICE"
	StatusMainReady Status = "MAIN_READY"
	StatusMain      Status = "MAIN"
	StatusDone      Status = "DONE"
)

type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseFixation Phase = "FIXATION"
	PhaseAuditory Phase = "AUDITORY"
	PhaseResponse Phase = "RESPONSE"
	PhaseFeedback Phase = "FEEDBACK"
)

var ErrWrongStatus = errors.New("operation not allowed in current status")

// Stimuli renders trial and probe audio. *synth.Engine satisfies it.
type Stimuli interface {
	TrialAudio(ctx context.Context, req synth.TrialAudioRequest) (*models.Artifact, error)
	DigitArtifact(ctx context.Context, digit int, lang string) (*models.Artifact, error)
}

// Player starts playback of an artifact. It may return before playback ends;
// the runner waits for the artifact's duration itself.
type Player interface {
	Play(ctx context.Context, a *models.Artifact) error
}

// Responder is the participant-facing side.
type Responder interface {
	// Ready blocks until the participant starts a block of n trials.
	Ready(ctx context.Context, block models.Block, n int) error
	// Respond shows the probe and blocks until a yes/no judgement.
	Respond(ctx context.Context, t *models.Trial) (saidYes bool, err error)
}

// TrialGate is implemented by responders that pace the session with a
// start prompt before every trial's fixation.
type TrialGate interface {
	ReadyTrial(ctx context.Context, t *models.Trial, index, total int) error
}

// Event is reported to the observer on every phase change.
type Event struct {
	Status  Status
	Phase   Phase
	Trial   *models.Trial
	Index   int // 0-based within the block
	Total   int
	Correct bool // feedback only
	Err     error
}

type Runner struct {
	stimuli   Stimuli
	player    Player
	responder Responder
	appender  *record.Appender
	log       logger.Interface
	observe   func(Event)
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	lang      string
	timing    settings.TimingConfig
	outputDir string
	subjectID string
	session   int

	progress *Progress
	phase    Phase
	results  []models.Trial
	saveErrs []error
}

type Option func(*Runner)

func WithLogger(log logger.Interface) Option {
	return func(r *Runner) { r.log = log }
}

func WithObserver(fn func(Event)) Option {
	return func(r *Runner) { r.observe = fn }
}

// WithSleep replaces the wall-clock waits, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithAppender overrides the autosave log derived from the output directory.
func WithAppender(a *record.Appender) Option {
	return func(r *Runner) { r.appender = a }
}

func New(cfg settings.Settings, practice, main []models.Trial, stimuli Stimuli, player Player, responder Responder, opts ...Option) *Runner {
	r := &Runner{
		stimuli:   stimuli,
		player:    player,
		responder: responder,
		lang:      cfg.Stimuli.Language,
		timing:    cfg.Timing,
		outputDir: cfg.Storage.OutputDir,
		subjectID: cfg.Subject.ID,
		session:   cfg.Subject.Session,
		progress:  NewProgress(practice, main),
		phase:     PhaseIdle,
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.appender == nil {
		r.appender = record.NewAppender(record.AutosavePath(r.outputDir, r.subjectID, r.session))
	}
	if r.log == nil {
		r.log = logger.GetLogger().With("[session]")
	}
	if r.observe == nil {
		r.observe = func(Event) {}
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (r *Runner) Status() Status { return r.progress.Status() }
func (r *Runner) Phase() Phase   { return r.phase }

// Results returns the answered trials in presentation order.
func (r *Runner) Results() []models.Trial {
	return append([]models.Trial(nil), r.results...)
}

// SaveErrors returns every autosave failure seen so far.
func (r *Runner) SaveErrors() []error { return r.saveErrs }

func (r *Runner) AutosavePath() string { return r.appender.Path() }

// Current returns the trial about to run, or nil outside a block.
func (r *Runner) Current() *models.Trial { return r.progress.Current() }

func (r *Runner) emit(ev Event) {
	ev.Status = r.progress.Status()
	ev.Phase = r.phase
	ev.Index = r.progress.Index()
	ev.Total = len(r.progress.Block())
	r.observe(ev)
}

// Start moves from setup into the practice block, or straight to the main
// gate when there are no practice trials.
func (r *Runner) Start() error {
	if err := r.progress.Start(); err != nil {
		return err
	}
	r.phase = PhaseIdle
	practice, main := r.progress.Counts()
	r.log.Infof("session %s/%d started: %d practice, %d main trials", r.subjectID, r.session, practice, main)
	r.emit(Event{})
	return nil
}

// BeginMain leaves the gate after practice.
func (r *Runner) BeginMain() error {
	if err := r.progress.BeginMain(); err != nil {
		return err
	}
	r.phase = PhaseIdle
	r.emit(Event{})
	return nil
}

// RunTrial runs the current trial through all phases and advances. An
// autosave failure is returned as a *record.PersistError after the trial
// has been answered and the session has advanced; the answer is kept in
// Results.
func (r *Runner) RunTrial(ctx context.Context) (*models.Trial, error) {
	trial := r.Current()
	if trial == nil {
		return nil, fmt.Errorf("run trial: %w (%s)", ErrWrongStatus, r.progress.Status())
	}

	r.phase = PhaseFixation
	r.emit(Event{Trial: trial})
	if err := r.sleep(ctx, ms(r.timing.FixationMs)); err != nil {
		return nil, r.abort(err)
	}

	r.phase = PhaseAuditory
	r.emit(Event{Trial: trial})
	art, err := r.stimuli.TrialAudio(ctx, synth.TrialAudioRequest{
		Digits:       trial.Digits,
		SNR:          float64(trial.SNR),
		ISIMs:        r.timing.ISIMs,
		RetentionMs:  r.timing.RetentionMs,
		NoiseOnsetMs: r.timing.NoiseOnsetMs,
		Language:     r.lang,
	})
	if err != nil {
		return nil, r.abort(fmt.Errorf("trial audio: %w", err))
	}
	if len(art.Degraded) > 0 {
		r.log.Warnf("%s trial %d: no speech for digits %v, silence used", trial.Block, trial.TrialNum, art.Degraded)
	}
	if err := r.player.Play(ctx, art); err != nil {
		r.log.Warnf("playback failed: %v", err)
	}
	if err := r.sleep(ctx, ms(art.DurationMs+r.timing.PostAudioMs)); err != nil {
		return nil, r.abort(err)
	}

	r.phase = PhaseResponse
	start := r.now()
	r.emit(Event{Trial: trial})
	if probe, err := r.stimuli.DigitArtifact(ctx, trial.Probe, r.lang); err != nil {
		r.log.Warnf("probe audio for %d unavailable: %v", trial.Probe, err)
	} else if err := r.player.Play(ctx, probe); err != nil {
		r.log.Warnf("probe playback failed: %v", err)
	}
	saidYes, err := r.responder.Respond(ctx, trial)
	if err != nil {
		return nil, r.abort(fmt.Errorf("response: %w", err))
	}
	if err := trial.Answer(saidYes, r.now().Sub(start)); err != nil {
		return nil, r.abort(err)
	}
	r.results = append(r.results, *trial)

	saveErr := r.appender.Append(*trial)
	if saveErr != nil {
		r.log.Errorf("AUTOSAVE FAILED for %s trial %d: %v", trial.Block, trial.TrialNum, saveErr)
		r.saveErrs = append(r.saveErrs, saveErr)
	}

	r.phase = PhaseFeedback
	r.emit(Event{Trial: trial, Correct: trial.Correct(), Err: saveErr})
	if err := r.sleep(ctx, ms(r.timing.FeedbackMs)); err != nil {
		r.next()
		return trial, r.abort(err)
	}

	r.next()
	return trial, saveErr
}

func (r *Runner) abort(err error) error {
	r.phase = PhaseIdle
	return err
}

func (r *Runner) next() {
	r.phase = PhaseIdle
	if r.progress.Advance() {
		r.emit(Event{})
	}
}

// Run drives the whole session to completion. Autosave failures do not stop
// it; they are collected in SaveErrors.
func (r *Runner) Run(ctx context.Context) error {
	if r.progress.Status() == StatusSetup {
		if err := r.Start(); err != nil {
			return err
		}
	}
	gate, _ := r.responder.(TrialGate)
	for {
		switch status := r.progress.Status(); status {
		case StatusPractice, StatusMain:
			idx, total := r.progress.Index(), len(r.progress.Block())
			if idx == 0 && r.phase == PhaseIdle {
				if err := r.responder.Ready(ctx, r.progress.BlockName(), total); err != nil {
					return err
				}
			}
			if gate != nil {
				if err := gate.ReadyTrial(ctx, r.Current(), idx, total); err != nil {
					return err
				}
			}
			if _, err := r.RunTrial(ctx); err != nil {
				var pe *record.PersistError
				if !errors.As(err, &pe) {
					return err
				}
			}
		case StatusMainReady:
			if err := r.BeginMain(); err != nil {
				return err
			}
		case StatusDone:
			return nil
		default:
			return fmt.Errorf("run: %w (%s)", ErrWrongStatus, status)
		}
	}
}

// Summary is the end-of-session report.
type Summary struct {
	Correct      int     `json:"correct"`
	Total        int     `json:"total"`
	Accuracy     float64 `json:"accuracy"` // percent
	SaveFailures int     `json:"save_failures"`
	FinalPath    string  `json:"final_path"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d (%.1f%%)", s.Correct, s.Total, s.Accuracy)
}

// Finish writes the final export and returns the main-block accuracy. The
// summary is valid even when the export fails.
func (r *Runner) Finish() (Summary, error) {
	correct, total := record.Accuracy(r.results, models.BlockMain)
	sum := Summary{Correct: correct, Total: total, SaveFailures: len(r.saveErrs)}
	if total > 0 {
		sum.Accuracy = float64(correct) / float64(total) * 100
	}

	path := record.FinalPath(r.outputDir, r.subjectID, r.session)
	if err := record.WriteFinal(path, r.results); err != nil {
		r.log.Errorf("final export failed: %v", err)
		return sum, err
	}
	sum.FinalPath = path
	r.log.Infof("data saved to %s; main accuracy %s", path, sum)
	return sum, nil
}
