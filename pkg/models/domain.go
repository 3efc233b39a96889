package models

import (
	"encoding/base64"
	"errors"
	"time"
)

// Block labels a group of trials.
type Block string

const (
	BlockPractice Block = "Practice"
	BlockMain     Block = "Main"
)

// TimestampLayout is how trial creation times are rendered in exports.
const TimestampLayout = "2006-01-02 15:04:05.000000"

var ErrAlreadyAnswered = errors.New("trial already answered")

// Condition is one cell of the experimental design.
type Condition struct {
	Load int `json:"load"` // number of digits in the sequence
	SNR  int `json:"snr"`  // dB
}

// Trial is a single scheduled presentation plus, once answered, the
// participant's response. Response, IsCorrect and RT stay nil until Answer.
type Trial struct {
	Timestamp   time.Time `json:"timestamp"`
	SubjectID   string    `json:"subject_id"`
	Session     int       `json:"session"`
	Block       Block     `json:"block"`
	TrialNum    int       `json:"trial_num"`
	Load        int       `json:"load"`
	SNR         int       `json:"snr"`
	Digits      []int     `json:"digits"`
	Probe       int       `json:"probe"`
	IsMatch     bool      `json:"is_match"`
	ForcedMatch bool      `json:"forced_match,omitempty"`

	Response  *string  `json:"response"`
	IsCorrect *bool    `json:"is_correct"`
	RT        *float64 `json:"rt"` // seconds from probe onset
}

func (t *Trial) Condition() Condition {
	return Condition{Load: t.Load, SNR: t.SNR}
}

func (t *Trial) Answered() bool {
	return t.Response != nil
}

// Answer records the participant's yes/no judgement. It may be called once.
func (t *Trial) Answer(saidYes bool, rt time.Duration) error {
	if t.Answered() {
		return ErrAlreadyAnswered
	}
	resp := "No"
	if saidYes {
		resp = "Yes"
	}
	correct := saidYes == t.IsMatch
	secs := rt.Seconds()

	t.Response = &resp
	t.IsCorrect = &correct
	t.RT = &secs
	return nil
}

// Correct reports whether the trial was answered correctly. Unanswered
// trials count as incorrect.
func (t *Trial) Correct() bool {
	return t.IsCorrect != nil && *t.IsCorrect
}

// Artifact is an encoded stimulus ready for playback.
type Artifact struct {
	Data          []byte `json:"-"`
	MIMEType      string `json:"mime_type"`
	Format        string `json:"format"`
	DurationMs    int    `json:"duration_ms"`
	SpeechOnsetMs int    `json:"speech_onset_ms"`
	// Degraded lists digits whose speech could not be synthesized and were
	// replaced by silence.
	Degraded []int `json:"degraded,omitempty"`
}

func (a *Artifact) Base64() string {
	if a == nil || len(a.Data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(a.Data)
}

// DataURI renders the artifact for an HTML audio element.
func (a *Artifact) DataURI() string {
	return "data:" + a.MIMEType + ";base64," + a.Base64()
}
