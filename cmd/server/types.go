package main

import (
	"fmt"
	"math"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/synth"
)

// Request limits
const (
	// MaxCalibrationSec bounds calibration noise requests.
	MaxCalibrationSec = 60

	// MaxTrialDigits bounds the sequence length of ad-hoc trial renders.
	MaxTrialDigits = 12

	// MaxTimingMs bounds each of isi_ms, retention_ms and noise_onset_ms.
	MaxTimingMs = 10000

	// MaxSNR bounds the magnitude of requested signal-to-noise ratios in dB.
	MaxSNR = 60

	// MaxMainReps and MaxPractice bound generated designs.
	MaxMainReps = 100
	MaxPractice = 50

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes = 1 << 20
)

// GenerateTrialsRequest is the request body for POST /api/trials/generate
type GenerateTrialsRequest struct {
	Digits      []int  `json:"digits"`
	Loads       []int  `json:"loads"`
	SNRs        []int  `json:"snrs"`
	MainReps    int    `json:"main_reps"`
	NumPractice int    `json:"num_practice"`
	Randomize   bool   `json:"randomize"`
	SubjectID   string `json:"subject_id"`
	Session     int    `json:"session"`
}

func (r *GenerateTrialsRequest) Validate() error {
	if len(r.Digits) == 0 {
		return fmt.Errorf("digits cannot be empty")
	}
	if len(r.Loads) == 0 || len(r.SNRs) == 0 {
		return fmt.Errorf("loads and snrs cannot be empty")
	}
	if r.MainReps < 0 || r.MainReps > MaxMainReps {
		return fmt.Errorf("main_reps must be 0-%d", MaxMainReps)
	}
	if r.NumPractice < 0 || r.NumPractice > MaxPractice {
		return fmt.Errorf("num_practice must be 0-%d", MaxPractice)
	}
	if err := checkDigits(r.Digits); err != nil {
		return err
	}
	for _, snr := range r.SNRs {
		if err := checkSNR(float64(snr)); err != nil {
			return err
		}
	}
	return nil
}

func (r *GenerateTrialsRequest) Design() digitspan.Design {
	return digitspan.Design{
		Digits:      r.Digits,
		Loads:       r.Loads,
		SNRs:        r.SNRs,
		MainReps:    r.MainReps,
		NumPractice: r.NumPractice,
		Randomize:   r.Randomize,
		SubjectID:   r.SubjectID,
		Session:     r.Session,
	}
}

// GenerateTrialsResponse is the response for POST /api/trials/generate
type GenerateTrialsResponse struct {
	Practice      []digitspan.Trial     `json:"practice"`
	Main          []digitspan.Trial     `json:"main"`
	Conditions    []digitspan.Condition `json:"conditions"`
	FallbackLoad  bool                  `json:"fallback_load"`
	ForcedMatches int                   `json:"forced_matches"`
}

// TrialAudioRequest is the request body for POST /api/audio/trial
type TrialAudioRequest struct {
	Digits       []int   `json:"digits"`
	SNR          float64 `json:"snr"`
	ISIMs        int     `json:"isi_ms"`
	RetentionMs  int     `json:"retention_ms"`
	NoiseOnsetMs int     `json:"noise_onset_ms"`
	Language     string  `json:"language"`
}

func (r *TrialAudioRequest) Validate() error {
	if len(r.Digits) > MaxTrialDigits {
		return fmt.Errorf("too many digits: %d (maximum: %d)", len(r.Digits), MaxTrialDigits)
	}
	for _, v := range []int{r.ISIMs, r.RetentionMs, r.NoiseOnsetMs} {
		if v < 0 || v > MaxTimingMs {
			return fmt.Errorf("timings must be 0-%d ms", MaxTimingMs)
		}
	}
	if err := checkDigits(r.Digits); err != nil {
		return err
	}
	if err := checkSNR(r.SNR); err != nil {
		return err
	}
	if r.Language != "" && !synth.IsSupported(r.Language) {
		return fmt.Errorf("unsupported language %q", r.Language)
	}
	return nil
}

func checkDigits(digits []int) error {
	for _, d := range digits {
		if d < 0 || d > 9 {
			return fmt.Errorf("digit %d is not 0-9", d)
		}
	}
	return nil
}

// checkSNR rejects NaN, infinities and levels beyond ±MaxSNR dB.
func checkSNR(snr float64) error {
	if math.IsNaN(snr) || math.IsInf(snr, 0) || math.Abs(snr) > MaxSNR {
		return fmt.Errorf("snr must be a number between -%d and %d dB", MaxSNR, MaxSNR)
	}
	return nil
}

// AudioResponse carries one encoded stimulus.
type AudioResponse struct {
	Audio         string `json:"audio"` // base64
	MIMEType      string `json:"mime_type"`
	DurationMs    int    `json:"duration_ms"`
	SpeechOnsetMs int    `json:"speech_onset_ms,omitempty"`
	Degraded      []int  `json:"degraded,omitempty"`
}

func newAudioResponse(a *digitspan.Artifact) AudioResponse {
	return AudioResponse{
		Audio:         a.Base64(),
		MIMEType:      a.MIMEType,
		DurationMs:    a.DurationMs,
		SpeechOnsetMs: a.SpeechOnsetMs,
		Degraded:      a.Degraded,
	}
}

// ExportRequest is the request body for POST /api/export/csv
type ExportRequest struct {
	Trials []digitspan.Trial `json:"trials"`
}

// ClipDTO represents a cached clip in API responses
type ClipDTO struct {
	Code       string `json:"code"`
	Digit      int    `json:"digit"`
	SizeBytes  int64  `json:"size_bytes"`
	DurationMs int    `json:"duration_ms,omitempty"`
	Provider   string `json:"provider,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// ListClipsResponse is the response for GET /api/clips
type ListClipsResponse struct {
	Clips []ClipDTO `json:"clips"`
	Count int       `json:"count"`
}

// StartSessionRequest is the request body for POST /api/sessions. Empty
// fields fall back to the server settings.
type StartSessionRequest struct {
	SubjectID string `json:"subject_id"`
	Session   int    `json:"session"`
	Language  string `json:"language"`
	Digits    []int  `json:"digits"`
}

// RespondRequest is the request body for POST /api/sessions/{id}/respond
type RespondRequest struct {
	Response string  `json:"response"` // "yes" or "no"
	RTMs     float64 `json:"rt_ms"`
}

func (r *RespondRequest) SaidYes() (bool, error) {
	switch r.Response {
	case "yes", "Yes", "y":
		return true, nil
	case "no", "No", "n":
		return false, nil
	}
	return false, fmt.Errorf("response must be yes or no")
}

// PendingTrialDTO is a trial as shown before it is answered: the sequence
// and the answer stay on the server.
type PendingTrialDTO struct {
	Block      string        `json:"block"`
	TrialNum   int           `json:"trial_num"`
	Index      int           `json:"index"`
	Total      int           `json:"total"`
	Load       int           `json:"load"`
	SNR        int           `json:"snr"`
	Probe      int           `json:"probe"`
	Stimulus   AudioResponse `json:"stimulus"`
	ProbeAudio AudioResponse `json:"probe_audio"`
}

// SessionResponse describes a session after each step.
type SessionResponse struct {
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	AutosavePath string           `json:"autosave_path"`
	Current      *PendingTrialDTO `json:"current,omitempty"`
	Last         *digitspan.Trial `json:"last,omitempty"`
	SaveError    string           `json:"save_error,omitempty"`
}

// SummaryResponse is the response for POST /api/sessions/{id}/finish
type SummaryResponse struct {
	Correct      int     `json:"correct"`
	Total        int     `json:"total"`
	Accuracy     float64 `json:"accuracy"`
	SaveFailures int     `json:"save_failures"`
	FinalPath    string  `json:"final_path,omitempty"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
