package models

import (
	"time"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
)

// ClipStatus says where a digit clip came from.
type ClipStatus int

const (
	ClipCached ClipStatus = iota
	ClipSynthesized
	// ClipSynthesisFailed means the provider could not produce speech; the
	// result carries silence instead.
	ClipSynthesisFailed
)

func (s ClipStatus) String() string {
	switch s {
	case ClipCached:
		return "cached"
	case ClipSynthesized:
		return "synthesized"
	case ClipSynthesisFailed:
		return "synthesis_failed"
	default:
		return "unknown"
	}
}

// ClipResult is the outcome of resolving one digit to speech.
type ClipResult struct {
	Digit  int
	Code   string
	Status ClipStatus
	Audio  *audio.Buffer
	Err    error
}

func (r ClipResult) OK() bool { return r.Status != ClipSynthesisFailed }

// ClipInfo describes a cached clip as recorded in the manifest.
type ClipInfo struct {
	Code       string    `json:"code"`
	Digit      int       `json:"digit"`
	Path       string    `json:"path"`
	Provider   string    `json:"provider"`
	SizeBytes  int64     `json:"size_bytes"`
	SHA256     string    `json:"sha256"`
	DurationMs int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
