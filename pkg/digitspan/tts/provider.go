// Package tts turns short texts (single digits) into encoded speech clips.
package tts

import (
	"context"
	"errors"
)

var (
	ErrEmptyAudio   = errors.New("tts: provider returned no audio")
	ErrEmptyCommand = errors.New("tts: command empty")
)

// Provider synthesizes text in a provider language code (e.g. "iw") and
// returns an encoded clip, MP3 or WAV.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}
