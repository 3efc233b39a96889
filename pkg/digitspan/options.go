package digitspan

import (
	"fmt"
	"time"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/settings"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/tts"
)

// OptionsFromSettings translates loaded settings into service options:
// storage locations, the speech provider, the output encoder and the seed.
func OptionsFromSettings(s settings.Settings) ([]Option, error) {
	timeout := time.Duration(s.TTS.TimeoutMs) * time.Millisecond

	var provider Synthesizer
	switch s.TTS.Mode {
	case "command":
		cmd, err := tts.NewCommand(s.TTS.Command, timeout)
		if err != nil {
			return nil, fmt.Errorf("tts.command: %w", err)
		}
		provider = cmd
	default:
		provider = tts.NewGoogleTranslate(timeout)
	}

	var enc Encoder
	switch s.Audio.Format {
	case "wav":
		enc = audio.WAVEncoder{}
	default:
		enc = audio.NewMP3Encoder(audio.MP3Config{Binary: s.Audio.FFmpeg, Bitrate: s.Audio.Bitrate})
	}

	opts := []Option{
		WithAssetsDir(s.Storage.AssetsDir),
		WithDBPath(s.Storage.DBPath),
		WithOutputDir(s.Storage.OutputDir),
		WithSynthesizer(provider),
		WithEncoder(enc),
	}
	if s.Design.Seed != 0 {
		opts = append(opts, WithSeed(s.Design.Seed))
	}
	return opts, nil
}
