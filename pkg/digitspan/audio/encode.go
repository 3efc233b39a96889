package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Encoder turns a rendered buffer into a playable container.
type Encoder interface {
	Encode(ctx context.Context, b *Buffer) ([]byte, error)
	// MIMEType is used for data URIs and HTTP responses.
	MIMEType() string
	// Ext is the file extension without the dot.
	Ext() string
}

// WAVEncoder emits 16-bit PCM WAV. It needs no external tools.
type WAVEncoder struct{}

func (WAVEncoder) Encode(_ context.Context, b *Buffer) ([]byte, error) { return EncodeWAV(b) }
func (WAVEncoder) MIMEType() string                                    { return "audio/wav" }
func (WAVEncoder) Ext() string                                         { return "wav" }

type MP3Config struct {
	Binary  string        // ffmpeg executable, default "ffmpeg"
	Bitrate string        // e.g. "128k"
	Timeout time.Duration // applied when ctx has no deadline
}

// MP3Encoder pipes a WAV rendering through ffmpeg/libmp3lame.
type MP3Encoder struct {
	cfg MP3Config
}

func NewMP3Encoder(cfg MP3Config) *MP3Encoder {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "128k"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &MP3Encoder{cfg: cfg}
}

func (e *MP3Encoder) MIMEType() string { return "audio/mp3" }
func (e *MP3Encoder) Ext() string      { return "mp3" }

func (e *MP3Encoder) Encode(ctx context.Context, b *Buffer) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	wavData, err := EncodeWAV(b)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(
		ctx,
		e.cfg.Binary,
		"-hide_banner",
		"-v", "error",
		"-f", "wav",
		"-i", "pipe:0",
		"-ac", "1", // mono
		"-ar", fmt.Sprintf("%d", b.SampleRate),
		"-c:a", "libmp3lame",
		"-b:a", e.cfg.Bitrate,
		"-f", "mp3",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(wavData)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg failed: %v (%s)", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// FFmpegAvailable reports whether the ffmpeg binary can be found on PATH.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}
