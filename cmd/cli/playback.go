package main

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

// speaker plays artifacts through the default output device. Only one
// oto context may exist per process, so it is created lazily and shared.
type speaker struct {
	mu      sync.Mutex
	rate    int
	ctx     *oto.Context
	current *oto.Player
}

func newSpeaker(rate int) *speaker {
	return &speaker{rate: rate}
}

func (s *speaker) init() error {
	if s.ctx != nil {
		return nil
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   s.rate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	s.ctx = ctx
	return nil
}

// Play starts playback and returns immediately. A clip still playing is
// stopped first.
func (s *speaker) Play(_ context.Context, a *models.Artifact) error {
	buf, err := audio.DecodeClip(a.Data, s.rate)
	if err != nil {
		return fmt.Errorf("decode %s: %w", a.Format, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.init(); err != nil {
		return err
	}
	if s.current != nil {
		s.current.Close()
	}
	p := s.ctx.NewPlayer(bytes.NewReader(buf.PCM16LE()))
	p.Play()
	s.current = p
	return nil
}

// PlayAndWait blocks until the artifact finishes or ctx is cancelled.
func (s *speaker) PlayAndWait(ctx context.Context, a *models.Artifact) error {
	if err := s.Play(ctx, a); err != nil {
		return err
	}
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		playing := s.current != nil && s.current.IsPlaying()
		s.mu.Unlock()
		if !playing {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return s.current.Close()
	}
	return nil
}

// mute satisfies session.Player without touching an audio device.
type mute struct{}

func (mute) Play(context.Context, *models.Artifact) error { return nil }
