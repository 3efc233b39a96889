package tts

import (
	"context"
	"fmt"
	"sync"
)

// Canned serves pre-recorded clips keyed by lang and text. Missing entries
// fail like a provider outage. Safe for concurrent use.
type Canned struct {
	mu    sync.Mutex
	clips map[string][]byte
	calls int
}

func NewCanned() *Canned {
	return &Canned{clips: make(map[string][]byte)}
}

func (c *Canned) Set(lang, text string, clip []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clips[lang+"/"+text] = clip
}

// Calls returns how many times Synthesize was invoked.
func (c *Canned) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *Canned) Name() string { return "canned" }

func (c *Canned) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	clip, ok := c.clips[lang+"/"+text]
	if !ok {
		return nil, fmt.Errorf("canned tts: no clip for %s/%q", lang, text)
	}
	return clip, nil
}
