package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const DefaultTranslateURL = "https://translate.google.com/translate_tts"

// GoogleTranslate speaks text through the public Translate TTS endpoint, the
// same service the gTTS tool uses. Responses are MP3.
type GoogleTranslate struct {
	BaseURL   string
	Client    *http.Client
	UserAgent string
	Slow      bool
}

func NewGoogleTranslate(timeout time.Duration) *GoogleTranslate {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GoogleTranslate{
		BaseURL:   DefaultTranslateURL,
		Client:    &http.Client{Timeout: timeout},
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
	}
}

func (g *GoogleTranslate) Name() string { return "google-translate" }

func (g *GoogleTranslate) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	base := g.BaseURL
	if base == "" {
		base = DefaultTranslateURL
	}
	speed := "1"
	if g.Slow {
		speed = "0.3"
	}
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", text)
	q.Set("tl", lang)
	q.Set("client", "tw-ob")
	q.Set("ttsspeed", speed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("google tts: %w", err)
	}
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google tts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("google tts: status %d: %s", resp.StatusCode, snippet)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google tts: reading body: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	return data, nil
}
