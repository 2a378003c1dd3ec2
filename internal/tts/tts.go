// Package tts fetches spoken audio for short text via the Google Translate
// speech endpoint, the same backend gTTS wraps.
package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
	"unicode/utf8"
)

const (
	defaultEndpoint = "https://translate.google.com/translate_tts"
	maxChars        = 200 // endpoint limit per request
)

// Synthesizer turns text into temporary mp3 files.
type Synthesizer struct {
	client   *http.Client
	endpoint string
}

func New() *Synthesizer {
	return &Synthesizer{
		client:   &http.Client{Timeout: 15 * time.Second},
		endpoint: defaultEndpoint,
	}
}

// Synthesize writes spoken audio for text to a temp mp3 and returns its path
// plus a cleanup func that removes the file. Empty lang defaults to English.
func (s *Synthesizer) Synthesize(ctx context.Context, text, lang string) (string, func(), error) {
	if text == "" {
		return "", nil, fmt.Errorf("nothing to say")
	}
	text = truncate(text, maxChars)
	if lang == "" {
		lang = "en"
	}

	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("tts endpoint returned %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "tts-*.mp3")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("write tts audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}

	path := tmp.Name()
	cleanup := func() { os.Remove(path) }
	return path, cleanup, nil
}

// truncate caps text at limit characters, cutting on a rune boundary so a
// multi-byte character is never split into invalid UTF-8.
func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
