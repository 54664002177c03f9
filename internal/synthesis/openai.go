package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/starford/galdr/internal/apperr"
)

const defaultSpeechURL = "https://api.openai.com/v1/audio/speech"

// OpenAIConfig configures the OpenAI speech endpoint client.
type OpenAIConfig struct {
	APIKey  string
	Model   string // e.g. "tts-1"
	Voice   string // default voice, e.g. "alloy"
	Format  string // response format, e.g. "mp3"
	BaseURL string // overridable for tests
	Client  *http.Client
}

// OpenAI implements Synthesizer against the OpenAI audio/speech endpoint.
type OpenAI struct {
	apiKey  string
	model   string
	voice   string
	format  string
	baseURL string
	client  *http.Client
}

// NewOpenAI creates an OpenAI synthesizer.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("synthesis: openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSpeechURL
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		voice:   cfg.Voice,
		format:  cfg.Format,
		baseURL: cfg.BaseURL,
		client:  cfg.Client,
	}, nil
}

// Synthesize converts text to audio bytes. The caller bounds the call
// through ctx; a deadline overrun surfaces as a transient failure.
func (o *OpenAI) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = o.voice
	}
	payload, err := json.Marshal(map[string]any{
		"model":           o.model,
		"input":           text,
		"voice":           voice,
		"response_format": o.format,
	})
	if err != nil {
		return nil, apperr.Permanent("encode synthesis request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Permanent("build synthesis request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, apperr.Transient("synthesis backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		cause := fmt.Errorf("openai status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if retryableStatus(resp.StatusCode) {
			return nil, apperr.Transient("synthesis backend error", cause)
		}
		return nil, apperr.Permanent("input rejected by synthesis backend", cause)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient("read synthesis response", err)
	}
	if len(audio) == 0 {
		return nil, apperr.Transient("empty synthesis response", nil)
	}
	return audio, nil
}

// retryableStatus reports whether the HTTP status indicates a failure worth
// retrying: throttling, request timeout, or any server-side error.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= 500
}
