// Package synthesis defines the speech synthesis port and its providers.
//
// Providers return apperr.SynthesisError values so the conversion worker can
// distinguish transient backend failures (retried) from permanent rejections
// of the input (terminal).
package synthesis

import "context"

// Synthesizer converts note text into an audio byte stream. voice may be
// empty, in which case the provider's configured default applies.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Provider names accepted in configuration.
const (
	ProviderOpenAI = "openai"
	ProviderTone   = "tone"
)
