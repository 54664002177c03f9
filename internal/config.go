package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/galdr/internal/synthesis"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Duration wraps time.Duration so YAML values like "30s" parse directly.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Store      StoreConfig       `yaml:"store"`
	Audio      AudioConfig       `yaml:"audio"`
	Notifier   NotifierConfig    `yaml:"notifier"`
	Synthesis  SynthesisConfig   `yaml:"synthesis"`
	Conversion ConversionConfig  `yaml:"conversion"`
	Ingest     IngestConfig      `yaml:"ingest"`
	Reconcile  ReconcileConfig   `yaml:"reconcile"`
	Auth       AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&c.App, &c.Store, &c.Audio, &c.Notifier, &c.Synthesis,
		&c.Conversion, &c.Ingest, &c.Reconcile, &c.Auth,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig holds the SQLite note store location.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AudioConfig holds the audio blob directory.
type AudioConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the audio configuration.
func (c *AudioConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// NotifierConfig holds event broker tuning.
type NotifierConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// Validate validates the notifier configuration.
func (c *NotifierConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
	)
}

// SynthesisConfig selects and configures the speech synthesis provider.
//
// Provider controls which backend converts text to audio:
//   - "tone" (default): deterministic local provider, suitable for local dev.
//   - "openai": OpenAI speech endpoint; APIKey must be non-empty.
type SynthesisConfig struct {
	Provider string   `yaml:"provider"`
	Timeout  Duration `yaml:"timeout"`
	Voice    string   `yaml:"voice"`
	Model    string   `yaml:"model"`
	APIKey   string   `yaml:"api_key"`
}

// Validate validates the synthesis configuration.
func (c *SynthesisConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = synthesis.ProviderTone
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required,
			validation.In(synthesis.ProviderTone, synthesis.ProviderOpenAI)),
	); err != nil {
		return err
	}
	if c.Provider == synthesis.ProviderOpenAI && c.APIKey == "" {
		return fmt.Errorf("synthesis: provider is %q but api_key is empty", synthesis.ProviderOpenAI)
	}
	if c.Timeout.Std() <= 0 {
		return fmt.Errorf("synthesis: timeout must be positive")
	}
	return nil
}

// ConversionConfig bounds conversion retries.
type ConversionConfig struct {
	MaxAttempts      int      `yaml:"max_attempts"`
	RetryBackoffBase Duration `yaml:"retry_backoff_base"`
	RetryBackoffMax  Duration `yaml:"retry_backoff_max"`
}

// Validate validates the conversion configuration.
func (c *ConversionConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if c.RetryBackoffBase.Std() <= 0 {
		return fmt.Errorf("conversion: retry_backoff_base must be positive")
	}
	if c.RetryBackoffMax.Std() < c.RetryBackoffBase.Std() {
		return fmt.Errorf("conversion: retry_backoff_max must be >= retry_backoff_base")
	}
	return nil
}

// IngestConfig bounds accepted note text.
type IngestConfig struct {
	MaxNoteBytes int `yaml:"max_note_bytes"`
}

// Validate validates the ingest configuration.
func (c *IngestConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxNoteBytes, validation.Required, validation.Min(1)),
	)
}

// ReconcileConfig controls the stale-PENDING sweep.
type ReconcileConfig struct {
	Interval   Duration `yaml:"interval"`
	StaleAfter Duration `yaml:"stale_after"`
	Batch      int      `yaml:"batch"`
}

// Validate validates the reconcile configuration.
func (c *ReconcileConfig) Validate() error {
	if c.Interval.Std() <= 0 {
		return fmt.Errorf("reconcile: interval must be positive")
	}
	if c.StaleAfter.Std() <= 0 {
		return fmt.Errorf("reconcile: stale_after must be positive")
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Batch, validation.Required, validation.Min(1)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Path: "./galdr.db",
		},
		Audio: AudioConfig{
			Dir: "./audio",
		},
		Notifier: NotifierConfig{
			QueueSize: 256,
			Workers:   4,
		},
		Synthesis: SynthesisConfig{
			Provider: synthesis.ProviderTone,
			Timeout:  Duration(30 * time.Second),
			Voice:    "alloy",
			Model:    "tts-1",
		},
		Conversion: ConversionConfig{
			MaxAttempts:      5,
			RetryBackoffBase: Duration(500 * time.Millisecond),
			RetryBackoffMax:  Duration(30 * time.Second),
		},
		Ingest: IngestConfig{
			MaxNoteBytes: 8192,
		},
		Reconcile: ReconcileConfig{
			Interval:   Duration(time.Minute),
			StaleAfter: Duration(5 * time.Minute),
			Batch:      100,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
