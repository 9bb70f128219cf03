// Package config holds all FairLens configuration: the YAML config file with
// its per-provider and per-stage blocks, the prompt registry, credential
// resolution, and the demographic slot dictionaries used by template
// expansion. Unknown YAML keys fail fast.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a missing file, missing key, or invalid value.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config error in %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Config is the root configuration.
type Config struct {
	Common    CommonConfig              `yaml:"common"`
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Per-stage generation blocks.
	GPT        StageConfig `yaml:"gpt"`
	Gemini     StageConfig `yaml:"gemini"`
	GeminiText StageConfig `yaml:"gemini_text"`
	Grok       StageConfig `yaml:"grok"`
	DALLE      StageConfig `yaml:"dalle_config"`
	Veo        StageConfig `yaml:"veo"`

	// Slot dictionaries keyed domain -> slot -> values, merged over the
	// built-in defaults.
	Slots map[string]map[string][]string `yaml:"slots"`

	// Templates keyed domain -> risk, merged over the built-in defaults.
	Templates map[string]map[string]string `yaml:"templates"`
}

// CommonConfig holds settings shared by all stages.
type CommonConfig struct {
	NumSamplesPerSetting int         `yaml:"num_samples_per_setting"`
	FlushEvery           int         `yaml:"flush_every"`
	Retries              RetryConfig `yaml:"retries"`
}

// RetryConfig bounds the provider retry loops.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	MaxBackoff  int `yaml:"max_backoff"` // seconds
}

// MaxBackoffDuration returns the backoff cap as a duration.
func (r RetryConfig) MaxBackoffDuration() time.Duration {
	return time.Duration(r.MaxBackoff) * time.Second
}

// ProviderConfig enables and configures one provider.
type ProviderConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ModelName string `yaml:"model_name"`
	Outdir    string `yaml:"outdir"`
	CSVPath   string `yaml:"csv_path"`
	EnvKey    string `yaml:"env_key"`
	BaseURL   string `yaml:"base_url"`
}

// StageConfig is one generation-parameter block.
type StageConfig struct {
	Model            string  `yaml:"model"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
	BatchSize        int     `yaml:"batch_size"`
	ImageSize        string  `yaml:"image_size"`
	AspectRatio      string  `yaml:"aspect_ratio"`
	PersonGeneration string  `yaml:"person_generation"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Common: CommonConfig{
			NumSamplesPerSetting: 2,
			FlushEvery:           10,
			Retries:              RetryConfig{MaxAttempts: 5, MaxBackoff: 60},
		},
		Providers:  map[string]ProviderConfig{},
		GPT:        StageConfig{Model: "gpt-4o", MaxTokens: 4096, Temperature: 0.7},
		Gemini:     StageConfig{Model: "gemini-2.0-flash", MaxTokens: 8192, Temperature: 0.7},
		GeminiText: StageConfig{Model: "gemini-2.0-flash", MaxTokens: 8192, Temperature: 0.7},
		Grok:       StageConfig{Model: "grok-2-latest", MaxTokens: 4096, Temperature: 0.7},
		DALLE:      StageConfig{Model: "dall-e-3", ImageSize: "1024x1024"},
		Veo:        StageConfig{Model: "veo-2.0-generate-001", AspectRatio: "16:9", PersonGeneration: "allow_adult"},
		Slots:      map[string]map[string][]string{},
		Templates:  map[string]map[string]string{},
	}
}

// Load reads the config at path over the defaults. Unknown keys are an
// error: a typoed key silently ignored is a run silently misconfigured.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Reason: err.Error()}
	}
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, &ConfigError{Path: path, Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies range checks the YAML schema cannot express.
func (c *Config) Validate() error {
	if c.Common.NumSamplesPerSetting < 1 {
		return &ConfigError{Reason: "common.num_samples_per_setting must be >= 1"}
	}
	if c.Common.FlushEvery < 1 {
		return &ConfigError{Reason: "common.flush_every must be >= 1"}
	}
	if c.Common.Retries.MaxAttempts < 1 {
		return &ConfigError{Reason: "common.retries.max_attempts must be >= 1"}
	}
	for name, p := range c.Providers {
		if p.Enabled && p.Outdir == "" {
			return &ConfigError{Reason: fmt.Sprintf("providers.%s.outdir is required when enabled", name)}
		}
	}
	return nil
}

// Provider returns the named provider block and whether it is enabled.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	return p, ok && p.Enabled
}
