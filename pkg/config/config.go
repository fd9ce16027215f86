// Package config loads the zyra configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/zyra/pkg/llm"
)

const (
	BackendMistral = "mistral"
	BackendGemini  = "gemini"

	// DefaultDir is the directory under $HOME holding the config file and database.
	DefaultDir = ".zyra"

	// FileName is the config file name inside DefaultDir.
	FileName = "config.toml"
)

// DefaultSystemPrompt sets the assistant persona: casual South Jakarta
// Indonesian with some English mixed in, friendly but not crude.
const DefaultSystemPrompt = "Kamu adalah asisten AI yang berbicara dengan gaya bahasa Jakarta Selatan (Jaksel) tapi jangan terlalu kasar. " +
	"Gunakan bahasa yang santai, modern, dan sering mencampur Bahasa Indonesia dengan Bahasa Inggris tapi jangan terlalu sering. " +
	"Contoh: \"Anyway gue prefer pake cara yang simple sih, which is basically lebih effortif\". " +
	"Tetap profesional tapi friendly dan relatable. Hindari bahasa yang terlalu formal. " +
	"Jangan memulai respon dengan kalimat seperti \"Oke, mari kita bahas...\" atau sejenisnya. " +
	"Langsung saja ke inti pembahasan dengan gaya santai."

// Environment variables that override the file.
const (
	EnvMistralKey = "MISTRAL_API_KEY"
	EnvGeminiKey  = "GEMINI_API_KEY"
	EnvBackend    = "ZYRA_BACKEND"
)

// Config is the zyra configuration.
type Config struct {
	// Backend selects the LLM backend: "mistral" or "gemini".
	Backend string `toml:"backend"`

	// SystemPrompt is sent ahead of every conversation.
	SystemPrompt string `toml:"system_prompt"`

	// Stream requests incremental replies.
	Stream bool `toml:"stream"`

	Mistral   Mistral     `toml:"mistral"`
	Gemini    Gemini      `toml:"gemini"`
	Options   llm.Options `toml:"options"`
	RateLimit RateLimit   `toml:"rate_limit"`
	Sanitize  Sanitize    `toml:"sanitize"`
}

type Mistral struct {
	APIKey      string `toml:"api_key"`
	BaseURL     string `toml:"base_url"`
	Model       string `toml:"model"`
	VisionModel string `toml:"vision_model"`
}

type Gemini struct {
	APIKey      string `toml:"api_key"`
	BaseURL     string `toml:"base_url"`
	Model       string `toml:"model"`
	VisionModel string `toml:"vision_model"`
}

// RateLimit bounds how many turns may be sent per window.
type RateLimit struct {
	Requests int    `toml:"requests"`
	Window   string `toml:"window"`
}

type Sanitize struct {
	MaxLength int `toml:"max_length"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Backend:      BackendMistral,
		SystemPrompt: DefaultSystemPrompt,
		Stream:       true,
		Options:      llm.DefaultOptions(),
		RateLimit: RateLimit{
			Requests: 100,
			Window:   "15m",
		},
		Sanitize: Sanitize{
			MaxLength: 1000,
		},
	}
}

// DefaultPath returns ~/.zyra/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, DefaultDir, FileName), nil
}

// Load reads the file at path over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvMistralKey); v != "" {
		c.Mistral.APIKey = v
	}
	if v := getenv(EnvGeminiKey); v != "" {
		c.Gemini.APIKey = v
	}
	if v := getenv(EnvBackend); v != "" {
		c.Backend = v
	}
}

// Window parses the rate limit window.
func (c *Config) Window() (time.Duration, error) {
	d, err := time.ParseDuration(c.RateLimit.Window)
	if err != nil {
		return 0, fmt.Errorf("invalid rate_limit.window %q: %w", c.RateLimit.Window, err)
	}
	return d, nil
}

// Validate checks the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMistral:
		if c.Mistral.APIKey == "" {
			return fmt.Errorf("mistral backend needs an API key (set %s or mistral.api_key)", EnvMistralKey)
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini backend needs an API key (set %s or gemini.api_key)", EnvGeminiKey)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendMistral, BackendGemini)
	}

	if c.RateLimit.Requests < 0 {
		return fmt.Errorf("rate_limit.requests must not be negative")
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	if c.Sanitize.MaxLength < 0 {
		return fmt.Errorf("sanitize.max_length must not be negative")
	}

	return nil
}
