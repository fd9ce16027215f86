// Package backend selects the chat backend named by the configuration.
package backend

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/zyra/pkg/backend/gemini"
	"github.com/papercomputeco/zyra/pkg/backend/mistral"
	"github.com/papercomputeco/zyra/pkg/chat"
	"github.com/papercomputeco/zyra/pkg/config"
)

// New returns the backend selected by cfg.Backend.
func New(cfg *config.Config, l *zap.Logger) (chat.Backend, error) {
	switch cfg.Backend {
	case config.BackendMistral:
		return mistral.New(mistral.Config{
			APIKey:       cfg.Mistral.APIKey,
			BaseURL:      cfg.Mistral.BaseURL,
			Model:        cfg.Mistral.Model,
			VisionModel:  cfg.Mistral.VisionModel,
			SystemPrompt: cfg.SystemPrompt,
			Options:      cfg.Options,
			Stream:       cfg.Stream,
		}, l), nil
	case config.BackendGemini:
		return gemini.New(gemini.Config{
			APIKey:       cfg.Gemini.APIKey,
			BaseURL:      cfg.Gemini.BaseURL,
			Model:        cfg.Gemini.Model,
			VisionModel:  cfg.Gemini.VisionModel,
			SystemPrompt: cfg.SystemPrompt,
			Options:      cfg.Options,
			Stream:       cfg.Stream,
		}, l), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
