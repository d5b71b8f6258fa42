package factory

import (
	"fmt"

	"github.com/inboxforge/core/internal/ai"
	"github.com/inboxforge/core/internal/ai/gemini"
	"github.com/inboxforge/core/internal/ai/ollama"
)

// ProviderType selects which backend New builds, mirroring the
// teacher's pkg/ai.ProviderType enum.
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)

// Config carries the construction parameters for every backend; only
// the fields the selected provider needs are read.
type Config struct {
	Provider       ProviderType
	GeminiAPIKey   string
	OllamaBaseURL  string
	OllamaModel    string
}

// New builds the configured Provider. ProviderAuto (the default) picks
// Gemini when an API key is present and falls back to Ollama otherwise,
// exactly the teacher's factory.go default branch.
func New(cfg Config) (ai.Provider, error) {
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		return gemini.New(cfg.GeminiAPIKey), nil
	case ProviderOllama:
		return ollama.New(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	default:
		if cfg.GeminiAPIKey != "" {
			return gemini.New(cfg.GeminiAPIKey), nil
		}
		return ollama.New(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	}
}
