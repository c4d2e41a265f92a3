// internal/llm/factory/factory.go
package factory

import (
	"fmt"

	"github.com/newthinker/cardquant/internal/config"
	"github.com/newthinker/cardquant/internal/llm"
	"github.com/newthinker/cardquant/internal/llm/claude"
	"github.com/newthinker/cardquant/internal/llm/ollama"
	"github.com/newthinker/cardquant/internal/llm/openai"
)

// New creates an LLM provider based on configuration. An empty provider returns nil, nil.
func New(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "claude":
		return checked(claude.New(cfg.Claude.APIKey, cfg.Claude.Model, cfg.Claude.BaseURL))
	case "openai":
		return checked(openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL))
	case "ollama":
		return checked(ollama.New(cfg.Ollama.Endpoint, cfg.Ollama.Model, cfg.Timeout))
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

// checked keeps a failed constructor from yielding a non-nil interface around a nil pointer.
func checked[P llm.Provider](p P, err error) (llm.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
