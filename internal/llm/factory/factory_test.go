package factory

import (
	"testing"

	"github.com/newthinker/cardquant/internal/config"
)

func TestNew_Providers(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LLMConfig
	}{
		{"claude", config.LLMConfig{Provider: "claude", Claude: config.ClaudeConfig{APIKey: "test-key"}}},
		{"openai", config.LLMConfig{Provider: "openai", OpenAI: config.OpenAIConfig{APIKey: "test-key", Model: "gpt-4o"}}},
		{"ollama", config.LLMConfig{Provider: "ollama", Ollama: config.OllamaConfig{Model: "llama3"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.name {
				t.Errorf("expected %s provider, got %s", tt.name, p.Name())
			}
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	p, err := New(config.LLMConfig{})
	if err != nil || p != nil {
		t.Errorf("expected nil provider, got %v, %v", p, err)
	}
}

func TestNew_Unknown(t *testing.T) {
	if _, err := New(config.LLMConfig{Provider: "unknown"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNew_ClaudeMissingKey(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: "claude"})
	if err == nil {
		t.Error("expected error for missing API key")
	}
	if p != nil {
		t.Error("expected nil provider on error")
	}
}
