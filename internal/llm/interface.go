// Package llm abstracts the chat-completion backends used for listing classification.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/newthinker/cardquant/internal/core"
)

// Provider defines the interface for LLM providers
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest holds the request parameters
type ChatRequest struct {
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  float64
	JSONMode     bool
}

// Message represents a chat message
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// ChatResponse holds the response from the LLM
type ChatResponse struct {
	Content      string
	Usage        Usage
	FinishReason string
}

// Usage tracks token consumption
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// JSONInstruction is appended to system prompts for backends without a native JSON mode.
const JSONInstruction = "Respond with a single valid JSON object and nothing else."

// WrapError classifies a backend error as a timeout or a generic failure.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	cause := fmt.Errorf("%s: %w", provider, err)
	if errors.Is(err, context.DeadlineExceeded) {
		return core.WrapError(core.ErrLLMTimeout, cause)
	}
	return core.WrapError(core.ErrLLMFailed, cause)
}

// ExtractJSON returns the outermost JSON object in content, tolerating
// markdown code fences and leading prose.
func ExtractJSON(content string) (string, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return s[start : end+1], nil
}
