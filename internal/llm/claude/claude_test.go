package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/newthinker/cardquant/internal/llm"
)

func TestProvider_ImplementsInterface(t *testing.T) {
	var _ llm.Provider = (*Provider)(nil)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New("", "model", "")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	p, err := New("test-key", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected default model %s, got %s", defaultModel, p.model)
	}
}

func TestSystemPrompt_JSONMode(t *testing.T) {
	got := systemPrompt(llm.ChatRequest{SystemPrompt: "Classify listings.", JSONMode: true})
	if !strings.HasPrefix(got, "Classify listings.") || !strings.HasSuffix(got, llm.JSONInstruction) {
		t.Errorf("unexpected system prompt %q", got)
	}
	if systemPrompt(llm.ChatRequest{SystemPrompt: "plain"}) != "plain" {
		t.Error("system prompt should be unchanged without JSON mode")
	}
}

func TestChat_AgainstStubServer(t *testing.T) {
	var gotSystem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.System) > 0 {
			gotSystem = body.System[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "test",
			"content": [{"type": "text", "text": "{\"results\": []}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	p, err := New("test-key", "test", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		SystemPrompt: "Classify listings.",
		Messages:     []llm.Message{{Role: "user", Content: "hi"}},
		JSONMode:     true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"results": []}` {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.FinishReason != "end_turn" {
		t.Errorf("unexpected response %+v", resp)
	}
	if !strings.Contains(gotSystem, llm.JSONInstruction) {
		t.Errorf("JSON instruction not sent, system = %q", gotSystem)
	}
}
