package anyllm

import (
	"context"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/SalahAli20/ADCAI/pkg/provider/llm"
)

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_EmptyProviderName(t *testing.T) {
	if _, err := New("", "claude-3-5-sonnet-latest"); err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("anthropic", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNew_Anthropic_WithAPIKey(t *testing.T) {
	p, err := New("anthropic", "claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.name != "anthropic" || p.model != "claude-3-5-sonnet-latest" {
		t.Errorf("provider = %s/%s", p.name, p.model)
	}
}

func TestNew_LocalBackendsNeedNoKey(t *testing.T) {
	for _, name := range []string{"ollama", "llamacpp", "OLLAMA"} {
		if _, err := New(name, "llama3"); err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
	}
}

func TestComplete_NoMessages(t *testing.T) {
	p, err := New("ollama", "llama3")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "claude-3-5-haiku-latest"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a helpful medical assistant.",
		Messages:     []llm.Message{{Role: "user", Content: "Scenario: x\nStudent: hello\nPatient:"}},
		Temperature:  0.7,
		MaxTokens:    100,
	})

	if params.Model != "claude-3-5-haiku-latest" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "You are a helpful medical assistant." {
		t.Errorf("system message = %+v", params.Messages[0])
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("second role = %q", params.Messages[1].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 100 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
}

func TestBuildParams_ZeroTemperatureIsSent(t *testing.T) {
	p := &Provider{model: "llama3"}
	params := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	if params.Temperature == nil || *params.Temperature != 0 {
		t.Errorf("temperature = %v, want explicit 0", params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("max tokens = %v, want nil", *params.MaxTokens)
	}
	if len(params.Messages) != 1 {
		t.Errorf("expected no system message, got %d messages", len(params.Messages))
	}
}

// ── CountTokens / Capabilities ────────────────────────────────────────────────

func TestCountTokens(t *testing.T) {
	p := &Provider{model: "llama3"}
	if n, _ := p.CountTokens(nil); n != 0 {
		t.Errorf("empty = %d, want 0", n)
	}
	one, _ := p.CountTokens([]llm.Message{{Role: "user", Content: "Hello world"}})
	if one != 7 {
		t.Errorf("one message = %d, want 7", one)
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model string
		ctx   int
	}{
		{"claude-3-5-sonnet-latest", 200_000},
		{"Gemini-2.0-flash", 1_048_576},
		{"deepseek-chat", 64_000},
		{"mistral-large-latest", 32_000},
		{"llama3", 8_192},
		{"unknown", 128_000},
	}
	for _, tt := range tests {
		if got := modelCapabilities(tt.model).ContextWindow; got != tt.ctx {
			t.Errorf("%s: context window = %d, want %d", tt.model, got, tt.ctx)
		}
	}
}
