package exam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SalahAli20/ADCAI/internal/observe"
	"github.com/SalahAli20/ADCAI/pkg/provider/llm"
)

// Generator turns a prompt into trimmed completion text with the fixed
// persona and sampling settings.
type Generator struct {
	provider llm.Provider
	timeout  time.Duration
	metrics  *observe.Metrics
}

// NewGenerator wraps p. A timeout <= 0 disables the per-call deadline.
func NewGenerator(p llm.Provider, timeout time.Duration, metrics *observe.Metrics) (*Generator, error) {
	if p == nil {
		return nil, errors.New("exam: llm provider must not be nil")
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Generator{provider: p, timeout: timeout, metrics: metrics}, nil
}

// Generate sends prompt as the user message. purpose labels metrics and logs
// ("turn" or "assessment").
func (g *Generator) Generate(ctx context.Context, purpose, prompt string, params GenerationParams) (string, error) {
	ctx, span := observe.StartSpan(ctx, "exam.generate")
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := llm.CompletionRequest{
		SystemPrompt:     Persona,
		Messages:         []llm.Message{{Role: "user", Content: prompt}},
		Temperature:      params.Temperature,
		TopP:             params.TopP,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
		MaxTokens:        params.MaxTokens,
	}
	g.checkWindow(ctx, purpose, req)

	start := time.Now()
	resp, err := g.provider.Complete(ctx, req)
	observe.ObserveSince(ctx, g.metrics.LLMDuration, start, observe.Attr("purpose", purpose))
	if err != nil {
		g.metrics.RecordProviderRequest(ctx, "llm", "error")
		return "", fmt.Errorf("exam: %s completion: %w", purpose, err)
	}
	g.metrics.RecordProviderRequest(ctx, "llm", "ok")

	text := strings.TrimSpace(resp.Content)
	observe.Logger(ctx).Debug("completion received",
		"purpose", purpose,
		"finish_reason", resp.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return text, nil
}

// checkWindow logs a warning when the request plus its reply budget will not
// fit the model's context window. The request is sent regardless.
func (g *Generator) checkWindow(ctx context.Context, purpose string, req llm.CompletionRequest) {
	window := g.provider.Capabilities().ContextWindow
	if window <= 0 {
		return
	}
	msgs := append([]llm.Message{{Role: "system", Content: req.SystemPrompt}}, req.Messages...)
	n, err := g.provider.CountTokens(msgs)
	if err != nil {
		observe.Logger(ctx).Debug("token count unavailable", "err", err)
		return
	}
	if n+req.MaxTokens > window {
		observe.Logger(ctx).Warn("prompt may exceed the model context window",
			"purpose", purpose,
			"prompt_tokens", n,
			"max_tokens", req.MaxTokens,
			"context_window", window,
		)
	}
}
