// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the exam loop sends correct
// CompletionRequests and to feed controlled responses without a live backend.
//
// Example:
//
//	p := &mock.Provider{Responses: []string{"It hurts here.", "Good job."}}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/SalahAli20/ADCAI/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned in order, one per Complete call. When exhausted
	// the last entry is repeated; an empty list yields empty content.
	Responses []string

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// ErrOnCall, if > 0, makes only the n-th Complete call (1-based) fail with
	// CompleteErr. Earlier and later calls succeed.
	ErrOnCall int

	// OnComplete, if set, runs at the start of every Complete call. Tests use
	// it to advance a fake clock or block on ctx.
	OnComplete func(ctx context.Context, req llm.CompletionRequest) error

	// TokenCount is returned by CountTokens.
	TokenCount int

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	n := len(p.CompleteCalls)
	hook := p.OnComplete
	p.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, req); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CompleteErr != nil && (p.ErrOnCall == 0 || p.ErrOnCall == n) {
		return nil, p.CompleteErr
	}
	var content string
	if len(p.Responses) > 0 {
		content = p.Responses[min(n-1, len(p.Responses)-1)]
	}
	return &llm.CompletionResponse{Content: content, FinishReason: "stop"}, nil
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens(_ []llm.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TokenCount, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a copy of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}

var _ llm.Provider = (*Provider)(nil)
