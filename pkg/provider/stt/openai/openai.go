// Package openai provides a speech recognizer backed by the OpenAI audio
// transcription endpoint (whisper-1 and the gpt-4o transcribe models).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
)

// Provider implements stt.Recognizer using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

type config struct {
	baseURL  string
	model    string
	language string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the transcription model. Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the ISO-639-1 input language hint. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// New constructs a Provider. Automatic SDK retries are disabled.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	cfg := &config{model: string(oai.AudioModelWhisper1), language: "en"}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model, language: cfg.language}, nil
}

// Recognize implements stt.Recognizer.
func (p *Provider) Recognize(ctx context.Context, utt audio.Utterance) (stt.Result, error) {
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(utt.WAV()), "utterance.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = param.NewOpt(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return stt.Result{}, ctx.Err()
		}
		return stt.Result{}, fmt.Errorf("openai: transcribe: %w", stt.Unavailable(err))
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return stt.Result{}, stt.ErrUnintelligible
	}
	return stt.Result{Text: text}, nil
}

var _ stt.Recognizer = (*Provider)(nil)
