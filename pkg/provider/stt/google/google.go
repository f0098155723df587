// Package google provides a speech recognizer backed by the Google Cloud
// Speech-to-Text v1 API, the service the exam simulator has always used for
// transcription.
//
// Utterances are sent as LINEAR16 audio in a single synchronous Recognize
// call. Credentials come from Application Default Credentials unless a
// credentials file or API key is configured.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
)

const defaultLanguage = "en-US"

// Client is the subset of *speech.Client used by Provider.
type Client interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Provider implements stt.Recognizer using Google Cloud Speech.
type Provider struct {
	client   Client
	language string
	model    string
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 recognition language. Defaults to "en-US".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithModel selects a recognition model such as "latest_short" or
// "medical_conversation". Empty uses the service default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// New dials the Speech API. clientOpts are passed to speech.NewClient, e.g.
// option.WithCredentialsFile or option.WithAPIKey.
func New(ctx context.Context, clientOpts []option.ClientOption, opts ...Option) (*Provider, error) {
	client, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google: create speech client: %w", err)
	}
	return NewWithClient(client, opts...)
}

// NewWithClient wraps an existing client. Tests use it with a fake.
func NewWithClient(client Client, opts ...Option) (*Provider, error) {
	if client == nil {
		return nil, errors.New("google: client must not be nil")
	}
	p := &Provider{client: client, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Recognize implements stt.Recognizer. A response without any alternative
// maps to stt.ErrUnintelligible; RPC errors map to stt.ErrUnavailable.
func (p *Provider) Recognize(ctx context.Context, utt audio.Utterance) (stt.Result, error) {
	if utt.SampleRate <= 0 {
		return stt.Result{}, fmt.Errorf("google: invalid sample rate %d", utt.SampleRate)
	}
	channels := max(utt.Channels, 1)

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:          speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:   int32(utt.SampleRate),
			AudioChannelCount: int32(channels),
			LanguageCode:      p.language,
			Model:             p.model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: utt.PCM},
		},
	}

	resp, err := p.client.Recognize(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return stt.Result{}, ctx.Err()
		}
		return stt.Result{}, fmt.Errorf("google: recognize: %w", stt.Unavailable(err))
	}

	var (
		parts      []string
		confidence float32
	)
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
			confidence = max(confidence, alts[0].GetConfidence())
		}
	}
	if len(parts) == 0 {
		return stt.Result{}, stt.ErrUnintelligible
	}
	return stt.Result{Text: strings.Join(parts, " "), Confidence: float64(confidence)}, nil
}

var _ stt.Recognizer = (*Provider)(nil)
