// Package deepgram provides a speech recognizer backed by the Deepgram live
// transcription websocket.
//
// Each Recognize call opens one connection, streams the captured utterance
// as linear16 audio, asks the server to flush with CloseStream and collects
// the final results until the server closes the stream.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"

	// chunkBytes is the size of each binary audio message.
	chunkBytes = 8192
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3", "nova-2-medical").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 recognition language. Defaults to "en".
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint overrides the listen endpoint. ws, wss, http and https URLs
// are accepted.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements stt.Recognizer using Deepgram.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// buildURL adds the stream parameters for utt's format to the endpoint.
func (p *Provider) buildURL(sampleRate, channels int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", strconv.Itoa(channels))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Recognize implements stt.Recognizer. Handshake, write and abnormal close
// failures map to stt.ErrUnavailable; a stream without any final transcript
// maps to stt.ErrUnintelligible.
func (p *Provider) Recognize(ctx context.Context, utt audio.Utterance) (stt.Result, error) {
	if utt.SampleRate <= 0 {
		return stt.Result{}, fmt.Errorf("deepgram: invalid sample rate %d", utt.SampleRate)
	}
	wsURL, err := p.buildURL(utt.SampleRate, max(utt.Channels, 1))
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return stt.Result{}, p.failure(ctx, "dial", err)
	}
	defer conn.CloseNow()

	for off := 0; off < len(utt.PCM); off += chunkBytes {
		end := min(off+chunkBytes, len(utt.PCM))
		if err := conn.Write(ctx, websocket.MessageBinary, utt.PCM[off:end]); err != nil {
			return stt.Result{}, p.failure(ctx, "send audio", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return stt.Result{}, p.failure(ctx, "close stream", err)
	}

	var (
		parts      []string
		confidence float64
	)
read:
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return stt.Result{}, p.failure(ctx, "read results", err)
		}
		r, ok := parseResponse(msg)
		if !ok {
			continue
		}
		switch {
		case r.Type == "Metadata":
			// Sent once after the last result.
			break read
		case r.IsFinal && r.Text != "":
			parts = append(parts, r.Text)
			confidence = max(confidence, r.Confidence)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")

	if len(parts) == 0 {
		return stt.Result{}, stt.ErrUnintelligible
	}
	return stt.Result{Text: strings.Join(parts, " "), Confidence: confidence}, nil
}

func (p *Provider) failure(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("deepgram: %s: %w", op, stt.Unavailable(err))
}

// deepgramResponse is the JSON shape of Results and Metadata messages.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is one parsed server message.
type result struct {
	Type       string
	IsFinal    bool
	Text       string
	Confidence float64
}

// parseResponse decodes a server message. ok is false for messages that are
// neither Results nor Metadata.
func parseResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	switch resp.Type {
	case "Metadata":
		return result{Type: resp.Type}, true
	case "Results":
	default:
		return result{}, false
	}
	r := result{Type: resp.Type, IsFinal: resp.IsFinal}
	if alts := resp.Channel.Alternatives; len(alts) > 0 {
		r.Text = strings.TrimSpace(alts[0].Transcript)
		r.Confidence = alts[0].Confidence
	}
	return r, true
}

var _ stt.Recognizer = (*Provider)(nil)
