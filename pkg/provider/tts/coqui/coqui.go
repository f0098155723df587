// Package coqui provides a tts.Speaker backed by a Coqui TTS server.
//
// Two server flavours are supported:
//
//   - Standard (default): the stock `tts-server` exposing GET /api/tts.
//   - XTTS: the xtts-api-server exposing POST /tts_to_audio/ with a speaker
//     reference WAV.
//
// Replies are split into sentences. The next sentence is synthesised while
// the current one plays, so a long reply starts speaking after the first
// sentence is ready rather than after the whole text.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/tts"
)

var _ tts.Speaker = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	ttsEndpoint     = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"
)

// APIMode selects the Coqui server API flavour.
type APIMode string

const (
	// APIModeXTTS targets xtts-api-server.
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the stock Coqui tts-server.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithLanguage sets the synthesis language. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode selects the server flavour. Defaults to [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithSpeaker sets the speaker: a speaker_id for the standard server or the
// reference WAV name for XTTS.
func WithSpeaker(id string) Option {
	return func(p *Provider) {
		p.speaker = id
	}
}

// WithPlayer sets the playback device. Defaults to aplay.
func WithPlayer(pl audio.Player) Option {
	return func(p *Provider) {
		p.player = pl
	}
}

// Provider implements tts.Speaker against a Coqui server.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	httpClient *http.Client
	apiMode    APIMode
	player     audio.Player
}

// New creates a Provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
		player:     &audio.CommandPlayer{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode == APIModeXTTS && p.speaker == "" {
		return nil, errors.New("coqui: speaker must not be empty (required for XTTS mode)")
	}
	return p, nil
}

// clip is one synthesised sentence ready for playback.
type clip struct {
	pcm        []byte
	sampleRate int
	channels   int
	err        error
}

// Speak implements tts.Speaker.
func (p *Provider) Speak(ctx context.Context, text string) error {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// One sentence of lookahead: synthesis of n+1 overlaps playback of n.
	clips := make(chan clip, 1)
	go func() {
		defer close(clips)
		for _, s := range sentences {
			c := p.synthesize(ctx, s)
			select {
			case clips <- c:
			case <-ctx.Done():
				return
			}
			if c.err != nil {
				return
			}
		}
	}()

	for c := range clips {
		if c.err != nil {
			return c.err
		}
		if err := p.player.Play(ctx, c.pcm, c.sampleRate, c.channels); err != nil {
			return fmt.Errorf("coqui: play: %w", err)
		}
	}
	return ctx.Err()
}

func (p *Provider) synthesize(ctx context.Context, sentence string) clip {
	req, err := p.newRequest(ctx, sentence)
	if err != nil {
		return clip{err: err}
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return clip{err: ctx.Err()}
		}
		return clip{err: fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return clip{err: fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)}
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return clip{err: fmt.Errorf("coqui: read WAV response: %w", err)}
	}
	info, err := audio.ParseWAV(wav)
	if err != nil {
		return clip{err: fmt.Errorf("coqui: %w", err)}
	}

	pcm := wav[info.DataOffset:]
	channels := info.Channels
	if channels == 2 {
		pcm = audio.StereoToMono(pcm)
		channels = 1
	}
	return clip{pcm: pcm, sampleRate: info.SampleRate, channels: channels}
}

func (p *Provider) newRequest(ctx context.Context, sentence string) (*http.Request, error) {
	if p.apiMode == APIModeXTTS {
		data, err := json.Marshal(struct {
			Text       string `json:"text"`
			SpeakerWav string `json:"speaker_wav"`
			Language   string `json:"language"`
		}{sentence, p.speaker, p.language})
		if err != nil {
			return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("coqui: create tts request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	params := url.Values{}
	params.Set("text", sentence)
	if p.speaker != "" {
		params.Set("speaker_id", p.speaker)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// splitSentences breaks text at sentence-ending punctuation followed by
// whitespace. Empty fragments are dropped.
func splitSentences(text string) []string {
	var out []string
	rest := text
	for {
		idx := findSentenceBoundary(rest)
		if idx < 0 {
			break
		}
		if s := strings.TrimSpace(rest[:idx+1]); s != "" {
			out = append(out, s)
		}
		rest = rest[idx+1:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		out = append(out, s)
	}
	return out
}

// findSentenceBoundary returns the index of the first '.', '!' or '?' that is
// followed by whitespace or ends the string, or -1.
func findSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
