// Package elevenlabs provides a tts.Speaker backed by the ElevenLabs
// stream-input websocket.
//
// A Speak call sends the whole reply, flushes, gathers the PCM chunks the
// server streams back and plays them through an [audio.Player]. The words
// per minute rate used by local engines does not apply; pacing comes from
// the voice itself.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/tts"
)

var _ tts.Speaker = (*Provider)(nil)

const (
	defaultEndpoint     = "wss://api.elevenlabs.io/v1"
	defaultModel        = "eleven_flash_v2_5"
	defaultOutputFormat = "pcm_16000"
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel sets the model_id. Defaults to "eleven_flash_v2_5".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the output format. Only raw PCM formats of the form
// "pcm_<rate>" are accepted.
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithPlayer sets the playback device. Defaults to aplay.
func WithPlayer(pl audio.Player) Option {
	return func(p *Provider) { p.player = pl }
}

// WithEndpoint overrides the API base URL (e.g. a test server).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = strings.TrimRight(endpoint, "/") }
}

// Provider implements tts.Speaker using ElevenLabs.
type Provider struct {
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	sampleRate   int
	endpoint     string
	player       audio.Player
}

// New creates a Provider speaking with voiceID.
func New(apiKey, voiceID string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		voiceID:      voiceID,
		model:        defaultModel,
		outputFormat: defaultOutputFormat,
		endpoint:     defaultEndpoint,
		player:       &audio.CommandPlayer{},
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := pcmRate(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.sampleRate = rate
	return p, nil
}

func pcmRate(format string) (int, error) {
	s, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", format)
	}
	rate, err := strconv.Atoi(s)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid output format %q", format)
	}
	return rate, nil
}

// textMessage is one client message on the stream-input socket.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is one server message.
type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (p *Provider) streamURL() string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return fmt.Sprintf("%s/text-to-speech/%s/stream-input?%s", p.endpoint, url.PathEscape(p.voiceID), q.Encode())
}

// Speak implements tts.Speaker.
func (p *Provider) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	pcm, err := p.synthesize(ctx, text)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return errors.New("elevenlabs: no audio returned")
	}
	if err := p.player.Play(ctx, pcm, p.sampleRate, 1); err != nil {
		return fmt.Errorf("elevenlabs: play: %w", err)
	}
	return nil
}

func (p *Provider) synthesize(ctx context.Context, text string) ([]byte, error) {
	conn, _, err := websocket.Dial(ctx, p.streamURL(), nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()

	msgs := []textMessage{
		{
			// Beginning of input: a single space plus settings and key.
			Text:          " ",
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
			XiAPIKey:      p.apiKey,
		},
		{Text: text + " "},
		{Text: ""}, // flush and end of input
	}
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: marshal: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return nil, p.wrap(ctx, "send text", err)
		}
	}

	var pcm []byte
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return nil, p.wrap(ctx, "read audio", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server error: %s %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return pcm, nil
}

func (p *Provider) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("elevenlabs: %s: %w", op, err)
}
