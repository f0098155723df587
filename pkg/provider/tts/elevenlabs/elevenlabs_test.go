package elevenlabs_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/SalahAli20/ADCAI/pkg/audio/mock"
	"github.com/SalahAli20/ADCAI/pkg/provider/tts/elevenlabs"
)

type clientMsg struct {
	Text          string `json:"text"`
	XiAPIKey      string `json:"xi_api_key"`
	VoiceSettings *struct {
		Stability float64 `json:"stability"`
	} `json:"voice_settings"`
}

// fakeServer reads client messages until the empty flush message, then
// streams replies back.
type fakeServer struct {
	replies []string

	mu   sync.Mutex
	path string
	rawQ string
	msgs []clientMsg
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.path = r.URL.Path
	f.rawQ = r.URL.RawQuery
	f.mu.Unlock()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var m clientMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return
		}
		f.mu.Lock()
		f.msgs = append(f.msgs, m)
		f.mu.Unlock()
		if m.Text == "" {
			break
		}
	}
	for _, msg := range f.replies {
		if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func newServer(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func audioMsg(pcm []byte, final bool) string {
	b, _ := json.Marshal(map[string]any{
		"audio":   base64.StdEncoding.EncodeToString(pcm),
		"isFinal": final,
	})
	return string(b)
}

func TestNew_Validation(t *testing.T) {
	if _, err := elevenlabs.New("", "voice"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := elevenlabs.New("key", ""); err == nil {
		t.Error("expected error for empty voice")
	}
	if _, err := elevenlabs.New("key", "voice", elevenlabs.WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM output format")
	}
	if _, err := elevenlabs.New("key", "voice", elevenlabs.WithOutputFormat("pcm_x")); err == nil {
		t.Error("expected error for malformed PCM format")
	}
}

func TestSpeak_PlaysStreamedAudio(t *testing.T) {
	f := &fakeServer{replies: []string{
		audioMsg([]byte{1, 2, 3, 4}, false),
		`{"message":"info"}`,
		audioMsg([]byte{5, 6}, false),
		`{"isFinal":true}`,
	}}
	player := &mock.Player{}
	p, err := elevenlabs.New("xi-key", "rachel",
		elevenlabs.WithEndpoint(newServer(t, f)),
		elevenlabs.WithModel("eleven_turbo_v2"),
		elevenlabs.WithOutputFormat("pcm_22050"),
		elevenlabs.WithPlayer(player),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := p.Speak(context.Background(), "It hurts when I drink cold water."); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	calls := player.PlayCalls()
	if len(calls) != 1 {
		t.Fatalf("got %d Play calls, want 1", len(calls))
	}
	if got := calls[0].PCM; string(got) != string([]byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("PCM = %v", got)
	}
	if calls[0].SampleRate != 22050 || calls[0].Channels != 1 {
		t.Errorf("format = %d Hz / %d ch, want 22050 / 1", calls[0].SampleRate, calls[0].Channels)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.path != "/text-to-speech/rachel/stream-input" {
		t.Errorf("path = %q", f.path)
	}
	if !strings.Contains(f.rawQ, "model_id=eleven_turbo_v2") || !strings.Contains(f.rawQ, "output_format=pcm_22050") {
		t.Errorf("query = %q", f.rawQ)
	}
	if len(f.msgs) != 3 {
		t.Fatalf("server got %d messages, want 3", len(f.msgs))
	}
	if f.msgs[0].Text != " " || f.msgs[0].XiAPIKey != "xi-key" || f.msgs[0].VoiceSettings == nil {
		t.Errorf("first message = %+v", f.msgs[0])
	}
	if f.msgs[1].Text != "It hurts when I drink cold water. " {
		t.Errorf("text message = %q", f.msgs[1].Text)
	}
}

func TestSpeak_EmptyText_NoDial(t *testing.T) {
	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("server should not be contacted for empty text")
	})
	player := &mock.Player{}
	p, _ := elevenlabs.New("k", "v", elevenlabs.WithEndpoint(newServer(t, h)), elevenlabs.WithPlayer(player))

	if err := p.Speak(context.Background(), "   "); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if n := len(player.PlayCalls()); n != 0 {
		t.Errorf("got %d Play calls, want 0", n)
	}
}

func TestSpeak_ServerError(t *testing.T) {
	f := &fakeServer{replies: []string{`{"error":"quota_exceeded","message":"out of characters"}`}}
	player := &mock.Player{}
	p, _ := elevenlabs.New("k", "v", elevenlabs.WithEndpoint(newServer(t, f)), elevenlabs.WithPlayer(player))

	err := p.Speak(context.Background(), "Hello.")
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Fatalf("err = %v, want quota_exceeded", err)
	}
	if n := len(player.PlayCalls()); n != 0 {
		t.Errorf("got %d Play calls, want 0", n)
	}
}

func TestSpeak_PlayerError(t *testing.T) {
	f := &fakeServer{replies: []string{audioMsg([]byte{1, 2}, true)}}
	boom := errors.New("device busy")
	p, _ := elevenlabs.New("k", "v",
		elevenlabs.WithEndpoint(newServer(t, f)),
		elevenlabs.WithPlayer(&mock.Player{Err: boom}),
	)

	if err := p.Speak(context.Background(), "Hello."); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestSpeak_HandshakeRejected(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	p, _ := elevenlabs.New("k", "v", elevenlabs.WithEndpoint(newServer(t, h)), elevenlabs.WithPlayer(&mock.Player{}))

	if err := p.Speak(context.Background(), "Hello."); err == nil {
		t.Fatal("expected error for rejected handshake")
	}
}
