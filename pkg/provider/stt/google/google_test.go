package google

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
)

type fakeClient struct {
	resp   *speechpb.RecognizeResponse
	err    error
	req    *speechpb.RecognizeRequest
	closed bool
}

func (f *fakeClient) Recognize(_ context.Context, req *speechpb.RecognizeRequest, _ ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func result(transcript string, confidence float32) *speechpb.SpeechRecognitionResult {
	return &speechpb.SpeechRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: transcript, Confidence: confidence}},
	}
}

var utt = audio.Utterance{PCM: []byte{1, 2, 3, 4}, SampleRate: 16000, Channels: 1}

func TestRecognize_BuildsLinear16Request(t *testing.T) {
	fc := &fakeClient{resp: &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{result("It hurts", 0.9)}}}
	p, err := NewWithClient(fc, WithModel("medical_conversation"))
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}

	res, err := p.Recognize(context.Background(), utt)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Text != "It hurts" {
		t.Errorf("text = %q", res.Text)
	}

	cfg := fc.req.GetConfig()
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("encoding = %v", cfg.GetEncoding())
	}
	if cfg.GetSampleRateHertz() != 16000 || cfg.GetAudioChannelCount() != 1 {
		t.Errorf("format = %d/%d", cfg.GetSampleRateHertz(), cfg.GetAudioChannelCount())
	}
	if cfg.GetLanguageCode() != "en-US" || cfg.GetModel() != "medical_conversation" {
		t.Errorf("language/model = %q/%q", cfg.GetLanguageCode(), cfg.GetModel())
	}
	if string(fc.req.GetAudio().GetContent()) != string(utt.PCM) {
		t.Error("audio content not forwarded")
	}
}

func TestRecognize_JoinsResults(t *testing.T) {
	fc := &fakeClient{resp: &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
		result(" The pain started ", 0.8),
		{},
		result("two days ago", 0.7),
	}}}
	p, _ := NewWithClient(fc)
	res, err := p.Recognize(context.Background(), utt)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Text != "The pain started two days ago" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Confidence < 0.79 || res.Confidence > 0.81 {
		t.Errorf("confidence = %v", res.Confidence)
	}
}

func TestRecognize_NoResultsIsUnintelligible(t *testing.T) {
	fc := &fakeClient{resp: &speechpb.RecognizeResponse{}}
	p, _ := NewWithClient(fc)
	if _, err := p.Recognize(context.Background(), utt); !errors.Is(err, stt.ErrUnintelligible) {
		t.Fatalf("err = %v, want ErrUnintelligible", err)
	}
}

func TestRecognize_RPCErrorIsUnavailable(t *testing.T) {
	cause := errors.New("rpc error: code = Unavailable")
	p, _ := NewWithClient(&fakeClient{err: cause})
	_, err := p.Recognize(context.Background(), utt)
	if !errors.Is(err, stt.ErrUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("err = %v", err)
	}
}

func TestRecognize_InvalidRate(t *testing.T) {
	fc := &fakeClient{}
	p, _ := NewWithClient(fc)
	if _, err := p.Recognize(context.Background(), audio.Utterance{PCM: []byte{0, 0}}); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if fc.req != nil {
		t.Error("no request should be sent")
	}
}

func TestNewWithClient_Nil(t *testing.T) {
	if _, err := NewWithClient(nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestClose(t *testing.T) {
	fc := &fakeClient{}
	p, _ := NewWithClient(fc)
	if err := p.Close(); err != nil || !fc.closed {
		t.Fatalf("Close: err=%v closed=%v", err, fc.closed)
	}
}
