package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	restapi "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
)

func decodeResponse(t *testing.T, raw string) *restapi.PreRecordedResponse {
	t.Helper()
	var resp restapi.PreRecordedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal deepgram response failed: %v", err)
	}
	return &resp
}

func TestFromResponse(t *testing.T) {
	resp := decodeResponse(t, `{
		"metadata": {"duration": 12.5},
		"results": {
			"channels": [
				{
					"alternatives": [
						{
							"transcript": " so first click the settings button ",
							"confidence": 0.97,
							"words": [
								{"word": "so", "punctuated_word": "So", "start": 0.1, "end": 0.3, "confidence": 0.99},
								{"word": "first", "punctuated_word": "first", "start": 0.3, "end": 0.6, "confidence": 0.98}
							]
						}
					]
				}
			]
		}
	}`)

	tr, err := fromResponse(resp)
	if err != nil {
		t.Fatalf("fromResponse failed: %v", err)
	}

	if tr.Text != "so first click the settings button" {
		t.Fatalf("unexpected transcript text %q", tr.Text)
	}
	if tr.Confidence != 0.97 {
		t.Fatalf("expected confidence 0.97, got %v", tr.Confidence)
	}
	if tr.Duration != 12.5 {
		t.Fatalf("expected duration 12.5, got %v", tr.Duration)
	}
	if len(tr.Words) != 2 || tr.Words[0].PunctuatedWord != "So" || tr.Words[1].Start != 0.3 {
		t.Fatalf("unexpected words: %+v", tr.Words)
	}
}

func TestFromResponseEmpty(t *testing.T) {
	for name, raw := range map[string]string{
		"no channels":     `{"results": {"channels": []}}`,
		"no alternatives": `{"results": {"channels": [{"alternatives": []}]}}`,
	} {
		resp := decodeResponse(t, raw)
		if _, err := fromResponse(resp); err == nil {
			t.Fatalf("%s: expected error for malformed response", name)
		}
	}
}

func TestGatewayAvailability(t *testing.T) {
	if NewGateway("", "nova-2").IsAvailable() {
		t.Fatal("expected gateway without key to be unavailable")
	}
	if !NewGateway("dg-key", "").IsAvailable() {
		t.Fatal("expected gateway with key to be available")
	}
}

func TestTranscribeWrapsTransportError(t *testing.T) {
	g := NewGateway("dg-key", "nova-2")
	g.transcribeFile = func(context.Context, string) (*restapi.PreRecordedResponse, error) {
		return nil, errors.New("connection refused")
	}

	_, err := g.Transcribe(context.Background(), "audio.webm")
	if err == nil {
		t.Fatal("expected transport error to propagate")
	}
	if !strings.Contains(err.Error(), "deepgram transcription") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestTranscribeUnconfigured(t *testing.T) {
	g := NewGateway("", "")
	if _, err := g.Transcribe(context.Background(), "audio.webm"); err == nil {
		t.Fatal("expected error from unconfigured gateway")
	}
}
