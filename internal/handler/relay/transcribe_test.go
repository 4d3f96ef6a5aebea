package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zhouzirui/z-relay/backend/internal/service/speech"
)

func postTranscribe(t *testing.T, f *relayFixture, contentType string, body *bytes.Buffer) (int, map[string]string) {
	t.Helper()

	resp, err := http.Post(f.server.URL+"/relay/transcribe", contentType, body)
	if err != nil {
		t.Fatalf("Post err: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Decode err: %v", err)
	}
	return resp.StatusCode, out
}

func multipartAudio(t *testing.T, field string, audio []byte) (string, *bytes.Buffer) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, "sample.wav")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write(audio); err != nil {
		t.Fatalf("Write err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close err: %v", err)
	}
	return writer.FormDataContentType(), body
}

func TestTranscribeMultipartUpload(t *testing.T) {
	provider := newFakeProvider(t, map[string]string{
		"chunk-1": `{"tokens":[{"text":"hello"},{"text":"world"}]}`,
		"":        `{"tokens":[{"text":"<end>"}],"finished":true}`,
	})
	f := newRelayFixture(t, newSpeechService(provider.url()))

	contentType, body := multipartAudio(t, "audio", []byte("chunk-1"))
	status, out := postTranscribe(t, f, contentType, body)

	if status != http.StatusOK || out["text"] != "hello world" {
		t.Fatalf("unexpected response %d %v", status, out)
	}

	audio := provider.receivedAudio()
	if len(audio) != 2 || audio[0] != "chunk-1" || audio[1] != "" {
		t.Fatalf("expected audio then an empty end frame, got %q", audio)
	}

	var cfg map[string]any
	if err := json.Unmarshal(provider.receivedConfig(), &cfg); err != nil || cfg["api_key"] != "test-key" {
		t.Fatalf("expected provider config first, got %s", provider.receivedConfig())
	}
	if f.registry.Len() != 0 {
		t.Fatal("one-shot transcription must not register a live session")
	}
}

func TestTranscribeRawBodyJoinsUtterances(t *testing.T) {
	provider := newFakeProvider(t, map[string]string{
		"pcm": `{"tokens":[{"text":"one"},{"text":"<end>"},{"text":"two"}]}`,
		"":    `{"tokens":[{"text":"three"}],"finished":true}`,
	})
	f := newRelayFixture(t, newSpeechService(provider.url()))

	status, out := postTranscribe(t, f, "application/octet-stream", bytes.NewBufferString("pcm"))

	if status != http.StatusOK || out["text"] != "one two three" {
		t.Fatalf("unexpected response %d %v", status, out)
	}
}

func TestTranscribeProviderError(t *testing.T) {
	provider := newFakeProvider(t, map[string]string{
		"": `{"error_code":401,"error_message":"invalid api key"}`,
	})
	f := newRelayFixture(t, newSpeechService(provider.url()))

	status, out := postTranscribe(t, f, "application/octet-stream", bytes.NewBufferString("pcm"))

	if status != http.StatusBadGateway || out["error"] != "transcription failed" {
		t.Fatalf("unexpected response %d %v", status, out)
	}
	if got := testutil.ToFloat64(f.metrics.SessionErrors.WithLabelValues("provider")); got != 1 {
		t.Fatalf("expected one provider error, got %v", got)
	}
}

func TestTranscribeProviderUnavailable(t *testing.T) {
	svc := &failingService{err: &speech.ConnectionError{Op: "dial", Err: errors.New("refused")}}
	f := newRelayFixture(t, svc)

	status, out := postTranscribe(t, f, "application/octet-stream", bytes.NewBufferString("pcm"))

	if status != http.StatusBadGateway || out["error"] != "transcription failed" {
		t.Fatalf("unexpected response %d %v", status, out)
	}
}

func TestTranscribeRequiresAudioField(t *testing.T) {
	f := newRelayFixture(t, &failingService{err: errors.New("must not be called")})

	contentType, body := multipartAudio(t, "file", []byte("pcm"))
	status, out := postTranscribe(t, f, contentType, body)

	if status != http.StatusBadRequest || !strings.Contains(out["error"], "audio") {
		t.Fatalf("unexpected response %d %v", status, out)
	}
}
