package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhouzirui/z-relay/backend/internal/metrics"
	"github.com/zhouzirui/z-relay/backend/internal/service/session"
	"github.com/zhouzirui/z-relay/backend/internal/service/speech"
)

type stubSpeechService struct{}

func (stubSpeechService) WrapClient(conn *websocket.Conn) session.Downstream {
	return speech.NewClientConn(conn, speech.Options{})
}

func (stubSpeechService) ConnectProvider(context.Context, string) (session.Upstream, error) {
	return nil, &speech.ConnectionError{Op: "dial", Err: speech.ErrMissingAPIKey}
}

func (stubSpeechService) NewDecoder() speech.Decoder {
	return speech.NewAggregator()
}

func (stubSpeechService) Transcribe(context.Context, string, io.Reader) (string, error) {
	return "stub", nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SessionOpened()
	return NewRouter(session.NewRegistry(0), stubSpeechService{}, m, reg, log.New(io.Discard))
}

func TestRouterServesRelayHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/relay/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestRouterExposesMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "relay_active_sessions 1") {
		t.Fatalf("expected active sessions gauge, got %s", rec.Body.String())
	}
}

func TestRouterUpgradesThroughMiddleware(t *testing.T) {
	server := httptest.NewServer(newTestRouter(t))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/relay/ws/mw"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial through middleware err: %v", err)
	}
	defer conn.Close()

	if _, data, err := conn.ReadMessage(); err != nil || !strings.Contains(string(data), `"connected"`) {
		t.Fatalf("expected connected event, got %s (%v)", data, err)
	}
}

func TestRouterServesTranscribe(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/relay/transcribe", strings.NewReader("pcm"))
	req.Header.Set("Content-Type", "application/octet-stream")
	newTestRouter(t).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"stub"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}
