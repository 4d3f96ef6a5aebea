package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-relay/backend/internal/service/session"
)

func newAdminRouter(t *testing.T, registry *session.Registry) http.Handler {
	t.Helper()

	h := New(&failingService{}, registry, nil, log.New(io.Discard))
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestListSessions(t *testing.T) {
	registry := session.NewRegistry(0)
	for _, id := range []string{"a", "b"} {
		if _, err := registry.Register(id, &idleConn{}); err != nil {
			t.Fatalf("Register err: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	newAdminRouter(t, registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/relay/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var body struct {
		Sessions []session.Snapshot `json:"sessions"`
		Count    int                `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal err: %v", err)
	}
	if body.Count != 2 || len(body.Sessions) != 2 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if body.Sessions[0].State != "pending" {
		t.Fatalf("unexpected state %q", body.Sessions[0].State)
	}
}

func TestEndSession(t *testing.T) {
	registry := session.NewRegistry(0)
	conn := &idleConn{}
	sess, err := registry.Register("abc", conn)
	if err != nil {
		t.Fatalf("Register err: %v", err)
	}

	rec := httptest.NewRecorder()
	newAdminRouter(t, registry).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/relay/sessions/abc", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !conn.isClosed() || sess.State() != session.StateClosed {
		t.Fatal("expected session to be closed")
	}
}

func TestEndUnknownSession(t *testing.T) {
	registry := session.NewRegistry(0)

	rec := httptest.NewRecorder()
	newAdminRouter(t, registry).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/relay/sessions/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if registry.Len() != 0 {
		t.Fatal("unknown session end must not touch the registry")
	}
}

func TestHealth(t *testing.T) {
	registry := session.NewRegistry(0)

	rec := httptest.NewRecorder()
	newAdminRouter(t, registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/relay/health", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal err: %v", err)
	}
	if rec.Code != http.StatusOK || body["status"] != "healthy" || body["sessions"] != float64(0) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}
