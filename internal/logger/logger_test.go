package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud", Format: "json"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMiddlewareLogsRouteAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	base, err := New(Config{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}

	var ctxLogged bool
	r := chi.NewRouter()
	r.Use(Middleware(base, 0))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		ctxLogged = true
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/items/42", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if !ctxLogged || rec.Header().Get(RequestIDHeader) != "rid-1" {
		t.Fatalf("request id not propagated")
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["route"] != "/items/{id}" || entry["request_id"] != "rid-1" || entry["status"] != float64(418) {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestMiddlewareGeneratesRequestID(t *testing.T) {
	h := Middleware(zerolog.Nop(), 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rec.Header().Get(RequestIDHeader)) != 36 {
		t.Fatalf("expected a uuid, got %q", rec.Header().Get(RequestIDHeader))
	}
}

func TestServerErrorsLogAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	base, _ := New(Config{Level: "info", Format: "json"}, &buf)
	h := Middleware(base, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error level, got %s", buf.String())
	}
}
