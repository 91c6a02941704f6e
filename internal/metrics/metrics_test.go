package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Prediction("linear", "Undervalued")
	r.ObserveUpstream("google", "geocode", "ok", time.Millisecond)
	r.CacheResult("hit")
	r.Refresh("ok")
	h := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestExposition(t *testing.T) {
	rec := New(prometheus.NewRegistry())
	rec.Prediction("gbt", "Overvalued")
	rec.ObserveUpstream("google", "geocode", "no_results", 20*time.Millisecond)
	rec.CacheResult("stale")

	r := chi.NewRouter()
	r.Use(rec.Middleware)
	r.Get("/api/thing/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	r.Handle("/metrics", rec.Handler())
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/thing/7", nil))

	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(res.Body)
	for _, want := range []string{
		`valuation_predictions_total{model="gbt",valuation="Overvalued"} 1`,
		`valuation_upstream_requests_total{endpoint="geocode",outcome="no_results",provider="google"} 1`,
		`valuation_geocode_cache_total{result="stale"} 1`,
		`valuation_http_requests_total{method="GET",route="/api/thing/{id}",status="202"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}
