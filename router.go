package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	httpapi "github.com/yourorg/valuation-api/http"
	"github.com/yourorg/valuation-api/internal/logger"
	"github.com/yourorg/valuation-api/internal/metrics"
)

type RouterDeps struct {
	Log           zerolog.Logger
	Metrics       *metrics.Recorder
	MetricsPath   string
	SlowThreshold time.Duration
	RateLimit     int
	RateWindow    time.Duration
	CORSOrigins   []string

	Resolver      httpapi.Resolver
	Places        httpapi.PlaceSearcher
	DefaultRadius float64
	Predictor     httpapi.Predictor
}

func BuildRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(d.Log, d.SlowThreshold))
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if d.RateLimit > 0 {
		window := d.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(d.RateLimit, window)) // protect upstream quota
	}
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]string{"status": "healthy", "message": "API is running"})
	})
	if d.Metrics != nil && d.MetricsPath != "" {
		r.Handle(d.MetricsPath, d.Metrics.Handler())
	}

	httpapi.RegisterGeocode(r, httpapi.GeocodeDeps{Resolver: d.Resolver})
	httpapi.RegisterPlaces(r, httpapi.PlacesDeps{Places: d.Places, DefaultRadius: d.DefaultRadius})
	httpapi.RegisterPredict(r, httpapi.PredictDeps{Resolver: d.Resolver, Predictor: d.Predictor, Metrics: d.Metrics})

	return r
}
