package logger

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // json or console
}

// New builds the process logger. Output defaults to stdout.
func New(cfg Config, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level: %w", err)
	}
	if out == nil {
		out = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Middleware attaches a request-scoped logger (tagged with a request id) to
// the context and logs one line per request. 5xx responses log at error,
// requests slower than slow log at warn.
func Middleware(base zerolog.Logger, slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, rid)

			l := base.With().Str("request_id", rid).Logger()
			r = r.WithContext(l.WithContext(r.Context()))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			dur := time.Since(start)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			ev := l.Info()
			switch {
			case status >= 500:
				ev = l.Error()
			case slow > 0 && dur >= slow:
				ev = l.Warn()
			}
			ev.Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", dur).
				Msg("http request")
		})
	}
}

// Retryable adapts zerolog to retryablehttp.LeveledLogger.
type Retryable struct {
	L zerolog.Logger
}

func (r Retryable) Error(msg string, kv ...interface{}) { r.L.Error().Fields(kv).Msg(msg) }
func (r Retryable) Info(msg string, kv ...interface{})  { r.L.Debug().Fields(kv).Msg(msg) }
func (r Retryable) Debug(msg string, kv ...interface{}) { r.L.Trace().Fields(kv).Msg(msg) }
func (r Retryable) Warn(msg string, kv ...interface{})  { r.L.Warn().Fields(kv).Msg(msg) }
