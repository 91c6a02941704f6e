package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	httpapi "github.com/yourorg/valuation-api/http"
	"github.com/yourorg/valuation-api/internal/config"
	"github.com/yourorg/valuation-api/internal/geocode"
	"github.com/yourorg/valuation-api/internal/hydrator"
	"github.com/yourorg/valuation-api/internal/logger"
	"github.com/yourorg/valuation-api/internal/metrics"
	"github.com/yourorg/valuation-api/internal/redisx"
	"github.com/yourorg/valuation-api/internal/refresh"
	"github.com/yourorg/valuation-api/internal/store"
	"github.com/yourorg/valuation-api/internal/valuation"
	"github.com/yourorg/valuation-api/maps"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("valuation-api stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec = metrics.New(reg)
	}

	engine, err := buildEngine(cfg.Valuation, log)
	if err != nil {
		return err
	}

	mapsClient := maps.NewClient(maps.EnvKey(cfg.Maps.APIKeyEnv), maps.Options{
		GeocodeURL:        cfg.Maps.GeocodeURL,
		PlacesURL:         cfg.Maps.PlacesURL,
		Timeout:           cfg.Maps.Timeout,
		RetryMax:          cfg.Maps.RetryMax,
		RequestsPerSecond: cfg.Maps.RequestsPerSecond,
		Logger:            logger.Retryable{L: log.With().Str("component", "maps").Logger()},
		Observer:          rec,
	})
	if _, ok := os.LookupEnv(cfg.Maps.APIKeyEnv); !ok {
		log.Warn().Str("env", cfg.Maps.APIKeyEnv).Msg("maps API key not set; geocoding will fail until it is")
	}

	var places httpapi.PlaceSearcher = mapsClient
	if cfg.Places.Provider == "overpass" {
		places = maps.NewOverpassClient(cfg.Places.OverpassURL, cfg.Places.OverpassTimeout, rec)
	}

	var cache geocode.Cache = geocode.NewMemoryCache(cfg.Cache.MaxEntries)
	if cfg.Redis.Addr != "" {
		rc := redisx.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rc.Close()
		if err := waitFor(ctx, log, "redis", rc.Ping); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		cache = rc
	}

	var hyd geocode.Hydrator
	if cfg.Postgres.DSN != "" {
		st, err := store.Open(cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("store open: %w", err)
		}
		defer st.Close()
		if err := waitFor(ctx, log, "postgres", st.Ping); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		hyd = &hydrator.Hydrator{Store: st}
	}

	var refresher *refresh.Refresher
	resolver := geocode.New(geocode.Deps{
		Provider:     mapsClient,
		ProviderName: "google",
		Cache:        cache,
		Hydrator:     hyd,
		Refetch: func(key, address string) {
			refresher.Enqueue(refresh.Job{Key: key, Address: address})
		},
		Metrics:     rec,
		Log:         log.With().Str("component", "geocode").Logger(),
		CacheTTL:    cfg.Cache.TTL,
		StaleAfter:  cfg.Cache.StaleAfter,
		NegativeTTL: cfg.Cache.NegativeTTL,
	})
	refresher = refresh.New(cfg.Cache.RefreshQueue, cfg.Cache.RefreshWorkers, func(ctx context.Context, j refresh.Job) {
		_ = resolver.Refresh(ctx, j.Key, j.Address)
	})

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: BuildRouter(RouterDeps{
			Log:           log,
			Metrics:       rec,
			MetricsPath:   cfg.Metrics.Path,
			SlowThreshold: cfg.HTTP.SlowThreshold,
			RateLimit:     cfg.HTTP.RateLimit,
			RateWindow:    cfg.HTTP.RateWindow,
			CORSOrigins:   cfg.HTTP.CORSOrigins,
			Resolver:      resolver,
			Places:        places,
			DefaultRadius: cfg.Places.DefaultRadius,
			Predictor:     engine,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("model", engine.ModelName()).
			Str("places", cfg.Places.Provider).
			Msg("valuation-api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := refresher.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("refresh workers did not drain")
	}
	return nil
}

func buildEngine(cfg config.ValuationConfig, log zerolog.Logger) (*valuation.Engine, error) {
	switch cfg.Model {
	case "gbt":
		start := time.Now()
		m, err := valuation.TrainFromCSV(cfg.DatasetPath, valuation.DefaultBoostParams(), time.Now())
		if err != nil {
			return nil, fmt.Errorf("train gbt: %w", err)
		}
		log.Info().
			Str("dataset", cfg.DatasetPath).
			Int("trees", m.Trees()).
			Dur("took", time.Since(start)).
			Msg("gbt model trained")
		return valuation.NewEngine(m), nil
	default:
		return valuation.NewEngine(valuation.NewLinearModel()), nil
	}
}

// waitFor pings a dependency with exponential backoff for up to 30s.
func waitFor(ctx context.Context, log zerolog.Logger, name string, ping func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	op := func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return ping(pctx)
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.Warn().Err(err).Str("dependency", name).Dur("retry_in", next).Msg("dependency not ready")
	})
}
