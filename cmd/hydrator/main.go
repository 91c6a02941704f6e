package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yourorg/valuation-api/internal/config"
	"github.com/yourorg/valuation-api/internal/env"
	"github.com/yourorg/valuation-api/internal/geocode"
	"github.com/yourorg/valuation-api/internal/hydrator"
	"github.com/yourorg/valuation-api/internal/logger"
	"github.com/yourorg/valuation-api/internal/redisx"
	"github.com/yourorg/valuation-api/internal/store"
	"github.com/yourorg/valuation-api/maps"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	file := flag.String("file", env.Get("HYDRATOR_FILE", ""), "file with one address per line")
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
	log = log.With().Str("component", "hydrator").Logger()

	if cfg.Redis.Addr == "" && cfg.Postgres.DSN == "" {
		log.Fatal().Msg("REDIS_ADDR or PG_DSN must be provided")
	}
	if cfg.Redis.Addr == "" {
		log.Warn().Msg("REDIS_ADDR not set; only the address table will be warmed")
	}
	addresses := splitAddresses(os.Getenv("HYDRATOR_ADDRESSES"))
	if *file != "" {
		fromFile, err := readAddresses(*file)
		if err != nil {
			log.Fatal().Err(err).Msg("read address file")
		}
		addresses = append(addresses, fromFile...)
	}
	if len(addresses) == 0 {
		log.Fatal().Msg("HYDRATOR_ADDRESSES or -file must provide at least one address")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var cache geocode.Cache
	if cfg.Redis.Addr != "" {
		rc := redisx.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("redis ping")
		}
		cache = rc
	}

	var hyd geocode.Hydrator
	if cfg.Postgres.DSN != "" {
		st, err := store.Open(cfg.Postgres.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("store open")
		}
		defer st.Close()
		if err := st.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping")
		}
		if err := st.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres migrate")
		}
		hyd = &hydrator.Hydrator{Store: st}
	}

	client := maps.NewClient(maps.EnvKey(cfg.Maps.APIKeyEnv), maps.Options{
		GeocodeURL:        cfg.Maps.GeocodeURL,
		Timeout:           cfg.Maps.Timeout,
		RetryMax:          cfg.Maps.RetryMax,
		RequestsPerSecond: cfg.Maps.RequestsPerSecond,
		Logger:            logger.Retryable{L: log},
	})

	resolver := geocode.New(geocode.Deps{
		Provider:    client,
		Cache:       cache,
		Hydrator:    hyd,
		Log:         log,
		CacheTTL:    cfg.Cache.TTL,
		StaleAfter:  cfg.Cache.StaleAfter,
		NegativeTTL: cfg.Cache.NegativeTTL,
	})

	job := &hydrator.BulkJob{
		Resolver: resolver,
		Log:      log,
		Config: hydrator.BulkConfig{
			Addresses:            addresses,
			Interval:             env.GetDuration("HYDRATOR_INTERVAL", 0),
			PauseBetweenRequests: env.GetDuration("HYDRATOR_PAUSE", 200*time.Millisecond),
			RequestTimeout:       env.GetDuration("HYDRATOR_REQUEST_TIMEOUT", 12*time.Second),
		},
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := job.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("hydrator job stopped with error")
	}
}

// splitAddresses splits on semicolons and newlines; commas belong to addresses.
func splitAddresses(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ';' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func readAddresses(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
