package hydrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourorg/valuation-api/maps"
)

// Warmer force-fetches one address into the resolver cache;
// *geocode.Service satisfies it.
type Warmer interface {
	Warm(ctx context.Context, address string) (maps.GeocodeResult, error)
}

type BulkConfig struct {
	Addresses            []string
	Interval             time.Duration
	PauseBetweenRequests time.Duration
	RequestTimeout       time.Duration
}

// BulkJob pushes a fixed address list through the resolver, so the shared
// geocode cache and the address table hold them before traffic arrives.
type BulkJob struct {
	Resolver Warmer
	Log      zerolog.Logger
	Config   BulkConfig
}

type BulkStats struct {
	Warmed   int
	NotFound int
	Failed   int
}

func (j *BulkJob) validate() error {
	if j == nil {
		return errors.New("nil bulk job")
	}
	if j.Resolver == nil {
		return errors.New("hydrator bulk job missing resolver")
	}
	if len(j.Config.Addresses) == 0 {
		return errors.New("hydrator bulk job requires at least one address")
	}
	return nil
}

// Run repeats RunOnce every Interval until ctx ends. A zero interval runs once.
func (j *BulkJob) Run(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	interval := j.Config.Interval
	if interval <= 0 {
		_, err := j.RunOnce(ctx)
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	j.Log.Info().Dur("interval", interval).Int("addresses", len(j.Config.Addresses)).Msg("hydrator bulk job starting")
	if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.Log.Error().Err(err).Msg("hydrator bulk job initial run")
	}
	for {
		select {
		case <-ctx.Done():
			j.Log.Info().Err(ctx.Err()).Msg("hydrator bulk job stopping")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				j.Log.Error().Err(err).Msg("hydrator bulk job iteration")
			}
		}
	}
}

// RunOnce processes every address. Addresses with no geocode result are
// counted, not returned as errors. A missing API key aborts the pass.
func (j *BulkJob) RunOnce(ctx context.Context) (BulkStats, error) {
	var stats BulkStats
	if err := j.validate(); err != nil {
		return stats, err
	}
	timeout := j.Config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var joined error
	for i, raw := range j.Config.Addresses {
		addr := strings.TrimSpace(raw)
		if addr == "" {
			continue
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if i > 0 && j.Config.PauseBetweenRequests > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(j.Config.PauseBetweenRequests):
			}
		}

		err := j.warm(ctx, addr, timeout)
		switch {
		case err == nil:
			stats.Warmed++
		case errors.Is(err, maps.ErrMissingAPIKey):
			return stats, err
		case errors.Is(err, maps.ErrNoResults):
			stats.NotFound++
			j.Log.Info().Str("address", addr).Msg("no geocode result")
		default:
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			joined = errors.Join(joined, fmt.Errorf("%s: %w", addr, err))
		}
	}
	j.Log.Info().
		Int("warmed", stats.Warmed).
		Int("not_found", stats.NotFound).
		Int("failed", stats.Failed).
		Msg("hydrator bulk pass complete")
	return stats, joined
}

func (j *BulkJob) warm(ctx context.Context, addr string, timeout time.Duration) error {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := j.Resolver.Warm(rctx, addr)
	return err
}
