// Package geocode resolves free-text addresses to coordinates through a
// read-through cache with negative caching and stale-while-revalidate.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourorg/valuation-api/internal/canon"
	"github.com/yourorg/valuation-api/internal/metrics"
	"github.com/yourorg/valuation-api/maps"
)

var (
	ErrEmptyAddress = errors.New("address is empty")
	ErrNotFound     = errors.New("location not found")
)

const (
	cachePrefix = "geo:pk:"
	missPrefix  = "geo:miss:"
	endpoint    = "geocode"
)

type Provider interface {
	Geocode(ctx context.Context, address string) (maps.GeocodeResult, []byte, error)
}

// Cache stores opaque envelopes. Get reports ok=false for absent keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

type Hydrator interface {
	Write(ctx context.Context, provider, endpoint string, raw []byte, res maps.GeocodeResult) error
}

type Deps struct {
	Provider     Provider
	ProviderName string
	Cache        Cache
	Hydrator     Hydrator
	// Refetch is called for stale hits; nil disables background refresh.
	Refetch func(key, address string)
	Metrics *metrics.Recorder
	Log     zerolog.Logger

	CacheTTL    time.Duration
	StaleAfter  time.Duration
	NegativeTTL time.Duration
	Now         func() time.Time
}

type Envelope struct {
	Data maps.GeocodeResult `json:"data"`
	Meta Meta               `json:"meta"`
}

type Meta struct {
	LastFetch  time.Time `json:"last_fetch_at"`
	StaleAfter time.Time `json:"stale_after"`
	TTLSeconds int       `json:"ttl_seconds"`
	Source     string    `json:"source"`
}

type Service struct {
	d Deps
}

func New(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ProviderName == "" {
		d.ProviderName = "google"
	}
	d.CacheTTL = maxDur(d.CacheTTL, time.Hour)
	d.StaleAfter = maxDur(d.StaleAfter, 5*time.Minute)
	d.NegativeTTL = maxDur(d.NegativeTTL, time.Minute)
	return &Service{d: d}
}

// Resolve returns the first geocode result for address. Cache failures are
// logged and treated as misses.
func (s *Service) Resolve(ctx context.Context, address string) (maps.GeocodeResult, error) {
	key := canon.Key(address)
	if key == "" {
		return maps.GeocodeResult{}, ErrEmptyAddress
	}
	log := s.logger(ctx).With().Str("cache_key", key).Logger()

	if s.d.Cache != nil {
		if env, ok := s.cached(ctx, log, key); ok {
			if s.d.Now().After(env.Meta.StaleAfter) {
				s.d.Metrics.CacheResult("stale")
				if s.d.Refetch != nil {
					s.d.Refetch(key, address)
				}
			} else {
				s.d.Metrics.CacheResult("hit")
			}
			return env.Data, nil
		}

		if miss, err := s.d.Cache.Exists(ctx, missPrefix+key); err != nil {
			log.Warn().Err(err).Msg("negative cache lookup failed")
		} else if miss {
			s.d.Metrics.CacheResult("negative")
			return maps.GeocodeResult{}, ErrNotFound
		}
		s.d.Metrics.CacheResult("miss")
	}

	return s.fetch(ctx, log, key, address, true)
}

// Warm fetches address from the provider regardless of cache state and
// stores the result, so later Resolve calls for the same key are hits.
func (s *Service) Warm(ctx context.Context, address string) (maps.GeocodeResult, error) {
	key := canon.Key(address)
	if key == "" {
		return maps.GeocodeResult{}, ErrEmptyAddress
	}
	return s.fetch(ctx, s.logger(ctx).With().Str("cache_key", key).Logger(), key, address, true)
}

// Refresh re-fetches a stale entry. A failed refresh leaves the cached entry
// in place and never writes a negative marker.
func (s *Service) Refresh(ctx context.Context, key, address string) error {
	_, err := s.fetch(ctx, s.d.Log.With().Str("cache_key", key).Logger(), key, address, false)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		s.d.Log.Warn().Err(err).Str("cache_key", key).Msg("geocode refresh failed")
	}
	s.d.Metrics.Refresh(outcome)
	return err
}

func (s *Service) cached(ctx context.Context, log zerolog.Logger, key string) (Envelope, bool) {
	b, ok, err := s.d.Cache.Get(ctx, cachePrefix+key)
	if err != nil {
		log.Warn().Err(err).Msg("cache read failed")
		return Envelope{}, false
	}
	if !ok {
		return Envelope{}, false
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		log.Warn().Err(err).Msg("discarding undecodable cache entry")
		return Envelope{}, false
	}
	return env, true
}

func (s *Service) fetch(ctx context.Context, log zerolog.Logger, key, address string, negative bool) (maps.GeocodeResult, error) {
	res, raw, err := s.d.Provider.Geocode(ctx, address)
	if err != nil {
		// Status errors can be transient, so only "no results" is negatively cached.
		if !errors.Is(err, maps.ErrNoResults) {
			return maps.GeocodeResult{}, err
		}
		if negative && s.d.Cache != nil {
			if cerr := s.d.Cache.Set(ctx, missPrefix+key, []byte("1"), s.d.NegativeTTL); cerr != nil {
				log.Warn().Err(cerr).Msg("negative cache write failed")
			}
		}
		return maps.GeocodeResult{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	if s.d.Cache != nil {
		now := s.d.Now()
		env := Envelope{Data: res}
		env.Meta.LastFetch = now
		env.Meta.StaleAfter = now.Add(s.d.StaleAfter)
		env.Meta.TTLSeconds = int(s.d.CacheTTL.Seconds())
		env.Meta.Source = s.d.ProviderName
		if b, err := json.Marshal(env); err == nil {
			if err := s.d.Cache.Set(ctx, cachePrefix+key, b, s.d.CacheTTL); err != nil {
				log.Warn().Err(err).Msg("cache write failed")
			}
		}
	}

	if s.d.Hydrator != nil {
		if err := s.d.Hydrator.Write(ctx, s.d.ProviderName, endpoint, raw, res); err != nil {
			log.Warn().Err(err).Msg("address write-behind failed")
		}
	}
	return res, nil
}

func (s *Service) logger(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return s.d.Log
}

func maxDur(a, b time.Duration) time.Duration {
	if a > 0 {
		return a
	}
	return b
}
