package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

var (
	ErrMissingAPIKey  = errors.New("maps: api key is not set")
	ErrNoResults      = errors.New("maps: no results")
	ErrUpstreamStatus = errors.New("maps: upstream returned an error status")
)

const (
	DefaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"
	DefaultPlacesURL  = "https://places.googleapis.com/v1/places:searchNearby"

	placesFieldMask = "places.displayName,places.location,places.formattedAddress,places.types"
	maxPayload      = 4 << 20
)

// KeyFunc returns the API key. It is called per request so a key rotated in
// the environment is picked up without a restart.
type KeyFunc func() string

func EnvKey(name string) KeyFunc {
	return func() string { return os.Getenv(name) }
}

// Observer receives one call per upstream request.
type Observer interface {
	ObserveUpstream(provider, endpoint, outcome string, d time.Duration)
}

type Options struct {
	GeocodeURL        string
	PlacesURL         string
	Timeout           time.Duration
	RetryMax          int
	RequestsPerSecond float64
	// Logger is handed to retryablehttp; nil silences it.
	Logger   retryablehttp.LeveledLogger
	Observer Observer
}

// Client talks to the Google Geocoding and Places APIs.
type Client struct {
	key        KeyFunc
	geocodeURL string
	placesURL  string
	http       *retryablehttp.Client
	limiter    *rate.Limiter
	observer   Observer
}

func NewClient(key KeyFunc, opts Options) *Client {
	if opts.GeocodeURL == "" {
		opts.GeocodeURL = DefaultGeocodeURL
	}
	if opts.PlacesURL == "" {
		opts.PlacesURL = DefaultPlacesURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 6 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 900 * time.Millisecond
	rc.RetryMax = opts.RetryMax
	rc.HTTPClient.Timeout = opts.Timeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = opts.Logger

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		key:        key,
		geocodeURL: opts.GeocodeURL,
		placesURL:  opts.PlacesURL,
		http:       rc,
		limiter:    rate.NewLimiter(limit, max(1, int(opts.RequestsPerSecond))),
		observer:   opts.Observer,
	}
}

func (c *Client) apiKey() (string, error) {
	if c.key == nil {
		return "", ErrMissingAPIKey
	}
	k := c.key()
	if k == "" {
		return "", ErrMissingAPIKey
	}
	return k, nil
}

// Geocode resolves a free-text address. The raw provider payload is returned
// alongside the mapped result for snapshotting.
func (c *Client) Geocode(ctx context.Context, address string) (GeocodeResult, []byte, error) {
	start := time.Now()
	res, raw, err := c.geocode(ctx, address)
	c.observe("geocode", start, err)
	return res, raw, err
}

func (c *Client) geocode(ctx context.Context, address string) (GeocodeResult, []byte, error) {
	key, err := c.apiKey()
	if err != nil {
		return GeocodeResult{}, nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return GeocodeResult{}, nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", key)
	u := c.geocodeURL + "?" + q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return GeocodeResult{}, nil, err
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return GeocodeResult{}, nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return GeocodeResult{}, nil, fmt.Errorf("geocode http %d: %w", resp.StatusCode, ErrUpstreamStatus)
	}
	raw, err := ioReadAllLimit(resp.Body, maxPayload)
	if err != nil {
		return GeocodeResult{}, nil, err
	}
	res, err := MapGeocodePayload(raw)
	if err != nil {
		return GeocodeResult{}, raw, err
	}
	return res, raw, nil
}

// SearchNearby queries Places API v1 searchNearby restricted to a circle.
func (c *Client) SearchNearby(ctx context.Context, q NearbyQuery) ([]Place, error) {
	start := time.Now()
	places, err := c.searchNearby(ctx, q)
	c.observe("places", start, err)
	return places, err
}

func (c *Client) searchNearby(ctx context.Context, q NearbyQuery) ([]Place, error) {
	key, err := c.apiKey()
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(nearbyRequest(q))
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.placesURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", key)
	req.Header.Set("X-Goog-FieldMask", placesFieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var payload map[string]any
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxPayload)).Decode(&payload)
		return nil, fmt.Errorf("places http %d %v: %w", resp.StatusCode, payload["error"], ErrUpstreamStatus)
	}
	raw, err := ioReadAllLimit(resp.Body, maxPayload)
	if err != nil {
		return nil, err
	}
	return MapPlacesPayload(raw)
}

func (c *Client) observe(endpoint string, start time.Time, err error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveUpstream("google", endpoint, Outcome(err), time.Since(start))
}

// Outcome labels an upstream error for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoResults):
		return "no_results"
	case errors.Is(err, ErrMissingAPIKey):
		return "missing_key"
	case errors.Is(err, ErrUpstreamStatus):
		return "upstream_status"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func ioReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("payload too large")
	}
	return b, nil
}
