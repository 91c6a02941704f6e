package hydrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yourorg/valuation-api/internal/geocode"
	"github.com/yourorg/valuation-api/maps"
)

type scriptedWarmer struct {
	errs  map[string]error
	calls []string
}

func (s *scriptedWarmer) Warm(_ context.Context, address string) (maps.GeocodeResult, error) {
	s.calls = append(s.calls, address)
	if err := s.errs[address]; err != nil {
		return maps.GeocodeResult{}, err
	}
	return result(), nil
}

func TestRunOnceCountsOutcomes(t *testing.T) {
	g := &scriptedWarmer{errs: map[string]error{
		"nowhere": fmt.Errorf("location not found: %w", maps.ErrNoResults),
		"broken":  errors.New("connection reset"),
	}}
	job := &BulkJob{
		Resolver: g,
		Log:      zerolog.Nop(),
		Config:   BulkConfig{Addresses: []string{"100 Congress Ave, Austin", " ", "nowhere", "broken"}},
	}
	stats, err := job.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected joined error for the failed address")
	}
	if stats != (BulkStats{Warmed: 1, NotFound: 1, Failed: 1}) {
		t.Fatalf("stats %+v", stats)
	}
	if len(g.calls) != 3 || g.calls[0] != "100 Congress Ave, Austin" {
		t.Fatalf("calls %v", g.calls)
	}
}

func TestRunOnceStopsOnMissingKey(t *testing.T) {
	g := &scriptedWarmer{errs: map[string]error{"a": maps.ErrMissingAPIKey}}
	job := &BulkJob{Resolver: g, Log: zerolog.Nop(), Config: BulkConfig{Addresses: []string{"a", "b"}}}
	if _, err := job.RunOnce(context.Background()); !errors.Is(err, maps.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if len(g.calls) != 1 {
		t.Fatalf("job should stop after missing key, calls %v", g.calls)
	}
}

func TestBulkJobValidate(t *testing.T) {
	if _, err := (&BulkJob{Config: BulkConfig{Addresses: []string{"a"}}}).RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error without resolver")
	}
	if err := (&BulkJob{Resolver: &scriptedWarmer{}}).Run(context.Background()); err == nil {
		t.Fatalf("expected error without addresses")
	}
}

type countingProvider struct{ calls int }

func (c *countingProvider) Geocode(context.Context, string) (maps.GeocodeResult, []byte, error) {
	c.calls++
	return result(), []byte(`{"status":"OK"}`), nil
}

func TestBulkJobWarmsServingCache(t *testing.T) {
	p := &countingProvider{}
	w := &fakeWriter{}
	svc := geocode.New(geocode.Deps{
		Provider: p,
		Cache:    geocode.NewMemoryCache(10),
		Hydrator: &Hydrator{Store: w},
		Log:      zerolog.Nop(),
	})
	job := &BulkJob{Resolver: svc, Log: zerolog.Nop(),
		Config: BulkConfig{Addresses: []string{"100 Congress Avenue, Austin"}}}
	if _, err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(w.got) != 1 || w.got[0].PropertyKey != "100 congress ave|austin|tx|78701" {
		t.Fatalf("write-behind %+v", w.got)
	}

	if _, err := svc.Resolve(context.Background(), "100 congress ave austin"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("warmed address should be a cache hit, got %d upstream calls", p.calls)
	}
}
