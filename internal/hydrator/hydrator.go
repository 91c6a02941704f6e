// Package hydrator writes resolved geocodes behind the cache into Postgres.
package hydrator

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/yourorg/valuation-api/internal/canon"
	"github.com/yourorg/valuation-api/internal/store"
	"github.com/yourorg/valuation-api/maps"
)

var ErrUnkeyable = errors.New("geocode result has no usable address components")

// Writer is the persistence surface the hydrator needs; *store.Store satisfies it.
type Writer interface {
	UpsertAddress(ctx context.Context, in store.UpsertInput) (string, error)
}

type Hydrator struct {
	Store Writer
}

func (h *Hydrator) Enabled() bool { return h != nil && h.Store != nil }

// Write canonicalizes the result's address components and upserts them with
// the raw provider payload. It is a no-op when no store is configured.
func (h *Hydrator) Write(ctx context.Context, provider, endpoint string, raw []byte, res maps.GeocodeResult) error {
	if !h.Enabled() {
		return nil
	}
	addr := AddressOf(res)
	key := addr.PropertyKey()
	if key == "" {
		return ErrUnkeyable
	}
	_, err := h.Store.UpsertAddress(ctx, store.UpsertInput{
		PropertyKey:      key,
		Address1:         addr.Line1,
		City:             addr.City,
		State:            addr.State,
		Zip:              addr.Zip,
		Lat:              res.Location.Lat,
		Lon:              res.Location.Lng,
		FormattedAddress: sqlNullString(res.FormattedAddress),
		Provider:         provider,
		Endpoint:         endpoint,
		PayloadJSON:      raw,
	})
	return err
}

// AddressOf builds a canonical address from geocode components.
func AddressOf(res maps.GeocodeResult) canon.Address {
	long := func(kind string) string {
		if c, ok := res.Component(kind); ok {
			return c.LongName
		}
		return ""
	}
	short := func(kind string) string {
		if c, ok := res.Component(kind); ok {
			return c.ShortName
		}
		return ""
	}
	line1 := strings.TrimSpace(long("street_number") + " " + long("route"))
	city := long("locality")
	if city == "" {
		city = long("postal_town")
	}
	return canon.Canonicalize(line1, city, short("administrative_area_level_1"), short("postal_code"))
}

func sqlNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
