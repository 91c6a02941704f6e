package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/yourorg/valuation-api/maps"
)

type PlaceSearcher interface {
	SearchNearby(ctx context.Context, q maps.NearbyQuery) ([]maps.Place, error)
}

type PlacesDeps struct {
	Places        PlaceSearcher
	DefaultRadius float64
}

type placesQuery struct {
	Latitude  *float64 `query:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `query:"longitude" validate:"required,gte=-180,lte=180"`
	Type      string   `query:"type" validate:"required"`
	Radius    *float64 `query:"radius" validate:"omitempty,gt=0,lte=50000"`
}

func RegisterPlaces(r chi.Router, d PlacesDeps) {
	if d.DefaultRadius <= 0 {
		d.DefaultRadius = 3000
	}
	r.Get("/api/nearby-places", func(w http.ResponseWriter, req *http.Request) {
		q, errs := parsePlacesQuery(req)
		if errs == nil {
			errs = check(req, &q)
		}
		if errs != nil {
			writeValidation(w, req, errs)
			return
		}
		radius := d.DefaultRadius
		if q.Radius != nil {
			radius = *q.Radius
		}

		places, err := d.Places.SearchNearby(req.Context(), maps.NearbyQuery{
			Latitude:  *q.Latitude,
			Longitude: *q.Longitude,
			Type:      q.Type,
			Radius:    radius,
		})
		if err != nil {
			zerolog.Ctx(req.Context()).Warn().Err(err).Str("type", q.Type).Msg("nearby search failed")
			render.JSON(w, req, map[string]any{"status": "ERROR", "error": err.Error()})
			return
		}
		if places == nil {
			places = []maps.Place{}
		}
		render.JSON(w, req, map[string]any{"status": "OK", "results": places})
	})
}

func parsePlacesQuery(req *http.Request) (placesQuery, []ValidationError) {
	v := req.URL.Query()
	q := placesQuery{Type: v.Get("type")}
	var errs []ValidationError
	for _, p := range []struct {
		name string
		dst  **float64
	}{
		{"latitude", &q.Latitude},
		{"longitude", &q.Longitude},
		{"radius", &q.Radius},
	} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, ValidationError{
				Code:    "ERR_TYPE",
				Field:   p.name,
				Message: p.name + " must be a number",
			})
			continue
		}
		*p.dst = &f
	}
	return q, errs
}
