package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/valuation-api/internal/geocode"
	"github.com/yourorg/valuation-api/maps"
)

type GeocodeDeps struct {
	Resolver Resolver
}

type geocodeQuery struct {
	Address string `query:"address" validate:"required"`
}

type geometry struct {
	Location maps.LatLng `json:"location"`
}

type geocodeItem struct {
	Geometry          geometry                `json:"geometry"`
	AddressComponents []maps.AddressComponent `json:"address_components"`
}

func RegisterGeocode(r chi.Router, d GeocodeDeps) {
	r.Get("/api/geocode", func(w http.ResponseWriter, req *http.Request) {
		q := geocodeQuery{Address: req.URL.Query().Get("address")}
		if errs := check(req, &q); errs != nil {
			writeValidation(w, req, errs)
			return
		}

		res, err := d.Resolver.Resolve(req.Context(), q.Address)
		if err != nil {
			render.JSON(w, req, map[string]any{"status": "ERROR", "error": geocodeMessage(err)})
			return
		}
		comps := res.AddressComponents
		if comps == nil {
			comps = []maps.AddressComponent{}
		}
		render.JSON(w, req, map[string]any{
			"status":  "OK",
			"results": []geocodeItem{{Geometry: geometry{Location: res.Location}, AddressComponents: comps}},
		})
	})
}

// geocodeMessage is the user-facing error text for a failed lookup.
func geocodeMessage(err error) string {
	if errors.Is(err, maps.ErrNoResults) || errors.Is(err, maps.ErrUpstreamStatus) || errors.Is(err, geocode.ErrNotFound) {
		return "Location not found"
	}
	return err.Error()
}
