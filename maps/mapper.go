package maps

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MapGeocodePayload maps a Geocoding API response to its first result.
// ZERO_RESULTS, and OK with an empty list, are ErrNoResults; any other
// non-OK status is ErrUpstreamStatus.
func MapGeocodePayload(raw []byte) (GeocodeResult, error) {
	var root struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		Results      []struct {
			Geometry struct {
				Location LatLng `json:"location"`
			} `json:"geometry"`
			AddressComponents []AddressComponent `json:"address_components"`
			FormattedAddress  string             `json:"formatted_address"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &root); err != nil {
		return GeocodeResult{}, fmt.Errorf("decode geocode payload: %w", err)
	}

	switch root.Status {
	case "OK":
		if len(root.Results) == 0 {
			return GeocodeResult{}, ErrNoResults
		}
	case "ZERO_RESULTS":
		return GeocodeResult{}, ErrNoResults
	default:
		msg := strings.TrimSpace(root.Status + " " + root.ErrorMessage)
		return GeocodeResult{}, fmt.Errorf("%w: %s", ErrUpstreamStatus, msg)
	}

	first := root.Results[0]
	comps := first.AddressComponents
	if comps == nil {
		comps = []AddressComponent{}
	}
	return GeocodeResult{
		Location:          first.Geometry.Location,
		AddressComponents: comps,
		FormattedAddress:  first.FormattedAddress,
	}, nil
}

// MapPlacesPayload returns the places list; a payload without "places" is an
// empty result, not an error.
func MapPlacesPayload(raw []byte) ([]Place, error) {
	var root struct {
		Places []Place `json:"places"`
	}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("decode places payload: %w", err)
	}
	if root.Places == nil {
		return []Place{}, nil
	}
	return root.Places, nil
}

type nearbyBody struct {
	LocationRestriction struct {
		Circle struct {
			Center PlaceLocation `json:"center"`
			Radius float64       `json:"radius"`
		} `json:"circle"`
	} `json:"locationRestriction"`
	IncludedTypes []string `json:"includedTypes"`
}

func nearbyRequest(q NearbyQuery) nearbyBody {
	var b nearbyBody
	b.LocationRestriction.Circle.Center = PlaceLocation{Latitude: q.Latitude, Longitude: q.Longitude}
	b.LocationRestriction.Circle.Radius = q.Radius
	b.IncludedTypes = []string{q.Type}
	return b
}
