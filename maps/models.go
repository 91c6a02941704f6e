package maps

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// GeocodeResult is the first match of a geocoding lookup.
type GeocodeResult struct {
	Location          LatLng             `json:"location"`
	AddressComponents []AddressComponent `json:"address_components"`
	FormattedAddress  string             `json:"formatted_address,omitempty"`
}

// Component returns the first address component tagged with kind
// (e.g. "locality", "postal_code", "administrative_area_level_1").
func (r GeocodeResult) Component(kind string) (AddressComponent, bool) {
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			if t == kind {
				return c, true
			}
		}
	}
	return AddressComponent{}, false
}

type NearbyQuery struct {
	Latitude  float64
	Longitude float64
	Type      string
	Radius    float64 // meters
}

type LocalizedText struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type PlaceLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Place follows the Places API v1 field-masked shape so both providers
// serialize identically.
type Place struct {
	DisplayName      *LocalizedText `json:"displayName,omitempty"`
	Location         *PlaceLocation `json:"location,omitempty"`
	FormattedAddress string         `json:"formattedAddress,omitempty"`
	Types            []string       `json:"types,omitempty"`
}
