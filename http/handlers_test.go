package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/valuation-api/internal/geocode"
	"github.com/yourorg/valuation-api/internal/valuation"
	"github.com/yourorg/valuation-api/maps"
)

type fakeResolver struct {
	res  maps.GeocodeResult
	err  error
	last string
}

func (f *fakeResolver) Resolve(_ context.Context, address string) (maps.GeocodeResult, error) {
	f.last = address
	return f.res, f.err
}

type fakePlaces struct {
	got    maps.NearbyQuery
	places []maps.Place
	err    error
}

func (f *fakePlaces) SearchNearby(_ context.Context, q maps.NearbyQuery) ([]maps.Place, error) {
	f.got = q
	return f.places, f.err
}

type brokenModel struct{}

func (brokenModel) Name() string { return "broken" }
func (brokenModel) EstimatePrice(valuation.HouseFeatures) (float64, error) {
	return 0, errors.New("model exploded")
}

func located() maps.GeocodeResult {
	return maps.GeocodeResult{
		Location: maps.LatLng{Lat: 30.27, Lng: -97.74},
		AddressComponents: []maps.AddressComponent{
			{LongName: "Austin", ShortName: "Austin", Types: []string{"locality"}},
			{LongName: "Texas", ShortName: "TX", Types: []string{"administrative_area_level_1"}},
		},
	}
}

func newRouter(res Resolver, places PlaceSearcher, p Predictor) http.Handler {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	RegisterGeocode(r, GeocodeDeps{Resolver: res})
	RegisterPlaces(r, PlacesDeps{Places: places})
	RegisterPredict(r, PredictDeps{Resolver: res, Predictor: p})
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, out
}

const validBody = `{"square_footage":1000,"bedrooms":3,"bathrooms":2,"age":10,"address":"100 Congress Ave, Austin"}`

func TestPredictOK(t *testing.T) {
	res := &fakeResolver{res: located()}
	h := newRouter(res, &fakePlaces{}, valuation.NewEngine(valuation.NewLinearModel()))

	rec, out := do(t, h, http.MethodPost, "/api/predict-house-value", validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if out["status"] != "OK" {
		t.Fatalf("unexpected body %v", out)
	}
	pred := out["prediction"].(map[string]any)
	if pred["predicted_price"] != float64(355000) || pred["valuation"] != "undervalued" || pred["star_rating"] != float64(5) {
		t.Fatalf("unexpected prediction %v", pred)
	}
	if pred["confidence"] != 0.85 {
		t.Fatalf("confidence %v", pred["confidence"])
	}
	if res.last != "100 Congress Ave, Austin" {
		t.Fatalf("resolver got %q", res.last)
	}
}

func TestPredictWithAskingPrice(t *testing.T) {
	h := newRouter(&fakeResolver{res: located()}, &fakePlaces{}, valuation.NewEngine(valuation.NewLinearModel()))
	body := strings.Replace(validBody, "{", `{"price":400000,`, 1)
	_, out := do(t, h, http.MethodPost, "/api/predict-house-value", body)
	pred := out["prediction"].(map[string]any)
	if pred["valuation"] != "overvalued" || pred["star_rating"] != float64(3) {
		t.Fatalf("unexpected prediction %v", pred)
	}
}

func TestPredictZeroAskingPrice(t *testing.T) {
	h := newRouter(&fakeResolver{res: located()}, &fakePlaces{}, valuation.NewEngine(valuation.NewLinearModel()))
	rec, out := do(t, h, http.MethodPost, "/api/predict-house-value", strings.Replace(validBody, "{", `{"price":0,`, 1))
	if rec.Code != http.StatusOK {
		t.Fatalf("zero price rejected: %d %v", rec.Code, out)
	}
	pred := out["prediction"].(map[string]any)
	if pred["valuation"] != "undervalued" || pred["star_rating"] != float64(5) {
		t.Fatalf("unexpected prediction %v", pred)
	}

	rec, _ = do(t, h, http.MethodPost, "/api/predict-house-value", strings.Replace(validBody, "{", `{"price":-1,`, 1))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative price: status %d", rec.Code)
	}
}

func TestPredictGeocodeFailureIs400(t *testing.T) {
	for _, err := range []error{
		geocode.ErrNotFound,
		fmt.Errorf("geocode: %w", maps.ErrMissingAPIKey),
		errors.New("dial tcp: timeout"),
	} {
		h := newRouter(&fakeResolver{err: err}, &fakePlaces{}, valuation.NewEngine(valuation.NewLinearModel()))
		rec, out := do(t, h, http.MethodPost, "/api/predict-house-value", validBody)
		if rec.Code != http.StatusBadRequest || out["detail"] != "Could not geocode address" {
			t.Fatalf("%v: got %d %v", err, rec.Code, out)
		}
	}
}

func TestPredictValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
		code  string
	}{
		{name: "missing sqft", body: `{"bedrooms":3,"bathrooms":2,"age":10,"address":"x"}`, field: "square_footage", code: "ERR_REQUIRED"},
		{name: "zero sqft", body: `{"square_footage":0,"bedrooms":3,"bathrooms":2,"age":10,"address":"x"}`, field: "square_footage", code: "ERR_GT"},
		{name: "negative age", body: `{"square_footage":10,"bedrooms":3,"bathrooms":2,"age":-1,"address":"x"}`, field: "age", code: "ERR_GTE"},
		{name: "missing address", body: `{"square_footage":10,"bedrooms":3,"bathrooms":2,"age":1}`, field: "address", code: "ERR_REQUIRED"},
		{name: "wrong type", body: `{"square_footage":"big","bedrooms":3,"bathrooms":2,"age":1,"address":"x"}`, field: "square_footage", code: "ERR_TYPE"},
		{name: "bad date", body: `{"square_footage":10,"bedrooms":3,"bathrooms":2,"age":1,"address":"x","prev_sold_date":"soon"}`, field: "prev_sold_date", code: "ERR_DATE"},
		{name: "malformed json", body: `{"square_footage":`, code: "ERR_INVALID_JSON"},
		{name: "empty body", body: ``, code: "ERR_INVALID_JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &fakeResolver{res: located()}
			h := newRouter(res, &fakePlaces{}, valuation.NewEngine(valuation.NewLinearModel()))
			rec, out := do(t, h, http.MethodPost, "/api/predict-house-value", tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
			}
			detail := out["detail"].([]any)
			first := detail[0].(map[string]any)
			if first["code"] != tt.code {
				t.Fatalf("code %v, want %s", first["code"], tt.code)
			}
			if tt.field != "" && first["field"] != tt.field {
				t.Fatalf("field %v, want %s", first["field"], tt.field)
			}
			if res.last != "" {
				t.Fatalf("resolver must not run for invalid input")
			}
		})
	}
}

func TestPredictModelFailureIs500(t *testing.T) {
	h := newRouter(&fakeResolver{res: located()}, &fakePlaces{}, valuation.NewEngine(brokenModel{}))
	rec, out := do(t, h, http.MethodPost, "/api/predict-house-value", validBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(out["detail"].(string), "model exploded") {
		t.Fatalf("detail %v", out["detail"])
	}
}

func TestGeocodeEndpoint(t *testing.T) {
	h := newRouter(&fakeResolver{res: located()}, &fakePlaces{}, nil)
	rec, out := do(t, h, http.MethodGet, "/api/geocode?address=Austin", "")
	if rec.Code != http.StatusOK || out["status"] != "OK" {
		t.Fatalf("got %d %v", rec.Code, out)
	}
	first := out["results"].([]any)[0].(map[string]any)
	loc := first["geometry"].(map[string]any)["location"].(map[string]any)
	if loc["lat"] != 30.27 || loc["lng"] != -97.74 {
		t.Fatalf("location %v", loc)
	}
	if len(first["address_components"].([]any)) != 2 {
		t.Fatalf("components %v", first["address_components"])
	}
}

func TestGeocodeEndpointErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: %w", geocode.ErrNotFound, maps.ErrNoResults), "Location not found"},
		{fmt.Errorf("geocode: %w", maps.ErrUpstreamStatus), "Location not found"},
		{errors.New("connection reset"), "connection reset"},
	}
	for _, tt := range tests {
		h := newRouter(&fakeResolver{err: tt.err}, &fakePlaces{}, nil)
		rec, out := do(t, h, http.MethodGet, "/api/geocode?address=nowhere", "")
		if rec.Code != http.StatusOK || out["status"] != "ERROR" || out["error"] != tt.want {
			t.Fatalf("%v: got %d %v", tt.err, rec.Code, out)
		}
	}

	h := newRouter(&fakeResolver{}, &fakePlaces{}, nil)
	rec, _ := do(t, h, http.MethodGet, "/api/geocode", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing address: status %d", rec.Code)
	}
}

func TestNearbyPlaces(t *testing.T) {
	name := "Zilker Park"
	fp := &fakePlaces{places: []maps.Place{{DisplayName: &maps.LocalizedText{Text: name}}}}
	h := newRouter(&fakeResolver{}, fp, nil)

	rec, out := do(t, h, http.MethodGet, "/api/nearby-places?latitude=30.26&longitude=-97.77&type=park", "")
	if rec.Code != http.StatusOK || out["status"] != "OK" {
		t.Fatalf("got %d %v", rec.Code, out)
	}
	if fp.got.Radius != 3000 || fp.got.Type != "park" || fp.got.Latitude != 30.26 {
		t.Fatalf("query %+v", fp.got)
	}
	results := out["results"].([]any)
	if results[0].(map[string]any)["displayName"].(map[string]any)["text"] != name {
		t.Fatalf("results %v", results)
	}

	do(t, h, http.MethodGet, "/api/nearby-places?latitude=30&longitude=-97&type=park&radius=500", "")
	if fp.got.Radius != 500 {
		t.Fatalf("radius %v", fp.got.Radius)
	}
}

func TestNearbyPlacesEmptyAndErrors(t *testing.T) {
	h := newRouter(&fakeResolver{}, &fakePlaces{}, nil)
	_, out := do(t, h, http.MethodGet, "/api/nearby-places?latitude=1&longitude=2&type=park", "")
	if results, ok := out["results"].([]any); !ok || len(results) != 0 {
		t.Fatalf("expected empty results list, got %v", out)
	}

	h = newRouter(&fakeResolver{}, &fakePlaces{err: errors.New("quota exceeded")}, nil)
	_, out = do(t, h, http.MethodGet, "/api/nearby-places?latitude=1&longitude=2&type=park", "")
	if out["status"] != "ERROR" || out["error"] != "quota exceeded" {
		t.Fatalf("got %v", out)
	}

	for _, q := range []string{
		"longitude=2&type=park",
		"latitude=abc&longitude=2&type=park",
		"latitude=1&longitude=2",
		"latitude=95&longitude=2&type=park",
		"latitude=1&longitude=2&type=park&radius=-5",
	} {
		rec, _ := do(t, h, http.MethodGet, "/api/nearby-places?"+q, "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: status %d", q, rec.Code)
		}
	}
}
