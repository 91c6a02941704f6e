package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/yourorg/valuation-api/internal/metrics"
	"github.com/yourorg/valuation-api/internal/valuation"
	"github.com/yourorg/valuation-api/maps"
)

const msgNotGeocoded = "Could not geocode address"

type Resolver interface {
	Resolve(ctx context.Context, address string) (maps.GeocodeResult, error)
}

type Predictor interface {
	Predict(f valuation.HouseFeatures) (valuation.PredictionResult, error)
	ModelName() string
}

type PredictDeps struct {
	Resolver  Resolver
	Predictor Predictor
	Metrics   *metrics.Recorder
}

type PredictRequest struct {
	Price         *float64 `json:"price" validate:"omitempty,gte=0"`
	SquareFootage *float64 `json:"square_footage" validate:"required,gt=0"`
	Bedrooms      *int     `json:"bedrooms" validate:"required,gte=0"`
	Bathrooms     *int     `json:"bathrooms" validate:"required,gte=0"`
	Age           *int     `json:"age" validate:"required,gte=0"`
	Address       string   `json:"address" validate:"required"`
	PrevSoldDate  string   `json:"prev_sold_date,omitempty"`
}

func RegisterPredict(r chi.Router, d PredictDeps) {
	r.Post("/api/predict-house-value", func(w http.ResponseWriter, req *http.Request) {
		var body PredictRequest
		if errs := decodeAndValidate(req, &body); errs != nil {
			writeValidation(w, req, errs)
			return
		}
		sold, err := valuation.ParseSaleDate(body.PrevSoldDate)
		if err != nil {
			writeValidation(w, req, []ValidationError{{
				Code:    "ERR_DATE",
				Field:   "prev_sold_date",
				Message: err.Error(),
			}})
			return
		}

		log := zerolog.Ctx(req.Context())
		loc, err := d.Resolver.Resolve(req.Context(), body.Address)
		if err != nil {
			log.Info().Err(err).Msg("predict: address not geocoded")
			writeDetail(w, req, http.StatusBadRequest, msgNotGeocoded)
			return
		}

		f := features(body, loc)
		f.PrevSoldDate = sold
		res, err := d.Predictor.Predict(f)
		if err != nil {
			log.Error().Err(err).Str("model", d.Predictor.ModelName()).Msg("predict failed")
			writeDetail(w, req, http.StatusInternalServerError, err.Error())
			return
		}
		d.Metrics.Prediction(d.Predictor.ModelName(), string(res.Valuation))

		render.JSON(w, req, map[string]any{"status": "OK", "prediction": res})
	})
}

// features merges the validated request with the resolved location. City,
// state and zip come from the geocode components.
func features(body PredictRequest, loc maps.GeocodeResult) valuation.HouseFeatures {
	f := valuation.HouseFeatures{
		Price:         body.Price,
		SquareFootage: *body.SquareFootage,
		Bedrooms:      *body.Bedrooms,
		Bathrooms:     *body.Bathrooms,
		Age:           *body.Age,
		Latitude:      loc.Location.Lat,
		Longitude:     loc.Location.Lng,
	}
	if c, ok := loc.Component("locality"); ok {
		f.City = c.LongName
	}
	if c, ok := loc.Component("administrative_area_level_1"); ok {
		f.State = c.ShortName
	}
	if c, ok := loc.Component("postal_code"); ok {
		f.Zip = c.ShortName
	}
	return f
}
