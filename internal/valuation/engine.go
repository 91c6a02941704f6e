// Package valuation turns a house feature set into a price estimate and a
// buy-side verdict. The price itself comes from a PriceModel; everything
// downstream of the price (verdict, stars, chart series) is shared.
package valuation

import (
	"errors"
	"fmt"
	"math"
)

// Placeholder outputs. They are not derived from any model evaluation and
// must not be read as computed metrics.
const placeholderConfidence = 0.85

var (
	placeholderFPR = []float64{0, 0.2, 0.4, 0.6, 0.8, 1}
	placeholderTPR = []float64{0, 0.4, 0.6, 0.8, 0.9, 1}

	regressionScales = []float64{0.9, 0.95, 1.0, 1.05, 1.1}
)

var ErrInvalidPrice = errors.New("valuation: model produced a non-finite price")

// PriceModel estimates a market price before the location multiplier is applied.
type PriceModel interface {
	Name() string
	EstimatePrice(f HouseFeatures) (float64, error)
}

// LocationMultiplier scales the model price by geography. It is the
// extension point for regional adjustment; the default is flat.
type LocationMultiplier func(latitude, longitude float64) float64

func FlatLocation(_, _ float64) float64 { return 1.0 }

// Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	model    PriceModel
	location LocationMultiplier
}

type Option func(*Engine)

func WithLocationMultiplier(m LocationMultiplier) Option {
	return func(e *Engine) {
		if m != nil {
			e.location = m
		}
	}
}

func NewEngine(model PriceModel, opts ...Option) *Engine {
	e := &Engine{model: model, location: FlatLocation}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ModelName reports which price model backs the engine.
func (e *Engine) ModelName() string {
	if e == nil || e.model == nil {
		return ""
	}
	return e.model.Name()
}

func (e *Engine) Predict(f HouseFeatures) (PredictionResult, error) {
	if e == nil || e.model == nil {
		return PredictionResult{}, errors.New("valuation: engine has no price model")
	}
	base, err := e.model.EstimatePrice(f)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("%s estimate: %w", e.model.Name(), err)
	}
	predicted := base * e.location(f.Latitude, f.Longitude)
	if math.IsNaN(predicted) || math.IsInf(predicted, 0) {
		return PredictionResult{}, ErrInvalidPrice
	}

	verdict := Verdict(predicted, f.Price)
	return PredictionResult{
		PredictedPrice: predicted,
		Valuation:      verdict,
		StarRating:     StarRating(verdict),
		Confidence:     placeholderConfidence,
		RegressionPlot: regressionPlot(predicted),
		ROCData:        rocData(),
	}, nil
}

// Verdict is undervalued when no asking price is given or the prediction beats it.
func Verdict(predicted float64, asking *float64) Valuation {
	if asking == nil || predicted > *asking {
		return Undervalued
	}
	return Overvalued
}

func StarRating(v Valuation) int {
	if v == Undervalued {
		return 5
	}
	return 3
}

func regressionPlot(predicted float64) RegressionPlot {
	plot := RegressionPlot{
		X: make([]int, len(regressionScales)),
		Y: make([]float64, len(regressionScales)),
	}
	for i, s := range regressionScales {
		plot.X[i] = i
		plot.Y[i] = predicted * s
	}
	return plot
}

func rocData() ROCData {
	return ROCData{
		FPR: append([]float64(nil), placeholderFPR...),
		TPR: append([]float64(nil), placeholderTPR...),
	}
}
