package valuation

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Feature vector layout for the boosted model.
const (
	featSquareFootage = iota
	featBedrooms
	featBathrooms
	featAge
	featLatitude
	featLongitude
	featSaleYear
	featSaleMonth
	featSaleDay
	featCity
	featState
	featZip
	numFeatures
)

var ErrModelNotTrained = errors.New("valuation: boosted model is not trained")

// BoostParams are the training hyperparameters. They are fixed per process;
// DefaultBoostParams is what the service trains with.
type BoostParams struct {
	Rounds          int
	MaxDepth        int
	NumLeaves       int
	MinDataInLeaf   int
	LearningRate    float64
	LambdaL1        float64
	LambdaL2        float64
	BaggingFraction float64
	Seed            uint64
}

func DefaultBoostParams() BoostParams {
	return BoostParams{
		Rounds:          300,
		MaxDepth:        6,
		NumLeaves:       31,
		MinDataInLeaf:   20,
		LearningRate:    0.05,
		LambdaL1:        0.1,
		LambdaL2:        1.0,
		BaggingFraction: 0.8,
		Seed:            42,
	}
}

// BoostedModel is a gradient-boosted regression tree ensemble with squared
// error loss. The categorical encoders fitted at training time travel with
// the model so inference encodes exactly as training did.
type BoostedModel struct {
	base  float64
	rate  float64
	trees []*regressionTree

	city  *LabelEncoder
	state *LabelEncoder
	zip   *LabelEncoder
}

// TrainFromCSV loads a dataset and trains on it. Any error here is meant to
// abort startup.
func TrainFromCSV(path string, p BoostParams, now time.Time) (*BoostedModel, error) {
	samples, err := LoadDataset(path, now)
	if err != nil {
		return nil, err
	}
	return TrainBoostedModel(samples, p)
}

func TrainBoostedModel(samples []Sample, p BoostParams) (*BoostedModel, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyDataset
	}
	if p.Rounds <= 0 || p.LearningRate <= 0 {
		return nil, fmt.Errorf("invalid boost params: rounds=%d learning_rate=%g", p.Rounds, p.LearningRate)
	}
	if p.MinDataInLeaf < 1 {
		p.MinDataInLeaf = 1
	}
	if p.NumLeaves < 2 {
		p.NumLeaves = 2
	}
	if p.BaggingFraction <= 0 || p.BaggingFraction > 1 {
		p.BaggingFraction = 1
	}

	cities := make([]string, len(samples))
	states := make([]string, len(samples))
	zips := make([]string, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		cities[i], states[i], zips[i] = s.Features.City, s.Features.State, s.Features.Zip
		y[i] = s.Price
	}
	m := &BoostedModel{
		rate:  p.LearningRate,
		city:  FitLabelEncoder(cities),
		state: FitLabelEncoder(states),
		zip:   FitLabelEncoder(zips),
	}

	x := make([][]float64, len(samples))
	for i, s := range samples {
		x[i] = m.vector(s.Features)
	}

	m.base = stat.Mean(y, nil)
	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = m.base
	}
	residual := make([]float64, len(y))

	tp := treeParams{
		maxDepth:  p.MaxDepth,
		maxLeaves: p.NumLeaves,
		minLeaf:   p.MinDataInLeaf,
		l1:        p.LambdaL1,
		l2:        p.LambdaL2,
	}
	bf := binFeatures(x)
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	bagSize := max(1, int(float64(len(y))*p.BaggingFraction))

	m.trees = make([]*regressionTree, 0, p.Rounds)
	for round := 0; round < p.Rounds; round++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		rows := bag(rng, len(y), bagSize)
		t := fitTree(bf, residual, rows, tp)
		m.trees = append(m.trees, t)
		for i := range pred {
			pred[i] += m.rate * t.predict(x[i])
		}
	}
	return m, nil
}

func bag(rng *rand.Rand, n, size int) []int {
	if size >= n {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	return rng.Perm(n)[:size]
}

func (m *BoostedModel) Name() string { return "gbt" }

func (m *BoostedModel) Trees() int {
	if m == nil {
		return 0
	}
	return len(m.trees)
}

func (m *BoostedModel) EstimatePrice(f HouseFeatures) (float64, error) {
	if m == nil || len(m.trees) == 0 {
		return 0, ErrModelNotTrained
	}
	x := m.vector(f)
	out := m.base
	for _, t := range m.trees {
		out += m.rate * t.predict(x)
	}
	return out, nil
}

func (m *BoostedModel) vector(f HouseFeatures) []float64 {
	x := make([]float64, numFeatures)
	x[featSquareFootage] = f.SquareFootage
	x[featBedrooms] = float64(f.Bedrooms)
	x[featBathrooms] = float64(f.Bathrooms)
	x[featAge] = float64(f.Age)
	x[featLatitude] = f.Latitude
	x[featLongitude] = f.Longitude
	x[featSaleYear], x[featSaleMonth], x[featSaleDay] = dateParts(f.PrevSoldDate)
	x[featCity] = m.city.Encode(f.City)
	x[featState] = m.state.Encode(f.State)
	x[featZip] = m.zip.Encode(f.Zip)
	return x
}
