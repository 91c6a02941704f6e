package valuation

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var refNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func syntheticCSV() string {
	var b strings.Builder
	b.WriteString("price,bed,bath,house_size,city,state,zip_code,prev_sold_date,year_built\n")
	cities := []string{"Austin", "Dallas"}
	for sqft := 600; sqft <= 3000; sqft += 100 {
		for beds := 1; beds <= 4; beds++ {
			city := cities[(sqft/100+beds)%2]
			price := 50000 + 150*sqft + 10000*beds
			if city == "Austin" {
				price += 40000
			}
			fmt.Fprintf(&b, "%d,%d,2,%d,%s,TX,787%02d,2019-0%d-15,1995\n", price, beds, sqft, city, beds, beds)
		}
	}
	return b.String()
}

func testParams() BoostParams {
	p := DefaultBoostParams()
	p.Rounds = 150
	p.LearningRate = 0.1
	p.MinDataInLeaf = 2
	return p
}

func trainSynthetic(t *testing.T) *BoostedModel {
	t.Helper()
	samples, err := ReadDataset(strings.NewReader(syntheticCSV()), refNow)
	if err != nil {
		t.Fatalf("read dataset: %v", err)
	}
	m, err := TrainBoostedModel(samples, testParams())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	return m
}

func TestBoostedModelFitsTrainingData(t *testing.T) {
	m := trainSynthetic(t)
	if m.Trees() != 150 {
		t.Fatalf("expected 150 trees, got %d", m.Trees())
	}
	f := HouseFeatures{SquareFootage: 2000, Bedrooms: 3, Bathrooms: 2, Age: 30, City: "Dallas", State: "TX", Zip: "78703",
		PrevSoldDate: time.Date(2019, 3, 15, 0, 0, 0, 0, time.UTC)}
	got, err := m.EstimatePrice(f)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	want := 50000.0 + 150*2000 + 10000*3
	if math.Abs(got-want)/want > 0.05 {
		t.Fatalf("estimate %v too far from %v", got, want)
	}

	small, _ := m.EstimatePrice(HouseFeatures{SquareFootage: 700, Bedrooms: 1, Bathrooms: 2, City: "Dallas", State: "TX"})
	large, _ := m.EstimatePrice(HouseFeatures{SquareFootage: 2900, Bedrooms: 4, Bathrooms: 2, City: "Dallas", State: "TX"})
	if small >= large {
		t.Fatalf("expected larger house to be worth more: small=%v large=%v", small, large)
	}
}

func TestBoostedModelIsDeterministic(t *testing.T) {
	a := trainSynthetic(t)
	b := trainSynthetic(t)
	f := HouseFeatures{SquareFootage: 1450, Bedrooms: 2, Bathrooms: 2, City: "Austin", State: "TX"}
	pa, _ := a.EstimatePrice(f)
	pb, _ := b.EstimatePrice(f)
	if pa != pb {
		t.Fatalf("same seed produced different models: %v vs %v", pa, pb)
	}
}

func TestBoostedModelUnseenCategory(t *testing.T) {
	m := trainSynthetic(t)
	got, err := m.EstimatePrice(HouseFeatures{SquareFootage: 1500, Bedrooms: 2, Bathrooms: 2, City: "Nowhere", State: "ZZ", Zip: "00000"})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if math.IsNaN(got) || got <= 0 {
		t.Fatalf("unexpected estimate %v", got)
	}
}

func TestBoostedModelThroughEngine(t *testing.T) {
	m := trainSynthetic(t)
	e := NewEngine(m)
	if e.ModelName() != "gbt" {
		t.Fatalf("model name %q", e.ModelName())
	}
	res, err := e.Predict(HouseFeatures{Price: ptr(1), SquareFootage: 1800, Bedrooms: 3, Bathrooms: 2})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if res.Valuation != Undervalued || res.StarRating != 5 || res.Confidence != 0.85 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUntrainedModel(t *testing.T) {
	var m *BoostedModel
	if _, err := m.EstimatePrice(HouseFeatures{}); !errors.Is(err, ErrModelNotTrained) {
		t.Fatalf("expected ErrModelNotTrained, got %v", err)
	}
	if _, err := NewEngine(&BoostedModel{}).Predict(HouseFeatures{}); !errors.Is(err, ErrModelNotTrained) {
		t.Fatalf("expected ErrModelNotTrained through engine, got %v", err)
	}
}

func TestReadDatasetErrors(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		wantErr string
	}{
		{name: "empty", csv: "", wantErr: "no rows"},
		{name: "header only", csv: "price,bed,bath,house_size\n", wantErr: "no rows"},
		{name: "missing column", csv: "price,bed,bath\n1,2,3\n", wantErr: `"house_size"`},
		{name: "bad number", csv: "price,bed,bath,house_size\n100,2,2,1000\n100,x,2,1000\n", wantErr: "row 3"},
		{name: "empty required", csv: "price,bed,bath,house_size\n,2,2,1000\n", wantErr: "row 2"},
		{name: "bad date", csv: "price,bed,bath,house_size,prev_sold_date\n1,2,2,1000,yesterday\n", wantErr: "prev_sold_date"},
		{name: "ragged row", csv: "price,bed,bath,house_size\n1,2,2,1000\n1,2\n", wantErr: "row 3"},
		{name: "nan price", csv: "price,bed,bath,house_size\n100,2,2,1000\nNaN,2,2,1000\n", wantErr: "row 3"},
		{name: "inf size", csv: "price,bed,bath,house_size\n100,2,2,Inf\n", wantErr: "non-finite"},
		{name: "negative inf optional", csv: "price,bed,bath,house_size,age\n100,2,2,1000,-Inf\n", wantErr: `"age"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDataset(strings.NewReader(tt.csv), refNow)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestReadDatasetDerivesAge(t *testing.T) {
	samples, err := ReadDataset(strings.NewReader("price,bed,bath,house_size,year_built\n300000,3,2,1500,2000\n250000,2,1,900,\n"), refNow)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if samples[0].Features.Age != 25 {
		t.Fatalf("age %d want 25", samples[0].Features.Age)
	}
	if samples[1].Features.Age != 0 {
		t.Fatalf("missing year_built should give age 0, got %d", samples[1].Features.Age)
	}
}

func TestTrainFromCSVMissingFile(t *testing.T) {
	_, err := TrainFromCSV(filepath.Join(t.TempDir(), "nope.csv"), testParams(), refNow)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestTrainFromCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "houses.csv")
	if err := os.WriteFile(path, []byte(syntheticCSV()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := TrainFromCSV(path, testParams(), refNow)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if m.Trees() == 0 {
		t.Fatalf("no trees trained")
	}
}

func TestLabelEncoder(t *testing.T) {
	e := FitLabelEncoder([]string{"Dallas", "austin", " Austin ", "Houston"})
	if e.Len() != 3 {
		t.Fatalf("expected 3 classes, got %d", e.Len())
	}
	if e.Encode("AUSTIN") != 0 || e.Encode("dallas") != 1 || e.Encode("Houston") != 2 {
		t.Fatalf("unexpected codes")
	}
	if e.Encode("El Paso") != unknownCategory {
		t.Fatalf("unseen value must map to the unknown code")
	}
}

func TestParseSaleDate(t *testing.T) {
	for _, s := range []string{"2019-03-15", "03/15/2019", "3/15/2019", "2019-03-15T00:00:00Z"} {
		got, err := ParseSaleDate(s)
		if err != nil {
			t.Fatalf("%s: %v", s, err)
		}
		if got.Year() != 2019 || got.Month() != time.March || got.Day() != 15 {
			t.Fatalf("%s parsed as %v", s, got)
		}
	}
	if got, err := ParseSaleDate(""); err != nil || !got.IsZero() {
		t.Fatalf("empty date should be zero, got %v %v", got, err)
	}
}
