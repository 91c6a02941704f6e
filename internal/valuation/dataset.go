package valuation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Sample is one labelled training row.
type Sample struct {
	Features HouseFeatures
	Price    float64
}

var requiredColumns = []string{"price", "bed", "bath", "house_size"}

var ErrEmptyDataset = errors.New("valuation: dataset has no rows")

// LoadDataset reads a listing export from disk. now anchors year_built → age.
func LoadDataset(path string, now time.Time) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadDataset(f, now)
}

// ReadDataset parses CSV with a header row. Any malformed row aborts the read.
func ReadDataset(r io.Reader, now time.Time) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDataset
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("dataset missing required column %q", c)
		}
	}

	var out []Sample
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		s, err := parseRow(rec, cols, now)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, ErrEmptyDataset
	}
	return out, nil
}

func parseRow(rec []string, cols map[string]int, now time.Time) (Sample, error) {
	field := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}
	required := func(name string) (float64, error) {
		v, _ := field(name)
		if v == "" {
			return 0, fmt.Errorf("column %q is empty", name)
		}
		return parseFinite(name, v)
	}
	optional := func(name string) (float64, error) {
		v, ok := field(name)
		if !ok || v == "" {
			return 0, nil
		}
		return parseFinite(name, v)
	}

	var s Sample
	var err error
	if s.Price, err = required("price"); err != nil {
		return s, err
	}
	beds, err := required("bed")
	if err != nil {
		return s, err
	}
	baths, err := required("bath")
	if err != nil {
		return s, err
	}
	if s.Features.SquareFootage, err = required("house_size"); err != nil {
		return s, err
	}
	s.Features.Bedrooms = int(math.Round(beds))
	s.Features.Bathrooms = int(math.Round(baths))

	if _, ok := cols["age"]; ok {
		age, err := optional("age")
		if err != nil {
			return s, err
		}
		s.Features.Age = int(math.Round(age))
	} else if _, ok := cols["year_built"]; ok {
		yb, err := optional("year_built")
		if err != nil {
			return s, err
		}
		if yb > 0 {
			s.Features.Age = max(now.Year()-int(yb), 0)
		}
	}

	if s.Features.Latitude, err = optional("latitude"); err != nil {
		return s, err
	}
	if s.Features.Longitude, err = optional("longitude"); err != nil {
		return s, err
	}
	if v, ok := field("prev_sold_date"); ok {
		if s.Features.PrevSoldDate, err = ParseSaleDate(v); err != nil {
			return s, fmt.Errorf("column %q: %w", "prev_sold_date", err)
		}
	}
	s.Features.City, _ = field("city")
	s.Features.State, _ = field("state")
	s.Features.Zip, _ = field("zip_code")
	return s, nil
}

// parseFinite rejects NaN and ±Inf, which ParseFloat accepts.
func parseFinite(name, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", name, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("column %q: non-finite value %q", name, v)
	}
	return f, nil
}
