package valuation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// unknownCategory is the code for values the encoder never saw during training.
const unknownCategory = -1

// LabelEncoder maps categorical strings to dense integer codes. It is fitted
// once on the training set and reused for every prediction.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

func FitLabelEncoder(values []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[normalizeCategory(v)] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	idx := make(map[string]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return &LabelEncoder{classes: classes, index: idx}
}

func (e *LabelEncoder) Encode(v string) float64 {
	if e == nil {
		return unknownCategory
	}
	if i, ok := e.index[normalizeCategory(v)]; ok {
		return float64(i)
	}
	return unknownCategory
}

func (e *LabelEncoder) Len() int {
	if e == nil {
		return 0
	}
	return len(e.classes)
}

func normalizeCategory(v string) string {
	return strings.ToUpper(strings.Join(strings.Fields(v), " "))
}

var saleDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
}

// ParseSaleDate accepts the date layouts found in listing exports. Empty input
// yields the zero time.
func ParseSaleDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range saleDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func dateParts(t time.Time) (year, month, day float64) {
	if t.IsZero() {
		return 0, 0, 0
	}
	return float64(t.Year()), float64(t.Month()), float64(t.Day())
}
