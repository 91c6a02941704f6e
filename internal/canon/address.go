package canon

import (
	"regexp"
	"strings"
)

var rePunct = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// Address is a normalized US-style address.
type Address struct {
	Line1 string
	City  string
	State string
	Zip   string
}

// PropertyKey is stable per parcel: unit/suite designators are dropped.
func (a Address) PropertyKey() string {
	if a.Line1 == "" && a.City == "" && a.State == "" && a.Zip == "" {
		return ""
	}
	return strings.ToLower(a.Line1 + "|" + a.City + "|" + a.State + "|" + a.Zip)
}

func Canonicalize(line1, city, state, zip string) Address {
	st := strings.ToUpper(strings.TrimSpace(state))
	if len(st) > 2 {
		st = stateAbbrev(st)
	}
	return Address{
		Line1: normalizeStreet(stripUnit(strings.ToUpper(strings.TrimSpace(line1)))),
		City:  collapseSpaces(rePunct.ReplaceAllString(strings.ToUpper(city), " ")),
		State: st,
		Zip:   trimZIP(zip),
	}
}

// Key normalizes a free-text address for use as a cache key, so
// "12 Main Street, Austin" and "12 main st austin" collide.
func Key(address string) string {
	return strings.ToLower(normalizeStreet(strings.ToUpper(address)))
}

func normalizeStreet(s string) string {
	s = rePunct.ReplaceAllString(s, " ")
	s = collapseSpaces(s)
	if s == "" {
		return ""
	}
	words := strings.Split(s, " ")
	for i, w := range words {
		if abbr, ok := suffixes[w]; ok {
			words[i] = abbr
		}
	}
	return strings.Join(words, " ")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimZIP(z string) string {
	z = strings.TrimSpace(z)
	if len(z) >= 5 {
		return z[:5]
	}
	return z
}

func stripUnit(s string) string {
	up := " " + s + " "
	for _, t := range []string{" APT ", " UNIT ", " STE ", " SUITE ", " #"} {
		if i := strings.Index(up, t); i >= 0 {
			return strings.TrimSpace(up[:i])
		}
	}
	return strings.TrimSpace(s)
}

var suffixes = map[string]string{
	"STREET":    "ST",
	"ROAD":      "RD",
	"AVENUE":    "AVE",
	"BOULEVARD": "BLVD",
	"DRIVE":     "DR",
	"LANE":      "LN",
	"COURT":     "CT",
	"CIRCLE":    "CIR",
	"TERRACE":   "TER",
	"PLACE":     "PL",
	"PARKWAY":   "PKWY",
	"HIGHWAY":   "HWY",
}

var states = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR", "CALIFORNIA": "CA", "COLORADO": "CO",
	"CONNECTICUT": "CT", "DELAWARE": "DE", "FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID",
	"ILLINOIS": "IL", "INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS", "KENTUCKY": "KY", "LOUISIANA": "LA",
	"MAINE": "ME", "MARYLAND": "MD", "MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN",
	"MISSISSIPPI": "MS", "MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV",
	"NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ", "NEW MEXICO": "NM", "NEW YORK": "NY", "NORTH CAROLINA": "NC",
	"NORTH DAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK", "OREGON": "OR", "PENNSYLVANIA": "PA",
	"RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC", "SOUTH DAKOTA": "SD", "TENNESSEE": "TN", "TEXAS": "TX",
	"UTAH": "UT", "VERMONT": "VT", "VIRGINIA": "VA", "WASHINGTON": "WA", "WEST VIRGINIA": "WV",
	"WISCONSIN": "WI", "WYOMING": "WY", "DISTRICT OF COLUMBIA": "DC",
}

func stateAbbrev(s string) string {
	if v, ok := states[collapseSpaces(s)]; ok {
		return v
	}
	return s
}
