package silver

import (
	"sort"
	"strings"
)

// Geographic string normalization. State abbreviations are canonicalized to
// their two-letter form, common city aliases are expanded, zip codes are
// truncated to five digits.

var stateAbbreviations = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR",
	"CALIFORNIA": "CA", "COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE",
	"FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID",
	"ILLINOIS": "IL", "INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS",
	"KENTUCKY": "KY", "LOUISIANA": "LA", "MAINE": "ME", "MARYLAND": "MD",
	"MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN", "MISSISSIPPI": "MS",
	"MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV",
	"NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ", "NEW MEXICO": "NM", "NEW YORK": "NY",
	"NORTH CAROLINA": "NC", "NORTH DAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK",
	"OREGON": "OR", "PENNSYLVANIA": "PA", "RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC",
	"SOUTH DAKOTA": "SD", "TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT",
	"VERMONT": "VT", "VIRGINIA": "VA", "WASHINGTON": "WA", "WEST VIRGINIA": "WV",
	"WISCONSIN": "WI", "WYOMING": "WY", "DISTRICT OF COLUMBIA": "DC",
}

var cityAliases = map[string]string{
	"SF":       "San Francisco",
	"SAN FRAN": "San Francisco",
	"FRISCO":   "San Francisco",
	"NYC":      "New York",
	"LA":       "Los Angeles",
	"PHILLY":   "Philadelphia",
	"VEGAS":    "Las Vegas",
	"NOLA":     "New Orleans",
	"SLC":      "Salt Lake City",
	"OKC":      "Oklahoma City",
}

// NormalizeState returns the canonical two-letter state abbreviation.
func NormalizeState(state string) string {
	s := strings.ToUpper(strings.TrimSpace(state))
	if abbr, ok := stateAbbreviations[s]; ok {
		return abbr
	}
	return s
}

// NormalizeCity expands known aliases and title-cases the result.
func NormalizeCity(city string) string {
	trimmed := strings.TrimSpace(city)
	if trimmed == "" {
		return ""
	}
	if canonical, ok := cityAliases[strings.ToUpper(trimmed)]; ok {
		return canonical
	}
	return titleCase(trimmed)
}

// NormalizeZip keeps leading digits and truncates to five. Extended
// ZIP+4 forms collapse to the base zip; non-numeric input yields "".
func NormalizeZip(zip string) string {
	var digits strings.Builder
	for _, r := range strings.TrimSpace(zip) {
		if r < '0' || r > '9' {
			break
		}
		digits.WriteRune(r)
		if digits.Len() == 5 {
			break
		}
	}
	if digits.Len() < 5 {
		return ""
	}
	return digits.String()
}

// NormalizeFeatures lowercases, trims, deduplicates and sorts a feature set.
func NormalizeFeatures(features []string) []string {
	seen := make(map[string]bool, len(features))
	out := make([]string, 0, len(features))
	for _, f := range features {
		name := strings.ToLower(strings.TrimSpace(f))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NormalizePropertyType lowercases and underscore-separates a type string.
func NormalizePropertyType(t string) string {
	s := strings.ToLower(strings.TrimSpace(t))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.Join(strings.Fields(s), "_")
}

// Price buckets are a fixed set; every property lands in exactly one.
type priceBucket struct {
	Key   string
	Label string
	Min   float64
	Max   float64 // exclusive; <0 means unbounded
}

var priceBuckets = []priceBucket{
	{Key: "under_250k", Label: "<250k", Min: 0, Max: 250_000},
	{Key: "250k_500k", Label: "250k-500k", Min: 250_000, Max: 500_000},
	{Key: "500k_750k", Label: "500k-750k", Min: 500_000, Max: 750_000},
	{Key: "750k_1m", Label: "750k-1m", Min: 750_000, Max: 1_000_000},
	{Key: "1m_2m", Label: "1m-2m", Min: 1_000_000, Max: 2_000_000},
	{Key: "over_2m", Label: ">=2m", Min: 2_000_000, Max: -1},
}

// PriceBucketKey assigns a price to its bucket.
func PriceBucketKey(price float64) string {
	for _, b := range priceBuckets {
		if price >= b.Min && (b.Max < 0 || price < b.Max) {
			return b.Key
		}
	}
	return priceBuckets[0].Key
}

// PriceBucketBounds returns the label and bounds for a bucket key.
func PriceBucketBounds(key string) (label string, min, max float64, ok bool) {
	for _, b := range priceBuckets {
		if b.Key == key {
			return b.Label, b.Min, b.Max, true
		}
	}
	return "", 0, 0, false
}

// PriceBucketKeys returns the fixed bucket keys in ascending price order.
func PriceBucketKeys() []string {
	keys := make([]string, len(priceBuckets))
	for i, b := range priceBuckets {
		keys[i] = b.Key
	}
	return keys
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
