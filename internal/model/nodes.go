package model

import "strings"

// Derived classification and geographic nodes. Identity rules are fixed:
// Feature and PropertyType use the lowercased name, PriceRange uses the
// bucket key, City and County use {name}_{state} with spaces replaced by
// underscores, State uses the two-letter abbreviation, ZipCode the five
// digit string. Geographic nodes carry no coordinates.

// FeatureNode is a distinct property feature with its occurrence count.
type FeatureNode struct {
	ID    string `json:"id"` // lowercased feature name
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// PropertyTypeNode is a distinct normalized property type.
type PropertyTypeNode struct {
	ID    string `json:"id"` // lowercase, underscore-separated
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// PriceRangeNode is one fixed price bucket with aggregates.
type PriceRangeNode struct {
	ID       string  `json:"id"` // bucket key, e.g. 500k_750k
	Label    string  `json:"label"`
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
	Count    int64   `json:"count"`
}

// CityNode is a derived city. No coordinates are available in the sources.
type CityNode struct {
	ID    string `json:"id"` // {Name}_{State}
	Name  string `json:"name"`
	State string `json:"state"`
}

// CountyNode is a derived county from the locations reference.
type CountyNode struct {
	ID    string `json:"id"` // {Name}_{State}
	Name  string `json:"name"`
	State string `json:"state"`
}

// StateNode is a derived state.
type StateNode struct {
	ID   string `json:"id"` // two-letter abbreviation
	Name string `json:"name"`
}

// ZipCodeNode is a derived five-digit zip code.
type ZipCodeNode struct {
	ID    string `json:"id"` // zip string
	City  string `json:"city"`
	State string `json:"state"`
}

// TopicClusterNode groups Wikipedia articles by coarse topic tag.
type TopicClusterNode struct {
	ID    string `json:"id"` // cluster label
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// GeoID builds the {name}_{state} identity used by City and County nodes.
func GeoID(name, state string) string {
	n := strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	return n + "_" + strings.ToUpper(strings.TrimSpace(state))
}

// EntityTables is the full set of node tables handed to the writers.
// The slices are in deterministic (sorted) order so repeat runs produce
// identical destination state.
type EntityTables struct {
	States        []StateNode
	Counties      []CountyNode
	Cities        []CityNode
	ZipCodes      []ZipCodeNode
	PropertyTypes []PropertyTypeNode
	Features      []FeatureNode
	PriceRanges   []PriceRangeNode
	TopicClusters []TopicClusterNode
}

// Count returns the total number of derived entity nodes.
func (t *EntityTables) Count() int64 {
	return int64(len(t.States) + len(t.Counties) + len(t.Cities) + len(t.ZipCodes) +
		len(t.PropertyTypes) + len(t.Features) + len(t.PriceRanges) + len(t.TopicClusters))
}
