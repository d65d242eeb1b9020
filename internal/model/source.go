package model

import "encoding/json"

// Raw source shapes as they arrive in the bronze tier. Field names mirror
// the upstream JSON contract; parsing is permissive and row-level failures
// are quarantined rather than aborting the run.

// Address is the nested address block on a property listing.
type Address struct {
	Street      string   `json:"street"`
	City        string   `json:"city"`
	State       string   `json:"state"`
	ZipCode     string   `json:"zip_code"`
	Coordinates *LatLong `json:"coordinates,omitempty"`
}

// LatLong is a coordinate pair. Source files carry it either as an object
// or as a two-element [lat, lon] array; both forms decode.
type LatLong struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (l *LatLong) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err == nil {
		l.Latitude, l.Longitude = pair[0], pair[1]
		return nil
	}
	type plain LatLong
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*l = LatLong(obj)
	return nil
}

// PropertyRecord is one raw property listing.
type PropertyRecord struct {
	ListingID      string   `json:"listing_id"`
	NeighborhoodID string   `json:"neighborhood_id,omitempty"`
	Address        Address  `json:"address"`
	Price          float64  `json:"price"`
	Bedrooms       int      `json:"bedrooms"`
	Bathrooms      float64  `json:"bathrooms"`
	SquareFeet     int      `json:"square_feet"`
	YearBuilt      int      `json:"year_built"`
	PropertyType   string   `json:"property_type"`
	Features       []string `json:"features"`
	Description    string   `json:"description"`
	ListingDate    string   `json:"listing_date,omitempty"`
}

// Correlation types observed in source data. Anything else is carried
// through untouched and treated as related.
const (
	CorrelationPrimary = "primary"
	CorrelationRelated = "related"
)

// WikipediaCorrelation links a neighborhood to a Wikipedia page with a
// relationship kind and a confidence in [0,1].
type WikipediaCorrelation struct {
	PageID     int64   `json:"page_id"`
	Type       string  `json:"type"` // "primary" | "related" | ...
	Confidence float64 `json:"confidence"`
}

// NeighborhoodRecord is one raw neighborhood document.
type NeighborhoodRecord struct {
	NeighborhoodID        string                 `json:"neighborhood_id"`
	Name                  string                 `json:"name"`
	City                  string                 `json:"city"`
	State                 string                 `json:"state"`
	ZipCode               string                 `json:"zip_code,omitempty"`
	Population            int64                  `json:"population,omitempty"`
	WalkabilityScore      float64                `json:"walkability_score,omitempty"`
	SchoolRating          float64                `json:"school_rating,omitempty"`
	CrimeIndex            float64                `json:"crime_index,omitempty"`
	Description           string                 `json:"description,omitempty"`
	LifestyleTags         []string               `json:"lifestyle_tags,omitempty"`
	WikipediaCorrelations []WikipediaCorrelation `json:"wikipedia_correlations,omitempty"`
}

// WikipediaRecord is one row of the page_summaries SQLite table. Summaries
// arrive already cleaned by the upstream HTML pipeline.
type WikipediaRecord struct {
	PageID          int64    `json:"page_id" db:"page_id"`
	Title           string   `json:"title" db:"title"`
	LongSummary     string   `json:"long_summary" db:"long_summary"`
	ShortSummary    string   `json:"short_summary" db:"short_summary"`
	TopicTag        string   `json:"topic_tag,omitempty" db:"topic_tag"`
	NeighborhoodIDs []string `json:"neighborhood_ids,omitempty" db:"-"`
}

// LocationRecord maps a zip code to its geographic hierarchy. The locations
// reference file is optional; without it no county level is derived.
type LocationRecord struct {
	ZipCode      string `json:"zip_code"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city"`
	County       string `json:"county,omitempty"`
	State        string `json:"state"`
}
