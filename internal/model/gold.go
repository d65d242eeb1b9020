package model

// Gold-tier documents: denormalized, embedded, ready for export. The same
// document backs the file and search projections; the graph projection is
// derived from it with the excluded-fields rule applied (city, state,
// zip_code and property_type live only as edges in the graph).

// GeoPoint is the search-store location shape ({lat, lon}).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PropertyDoc is the gold property document.
type PropertyDoc struct {
	ListingID      string    `json:"listing_id"`
	NeighborhoodID string    `json:"neighborhood_id,omitempty"`
	AddressStreet  string    `json:"address_street,omitempty"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	ZipCode        string    `json:"zip_code,omitempty"`
	Location       *GeoPoint `json:"location,omitempty"`
	Price          float64   `json:"price"`
	PriceBucket    string    `json:"price_bucket"`
	Bedrooms       int       `json:"bedrooms"`
	Bathrooms      float64   `json:"bathrooms"`
	SquareFeet     int       `json:"square_feet"`
	YearBuilt      int       `json:"year_built,omitempty"`
	PropertyType   string    `json:"property_type"`
	Features       []string  `json:"features"`
	Description    string    `json:"description,omitempty"`
	ListingDate    string    `json:"listing_date,omitempty"`
	SearchText     string    `json:"search_text,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
}

// GraphProjectionExcluded lists the Property/Neighborhood document fields
// that must not appear as graph node properties; the graph represents them
// as edges instead.
var GraphProjectionExcluded = []string{"city", "state", "zip_code", "property_type"}

// GraphProps projects the property document onto the graph node property
// set, applying the excluded-fields rule.
func (d *PropertyDoc) GraphProps() map[string]any {
	props := map[string]any{
		"listing_id":   d.ListingID,
		"price":        d.Price,
		"price_bucket": d.PriceBucket,
		"bedrooms":     d.Bedrooms,
		"bathrooms":    d.Bathrooms,
		"square_feet":  d.SquareFeet,
		"description":  d.Description,
		"embedding":    float64s(d.Embedding),
	}
	if d.NeighborhoodID != "" {
		props["neighborhood_id"] = d.NeighborhoodID
	}
	if d.AddressStreet != "" {
		props["address_street"] = d.AddressStreet
	}
	if d.YearBuilt > 0 {
		props["year_built"] = d.YearBuilt
	}
	if d.ListingDate != "" {
		props["listing_date"] = d.ListingDate
	}
	return props
}

// NeighborhoodDoc is the gold neighborhood document.
type NeighborhoodDoc struct {
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
	SearchText            string                 `json:"search_text,omitempty"`
	Embedding             []float32              `json:"embedding,omitempty"`
}

// GraphProps projects the neighborhood document onto graph node properties.
// City and state are excluded; they are edges in the graph.
func (d *NeighborhoodDoc) GraphProps() map[string]any {
	props := map[string]any{
		"neighborhood_id":   d.NeighborhoodID,
		"name":              d.Name,
		"population":        d.Population,
		"walkability_score": d.WalkabilityScore,
		"school_rating":     d.SchoolRating,
		"crime_index":       d.CrimeIndex,
		"description":       d.Description,
		"embedding":         float64s(d.Embedding),
	}
	return props
}

// float64s widens a vector for destinations whose drivers take float64.
func float64s(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

// WikipediaDoc is the gold Wikipedia article document.
type WikipediaDoc struct {
	PageID          int64     `json:"page_id"`
	Title           string    `json:"title"`
	LongSummary     string    `json:"long_summary,omitempty"`
	ShortSummary    string    `json:"short_summary,omitempty"`
	TopicTag        string    `json:"topic_tag,omitempty"`
	Truncated       bool      `json:"truncated,omitempty"`
	NeighborhoodIDs []string  `json:"neighborhood_ids,omitempty"`
	SearchText      string    `json:"search_text,omitempty"`
	Embedding       []float32 `json:"embedding,omitempty"`
}

// GoldTables is the complete gold dataset handed to the writer orchestrator:
// primary documents, derived entity nodes and the typed edge tables, all in
// deterministic order.
type GoldTables struct {
	Properties    []PropertyDoc
	Neighborhoods []NeighborhoodDoc
	Wikipedia     []WikipediaDoc
	Entities      EntityTables
	Edges         []EdgeTable
}

// EdgeCount returns the total number of edges across all tables.
func (g *GoldTables) EdgeCount() int {
	n := 0
	for _, t := range g.Edges {
		n += len(t.Edges)
	}
	return n
}
