package model

// Silver-tier rows: flattened, normalized, with derived keys. These map
// one-to-one onto the engine's silver tables (db tags drive sqlx binding).
// Array-valued columns are stored as JSON text so the engine can unnest
// them with json_each.

// SilverProperty is a flattened property listing.
type SilverProperty struct {
	BronzeID        string  `db:"bronze_id"`
	ListingID       string  `db:"listing_id"`
	NeighborhoodID  string  `db:"neighborhood_id"`
	GraphNodeID     string  `db:"graph_node_id"`
	AddressStreet   string  `db:"address_street"`
	AddressCity     string  `db:"address_city"`
	AddressState    string  `db:"address_state"`
	AddressZip      string  `db:"address_zip"`
	CityNormalized  string  `db:"city_normalized"`
	StateNormalized string  `db:"state_normalized"`
	Latitude        float64 `db:"latitude"`
	Longitude       float64 `db:"longitude"`
	HasCoordinates  bool    `db:"has_coordinates"`
	Price           float64 `db:"price"`
	PriceBucket     string  `db:"price_bucket"`
	Bedrooms        int     `db:"bedrooms"`
	Bathrooms       float64 `db:"bathrooms"`
	SquareFeet      int     `db:"square_feet"`
	YearBuilt       int     `db:"year_built"`
	PropertyType    string  `db:"property_type"`
	FeaturesJSON    string  `db:"features"` // JSON array, lowercased, deduplicated
	Description     string  `db:"description"`
	ListingDate     string  `db:"listing_date"`
}

// SilverNeighborhood is a flattened neighborhood row.
type SilverNeighborhood struct {
	BronzeID         string  `db:"bronze_id"`
	NeighborhoodID   string  `db:"neighborhood_id"`
	GraphNodeID      string  `db:"graph_node_id"`
	Name             string  `db:"name"`
	City             string  `db:"city"`
	State            string  `db:"state"`
	ZipCode          string  `db:"zip_code"`
	CityNormalized   string  `db:"city_normalized"`
	StateNormalized  string  `db:"state_normalized"`
	Population       int64   `db:"population"`
	WalkabilityScore float64 `db:"walkability_score"`
	SchoolRating     float64 `db:"school_rating"`
	CrimeIndex       float64 `db:"crime_index"`
	Description      string  `db:"description"`
	LifestyleJSON    string  `db:"lifestyle_tags"`         // JSON array
	CorrelationsJSON string  `db:"wikipedia_correlations"` // JSON array of WikipediaCorrelation
}

// SilverWikipedia is a flattened Wikipedia summary row.
type SilverWikipedia struct {
	BronzeID     string `db:"bronze_id"`
	PageID       int64  `db:"page_id"`
	GraphNodeID  string `db:"graph_node_id"`
	Title        string `db:"title"`
	LongSummary  string `db:"long_summary"`
	ShortSummary string `db:"short_summary"`
	TopicTag     string `db:"topic_tag"`
	Truncated    bool   `db:"truncated"` // long_summary exceeded the hard cap
}

// SilverLocation is one row of the zip reference table.
type SilverLocation struct {
	BronzeID        string `db:"bronze_id"`
	ZipCode         string `db:"zip_code"`
	Neighborhood    string `db:"neighborhood"`
	CityNormalized  string `db:"city_normalized"`
	County          string `db:"county"`
	StateNormalized string `db:"state_normalized"`
}
