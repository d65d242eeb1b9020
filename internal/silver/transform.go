// Package silver flattens and normalizes bronze rows into the silver tier.
// Each entity type has exactly one transformer; there is no dynamic dispatch
// on a runtime tag. A transformer that cannot produce its table aborts the
// run, while row-level malformations are quarantined and counted.
package silver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/nucleus/homegraph/internal/bronze"
	"github.com/nucleus/homegraph/internal/engine"
	"github.com/nucleus/homegraph/internal/fault"
	"github.com/nucleus/homegraph/internal/model"
)

// LongSummaryHardCap bounds wikipedia long summaries. Upstream cleaning
// keeps them near 2000 characters; anything beyond the cap is truncated
// and flagged rather than rejected.
const LongSummaryHardCap = 8000

// Stats counts transformer output per entity plus quarantined rows.
type Stats struct {
	Properties    int64
	Neighborhoods int64
	Wikipedia     int64
	Locations     int64
	Quarantined   int64
	DroppedRefs   int64 // neighborhood references with no matching neighborhood
}

// Transformer drives the bronze to silver pass over one session.
type Transformer struct {
	session *engine.Session
}

// NewTransformer builds the silver transformer.
func NewTransformer(session *engine.Session) *Transformer {
	return &Transformer{session: session}
}

// Run executes every entity transformer in dependency order and resolves
// cross-entity references afterwards.
func (t *Transformer) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := t.TransformNeighborhood(ctx, stats); err != nil {
		return nil, err
	}
	if err := t.TransformProperty(ctx, stats); err != nil {
		return nil, err
	}
	if err := t.TransformWikipedia(ctx, stats); err != nil {
		return nil, err
	}
	if err := t.TransformLocations(ctx, stats); err != nil {
		return nil, err
	}
	if err := t.resolveNeighborhoodRefs(ctx, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

type bronzeRow struct {
	BronzeID   string `db:"bronze_id"`
	SourceFile string `db:"source_file"`
	Raw        string `db:"raw"`
}

// TransformProperty flattens property listings: nested address to columns,
// normalized geography, lowercased features, price bucket and the derived
// graph node id.
func (t *Transformer) TransformProperty(ctx context.Context, stats *Stats) error {
	rows, err := t.bronzeRows(ctx, "bronze_properties")
	if err != nil {
		return err
	}
	var out []any
	for _, row := range rows {
		var rec model.PropertyRecord
		if err := json.Unmarshal([]byte(row.Raw), &rec); err != nil {
			if qErr := t.quarantine(ctx, row, "property", "decode: "+err.Error(), stats); qErr != nil {
				return qErr
			}
			continue
		}
		if rec.ListingID == "" {
			if qErr := t.quarantine(ctx, row, "property", "missing listing_id", stats); qErr != nil {
				return qErr
			}
			continue
		}
		if rec.Price < 0 {
			if qErr := t.quarantine(ctx, row, "property", "negative price", stats); qErr != nil {
				return qErr
			}
			continue
		}
		features := NormalizeFeatures(rec.Features)
		featuresJSON, err := json.Marshal(features)
		if err != nil {
			return fmt.Errorf("encode features for %s: %w", rec.ListingID, err)
		}
		sp := model.SilverProperty{
			BronzeID:        row.BronzeID,
			ListingID:       rec.ListingID,
			NeighborhoodID:  rec.NeighborhoodID,
			GraphNodeID:     model.GraphNodeID(model.KindProperty, rec.ListingID),
			AddressStreet:   rec.Address.Street,
			AddressCity:     rec.Address.City,
			AddressState:    rec.Address.State,
			AddressZip:      NormalizeZip(rec.Address.ZipCode),
			CityNormalized:  NormalizeCity(rec.Address.City),
			StateNormalized: NormalizeState(rec.Address.State),
			Price:           rec.Price,
			PriceBucket:     PriceBucketKey(rec.Price),
			Bedrooms:        rec.Bedrooms,
			Bathrooms:       rec.Bathrooms,
			SquareFeet:      rec.SquareFeet,
			YearBuilt:       rec.YearBuilt,
			PropertyType:    NormalizePropertyType(rec.PropertyType),
			FeaturesJSON:    string(featuresJSON),
			Description:     rec.Description,
			ListingDate:     rec.ListingDate,
		}
		if rec.Address.Coordinates != nil {
			sp.Latitude = rec.Address.Coordinates.Latitude
			sp.Longitude = rec.Address.Coordinates.Longitude
			sp.HasCoordinates = true
		}
		out = append(out, sp)
	}
	insert := `INSERT OR REPLACE INTO silver_properties (
		bronze_id, listing_id, neighborhood_id, graph_node_id,
		address_street, address_city, address_state, address_zip,
		city_normalized, state_normalized, latitude, longitude, has_coordinates,
		price, price_bucket, bedrooms, bathrooms, square_feet, year_built,
		property_type, features, description, listing_date
	) VALUES (
		:bronze_id, :listing_id, :neighborhood_id, :graph_node_id,
		:address_street, :address_city, :address_state, :address_zip,
		:city_normalized, :state_normalized, :latitude, :longitude, :has_coordinates,
		:price, :price_bucket, :bedrooms, :bathrooms, :square_feet, :year_built,
		:property_type, :features, :description, :listing_date
	)`
	if err := t.session.InsertBatch(ctx, insert, out); err != nil {
		return fault.New(fault.CodeSchema, fmt.Errorf("silver_properties: %w", err))
	}
	stats.Properties = int64(len(out))
	return nil
}

// TransformNeighborhood flattens neighborhood documents and carries the
// wikipedia correlations through as a JSON column.
func (t *Transformer) TransformNeighborhood(ctx context.Context, stats *Stats) error {
	rows, err := t.bronzeRows(ctx, "bronze_neighborhoods")
	if err != nil {
		return err
	}
	var out []any
	for _, row := range rows {
		var rec model.NeighborhoodRecord
		if err := json.Unmarshal([]byte(row.Raw), &rec); err != nil {
			if qErr := t.quarantine(ctx, row, "neighborhood", "decode: "+err.Error(), stats); qErr != nil {
				return qErr
			}
			continue
		}
		if rec.NeighborhoodID == "" || rec.Name == "" {
			if qErr := t.quarantine(ctx, row, "neighborhood", "missing neighborhood_id or name", stats); qErr != nil {
				return qErr
			}
			continue
		}
		tags, err := json.Marshal(normalizeTags(rec.LifestyleTags))
		if err != nil {
			return fmt.Errorf("encode lifestyle tags for %s: %w", rec.NeighborhoodID, err)
		}
		correlations, err := json.Marshal(validCorrelations(rec.WikipediaCorrelations))
		if err != nil {
			return fmt.Errorf("encode correlations for %s: %w", rec.NeighborhoodID, err)
		}
		out = append(out, model.SilverNeighborhood{
			BronzeID:         row.BronzeID,
			NeighborhoodID:   rec.NeighborhoodID,
			GraphNodeID:      model.GraphNodeID(model.KindNeighborhood, rec.NeighborhoodID),
			Name:             rec.Name,
			City:             rec.City,
			State:            rec.State,
			ZipCode:          NormalizeZip(rec.ZipCode),
			CityNormalized:   NormalizeCity(rec.City),
			StateNormalized:  NormalizeState(rec.State),
			Population:       rec.Population,
			WalkabilityScore: rec.WalkabilityScore,
			SchoolRating:     rec.SchoolRating,
			CrimeIndex:       rec.CrimeIndex,
			Description:      rec.Description,
			LifestyleJSON:    string(tags),
			CorrelationsJSON: string(correlations),
		})
	}
	insert := `INSERT OR REPLACE INTO silver_neighborhoods (
		bronze_id, neighborhood_id, graph_node_id, name, city, state, zip_code,
		city_normalized, state_normalized, population, walkability_score,
		school_rating, crime_index, description, lifestyle_tags, wikipedia_correlations
	) VALUES (
		:bronze_id, :neighborhood_id, :graph_node_id, :name, :city, :state, :zip_code,
		:city_normalized, :state_normalized, :population, :walkability_score,
		:school_rating, :crime_index, :description, :lifestyle_tags, :wikipedia_correlations
	)`
	if err := t.session.InsertBatch(ctx, insert, out); err != nil {
		return fault.New(fault.CodeSchema, fmt.Errorf("silver_neighborhoods: %w", err))
	}
	stats.Neighborhoods = int64(len(out))
	return nil
}

// TransformWikipedia applies the long-summary hard cap and derives the
// graph node id from the page id.
func (t *Transformer) TransformWikipedia(ctx context.Context, stats *Stats) error {
	rows, err := t.bronzeRows(ctx, "bronze_wikipedia")
	if err != nil {
		return err
	}
	var out []any
	for _, row := range rows {
		var rec model.WikipediaRecord
		if err := json.Unmarshal([]byte(row.Raw), &rec); err != nil {
			if qErr := t.quarantine(ctx, row, "wikipedia", "decode: "+err.Error(), stats); qErr != nil {
				return qErr
			}
			continue
		}
		if rec.PageID <= 0 || rec.Title == "" {
			if qErr := t.quarantine(ctx, row, "wikipedia", "missing page_id or title", stats); qErr != nil {
				return qErr
			}
			continue
		}
		long := rec.LongSummary
		truncated := false
		if utf8.RuneCountInString(long) > LongSummaryHardCap {
			// The cap is in characters; cutting bytes could split a rune.
			long = string([]rune(long)[:LongSummaryHardCap])
			truncated = true
			log.Printf("silver: truncated long_summary for page %d (%d chars)",
				rec.PageID, utf8.RuneCountInString(rec.LongSummary))
		}
		out = append(out, model.SilverWikipedia{
			BronzeID:     row.BronzeID,
			PageID:       rec.PageID,
			GraphNodeID:  model.GraphNodeID(model.KindWikipediaArticle, fmt.Sprintf("%d", rec.PageID)),
			Title:        rec.Title,
			LongSummary:  long,
			ShortSummary: rec.ShortSummary,
			TopicTag:     rec.TopicTag,
			Truncated:    truncated,
		})
	}
	insert := `INSERT OR REPLACE INTO silver_wikipedia (
		bronze_id, page_id, graph_node_id, title, long_summary, short_summary, topic_tag, truncated
	) VALUES (
		:bronze_id, :page_id, :graph_node_id, :title, :long_summary, :short_summary, :topic_tag, :truncated
	)`
	if err := t.session.InsertBatch(ctx, insert, out); err != nil {
		return fault.New(fault.CodeSchema, fmt.Errorf("silver_wikipedia: %w", err))
	}
	stats.Wikipedia = int64(len(out))
	return nil
}

// TransformLocations builds the zip reference table used by the geographic
// extractors. The source is optional; an empty bronze table is fine.
func (t *Transformer) TransformLocations(ctx context.Context, stats *Stats) error {
	rows, err := t.bronzeRows(ctx, "bronze_locations")
	if err != nil {
		return err
	}
	var out []any
	for _, row := range rows {
		var rec model.LocationRecord
		if err := json.Unmarshal([]byte(row.Raw), &rec); err != nil {
			if qErr := t.quarantine(ctx, row, "location", "decode: "+err.Error(), stats); qErr != nil {
				return qErr
			}
			continue
		}
		zip := NormalizeZip(rec.ZipCode)
		if zip == "" || rec.City == "" || rec.State == "" {
			if qErr := t.quarantine(ctx, row, "location", "missing zip_code, city or state", stats); qErr != nil {
				return qErr
			}
			continue
		}
		out = append(out, model.SilverLocation{
			BronzeID:        row.BronzeID,
			ZipCode:         zip,
			Neighborhood:    rec.Neighborhood,
			CityNormalized:  NormalizeCity(rec.City),
			County:          titleCase(rec.County),
			StateNormalized: NormalizeState(rec.State),
		})
	}
	insert := `INSERT OR REPLACE INTO silver_locations (
		bronze_id, zip_code, neighborhood, city_normalized, county, state_normalized
	) VALUES (
		:bronze_id, :zip_code, :neighborhood, :city_normalized, :county, :state_normalized
	)`
	if err := t.session.InsertBatch(ctx, insert, out); err != nil {
		return fault.New(fault.CodeSchema, fmt.Errorf("silver_locations: %w", err))
	}
	stats.Locations = int64(len(out))
	return nil
}

// resolveNeighborhoodRefs clears property neighborhood references that have
// no matching neighborhood in this run, with a warning per the contract.
func (t *Transformer) resolveNeighborhoodRefs(ctx context.Context, stats *Stats) error {
	res, err := t.session.DB().ExecContext(ctx, `
		UPDATE silver_properties SET neighborhood_id = ''
		WHERE neighborhood_id != ''
		  AND neighborhood_id NOT IN (SELECT neighborhood_id FROM silver_neighborhoods)`)
	if err != nil {
		return fmt.Errorf("resolve neighborhood refs: %w", err)
	}
	dropped, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve neighborhood refs: %w", err)
	}
	if dropped > 0 {
		log.Printf("silver: dropped %d unresolved neighborhood references", dropped)
	}
	stats.DroppedRefs = dropped
	return nil
}

func (t *Transformer) bronzeRows(ctx context.Context, table string) ([]bronzeRow, error) {
	var rows []bronzeRow
	if err := t.session.DB().SelectContext(ctx, &rows, "SELECT bronze_id, source_file, raw FROM "+table+" ORDER BY bronze_id"); err != nil {
		return nil, fault.New(fault.CodeSchema, fmt.Errorf("read %s: %w", table, err))
	}
	return rows, nil
}

func (t *Transformer) quarantine(ctx context.Context, row bronzeRow, entity, reason string, stats *Stats) error {
	stats.Quarantined++
	return bronze.Quarantine(ctx, t.session, row.BronzeID, row.SourceFile, entity, reason, row.Raw)
}

func normalizeTags(tags []string) []string {
	return NormalizeFeatures(tags)
}

func validCorrelations(in []model.WikipediaCorrelation) []model.WikipediaCorrelation {
	out := make([]model.WikipediaCorrelation, 0, len(in))
	for _, c := range in {
		if c.PageID <= 0 {
			continue
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			continue
		}
		out = append(out, c)
	}
	return out
}
