// Package relate builds the typed edge tables. Structural edges are emitted
// as SQL over the silver tier; similarity and description edges are computed
// in Go from the gold documents. Every emitter inserts into gold_edges,
// whose primary key (from_id, to_id, type) gives the edge set its idempotent
// semantics: re-emitting an edge is a no-op, and two edges differing only in
// weight collapse to the first one written.
package relate

import (
	"context"
	"fmt"
	"log"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/engine"
	"github.com/nucleus/homegraph/internal/fault"
	"github.com/nucleus/homegraph/internal/gold"
	"github.com/nucleus/homegraph/internal/model"
)

// DescribesMinConfidence is the correlation confidence floor below which no
// DESCRIBES edge is emitted.
const DescribesMinConfidence = 0.3

// Builder emits all edge kinds for one run.
type Builder struct {
	session *engine.Session
	cfg     config.Similarity
}

// NewBuilder constructs the relationship builder.
func NewBuilder(session *engine.Session, cfg config.Similarity) *Builder {
	return &Builder{session: session, cfg: cfg}
}

// Run emits every edge kind and reads the deduplicated set back in the fixed
// write order. Edge tables for kinds with no edges are present but empty.
func (b *Builder) Run(ctx context.Context, docs *gold.Docs) ([]model.EdgeTable, error) {
	if err := b.emitStructural(ctx); err != nil {
		return nil, err
	}
	if err := b.emitSimilarTo(ctx, docs); err != nil {
		return nil, err
	}
	if err := b.emitDescribes(ctx, docs); err != nil {
		return nil, err
	}
	return b.readBack(ctx)
}

// structuralEmitters are pure SQL passes over the silver tier. The geo id
// expression mirrors model.GeoID: {name}_{state} with spaces replaced by
// underscores. Zip-less neighborhoods fall back to a direct IN_CITY edge,
// and cities with no county in the locations reference fall back to a
// direct IN_STATE edge.
var structuralEmitters = []struct {
	kind  model.EdgeKind
	query string
}{
	{model.EdgeLocatedIn, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type)
		SELECT listing_id, neighborhood_id, 'LOCATED_IN'
		FROM silver_properties
		WHERE neighborhood_id != ''`},
	{model.EdgeInZipCode, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type)
		SELECT listing_id, address_zip, 'IN_ZIP_CODE'
		FROM silver_properties
		WHERE address_zip != ''`},
	{model.EdgeInZipCode, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type)
		SELECT neighborhood_id, zip_code, 'IN_ZIP_CODE'
		FROM silver_neighborhoods
		WHERE zip_code != ''`},
	{model.EdgeInCity, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type)
		SELECT zip, REPLACE(city, ' ', '_') || '_' || state, 'IN_CITY'
		FROM (
			SELECT address_zip AS zip, city_normalized AS city, state_normalized AS state
			FROM silver_properties
			WHERE address_zip != '' AND city_normalized != '' AND state_normalized != ''
			UNION
			SELECT zip_code, city_normalized, state_normalized
			FROM silver_neighborhoods
			WHERE zip_code != '' AND city_normalized != '' AND state_normalized != ''
		)`},
	{model.EdgeInCity, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type)
		SELECT neighborhood_id, REPLACE(city_normalized, ' ', '_') || '_' || state_normalized, 'IN_CITY'
		FROM silver_neighborhoods
		WHERE zip_code = '' AND city_normalized != '' AND state_normalized != ''`},
	{model.EdgeInCounty, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type)
		SELECT REPLACE(city_normalized, ' ', '_') || '_' || state_normalized,
		       REPLACE(county, ' ', '_') || '_' || state_normalized,
		       'IN_COUNTY'
		FROM silver_locations
		WHERE city_normalized != '' AND county != '' AND state_normalized != ''
		  AND zip_code IN (
			SELECT address_zip FROM silver_properties WHERE address_zip != ''
			UNION
			SELECT zip_code FROM silver_neighborhoods WHERE zip_code != ''
		  )`},
	{model.EdgeInState, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type)
		SELECT REPLACE(county, ' ', '_') || '_' || state_normalized,
		       state_normalized,
		       'IN_STATE'
		FROM silver_locations
		WHERE county != '' AND state_normalized != ''
		  AND zip_code IN (
			SELECT address_zip FROM silver_properties WHERE address_zip != ''
			UNION
			SELECT zip_code FROM silver_neighborhoods WHERE zip_code != ''
		  )`},
	{model.EdgeInState, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type)
		SELECT REPLACE(c.city, ' ', '_') || '_' || c.state, c.state, 'IN_STATE'
		FROM (
			SELECT city_normalized AS city, state_normalized AS state
			FROM silver_properties
			WHERE city_normalized != '' AND state_normalized != ''
			UNION
			SELECT city_normalized, state_normalized
			FROM silver_neighborhoods
			WHERE city_normalized != '' AND state_normalized != ''
		) c
		WHERE NOT EXISTS (
			SELECT 1 FROM silver_locations l
			WHERE l.city_normalized = c.city AND l.state_normalized = c.state AND l.county != ''
		)`},
	{model.EdgeNear, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type, undirected)
		SELECT a.neighborhood_id, b.neighborhood_id, 'NEAR', 1
		FROM silver_neighborhoods a
		JOIN silver_neighborhoods b
		  ON a.city_normalized = b.city_normalized
		 AND a.state_normalized = b.state_normalized
		 AND a.neighborhood_id < b.neighborhood_id
		WHERE a.city_normalized != '' AND a.state_normalized != ''`},
	{model.EdgeHasFeature, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type)
		SELECT sp.listing_id, je.value, 'HAS_FEATURE'
		FROM silver_properties sp, json_each(sp.features) je`},
	{model.EdgeOfType, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type)
		SELECT listing_id, property_type, 'OF_TYPE'
		FROM silver_properties
		WHERE property_type != ''`},
	{model.EdgeInPriceRange, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type)
		SELECT listing_id, price_bucket, 'IN_PRICE_RANGE'
		FROM silver_properties
		WHERE price_bucket != ''`},
}

func (b *Builder) emitStructural(ctx context.Context) error {
	for _, em := range structuralEmitters {
		if err := ctx.Err(); err != nil {
			return fault.New(fault.CodeCancelled, err)
		}
		if _, err := b.session.DB().ExecContext(ctx, em.query); err != nil {
			return fault.New(fault.CodeInternal, fmt.Errorf("emit %s edges: %w", em.kind, err))
		}
	}
	return nil
}

// emitDescribes projects the neighborhood correlation lists into weighted
// WikipediaArticle -> Neighborhood edges. Correlations referencing pages not
// loaded in this run are skipped.
func (b *Builder) emitDescribes(ctx context.Context, docs *gold.Docs) error {
	pages := make(map[int64]bool, len(docs.Wikipedia))
	for _, w := range docs.Wikipedia {
		pages[w.PageID] = true
	}
	type edgeRow struct {
		FromID string  `db:"from_id"`
		ToID   string  `db:"to_id"`
		Type   string  `db:"type"`
		Weight float64 `db:"weight"`
	}
	var rows []any
	skipped := 0
	for _, nb := range docs.Neighborhoods {
		for _, c := range nb.WikipediaCorrelations {
			if c.Confidence <= DescribesMinConfidence {
				continue
			}
			if !pages[c.PageID] {
				skipped++
				continue
			}
			rows = append(rows, edgeRow{
				FromID: fmt.Sprintf("%d", c.PageID),
				ToID:   nb.NeighborhoodID,
				Type:   string(model.EdgeDescribes),
				Weight: c.Confidence,
			})
		}
	}
	if skipped > 0 {
		log.Printf("relate: skipped %d DESCRIBES edges referencing unloaded pages", skipped)
	}
	return b.session.InsertBatch(ctx, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type, weight)
		VALUES (:from_id, :to_id, :type, :weight)`, rows)
}

// readBack returns the deduplicated edge set grouped by kind in the fixed
// write order, each table sorted by (from_id, to_id).
func (b *Builder) readBack(ctx context.Context) ([]model.EdgeTable, error) {
	tables := make([]model.EdgeTable, 0, len(model.EdgeWriteOrder))
	for _, kind := range model.EdgeWriteOrder {
		var edges []model.Edge
		err := b.session.DB().SelectContext(ctx, &edges, `
			SELECT from_id, to_id, type, weight, undirected
			FROM gold_edges
			WHERE type = ?
			ORDER BY from_id, to_id`, string(kind))
		if err != nil {
			return nil, fault.New(fault.CodeInternal, fmt.Errorf("read %s edges: %w", kind, err))
		}
		tables = append(tables, model.EdgeTable{Kind: kind, Edges: edges})
	}
	return tables, nil
}
