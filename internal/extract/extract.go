// Package extract derives the classification and geographic entity tables
// from the silver tier. Each extractor is entity-specific and runs as a SQL
// aggregate over the analytical session; results come back in deterministic
// order so repeat runs produce identical node sets.
package extract

import (
	"context"
	"fmt"

	"github.com/nucleus/homegraph/internal/engine"
	"github.com/nucleus/homegraph/internal/model"
	"github.com/nucleus/homegraph/internal/silver"
)

// Extractor derives entity node tables from one session.
type Extractor struct {
	session       *engine.Session
	topicClusters bool
}

// NewExtractor builds an extractor. topicClusters enables the Wikipedia
// topic grouping; without it the topic table stays empty.
func NewExtractor(session *engine.Session, topicClusters bool) *Extractor {
	return &Extractor{session: session, topicClusters: topicClusters}
}

// Run executes every extractor and assembles the full entity table set.
func (e *Extractor) Run(ctx context.Context) (*model.EntityTables, error) {
	tables := &model.EntityTables{}
	var err error
	if tables.Features, err = e.Features(ctx); err != nil {
		return nil, err
	}
	if tables.PropertyTypes, err = e.PropertyTypes(ctx); err != nil {
		return nil, err
	}
	if tables.PriceRanges, err = e.PriceRanges(ctx); err != nil {
		return nil, err
	}
	if tables.ZipCodes, err = e.ZipCodes(ctx); err != nil {
		return nil, err
	}
	if tables.Cities, err = e.Cities(ctx); err != nil {
		return nil, err
	}
	if tables.Counties, err = e.Counties(ctx); err != nil {
		return nil, err
	}
	if tables.States, err = e.States(ctx); err != nil {
		return nil, err
	}
	if tables.TopicClusters, err = e.TopicClusters(ctx); err != nil {
		return nil, err
	}
	return tables, nil
}

// Features unnests the property feature arrays, counting occurrences.
// Features are already lowercased and deduplicated per property in silver.
func (e *Extractor) Features(ctx context.Context) ([]model.FeatureNode, error) {
	var nodes []model.FeatureNode
	err := e.session.DB().SelectContext(ctx, &nodes, `
		SELECT je.value AS id, je.value AS name, COUNT(*) AS count
		FROM silver_properties sp, json_each(sp.features) je
		GROUP BY je.value
		ORDER BY je.value`)
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	return nodes, nil
}

// PropertyTypes lists the distinct normalized property types.
func (e *Extractor) PropertyTypes(ctx context.Context) ([]model.PropertyTypeNode, error) {
	var nodes []model.PropertyTypeNode
	err := e.session.DB().SelectContext(ctx, &nodes, `
		SELECT property_type AS id, property_type AS name, COUNT(*) AS count
		FROM silver_properties
		WHERE property_type != ''
		GROUP BY property_type
		ORDER BY property_type`)
	if err != nil {
		return nil, fmt.Errorf("extract property types: %w", err)
	}
	return nodes, nil
}

// PriceRanges emits the fixed bucket set with per-bucket aggregates.
// Buckets with no properties still appear with a zero count.
func (e *Extractor) PriceRanges(ctx context.Context) ([]model.PriceRangeNode, error) {
	type bucketAgg struct {
		Bucket string  `db:"price_bucket"`
		Min    float64 `db:"min_price"`
		Max    float64 `db:"max_price"`
		Count  int64   `db:"count"`
	}
	var aggs []bucketAgg
	err := e.session.DB().SelectContext(ctx, &aggs, `
		SELECT price_bucket, MIN(price) AS min_price, MAX(price) AS max_price, COUNT(*) AS count
		FROM silver_properties
		WHERE price_bucket != ''
		GROUP BY price_bucket`)
	if err != nil {
		return nil, fmt.Errorf("extract price ranges: %w", err)
	}
	byBucket := make(map[string]bucketAgg, len(aggs))
	for _, a := range aggs {
		byBucket[a.Bucket] = a
	}
	keys := silver.PriceBucketKeys()
	nodes := make([]model.PriceRangeNode, 0, len(keys))
	for _, key := range keys {
		label, min, max, _ := silver.PriceBucketBounds(key)
		node := model.PriceRangeNode{ID: key, Label: label, MinPrice: min, MaxPrice: max}
		if a, ok := byBucket[key]; ok {
			node.MinPrice = a.Min
			node.MaxPrice = a.Max
			node.Count = a.Count
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// ZipCodes lists the distinct normalized zips in use across properties and
// neighborhoods, with their city and state.
func (e *Extractor) ZipCodes(ctx context.Context) ([]model.ZipCodeNode, error) {
	var nodes []model.ZipCodeNode
	err := e.session.DB().SelectContext(ctx, &nodes, `
		SELECT zip AS id, MAX(city) AS city, MAX(state) AS state FROM (
			SELECT address_zip AS zip, city_normalized AS city, state_normalized AS state
			FROM silver_properties WHERE address_zip != ''
			UNION
			SELECT zip_code, city_normalized, state_normalized
			FROM silver_neighborhoods WHERE zip_code != ''
		)
		GROUP BY zip
		ORDER BY zip`)
	if err != nil {
		return nil, fmt.Errorf("extract zip codes: %w", err)
	}
	return nodes, nil
}

// Cities lists distinct normalized (city, state) pairs. The reference
// locations table contributes cities for zips in use even when no property
// carries the city string directly.
func (e *Extractor) Cities(ctx context.Context) ([]model.CityNode, error) {
	type cityRow struct {
		Name  string `db:"name"`
		State string `db:"state"`
	}
	var rows []cityRow
	err := e.session.DB().SelectContext(ctx, &rows, `
		SELECT name, state FROM (
			SELECT city_normalized AS name, state_normalized AS state
			FROM silver_properties WHERE city_normalized != '' AND state_normalized != ''
			UNION
			SELECT city_normalized, state_normalized
			FROM silver_neighborhoods WHERE city_normalized != '' AND state_normalized != ''
			UNION
			SELECT sl.city_normalized, sl.state_normalized
			FROM silver_locations sl
			WHERE sl.city_normalized != '' AND sl.state_normalized != ''
			  AND sl.zip_code IN (
				SELECT address_zip FROM silver_properties WHERE address_zip != ''
				UNION
				SELECT zip_code FROM silver_neighborhoods WHERE zip_code != ''
			  )
		)
		ORDER BY name, state`)
	if err != nil {
		return nil, fmt.Errorf("extract cities: %w", err)
	}
	nodes := make([]model.CityNode, 0, len(rows))
	for _, r := range rows {
		nodes = append(nodes, model.CityNode{ID: model.GeoID(r.Name, r.State), Name: r.Name, State: r.State})
	}
	return nodes, nil
}

// Counties derives county nodes from the reference locations dataset for
// zips that appear in this run. Without the reference there is no county
// level.
func (e *Extractor) Counties(ctx context.Context) ([]model.CountyNode, error) {
	type countyRow struct {
		Name  string `db:"name"`
		State string `db:"state"`
	}
	var rows []countyRow
	err := e.session.DB().SelectContext(ctx, &rows, `
		SELECT DISTINCT county AS name, state_normalized AS state
		FROM silver_locations
		WHERE county != '' AND state_normalized != ''
		  AND zip_code IN (
			SELECT address_zip FROM silver_properties WHERE address_zip != ''
			UNION
			SELECT zip_code FROM silver_neighborhoods WHERE zip_code != ''
		  )
		ORDER BY name, state`)
	if err != nil {
		return nil, fmt.Errorf("extract counties: %w", err)
	}
	nodes := make([]model.CountyNode, 0, len(rows))
	for _, r := range rows {
		nodes = append(nodes, model.CountyNode{ID: model.GeoID(r.Name, r.State), Name: r.Name, State: r.State})
	}
	return nodes, nil
}

// States lists the distinct normalized states across the silver geography.
// Locations contribute only for zips this run actually uses, matching the
// city and county extractors.
func (e *Extractor) States(ctx context.Context) ([]model.StateNode, error) {
	var nodes []model.StateNode
	err := e.session.DB().SelectContext(ctx, &nodes, `
		SELECT state AS id, state AS name FROM (
			SELECT state_normalized AS state FROM silver_properties WHERE state_normalized != ''
			UNION
			SELECT state_normalized FROM silver_neighborhoods WHERE state_normalized != ''
			UNION
			SELECT state_normalized FROM silver_locations
			WHERE state_normalized != ''
			  AND zip_code IN (
				SELECT address_zip FROM silver_properties WHERE address_zip != ''
				UNION
				SELECT zip_code FROM silver_neighborhoods WHERE zip_code != ''
			  )
		)
		ORDER BY state`)
	if err != nil {
		return nil, fmt.Errorf("extract states: %w", err)
	}
	return nodes, nil
}

// TopicClusters groups Wikipedia articles by their coarse topic tag. When
// clustering is not configured the table is empty.
func (e *Extractor) TopicClusters(ctx context.Context) ([]model.TopicClusterNode, error) {
	if !e.topicClusters {
		return nil, nil
	}
	var nodes []model.TopicClusterNode
	err := e.session.DB().SelectContext(ctx, &nodes, `
		SELECT topic_tag AS id, topic_tag AS label, COUNT(*) AS count
		FROM silver_wikipedia
		WHERE topic_tag != ''
		GROUP BY topic_tag
		ORDER BY topic_tag`)
	if err != nil {
		return nil, fmt.Errorf("extract topic clusters: %w", err)
	}
	return nodes, nil
}
