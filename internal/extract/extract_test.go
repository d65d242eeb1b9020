package extract

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nucleus/homegraph/internal/engine"
	"github.com/nucleus/homegraph/internal/model"
	"github.com/nucleus/homegraph/internal/silver"
)

func openSeeded(t *testing.T) *engine.Session {
	t.Helper()
	ctx := context.Background()
	s, err := engine.Open(ctx)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	seed := []string{
		`INSERT INTO silver_properties (bronze_id, listing_id, graph_node_id, address_zip,
			city_normalized, state_normalized, price, price_bucket, property_type, features)
		 VALUES ('b1', 'p1', 'property:p1', '94110', 'San Francisco', 'CA', 600000, '500k_750k',
			'condo', '["garage","pool"]')`,
		`INSERT INTO silver_properties (bronze_id, listing_id, graph_node_id, address_zip,
			city_normalized, state_normalized, price, price_bucket, property_type, features)
		 VALUES ('b2', 'p2', 'property:p2', '94110', 'San Francisco', 'CA', 800000, '750k_1m',
			'condo', '["pool"]')`,
		`INSERT INTO silver_neighborhoods (bronze_id, neighborhood_id, graph_node_id, name,
			zip_code, city_normalized, state_normalized)
		 VALUES ('b3', 'nb1', 'neighborhood:nb1', 'Mission', '94110', 'San Francisco', 'CA')`,
		`INSERT INTO silver_locations (bronze_id, zip_code, city_normalized, county, state_normalized)
		 VALUES ('b4', '94110', 'San Francisco', 'San Francisco County', 'CA')`,
		`INSERT INTO silver_locations (bronze_id, zip_code, city_normalized, county, state_normalized)
		 VALUES ('b5', '10001', 'New York', 'New York County', 'NY')`,
		`INSERT INTO silver_wikipedia (bronze_id, page_id, graph_node_id, title, topic_tag)
		 VALUES ('b6', 42, 'wikipedia_article:42', 'Mission District', 'neighborhoods')`,
	}
	for _, stmt := range seed {
		if _, err := s.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return s
}

func TestFeatures_UnnestsAndCounts(t *testing.T) {
	s := openSeeded(t)
	nodes, err := NewExtractor(s, false).Features(context.Background())
	if err != nil {
		t.Fatalf("features: %v", err)
	}
	want := []model.FeatureNode{
		{ID: "garage", Name: "garage", Count: 1},
		{ID: "pool", Name: "pool", Count: 2},
	}
	if diff := cmp.Diff(want, nodes); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}
}

func TestPriceRanges_FullBucketSetWithZeroCounts(t *testing.T) {
	s := openSeeded(t)
	nodes, err := NewExtractor(s, false).PriceRanges(context.Background())
	if err != nil {
		t.Fatalf("price ranges: %v", err)
	}
	if len(nodes) != len(silver.PriceBucketKeys()) {
		t.Fatalf("expected full fixed bucket set, got %d buckets", len(nodes))
	}
	byID := make(map[string]model.PriceRangeNode)
	for _, n := range nodes {
		byID[n.ID] = n
	}
	if byID["500k_750k"].Count != 1 {
		t.Errorf("expected 1 property in 500k_750k, got %d", byID["500k_750k"].Count)
	}
	if byID["under_250k"].Count != 0 {
		t.Errorf("expected empty bucket to appear with zero count, got %d", byID["under_250k"].Count)
	}
}

func TestCities_GeoIdentity(t *testing.T) {
	s := openSeeded(t)
	nodes, err := NewExtractor(s, false).Cities(context.Background())
	if err != nil {
		t.Fatalf("cities: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 city (NY location zip not in use), got %d: %+v", len(nodes), nodes)
	}
	if nodes[0].ID != "San_Francisco_CA" {
		t.Errorf("expected San_Francisco_CA, got %q", nodes[0].ID)
	}
}

func TestCounties_RequireLocationsReference(t *testing.T) {
	s := openSeeded(t)
	nodes, err := NewExtractor(s, false).Counties(context.Background())
	if err != nil {
		t.Fatalf("counties: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 county, got %d", len(nodes))
	}
	if nodes[0].ID != "San_Francisco_County_CA" {
		t.Errorf("expected San_Francisco_County_CA, got %q", nodes[0].ID)
	}
}

func TestZipCodes_UnionAcrossTables(t *testing.T) {
	s := openSeeded(t)
	nodes, err := NewExtractor(s, false).ZipCodes(context.Background())
	if err != nil {
		t.Fatalf("zips: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != "94110" {
		t.Fatalf("expected single zip 94110, got %+v", nodes)
	}
}

func TestTopicClusters_DisabledByDefault(t *testing.T) {
	s := openSeeded(t)
	nodes, err := NewExtractor(s, false).TopicClusters(context.Background())
	if err != nil {
		t.Fatalf("topic clusters: %v", err)
	}
	if len(nodes) != 0 {
		t.Errorf("expected no clusters when disabled, got %d", len(nodes))
	}

	enabled, err := NewExtractor(s, true).TopicClusters(context.Background())
	if err != nil {
		t.Fatalf("topic clusters enabled: %v", err)
	}
	if len(enabled) != 1 || enabled[0].ID != "neighborhoods" {
		t.Errorf("expected one neighborhoods cluster, got %+v", enabled)
	}
}

func TestRun_AssemblesAllTables(t *testing.T) {
	s := openSeeded(t)
	tables, err := NewExtractor(s, false).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if tables.Count() == 0 {
		t.Fatal("expected derived entities")
	}
	if len(tables.States) != 1 || tables.States[0].ID != "CA" {
		t.Errorf("expected single state CA, got %+v", tables.States)
	}
}
