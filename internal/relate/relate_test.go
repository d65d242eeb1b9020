package relate

import (
	"context"
	"testing"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/engine"
	"github.com/nucleus/homegraph/internal/gold"
	"github.com/nucleus/homegraph/internal/model"
)

func similarityConfig() config.Similarity {
	return config.Similarity{TopK: 10, Threshold: 0.85, Scope: config.SimilarityScopeNeighborhood}
}

func openSeeded(t *testing.T) *engine.Session {
	t.Helper()
	ctx := context.Background()
	s, err := engine.Open(ctx)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	seed := []string{
		`INSERT INTO silver_properties (bronze_id, listing_id, neighborhood_id, graph_node_id,
			address_zip, city_normalized, state_normalized, price, price_bucket, property_type, features)
		 VALUES ('b1', 'p1', 'nb1', 'property:p1', '94110', 'San Francisco', 'CA',
			600000, '500k_750k', 'condo', '["pool","garage"]')`,
		`INSERT INTO silver_properties (bronze_id, listing_id, neighborhood_id, graph_node_id,
			address_zip, city_normalized, state_normalized, price, price_bucket, property_type, features)
		 VALUES ('b2', 'p2', 'nb1', 'property:p2', '94110', 'San Francisco', 'CA',
			650000, '500k_750k', 'condo', '["pool"]')`,
		`INSERT INTO silver_neighborhoods (bronze_id, neighborhood_id, graph_node_id, name,
			zip_code, city_normalized, state_normalized)
		 VALUES ('b3', 'nb1', 'neighborhood:nb1', 'Mission', '94110', 'San Francisco', 'CA')`,
		`INSERT INTO silver_neighborhoods (bronze_id, neighborhood_id, graph_node_id, name,
			zip_code, city_normalized, state_normalized)
		 VALUES ('b4', 'nb2', 'neighborhood:nb2', 'Castro', '94114', 'San Francisco', 'CA')`,
		`INSERT INTO silver_locations (bronze_id, zip_code, city_normalized, county, state_normalized)
		 VALUES ('b5', '94110', 'San Francisco', 'San Francisco County', 'CA')`,
	}
	for _, stmt := range seed {
		if _, err := s.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return s
}

func testDocs() *gold.Docs {
	same := []float32{1, 0, 0}
	return &gold.Docs{
		Neighborhoods: []model.NeighborhoodDoc{
			{NeighborhoodID: "nb1", WikipediaCorrelations: []model.WikipediaCorrelation{
				{PageID: 42, Type: "primary", Confidence: 0.9},
				{PageID: 43, Type: "related", Confidence: 0.2},
				{PageID: 99, Type: "related", Confidence: 0.8},
			}},
			{NeighborhoodID: "nb2"},
		},
		Wikipedia: []model.WikipediaDoc{
			{PageID: 42, Title: "Mission District"},
			{PageID: 43, Title: "Dolores Park"},
		},
		PropertyVectors:      map[string][]float32{"p1": same, "p2": same},
		PropertyNeighborhood: map[string]string{"p1": "nb1", "p2": "nb1"},
	}
}

func edgesOf(t *testing.T, tables []model.EdgeTable, kind model.EdgeKind) []model.Edge {
	t.Helper()
	for _, table := range tables {
		if table.Kind == kind {
			return table.Edges
		}
	}
	t.Fatalf("no table for kind %s", kind)
	return nil
}

func TestRun_StructuralEdges(t *testing.T) {
	s := openSeeded(t)
	tables, err := NewBuilder(s, similarityConfig()).Run(context.Background(), testDocs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	located := edgesOf(t, tables, model.EdgeLocatedIn)
	if len(located) != 2 {
		t.Errorf("expected 2 LOCATED_IN edges, got %d", len(located))
	}
	// Two property legs plus one per neighborhood.
	zips := edgesOf(t, tables, model.EdgeInZipCode)
	if len(zips) != 4 {
		t.Fatalf("expected 4 IN_ZIP_CODE edges, got %d: %+v", len(zips), zips)
	}
	if zips[0].FromID != "nb1" || zips[0].ToID != "94110" {
		t.Errorf("expected neighborhood zip edge nb1->94110, got %+v", zips[0])
	}
	if zips[1].FromID != "nb2" || zips[1].ToID != "94114" {
		t.Errorf("expected neighborhood zip edge nb2->94114, got %+v", zips[1])
	}
	cities := edgesOf(t, tables, model.EdgeInCity)
	if len(cities) != 2 || cities[0].FromID != "94110" || cities[0].ToID != "San_Francisco_CA" {
		t.Errorf("unexpected IN_CITY edges: %+v", cities)
	}
	counties := edgesOf(t, tables, model.EdgeInCounty)
	if len(counties) != 1 || counties[0].ToID != "San_Francisco_County_CA" {
		t.Errorf("unexpected IN_COUNTY edges: %+v", counties)
	}
	states := edgesOf(t, tables, model.EdgeInState)
	if len(states) != 1 || states[0].ToID != "CA" {
		t.Errorf("unexpected IN_STATE edges: %+v", states)
	}
	features := edgesOf(t, tables, model.EdgeHasFeature)
	if len(features) != 3 {
		t.Errorf("expected 3 HAS_FEATURE edges, got %d", len(features))
	}
	buckets := edgesOf(t, tables, model.EdgeInPriceRange)
	if len(buckets) != 2 || buckets[0].ToID != "500k_750k" {
		t.Errorf("unexpected IN_PRICE_RANGE edges: %+v", buckets)
	}
}

func TestRun_NearIsCanonicalAndUndirected(t *testing.T) {
	s := openSeeded(t)
	tables, err := NewBuilder(s, similarityConfig()).Run(context.Background(), testDocs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// nb1 and nb2 share a city but not a zip.
	near := edgesOf(t, tables, model.EdgeNear)
	if len(near) != 1 {
		t.Fatalf("expected 1 NEAR edge for same-city neighborhoods, got %d", len(near))
	}
	if near[0].FromID != "nb1" || near[0].ToID != "nb2" {
		t.Errorf("expected canonical nb1->nb2, got %s->%s", near[0].FromID, near[0].ToID)
	}
	if !near[0].Undirected {
		t.Error("NEAR must be flagged undirected")
	}
}

func TestRun_GeographicFallbacksWithoutZipOrCounty(t *testing.T) {
	ctx := context.Background()
	s, err := engine.Open(ctx)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	seed := []string{
		`INSERT INTO silver_properties (bronze_id, listing_id, neighborhood_id, graph_node_id,
			address_zip, city_normalized, state_normalized, price, price_bucket, property_type, features)
		 VALUES ('b1', 'p9', 'nb9', 'property:p9', '', 'Portland', 'OR',
			400000, '250k_500k', 'condo', '[]')`,
		`INSERT INTO silver_neighborhoods (bronze_id, neighborhood_id, graph_node_id, name,
			zip_code, city_normalized, state_normalized)
		 VALUES ('b2', 'nb9', 'neighborhood:nb9', 'Pearl District', '', 'Portland', 'OR')`,
	}
	for _, stmt := range seed {
		if _, err := s.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	tables, err := NewBuilder(s, similarityConfig()).Run(ctx, &gold.Docs{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if zips := edgesOf(t, tables, model.EdgeInZipCode); len(zips) != 0 {
		t.Errorf("expected no IN_ZIP_CODE edges without zips, got %+v", zips)
	}
	cities := edgesOf(t, tables, model.EdgeInCity)
	if len(cities) != 1 || cities[0].FromID != "nb9" || cities[0].ToID != "Portland_OR" {
		t.Errorf("expected zip-less neighborhood linked to its city, got %+v", cities)
	}
	states := edgesOf(t, tables, model.EdgeInState)
	if len(states) != 1 || states[0].FromID != "Portland_OR" || states[0].ToID != "OR" {
		t.Errorf("expected city linked to state without county data, got %+v", states)
	}
	if counties := edgesOf(t, tables, model.EdgeInCounty); len(counties) != 0 {
		t.Errorf("expected no IN_COUNTY edges without a locations reference, got %+v", counties)
	}
}

func TestRun_SimilarToThresholdAndCanonicalDirection(t *testing.T) {
	s := openSeeded(t)
	tables, err := NewBuilder(s, similarityConfig()).Run(context.Background(), testDocs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	similar := edgesOf(t, tables, model.EdgeSimilarTo)
	if len(similar) != 1 {
		t.Fatalf("expected single canonical SIMILAR_TO edge, got %d", len(similar))
	}
	e := similar[0]
	if e.FromID != "p1" || e.ToID != "p2" {
		t.Errorf("expected canonical p1->p2, got %s->%s", e.FromID, e.ToID)
	}
	if e.Weight < 0.999 {
		t.Errorf("identical vectors must score ~1, got %v", e.Weight)
	}
	if !e.Undirected {
		t.Error("SIMILAR_TO must be flagged undirected")
	}
}

func TestRun_SimilarToRespectsScope(t *testing.T) {
	s := openSeeded(t)
	docs := testDocs()
	docs.PropertyNeighborhood["p2"] = "nb2" // different neighborhood, out of scope
	tables, err := NewBuilder(s, similarityConfig()).Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if similar := edgesOf(t, tables, model.EdgeSimilarTo); len(similar) != 0 {
		t.Errorf("expected no cross-neighborhood similarity, got %+v", similar)
	}
}

func TestRun_DescribesConfidenceFloorAndUnknownPages(t *testing.T) {
	s := openSeeded(t)
	tables, err := NewBuilder(s, similarityConfig()).Run(context.Background(), testDocs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	describes := edgesOf(t, tables, model.EdgeDescribes)
	// 0.9 passes; 0.2 is below the floor; 0.8 references a page not loaded.
	if len(describes) != 1 {
		t.Fatalf("expected 1 DESCRIBES edge, got %d: %+v", len(describes), describes)
	}
	if describes[0].FromID != "42" || describes[0].ToID != "nb1" {
		t.Errorf("unexpected edge %s->%s", describes[0].FromID, describes[0].ToID)
	}
	if describes[0].Weight != 0.9 {
		t.Errorf("expected confidence carried as weight, got %v", describes[0].Weight)
	}
}

func TestRun_Idempotent(t *testing.T) {
	s := openSeeded(t)
	builder := NewBuilder(s, similarityConfig())
	first, err := builder.Run(context.Background(), testDocs())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := builder.Run(context.Background(), testDocs())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	count := func(tables []model.EdgeTable) int {
		n := 0
		for _, table := range tables {
			n += len(table.Edges)
		}
		return n
	}
	if count(first) != count(second) {
		t.Errorf("edge set not idempotent: %d then %d", count(first), count(second))
	}
}

func TestCosine_Basics(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	score, err := cosine(a, b)
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	if score != 0 {
		t.Errorf("orthogonal vectors must score 0, got %v", score)
	}
	if _, err := cosine(a, []float32{1}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}
