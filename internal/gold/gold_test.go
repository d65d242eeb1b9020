package gold

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/embed"
	"github.com/nucleus/homegraph/internal/engine"
	"github.com/nucleus/homegraph/internal/model"
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
		`INSERT INTO silver_properties (bronze_id, listing_id, neighborhood_id, graph_node_id,
			address_street, address_city, address_state, address_zip, city_normalized, state_normalized,
			latitude, longitude, has_coordinates, price, price_bucket, bedrooms, bathrooms,
			square_feet, property_type, features, description)
		 VALUES ('b1', 'p1', 'nb1', 'property:p1', '123 Oak St', 'SF', 'CA', '94110',
			'San Francisco', 'CA', 37.75, -122.42, 1, 600000, '500k_750k', 3, 2, 1500,
			'condo', '["pool"]', 'charming home')`,
		`INSERT INTO silver_properties (bronze_id, listing_id, graph_node_id, address_city,
			address_state, city_normalized, state_normalized, price, price_bucket, features)
		 VALUES ('b2', 'p2', 'property:p2', 'Oakland', 'CA', 'Oakland', 'CA', 100000,
			'under_250k', '[]')`,
		`INSERT INTO silver_neighborhoods (bronze_id, neighborhood_id, graph_node_id, name,
			city, state, city_normalized, state_normalized, description, lifestyle_tags,
			wikipedia_correlations)
		 VALUES ('b3', 'nb1', 'neighborhood:nb1', 'Mission', 'SF', 'CA', 'San Francisco', 'CA',
			'vibrant area', '["nightlife"]', '[{"page_id":42,"type":"primary","confidence":0.9}]')`,
		`INSERT INTO silver_wikipedia (bronze_id, page_id, graph_node_id, title, long_summary)
		 VALUES ('b4', 42, 'wikipedia_article:42', 'Mission District', 'The Mission District is...')`,
	}
	for _, stmt := range seed {
		if _, err := s.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return s
}

func newBatcher(t *testing.T, dim int) *embed.Batcher {
	t.Helper()
	cfg := config.Embedding{Provider: config.ProviderMock, Dimension: dim, BatchSize: 8, MaxRetries: 1}
	provider, err := embed.New(cfg, 30*time.Second)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	return embed.NewBatcher(provider, cfg)
}

func TestRun_ComposesAllDocumentTypes(t *testing.T) {
	s := openSeeded(t)
	docs, err := NewBuilder(s, newBatcher(t, 32)).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(docs.Properties) != 2 || len(docs.Neighborhoods) != 1 || len(docs.Wikipedia) != 1 {
		t.Fatalf("unexpected doc counts: %d/%d/%d",
			len(docs.Properties), len(docs.Neighborhoods), len(docs.Wikipedia))
	}
	for _, p := range docs.Properties {
		if len(p.Embedding) != 32 {
			t.Errorf("property %s: embedding dim %d", p.ListingID, len(p.Embedding))
		}
	}
	if len(docs.Wikipedia[0].Embedding) != 32 {
		t.Error("wikipedia doc missing embedding")
	}
}

func TestRun_PreservesRawCityInDocuments(t *testing.T) {
	s := openSeeded(t)
	docs, err := NewBuilder(s, newBatcher(t, 16)).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if docs.Properties[0].City != "SF" {
		t.Errorf("document city must stay raw, got %q", docs.Properties[0].City)
	}
	if docs.Properties[0].PriceBucket != "500k_750k" {
		t.Errorf("unexpected bucket %q", docs.Properties[0].PriceBucket)
	}
}

func TestRun_LocationOnlyWithCoordinates(t *testing.T) {
	s := openSeeded(t)
	docs, err := NewBuilder(s, newBatcher(t, 16)).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if docs.Properties[0].Location == nil {
		t.Error("p1 has coordinates, expected location")
	} else if docs.Properties[0].Location.Lat != 37.75 {
		t.Errorf("unexpected latitude %v", docs.Properties[0].Location.Lat)
	}
	if docs.Properties[1].Location != nil {
		t.Error("p2 has no coordinates, expected nil location")
	}
}

func TestRun_VectorLookupForSimilarity(t *testing.T) {
	s := openSeeded(t)
	docs, err := NewBuilder(s, newBatcher(t, 16)).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := docs.PropertyVectors["p1"]; !ok {
		t.Error("missing vector for p1")
	}
	if nb := docs.PropertyNeighborhood["p1"]; nb != "nb1" {
		t.Errorf("expected p1 scoped to nb1, got %q", nb)
	}
	if _, ok := docs.PropertyNeighborhood["p2"]; ok {
		t.Error("p2 has no neighborhood, must not appear in scope map")
	}
}

func TestPropertyText_SelectionRule(t *testing.T) {
	row := &model.SilverProperty{
		AddressStreet:   "123 Oak St",
		CityNormalized:  "San Francisco",
		StateNormalized: "CA",
		AddressZip:      "94110",
		Price:           600000,
		Bedrooms:        3,
		Bathrooms:       2,
		SquareFeet:      1500,
		Description:     "charming home",
	}
	text := propertyText(row, []string{"garage", "pool"})
	for _, want := range []string{"123 Oak St", "price 600000", "3 bedrooms", "2.0 bathrooms", "1500 square feet", "charming home", "garage, pool"} {
		if !strings.Contains(text, want) {
			t.Errorf("property text missing %q: %s", want, text)
		}
	}
}

func TestWikipediaText_UsesLongSummaryVerbatim(t *testing.T) {
	s := openSeeded(t)
	b := newBatcher(t, 16)
	docs, err := NewBuilder(s, b).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// The article vector must equal a direct embedding of the long summary.
	direct, err := newBatcher(t, 16).EmbedAll(context.Background(), []string{docs.Wikipedia[0].LongSummary})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range direct[0] {
		if docs.Wikipedia[0].Embedding[i] != direct[0][i] {
			t.Fatal("wikipedia embedding must be the verbatim long summary embedding")
		}
	}
}
