package silver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nucleus/homegraph/internal/engine"
	"github.com/nucleus/homegraph/internal/model"
)

func seedBronze(t *testing.T, s *engine.Session, table string, records ...any) {
	t.Helper()
	ctx := context.Background()
	var rows []any
	for i, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("encode record: %v", err)
		}
		rows = append(rows, bronzeRow{
			BronzeID:   fmt.Sprintf("b%03d", i),
			SourceFile: "test.json",
			Raw:        string(raw),
		})
	}
	insert := fmt.Sprintf("INSERT INTO %s (bronze_id, source_file, raw) VALUES (:bronze_id, :source_file, :raw)", table)
	if err := s.InsertBatch(ctx, insert, rows); err != nil {
		t.Fatalf("seed %s: %v", table, err)
	}
}

func openSession(t *testing.T) *engine.Session {
	t.Helper()
	s, err := engine.Open(context.Background())
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTransformProperty_FlattensAndNormalizes(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	seedBronze(t, s, "bronze_properties", model.PropertyRecord{
		ListingID:      "prop-1",
		NeighborhoodID: "nb-1",
		Address: model.Address{
			Street:      "123 Oak St",
			City:        "SF",
			State:       "California",
			ZipCode:     "94110-1234",
			Coordinates: &model.LatLong{Latitude: 37.75, Longitude: -122.42},
		},
		Price:        600000,
		Bedrooms:     3,
		Bathrooms:    2,
		SquareFeet:   1500,
		PropertyType: "Single Family",
		Features:     []string{"Pool", "pool", "Garage"},
		Description:  "charming",
	})

	stats := &Stats{}
	if err := NewTransformer(s).TransformProperty(ctx, stats); err != nil {
		t.Fatalf("transform: %v", err)
	}
	if stats.Properties != 1 || stats.Quarantined != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	var row model.SilverProperty
	if err := s.DB().GetContext(ctx, &row, "SELECT * FROM silver_properties WHERE listing_id = 'prop-1'"); err != nil {
		t.Fatalf("read silver row: %v", err)
	}
	if row.AddressCity != "SF" {
		t.Errorf("raw city must be preserved, got %q", row.AddressCity)
	}
	if row.CityNormalized != "San Francisco" {
		t.Errorf("expected normalized city San Francisco, got %q", row.CityNormalized)
	}
	if row.StateNormalized != "CA" {
		t.Errorf("expected normalized state CA, got %q", row.StateNormalized)
	}
	if row.AddressZip != "94110" {
		t.Errorf("expected truncated zip 94110, got %q", row.AddressZip)
	}
	if row.PriceBucket != "500k_750k" {
		t.Errorf("expected bucket 500k_750k for 600000, got %q", row.PriceBucket)
	}
	if row.PropertyType != "single_family" {
		t.Errorf("expected single_family, got %q", row.PropertyType)
	}
	if row.FeaturesJSON != `["garage","pool"]` {
		t.Errorf("expected normalized features, got %s", row.FeaturesJSON)
	}
	if !row.HasCoordinates {
		t.Error("expected coordinates flag set")
	}
	if row.GraphNodeID != "property:prop-1" {
		t.Errorf("unexpected graph node id %q", row.GraphNodeID)
	}
}

func TestTransformProperty_QuarantinesBadRows(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	seedBronze(t, s, "bronze_properties",
		model.PropertyRecord{ListingID: "", Price: 100},
		model.PropertyRecord{ListingID: "prop-neg", Price: -5},
		model.PropertyRecord{ListingID: "prop-ok", Price: 100000},
	)

	stats := &Stats{}
	if err := NewTransformer(s).TransformProperty(ctx, stats); err != nil {
		t.Fatalf("transform: %v", err)
	}
	if stats.Properties != 1 {
		t.Errorf("expected 1 surviving property, got %d", stats.Properties)
	}
	if stats.Quarantined != 2 {
		t.Errorf("expected 2 quarantined rows, got %d", stats.Quarantined)
	}
	n, err := s.TableCount(ctx, "bronze_quarantine")
	if err != nil {
		t.Fatalf("count quarantine: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 quarantine rows, got %d", n)
	}
}

func TestRun_DropsUnresolvedNeighborhoodRefs(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	seedBronze(t, s, "bronze_neighborhoods", model.NeighborhoodRecord{
		NeighborhoodID: "nb-1", Name: "Mission", City: "SF", State: "CA",
	})
	seedBronze(t, s, "bronze_properties",
		model.PropertyRecord{ListingID: "p1", NeighborhoodID: "nb-1", Price: 1},
		model.PropertyRecord{ListingID: "p2", NeighborhoodID: "nb-missing", Price: 1},
	)

	stats, err := NewTransformer(s).Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.DroppedRefs != 1 {
		t.Errorf("expected 1 dropped ref, got %d", stats.DroppedRefs)
	}
	var nb string
	if err := s.DB().GetContext(ctx, &nb, "SELECT neighborhood_id FROM silver_properties WHERE listing_id = 'p2'"); err != nil {
		t.Fatalf("read property: %v", err)
	}
	if nb != "" {
		t.Errorf("expected cleared reference, got %q", nb)
	}
}

func TestTransformWikipedia_TruncatesLongSummary(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	long := make([]byte, LongSummaryHardCap+100)
	for i := range long {
		long[i] = 'x'
	}
	seedBronze(t, s, "bronze_wikipedia", model.WikipediaRecord{
		PageID: 42, Title: "Mission District", LongSummary: string(long),
	})

	stats := &Stats{}
	if err := NewTransformer(s).TransformWikipedia(ctx, stats); err != nil {
		t.Fatalf("transform: %v", err)
	}
	var row model.SilverWikipedia
	if err := s.DB().GetContext(ctx, &row, "SELECT * FROM silver_wikipedia WHERE page_id = 42"); err != nil {
		t.Fatalf("read row: %v", err)
	}
	if len(row.LongSummary) != LongSummaryHardCap {
		t.Errorf("expected summary capped at %d, got %d", LongSummaryHardCap, len(row.LongSummary))
	}
	if !row.Truncated {
		t.Error("expected truncated flag set")
	}
}

func TestTransformWikipedia_TruncatesOnRuneBoundary(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	long := strings.Repeat("é", LongSummaryHardCap+50)
	seedBronze(t, s, "bronze_wikipedia", model.WikipediaRecord{
		PageID: 43, Title: "Café Culture", LongSummary: long,
	})

	stats := &Stats{}
	if err := NewTransformer(s).TransformWikipedia(ctx, stats); err != nil {
		t.Fatalf("transform: %v", err)
	}
	var row model.SilverWikipedia
	if err := s.DB().GetContext(ctx, &row, "SELECT * FROM silver_wikipedia WHERE page_id = 43"); err != nil {
		t.Fatalf("read row: %v", err)
	}
	if !utf8.ValidString(row.LongSummary) {
		t.Error("truncated summary must remain valid UTF-8")
	}
	if got := utf8.RuneCountInString(row.LongSummary); got != LongSummaryHardCap {
		t.Errorf("expected %d characters, got %d", LongSummaryHardCap, got)
	}
	if !row.Truncated {
		t.Error("expected truncated flag set")
	}
}

func TestValidCorrelations_FiltersOutOfRange(t *testing.T) {
	in := []model.WikipediaCorrelation{
		{PageID: 1, Confidence: 0.9},
		{PageID: 0, Confidence: 0.9},
		{PageID: 2, Confidence: 1.5},
		{PageID: 3, Confidence: -0.1},
		{PageID: 4, Confidence: 0},
	}
	out := validCorrelations(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 valid correlations, got %d", len(out))
	}
	if out[0].PageID != 1 || out[1].PageID != 4 {
		t.Errorf("unexpected survivors: %+v", out)
	}
}
