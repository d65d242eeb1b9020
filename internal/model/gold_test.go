package model

import "testing"

func TestPropertyDoc_GraphPropsExcludesEdgeFields(t *testing.T) {
	doc := &PropertyDoc{
		ListingID:    "p1",
		City:         "SF",
		State:        "CA",
		ZipCode:      "94110",
		PropertyType: "condo",
		Price:        600000,
		PriceBucket:  "500k_750k",
	}
	props := doc.GraphProps()
	for _, excluded := range GraphProjectionExcluded {
		if _, ok := props[excluded]; ok {
			t.Errorf("graph props must not carry %q", excluded)
		}
	}
	if props["listing_id"] != "p1" {
		t.Error("primary id missing from graph props")
	}
	if props["price_bucket"] != "500k_750k" {
		t.Error("price_bucket is a node property, not an excluded field")
	}
}

func TestNeighborhoodDoc_GraphPropsExcludesGeography(t *testing.T) {
	doc := &NeighborhoodDoc{NeighborhoodID: "nb1", Name: "Mission", City: "SF", State: "CA"}
	props := doc.GraphProps()
	if _, ok := props["city"]; ok {
		t.Error("city must be an edge, not a node property")
	}
	if _, ok := props["state"]; ok {
		t.Error("state must be an edge, not a node property")
	}
	if props["name"] != "Mission" {
		t.Error("name missing from graph props")
	}
}

func TestPropertyDoc_GraphPropsOmitsEmptyOptionals(t *testing.T) {
	doc := &PropertyDoc{ListingID: "p1"}
	props := doc.GraphProps()
	for _, field := range []string{"neighborhood_id", "address_street", "year_built", "listing_date"} {
		if _, ok := props[field]; ok {
			t.Errorf("empty optional %q must be omitted", field)
		}
	}
}

func TestGoldTables_EdgeCount(t *testing.T) {
	g := &GoldTables{Edges: []EdgeTable{
		{Kind: EdgeLocatedIn, Edges: []Edge{{}, {}}},
		{Kind: EdgeNear, Edges: []Edge{{}}},
		{Kind: EdgeSimilarTo},
	}}
	if g.EdgeCount() != 3 {
		t.Errorf("expected 3 edges, got %d", g.EdgeCount())
	}
}
