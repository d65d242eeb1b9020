package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEntityWriteOrder_GeographyFirst(t *testing.T) {
	index := make(map[EntityKind]int, len(EntityWriteOrder))
	for i, kind := range EntityWriteOrder {
		index[kind] = i
	}
	if len(index) != 11 {
		t.Fatalf("expected 11 entity kinds, got %d", len(index))
	}
	if index[KindState] > index[KindCity] || index[KindCity] > index[KindProperty] {
		t.Error("geographic hierarchy must precede primary entities")
	}
	if index[KindNeighborhood] > index[KindProperty] {
		t.Error("neighborhoods must be written before properties")
	}
}

func TestEdgeKind_Endpoints(t *testing.T) {
	cases := map[EdgeKind][]EdgeEndpoints{
		EdgeLocatedIn:    {{KindProperty, KindNeighborhood}},
		EdgeInZipCode:    {{KindProperty, KindZipCode}, {KindNeighborhood, KindZipCode}},
		EdgeInCity:       {{KindZipCode, KindCity}, {KindNeighborhood, KindCity}},
		EdgeInCounty:     {{KindCity, KindCounty}},
		EdgeInState:      {{KindCounty, KindState}, {KindCity, KindState}},
		EdgeNear:         {{KindNeighborhood, KindNeighborhood}},
		EdgeHasFeature:   {{KindProperty, KindFeature}},
		EdgeOfType:       {{KindProperty, KindPropertyType}},
		EdgeInPriceRange: {{KindProperty, KindPriceRange}},
		EdgeSimilarTo:    {{KindProperty, KindProperty}},
		EdgeDescribes:    {{KindWikipediaArticle, KindNeighborhood}},
	}
	for kind, want := range cases {
		if diff := cmp.Diff(want, kind.Endpoints()); diff != "" {
			t.Errorf("%s endpoints mismatch (-want +got):\n%s", kind, diff)
		}
	}
}

func TestEdgeKind_Undirected(t *testing.T) {
	for _, kind := range EdgeWriteOrder {
		want := kind == EdgeNear || kind == EdgeSimilarTo
		if kind.Undirected() != want {
			t.Errorf("%s: expected undirected=%v", kind, want)
		}
	}
}

func TestGeoID_SpacesToUnderscores(t *testing.T) {
	if got := GeoID("San Francisco", "ca"); got != "San_Francisco_CA" {
		t.Errorf("expected San_Francisco_CA, got %q", got)
	}
	if got := GeoID(" New York ", "NY"); got != "New_York_NY" {
		t.Errorf("expected New_York_NY, got %q", got)
	}
}

func TestGraphNodeID_Format(t *testing.T) {
	if got := GraphNodeID(KindProperty, "p1"); got != "property:p1" {
		t.Errorf("expected property:p1, got %q", got)
	}
}
