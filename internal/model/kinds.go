// Package model defines the entities, documents and edge tables that flow
// between the pipeline tiers and out to the destinations.
package model

// EntityKind is the closed set of node kinds the pipeline produces.
// Writers dispatch on this statically; there is no runtime type inspection.
type EntityKind string

const (
	KindState            EntityKind = "state"
	KindCounty           EntityKind = "county"
	KindCity             EntityKind = "city"
	KindZipCode          EntityKind = "zip_code"
	KindPropertyType     EntityKind = "property_type"
	KindFeature          EntityKind = "feature"
	KindPriceRange       EntityKind = "price_range"
	KindNeighborhood     EntityKind = "neighborhood"
	KindProperty         EntityKind = "property"
	KindWikipediaArticle EntityKind = "wikipedia_article"
	KindTopicCluster     EntityKind = "topic_cluster"
)

// EntityWriteOrder is the fixed per-destination write order: geographic
// hierarchy, then classification, then primary entities, then derived.
// Edges are always written after every kind listed here.
var EntityWriteOrder = []EntityKind{
	KindState,
	KindCounty,
	KindCity,
	KindZipCode,
	KindPropertyType,
	KindFeature,
	KindPriceRange,
	KindNeighborhood,
	KindProperty,
	KindWikipediaArticle,
	KindTopicCluster,
}

// Label returns the graph label for the kind (Property, ZipCode, ...).
func (k EntityKind) Label() string {
	switch k {
	case KindState:
		return "State"
	case KindCounty:
		return "County"
	case KindCity:
		return "City"
	case KindZipCode:
		return "ZipCode"
	case KindPropertyType:
		return "PropertyType"
	case KindFeature:
		return "Feature"
	case KindPriceRange:
		return "PriceRange"
	case KindNeighborhood:
		return "Neighborhood"
	case KindProperty:
		return "Property"
	case KindWikipediaArticle:
		return "WikipediaArticle"
	case KindTopicCluster:
		return "TopicCluster"
	}
	return string(k)
}

// EdgeKind is the closed set of relationship types.
type EdgeKind string

const (
	EdgeLocatedIn    EdgeKind = "LOCATED_IN"
	EdgeInZipCode    EdgeKind = "IN_ZIP_CODE"
	EdgeInCity       EdgeKind = "IN_CITY"
	EdgeInCounty     EdgeKind = "IN_COUNTY"
	EdgeInState      EdgeKind = "IN_STATE"
	EdgeNear         EdgeKind = "NEAR"
	EdgeHasFeature   EdgeKind = "HAS_FEATURE"
	EdgeOfType       EdgeKind = "OF_TYPE"
	EdgeInPriceRange EdgeKind = "IN_PRICE_RANGE"
	EdgeSimilarTo    EdgeKind = "SIMILAR_TO"
	EdgeDescribes    EdgeKind = "DESCRIBES"
)

// EdgeWriteOrder fixes the order edge tables reach a destination, after all
// referenced nodes exist.
var EdgeWriteOrder = []EdgeKind{
	EdgeLocatedIn,
	EdgeInZipCode,
	EdgeInCity,
	EdgeInCounty,
	EdgeInState,
	EdgeNear,
	EdgeHasFeature,
	EdgeOfType,
	EdgeInPriceRange,
	EdgeSimilarTo,
	EdgeDescribes,
}

// EdgeEndpoints is one (from, to) node kind pair an edge kind can connect.
type EdgeEndpoints struct {
	From EntityKind
	To   EntityKind
}

// Endpoints returns the node kind pairs an edge kind connects. Most kinds
// have exactly one pair; the geographic kinds with fallback sources carry a
// second pair. NEAR and SIMILAR_TO connect a kind to itself and are
// undirected.
func (e EdgeKind) Endpoints() []EdgeEndpoints {
	switch e {
	case EdgeLocatedIn:
		return []EdgeEndpoints{{KindProperty, KindNeighborhood}}
	case EdgeInZipCode:
		return []EdgeEndpoints{{KindProperty, KindZipCode}, {KindNeighborhood, KindZipCode}}
	case EdgeInCity:
		return []EdgeEndpoints{{KindZipCode, KindCity}, {KindNeighborhood, KindCity}}
	case EdgeInCounty:
		return []EdgeEndpoints{{KindCity, KindCounty}}
	case EdgeInState:
		return []EdgeEndpoints{{KindCounty, KindState}, {KindCity, KindState}}
	case EdgeNear:
		return []EdgeEndpoints{{KindNeighborhood, KindNeighborhood}}
	case EdgeHasFeature:
		return []EdgeEndpoints{{KindProperty, KindFeature}}
	case EdgeOfType:
		return []EdgeEndpoints{{KindProperty, KindPropertyType}}
	case EdgeInPriceRange:
		return []EdgeEndpoints{{KindProperty, KindPriceRange}}
	case EdgeSimilarTo:
		return []EdgeEndpoints{{KindProperty, KindProperty}}
	case EdgeDescribes:
		return []EdgeEndpoints{{KindWikipediaArticle, KindNeighborhood}}
	}
	return nil
}

// Undirected reports whether the edge kind is stored in one canonical
// direction and materialized both ways by graph destinations.
func (e EdgeKind) Undirected() bool {
	return e == EdgeNear || e == EdgeSimilarTo
}

// GraphNodeID derives the silver-tier surrogate node id: {label}:{primary}.
func GraphNodeID(kind EntityKind, primaryID string) string {
	return string(kind) + ":" + primaryID
}
