package model

// Edge is one typed relationship row destined for the graph store.
// Weight is meaningful only for weighted kinds (SIMILAR_TO, DESCRIBES);
// it is zero otherwise. Undirected edges are stored in one canonical
// direction (FromID < ToID) and materialized both ways by destinations
// whose model requires it.
type Edge struct {
	FromID     string   `db:"from_id" json:"from_id"`
	ToID       string   `db:"to_id" json:"to_id"`
	Kind       EdgeKind `db:"type" json:"type"`
	Weight     float64  `db:"weight" json:"weight,omitempty"`
	Undirected bool     `db:"undirected" json:"undirected,omitempty"`
}

// EdgeTable groups the edges of one kind, already deduplicated under
// (from_id, to_id, type) set semantics.
type EdgeTable struct {
	Kind  EdgeKind
	Edges []Edge
}
