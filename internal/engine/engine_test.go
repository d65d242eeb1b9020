package engine

import (
	"context"
	"testing"
)

func TestOpen_InstallsTierSchema(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer s.Close()

	tables := []string{
		"bronze_properties", "bronze_neighborhoods", "bronze_wikipedia",
		"bronze_locations", "bronze_quarantine",
		"silver_properties", "silver_neighborhoods", "silver_wikipedia",
		"silver_locations", "gold_edges",
	}
	for _, table := range tables {
		n, err := s.TableCount(ctx, table)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
		if n != 0 {
			t.Errorf("table %s not empty at open: %d rows", table, n)
		}
	}
}

func TestInsertBatch_Named(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer s.Close()

	type row struct {
		BronzeID   string `db:"bronze_id"`
		SourceFile string `db:"source_file"`
		Raw        string `db:"raw"`
	}
	rows := []any{
		row{BronzeID: "b1", SourceFile: "f", Raw: "{}"},
		row{BronzeID: "b2", SourceFile: "f", Raw: "{}"},
	}
	insert := "INSERT INTO bronze_properties (bronze_id, source_file, raw) VALUES (:bronze_id, :source_file, :raw)"
	if err := s.InsertBatch(ctx, insert, rows); err != nil {
		t.Fatalf("insert batch: %v", err)
	}
	n, err := s.TableCount(ctx, "bronze_properties")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}

func TestGoldEdges_PrimaryKeyDeduplicates(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer s.Close()

	insert := "INSERT OR IGNORE INTO gold_edges (from_id, to_id, type, weight) VALUES (?, ?, ?, ?)"
	for _, weight := range []float64{0.9, 0.5} {
		if _, err := s.DB().ExecContext(ctx, insert, "a", "b", "SIMILAR_TO", weight); err != nil {
			t.Fatalf("insert edge: %v", err)
		}
	}
	n, err := s.TableCount(ctx, "gold_edges")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected duplicate edge to be ignored, got %d rows", n)
	}
	var weight float64
	if err := s.DB().GetContext(ctx, &weight, "SELECT weight FROM gold_edges"); err != nil {
		t.Fatalf("read weight: %v", err)
	}
	if weight != 0.9 {
		t.Errorf("expected first write to win, got weight %v", weight)
	}
}
