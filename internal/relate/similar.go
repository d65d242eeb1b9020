package relate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/nucleus/homegraph/internal/fault"
	"github.com/nucleus/homegraph/internal/gold"
	"github.com/nucleus/homegraph/internal/model"
)

// emitSimilarTo computes cosine similarity between property embeddings,
// scoped to properties sharing a resolved neighborhood. Each property keeps
// its top-K neighbors at or above the threshold; ties on score break on the
// lexicographically smaller candidate id. Edges are stored once in canonical
// direction (from_id < to_id) and flagged undirected.
func (b *Builder) emitSimilarTo(ctx context.Context, docs *gold.Docs) error {
	byNeighborhood := make(map[string][]string)
	for id, nb := range docs.PropertyNeighborhood {
		byNeighborhood[nb] = append(byNeighborhood[nb], id)
	}

	type scored struct {
		id    string
		score float64
	}
	type edgeRow struct {
		FromID string  `db:"from_id"`
		ToID   string  `db:"to_id"`
		Type   string  `db:"type"`
		Weight float64 `db:"weight"`
	}
	var rows []any

	for _, members := range byNeighborhood {
		if err := ctx.Err(); err != nil {
			return fault.New(fault.CodeCancelled, err)
		}
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		for _, from := range members {
			fromVec := docs.PropertyVectors[from]
			var candidates []scored
			for _, to := range members {
				if to == from {
					continue
				}
				score, err := cosine(fromVec, docs.PropertyVectors[to])
				if err != nil {
					return fault.New(fault.CodeEmbedding,
						fmt.Errorf("similarity %s vs %s: %w", from, to, err))
				}
				if score >= b.cfg.Threshold {
					candidates = append(candidates, scored{id: to, score: score})
				}
			}
			sort.Slice(candidates, func(i, j int) bool {
				if candidates[i].score != candidates[j].score {
					return candidates[i].score > candidates[j].score
				}
				return candidates[i].id < candidates[j].id
			})
			if len(candidates) > b.cfg.TopK {
				candidates = candidates[:b.cfg.TopK]
			}
			for _, c := range candidates {
				lo, hi := from, c.id
				if hi < lo {
					lo, hi = hi, lo
				}
				rows = append(rows, edgeRow{
					FromID: lo,
					ToID:   hi,
					Type:   string(model.EdgeSimilarTo),
					Weight: c.score,
				})
			}
		}
	}

	return b.session.InsertBatch(ctx, `
		INSERT OR IGNORE INTO gold_edges (from_id, to_id, type, weight, undirected)
		VALUES (:from_id, :to_id, :type, :weight, 1)`, rows)
}

// cosine returns the cosine similarity of two vectors of equal dimension.
func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
