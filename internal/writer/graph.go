package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/fault"
	"github.com/nucleus/homegraph/internal/model"
)

// graphBatchSize bounds the UNWIND parameter lists sent per transaction.
const graphBatchSize = 500

// GraphWriter projects the gold dataset into the graph store. Nodes merge
// on their id property per label, relationships merge on their endpoints,
// so reruns converge without duplicate nodes or edges. Undirected kinds are
// stored once in canonical direction with an undirected flag.
type GraphWriter struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
}

// NewGraphWriter builds the graph destination. The timeout bounds each
// write transaction.
func NewGraphWriter(cfg config.GraphDestination, timeout time.Duration) (*GraphWriter, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fault.New(fault.CodeDestination, fmt.Errorf("graph driver: %w", err))
	}
	return &GraphWriter{driver: driver, database: cfg.Database, timeout: timeout}, nil
}

// Name implements Destination.
func (w *GraphWriter) Name() string { return config.DestinationGraph }

// Close releases the driver.
func (w *GraphWriter) Close(ctx context.Context) error {
	return w.driver.Close(ctx)
}

// Write implements Destination. Constraints are created first so node
// merges are unique; nodes go in hierarchy order so every edge merge finds
// both endpoints.
func (w *GraphWriter) Write(ctx context.Context, tables *model.GoldTables) (*Result, error) {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.database,
	})
	defer func() { _ = session.Close(ctx) }()

	if err := w.ensureSchema(ctx, session, tables); err != nil {
		return nil, err
	}

	res := &Result{Destination: w.Name()}
	for _, kind := range model.EntityWriteOrder {
		if err := ctx.Err(); err != nil {
			return nil, fault.New(fault.CodeCancelled, err)
		}
		rows := nodeRows(kind, tables)
		if len(rows) == 0 {
			continue
		}
		if err := w.mergeNodes(ctx, session, kind.Label(), rows); err != nil {
			return nil, err
		}
		res.Nodes += int64(len(rows))
	}
	for _, table := range tables.Edges {
		if err := ctx.Err(); err != nil {
			return nil, fault.New(fault.CodeCancelled, err)
		}
		if len(table.Edges) == 0 {
			continue
		}
		if err := w.mergeEdges(ctx, session, table); err != nil {
			return nil, err
		}
		res.Edges += int64(len(table.Edges))
	}
	return res, nil
}

// ensureSchema creates the uniqueness constraints, the embedding vector
// indexes and the query indexes. All statements are IF NOT EXISTS so reruns
// are no-ops.
func (w *GraphWriter) ensureSchema(ctx context.Context, session neo4j.SessionWithContext, tables *model.GoldTables) error {
	statements := make([]string, 0, len(model.EntityWriteOrder)+5)
	for _, kind := range model.EntityWriteOrder {
		statements = append(statements, fmt.Sprintf(
			"CREATE CONSTRAINT %s_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
			string(kind), kind.Label()))
	}
	if len(tables.Properties) > 0 {
		if dim := len(tables.Properties[0].Embedding); dim > 0 {
			statements = append(statements, vectorIndex("property_embedding", "Property", dim))
		}
	}
	if len(tables.Neighborhoods) > 0 {
		if dim := len(tables.Neighborhoods[0].Embedding); dim > 0 {
			statements = append(statements, vectorIndex("neighborhood_embedding", "Neighborhood", dim))
		}
	}
	statements = append(statements,
		"CREATE INDEX property_price IF NOT EXISTS FOR (p:Property) ON (p.price)",
		"CREATE INDEX property_price_bucket IF NOT EXISTS FOR (p:Property) ON (p.price_bucket)",
		"CREATE INDEX neighborhood_walkability IF NOT EXISTS FOR (n:Neighborhood) ON (n.walkability_score)")

	for _, stmt := range statements {
		if err := w.runBatch(ctx, session, stmt, nil); err != nil {
			return fault.Transient(fault.CodeDestination, fmt.Errorf("graph schema: %w", err))
		}
	}
	return nil
}

// runBatch executes one write transaction under the per-batch timeout.
func (w *GraphWriter) runBatch(ctx context.Context, session neo4j.SessionWithContext, query string, params map[string]any) error {
	batchCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	_, err := session.ExecuteWrite(batchCtx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(batchCtx, query, params)
		if err != nil {
			return nil, err
		}
		return nil, result.Err()
	})
	return err
}

// mergeNodes upserts one label's nodes in UNWIND batches.
func (w *GraphWriter) mergeNodes(ctx context.Context, session neo4j.SessionWithContext, label string, rows []map[string]any) error {
	query := fmt.Sprintf(
		"UNWIND $rows AS row MERGE (n:%s {id: row.id}) SET n += row.props", label)
	for start := 0; start < len(rows); start += graphBatchSize {
		end := start + graphBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := w.runBatch(ctx, session, query, map[string]any{"rows": rows[start:end]}); err != nil {
			return fault.Transient(fault.CodeDestination, fmt.Errorf("merge %s nodes: %w", label, err))
		}
	}
	return nil
}

// mergeEdges upserts one edge kind. The relationship type and endpoint
// labels come from the closed edge enum, never from data. Kinds with more
// than one endpoint pair run the merge once per pair; rows whose from node
// carries the other label match nothing and no-op.
func (w *GraphWriter) mergeEdges(ctx context.Context, session neo4j.SessionWithContext, table model.EdgeTable) error {
	rows := make([]map[string]any, len(table.Edges))
	for i, e := range table.Edges {
		rows[i] = map[string]any{
			"from_id":    e.FromID,
			"to_id":      e.ToID,
			"weight":     e.Weight,
			"undirected": e.Undirected,
		}
	}
	for _, ep := range table.Kind.Endpoints() {
		query := fmt.Sprintf(
			"UNWIND $rows AS row "+
				"MATCH (a:%s {id: row.from_id}) "+
				"MATCH (b:%s {id: row.to_id}) "+
				"MERGE (a)-[r:%s]->(b) "+
				"SET r.weight = row.weight, r.undirected = row.undirected",
			ep.From.Label(), ep.To.Label(), string(table.Kind))
		for start := 0; start < len(rows); start += graphBatchSize {
			end := start + graphBatchSize
			if end > len(rows) {
				end = len(rows)
			}
			if err := w.runBatch(ctx, session, query, map[string]any{"rows": rows[start:end]}); err != nil {
				return fault.Transient(fault.CodeDestination, fmt.Errorf("merge %s edges: %w", table.Kind, err))
			}
		}
	}
	return nil
}

// nodeRows renders one entity kind as merge rows: the id plus the graph
// property projection. Property and Neighborhood apply the excluded-fields
// rule through their GraphProps projections.
func nodeRows(kind model.EntityKind, tables *model.GoldTables) []map[string]any {
	switch kind {
	case model.KindState:
		rows := make([]map[string]any, len(tables.Entities.States))
		for i, n := range tables.Entities.States {
			rows[i] = mergeRow(n.ID, map[string]any{"name": n.Name})
		}
		return rows
	case model.KindCounty:
		rows := make([]map[string]any, len(tables.Entities.Counties))
		for i, n := range tables.Entities.Counties {
			rows[i] = mergeRow(n.ID, map[string]any{"name": n.Name, "state": n.State})
		}
		return rows
	case model.KindCity:
		rows := make([]map[string]any, len(tables.Entities.Cities))
		for i, n := range tables.Entities.Cities {
			rows[i] = mergeRow(n.ID, map[string]any{"name": n.Name, "state": n.State})
		}
		return rows
	case model.KindZipCode:
		rows := make([]map[string]any, len(tables.Entities.ZipCodes))
		for i, n := range tables.Entities.ZipCodes {
			rows[i] = mergeRow(n.ID, map[string]any{"city": n.City, "state": n.State})
		}
		return rows
	case model.KindPropertyType:
		rows := make([]map[string]any, len(tables.Entities.PropertyTypes))
		for i, n := range tables.Entities.PropertyTypes {
			rows[i] = mergeRow(n.ID, map[string]any{"name": n.Name, "count": n.Count})
		}
		return rows
	case model.KindFeature:
		rows := make([]map[string]any, len(tables.Entities.Features))
		for i, n := range tables.Entities.Features {
			rows[i] = mergeRow(n.ID, map[string]any{"name": n.Name, "count": n.Count})
		}
		return rows
	case model.KindPriceRange:
		rows := make([]map[string]any, len(tables.Entities.PriceRanges))
		for i, n := range tables.Entities.PriceRanges {
			rows[i] = mergeRow(n.ID, map[string]any{
				"label":     n.Label,
				"min_price": n.MinPrice,
				"max_price": n.MaxPrice,
				"count":     n.Count,
			})
		}
		return rows
	case model.KindNeighborhood:
		rows := make([]map[string]any, len(tables.Neighborhoods))
		for i := range tables.Neighborhoods {
			doc := &tables.Neighborhoods[i]
			rows[i] = mergeRow(doc.NeighborhoodID, doc.GraphProps())
		}
		return rows
	case model.KindProperty:
		rows := make([]map[string]any, len(tables.Properties))
		for i := range tables.Properties {
			doc := &tables.Properties[i]
			rows[i] = mergeRow(doc.ListingID, doc.GraphProps())
		}
		return rows
	case model.KindWikipediaArticle:
		rows := make([]map[string]any, len(tables.Wikipedia))
		for i := range tables.Wikipedia {
			doc := &tables.Wikipedia[i]
			embedding := make([]float64, len(doc.Embedding))
			for j, v := range doc.Embedding {
				embedding[j] = float64(v)
			}
			rows[i] = mergeRow(fmt.Sprintf("%d", doc.PageID), map[string]any{
				"page_id":   doc.PageID,
				"title":     doc.Title,
				"topic_tag": doc.TopicTag,
				"embedding": embedding,
			})
		}
		return rows
	case model.KindTopicCluster:
		rows := make([]map[string]any, len(tables.Entities.TopicClusters))
		for i, n := range tables.Entities.TopicClusters {
			rows[i] = mergeRow(n.ID, map[string]any{"label": n.Label, "count": n.Count})
		}
		return rows
	}
	return nil
}

func mergeRow(id string, props map[string]any) map[string]any {
	return map[string]any{"id": id, "props": props}
}

func vectorIndex(name, label string, dim int) string {
	return fmt.Sprintf(
		"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.embedding) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
		name, label, dim)
}
