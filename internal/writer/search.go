package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/fault"
	"github.com/nucleus/homegraph/internal/model"
)

// Search index names. property_relationships is created here but populated
// by the denormalization builder after all destinations finish.
const (
	IndexProperties    = "properties"
	IndexNeighborhoods = "neighborhoods"
	IndexWikipedia     = "wikipedia"
	IndexRelationships = "property_relationships"
)

// SearchWriter pushes the three document types into the search store with
// bulk indexing. Documents are indexed by primary id, so reruns overwrite
// in place.
type SearchWriter struct {
	client    *elasticsearch.Client
	batchSize int
	dimension int
	timeout   time.Duration
}

// NewSearchClient builds the search-store client from configuration.
func NewSearchClient(cfg *config.Config) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.SearchAddress()},
	}
	if cfg.Destinations.Search.Username != "" {
		esCfg.Username = cfg.Destinations.Search.Username
		esCfg.Password = cfg.Destinations.Search.Password
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fault.New(fault.CodeDestination, fmt.Errorf("search client: %w", err))
	}
	return client, nil
}

// NewSearchWriter builds the search destination.
func NewSearchWriter(cfg *config.Config) (*SearchWriter, error) {
	client, err := NewSearchClient(cfg)
	if err != nil {
		return nil, err
	}
	return &SearchWriter{
		client:    client,
		batchSize: cfg.Destinations.Search.BatchSize,
		dimension: cfg.Embedding.Dimension,
		timeout:   cfg.BatchTimeout(),
	}, nil
}

// Name implements Destination.
func (w *SearchWriter) Name() string { return config.DestinationSearch }

// Write implements Destination. Index mappings are created once; existing
// indexes are left untouched.
func (w *SearchWriter) Write(ctx context.Context, tables *model.GoldTables) (*Result, error) {
	if err := w.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	res := &Result{Destination: w.Name()}

	props := make([]bulkDoc, len(tables.Properties))
	for i := range tables.Properties {
		doc := tables.Properties[i]
		doc.SearchText = propertySearchText(&doc)
		props[i] = bulkDoc{ID: doc.ListingID, Body: doc}
	}
	n, err := w.bulkIndex(ctx, IndexProperties, props)
	if err != nil {
		return nil, err
	}
	res.Nodes += n

	nbs := make([]bulkDoc, len(tables.Neighborhoods))
	for i := range tables.Neighborhoods {
		doc := tables.Neighborhoods[i]
		doc.SearchText = neighborhoodSearchText(&doc)
		nbs[i] = bulkDoc{ID: doc.NeighborhoodID, Body: doc}
	}
	n, err = w.bulkIndex(ctx, IndexNeighborhoods, nbs)
	if err != nil {
		return nil, err
	}
	res.Nodes += n

	wikis := make([]bulkDoc, len(tables.Wikipedia))
	for i := range tables.Wikipedia {
		doc := tables.Wikipedia[i]
		doc.SearchText = wikipediaSearchText(&doc)
		wikis[i] = bulkDoc{ID: fmt.Sprintf("%d", doc.PageID), Body: doc}
	}
	n, err = w.bulkIndex(ctx, IndexWikipedia, wikis)
	if err != nil {
		return nil, err
	}
	res.Nodes += n

	return res, nil
}

type bulkDoc struct {
	ID   string
	Body any
}

// bulkIndex sends documents in fixed-size NDJSON bulk batches. Each batch
// runs under the per-batch network timeout; failures name the 1-based batch
// ordinal.
func (w *SearchWriter) bulkIndex(ctx context.Context, index string, docs []bulkDoc) (int64, error) {
	var total int64
	for start := 0; start < len(docs); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return total, fault.New(fault.CodeCancelled, err)
		}
		end := start + w.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := start/w.batchSize + 1
		var buf bytes.Buffer
		for _, doc := range docs[start:end] {
			action := map[string]any{"index": map[string]any{"_index": index, "_id": doc.ID}}
			if err := json.NewEncoder(&buf).Encode(action); err != nil {
				return total, fault.New(fault.CodeInternal, fmt.Errorf("encode bulk action: %w", err))
			}
			if err := json.NewEncoder(&buf).Encode(doc.Body); err != nil {
				return total, fault.New(fault.CodeInternal, fmt.Errorf("encode bulk document: %w", err))
			}
		}
		batchCtx, cancel := context.WithTimeout(ctx, w.timeout)
		res, err := w.client.Bulk(
			bytes.NewReader(buf.Bytes()),
			w.client.Bulk.WithContext(batchCtx),
			w.client.Bulk.WithIndex(index),
		)
		if err != nil {
			cancel()
			return total, fault.Transient(fault.CodeDestination,
				fmt.Errorf("bulk index %s batch %d: %w", index, batch, err))
		}
		if err := checkBulkResponse(res.StatusCode, res.Body, res.IsError(), index, batch); err != nil {
			_ = res.Body.Close()
			cancel()
			return total, err
		}
		_ = res.Body.Close()
		cancel()
		total += int64(end - start)
	}
	return total, nil
}

// checkBulkResponse fails when the bulk call errored or any item was
// rejected; partial acknowledgment aborts the run. The batch ordinal is
// carried into every failure so the run summary names the offending batch.
func checkBulkResponse(status int, body io.Reader, isError bool, index string, batch int) error {
	if isError {
		return fault.Newf(fault.CodeDestination, "bulk index %s batch %d: status %d", index, batch, status)
	}
	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return fault.New(fault.CodeDestination, fmt.Errorf("decode bulk response: %w", err))
	}
	if !parsed.Errors {
		return nil
	}
	for _, item := range parsed.Items {
		for _, detail := range item {
			if detail.Status >= 300 {
				return fault.Newf(fault.CodeDestination, "bulk index %s batch %d: item rejected: %s: %s",
					index, batch, detail.Error.Type, detail.Error.Reason)
			}
		}
	}
	return fault.Newf(fault.CodeDestination, "bulk index %s batch %d: unacknowledged items", index, batch)
}

// ensureIndexes creates every index with its mapping when missing.
func (w *SearchWriter) ensureIndexes(ctx context.Context) error {
	for index, mapping := range w.indexMappings() {
		res, err := w.client.Indices.Exists(
			[]string{index},
			w.client.Indices.Exists.WithContext(ctx),
		)
		if err != nil {
			return fault.Transient(fault.CodeDestination, fmt.Errorf("check index %s: %w", index, err))
		}
		exists := res.StatusCode == 200
		_ = res.Body.Close()
		if exists {
			continue
		}
		body, err := json.Marshal(mapping)
		if err != nil {
			return fault.New(fault.CodeInternal, fmt.Errorf("encode mapping %s: %w", index, err))
		}
		createRes, err := w.client.Indices.Create(
			index,
			w.client.Indices.Create.WithContext(ctx),
			w.client.Indices.Create.WithBody(strings.NewReader(string(body))),
		)
		if err != nil {
			return fault.Transient(fault.CodeDestination, fmt.Errorf("create index %s: %w", index, err))
		}
		if createRes.IsError() {
			msg := createRes.String()
			_ = createRes.Body.Close()
			return fault.Newf(fault.CodeDestination, "create index %s: %s", index, msg)
		}
		_ = createRes.Body.Close()
	}
	return nil
}

func (w *SearchWriter) indexMappings() map[string]map[string]any {
	embedding := map[string]any{
		"type": "dense_vector",
		"dims": w.dimension,
	}
	text := map[string]any{
		"type":   "text",
		"fields": map[string]any{"keyword": map[string]any{"type": "keyword"}},
	}
	keyword := map[string]any{"type": "keyword"}
	return map[string]map[string]any{
		IndexProperties: {"mappings": map[string]any{"properties": map[string]any{
			"listing_id":      keyword,
			"neighborhood_id": keyword,
			"address_street":  text,
			"city":            text,
			"state":           keyword,
			"zip_code":        keyword,
			"location":        map[string]any{"type": "geo_point"},
			"price":           map[string]any{"type": "double"},
			"price_bucket":    keyword,
			"bedrooms":        map[string]any{"type": "integer"},
			"bathrooms":       map[string]any{"type": "float"},
			"square_feet":     map[string]any{"type": "integer"},
			"year_built":      map[string]any{"type": "integer"},
			"property_type":   keyword,
			"features":        keyword,
			"description":     map[string]any{"type": "text"},
			"listing_date":    keyword,
			"search_text":     map[string]any{"type": "text"},
			"embedding":       embedding,
		}}},
		IndexNeighborhoods: {"mappings": map[string]any{"properties": map[string]any{
			"neighborhood_id":   keyword,
			"name":              text,
			"city":              text,
			"state":             keyword,
			"zip_code":          keyword,
			"population":        map[string]any{"type": "long"},
			"walkability_score": map[string]any{"type": "float"},
			"school_rating":     map[string]any{"type": "float"},
			"crime_index":       map[string]any{"type": "float"},
			"description":       map[string]any{"type": "text"},
			"lifestyle_tags":    keyword,
			"wikipedia_correlations": map[string]any{
				"properties": map[string]any{
					"page_id":    map[string]any{"type": "long"},
					"type":       keyword,
					"confidence": map[string]any{"type": "float"},
				},
			},
			"search_text": map[string]any{"type": "text"},
			"embedding":   embedding,
		}}},
		IndexWikipedia: {"mappings": map[string]any{"properties": map[string]any{
			"page_id":       map[string]any{"type": "long"},
			"title":         text,
			"long_summary":  map[string]any{"type": "text"},
			"short_summary": map[string]any{"type": "text"},
			"topic_tag":     keyword,
			"truncated":     map[string]any{"type": "boolean"},
			"search_text":   map[string]any{"type": "text"},
			"embedding":     embedding,
		}}},
		IndexRelationships: {"mappings": map[string]any{"properties": map[string]any{
			"listing_id":      keyword,
			"neighborhood_id": keyword,
			"city":            text,
			"state":           keyword,
			"price":           map[string]any{"type": "double"},
			"price_bucket":    keyword,
			"neighborhood":    map[string]any{"type": "object", "enabled": true},
			"wikipedia_articles": map[string]any{
				"properties": map[string]any{
					"page_id":       map[string]any{"type": "long"},
					"title":         text,
					"confidence":    map[string]any{"type": "float"},
					"short_summary": map[string]any{"type": "text"},
				},
			},
			"combined_text": map[string]any{"type": "text"},
		}}},
	}
}

func propertySearchText(doc *model.PropertyDoc) string {
	parts := []string{
		doc.AddressStreet,
		doc.City,
		doc.State,
		doc.ZipCode,
		doc.PropertyType,
		doc.Description,
		strings.Join(doc.Features, " "),
	}
	return joinFields(parts)
}

func neighborhoodSearchText(doc *model.NeighborhoodDoc) string {
	parts := []string{
		doc.Name,
		doc.City,
		doc.State,
		doc.Description,
		strings.Join(doc.LifestyleTags, " "),
	}
	return joinFields(parts)
}

func wikipediaSearchText(doc *model.WikipediaDoc) string {
	return joinFields([]string{doc.Title, doc.ShortSummary, doc.LongSummary})
}

func joinFields(parts []string) string {
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
