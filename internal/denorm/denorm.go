// Package denorm builds the property_relationships read model. It reads the
// already-indexed documents back from the search store rather than from the
// in-memory tiers, so the combined documents reflect exactly what a search
// consumer sees.
package denorm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/fault"
	"github.com/nucleus/homegraph/internal/model"
	"github.com/nucleus/homegraph/internal/writer"
)

const scrollKeepAlive = time.Minute

// WikiArticle is one Wikipedia article reference inside a relationship
// document, carrying the correlation confidence it was selected under.
type WikiArticle struct {
	PageID       int64   `json:"page_id"`
	Title        string  `json:"title"`
	Confidence   float64 `json:"confidence"`
	ShortSummary string  `json:"short_summary,omitempty"`
}

// RelationshipDoc is the denormalized per-property document: the property
// fields verbatim, the embedded neighborhood (null when unresolved) and the
// correlated articles, primary first. WikipediaArticles is always present,
// empty for neighborhoods without correlations.
type RelationshipDoc struct {
	model.PropertyDoc
	Neighborhood      *model.NeighborhoodDoc `json:"neighborhood"`
	WikipediaArticles []WikiArticle          `json:"wikipedia_articles"`
	CombinedText      string                 `json:"combined_text,omitempty"`
}

// Builder assembles relationship documents from the search store.
type Builder struct {
	client     *elasticsearch.Client
	maxRelated int
	batchSize  int
	timeout    time.Duration

	neighborhoods map[string]*model.NeighborhoodDoc
	articles      map[int64]*model.WikipediaDoc
}

// NewBuilder constructs the builder with its own search client.
func NewBuilder(cfg *config.Config) (*Builder, error) {
	client, err := writer.NewSearchClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Builder{
		client:        client,
		maxRelated:    cfg.Denormalization.MaxRelatedWikipedia,
		batchSize:     cfg.Destinations.Search.BatchSize,
		timeout:       cfg.BatchTimeout(),
		neighborhoods: make(map[string]*model.NeighborhoodDoc),
		articles:      make(map[int64]*model.WikipediaDoc),
	}, nil
}

// Run scrolls every property, assembles its relationship document and bulk
// indexes the result. Returns the number of documents written.
func (b *Builder) Run(ctx context.Context) (int64, error) {
	var total int64
	var batch []RelationshipDoc

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := b.bulkIndex(ctx, batch); err != nil {
			return err
		}
		total += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	err := b.scrollProperties(ctx, func(prop *model.PropertyDoc) error {
		doc, err := b.assemble(ctx, prop)
		if err != nil {
			return err
		}
		batch = append(batch, *doc)
		if len(batch) >= b.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// assemble joins one property with its neighborhood and that neighborhood's
// correlated articles. Properties without a resolved neighborhood still get
// a document, with a null neighborhood and no articles.
func (b *Builder) assemble(ctx context.Context, prop *model.PropertyDoc) (*RelationshipDoc, error) {
	doc := &RelationshipDoc{
		PropertyDoc:       *prop,
		WikipediaArticles: []WikiArticle{},
	}
	textParts := []string{prop.Description}

	if prop.NeighborhoodID != "" {
		nb, err := b.neighborhood(ctx, prop.NeighborhoodID)
		if err != nil {
			return nil, err
		}
		if nb != nil {
			doc.Neighborhood = nb
			textParts = append(textParts, nb.Description)

			articles, err := b.rankedArticles(ctx, nb)
			if err != nil {
				return nil, err
			}
			doc.WikipediaArticles = articles
			for _, a := range articles {
				textParts = append(textParts, a.ShortSummary)
			}
		}
	}

	doc.CombinedText = joinText(textParts)
	return doc, nil
}

// rankedArticles selects the primary correlation first, then the remaining
// correlations by descending confidence (ties on page id), up to maxRelated.
// Selection happens before fetching; selected correlations whose article is
// absent from the index are dropped without backfilling.
func (b *Builder) rankedArticles(ctx context.Context, nb *model.NeighborhoodDoc) ([]WikiArticle, error) {
	var primary *model.WikipediaCorrelation
	related := make([]model.WikipediaCorrelation, 0, len(nb.WikipediaCorrelations))
	for i, c := range nb.WikipediaCorrelations {
		if c.Type == model.CorrelationPrimary && primary == nil {
			primary = &nb.WikipediaCorrelations[i]
			continue
		}
		related = append(related, c)
	}
	sort.Slice(related, func(i, j int) bool {
		if related[i].Confidence != related[j].Confidence {
			return related[i].Confidence > related[j].Confidence
		}
		return related[i].PageID < related[j].PageID
	})
	if len(related) > b.maxRelated {
		related = related[:b.maxRelated]
	}
	selected := make([]model.WikipediaCorrelation, 0, len(related)+1)
	if primary != nil {
		selected = append(selected, *primary)
	}
	selected = append(selected, related...)

	articles := []WikiArticle{}
	for _, c := range selected {
		article, err := b.article(ctx, c.PageID)
		if err != nil {
			return nil, err
		}
		if article == nil {
			continue
		}
		articles = append(articles, WikiArticle{
			PageID:       article.PageID,
			Title:        article.Title,
			Confidence:   c.Confidence,
			ShortSummary: article.ShortSummary,
		})
	}
	return articles, nil
}

// neighborhood fetches one neighborhood document, caching misses as nil.
func (b *Builder) neighborhood(ctx context.Context, id string) (*model.NeighborhoodDoc, error) {
	if nb, ok := b.neighborhoods[id]; ok {
		return nb, nil
	}
	var nb model.NeighborhoodDoc
	found, err := b.getDoc(ctx, writer.IndexNeighborhoods, id, &nb)
	if err != nil {
		return nil, err
	}
	if !found {
		b.neighborhoods[id] = nil
		return nil, nil
	}
	b.neighborhoods[id] = &nb
	return &nb, nil
}

// article fetches one Wikipedia document, caching misses as nil.
func (b *Builder) article(ctx context.Context, pageID int64) (*model.WikipediaDoc, error) {
	if doc, ok := b.articles[pageID]; ok {
		return doc, nil
	}
	var doc model.WikipediaDoc
	found, err := b.getDoc(ctx, writer.IndexWikipedia, fmt.Sprintf("%d", pageID), &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		b.articles[pageID] = nil
		return nil, nil
	}
	b.articles[pageID] = &doc
	return &doc, nil
}

// getDoc performs a single-document get, reporting existence.
func (b *Builder) getDoc(ctx context.Context, index, id string, out any) (bool, error) {
	res, err := b.client.Get(index, id, b.client.Get.WithContext(ctx))
	if err != nil {
		return false, fault.Transient(fault.CodeDestination, fmt.Errorf("get %s/%s: %w", index, id, err))
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return false, nil
	}
	if res.IsError() {
		return false, fault.Newf(fault.CodeDestination, "get %s/%s: status %d", index, id, res.StatusCode)
	}
	var envelope struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return false, fault.New(fault.CodeDestination, fmt.Errorf("decode %s/%s: %w", index, id, err))
	}
	if !envelope.Found {
		return false, nil
	}
	if err := json.Unmarshal(envelope.Source, out); err != nil {
		return false, fault.New(fault.CodeSchema, fmt.Errorf("decode %s/%s source: %w", index, id, err))
	}
	return true, nil
}

// scrollProperties walks the properties index in listing id order using the
// scroll API, so the pass covers datasets larger than one page.
func (b *Builder) scrollProperties(ctx context.Context, visit func(*model.PropertyDoc) error) error {
	query := map[string]any{
		"size": b.batchSize,
		"sort": []any{map[string]any{"listing_id": "asc"}},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return fault.New(fault.CodeInternal, fmt.Errorf("encode scroll query: %w", err))
	}
	res, err := b.client.Search(
		b.client.Search.WithContext(ctx),
		b.client.Search.WithIndex(writer.IndexProperties),
		b.client.Search.WithScroll(scrollKeepAlive),
		b.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fault.Transient(fault.CodeDestination, fmt.Errorf("scroll properties: %w", err))
	}

	scrollID := ""
	defer func() {
		if scrollID != "" {
			clearRes, clearErr := b.client.ClearScroll(
				b.client.ClearScroll.WithContext(context.Background()),
				b.client.ClearScroll.WithScrollID(scrollID),
			)
			if clearErr == nil {
				_ = clearRes.Body.Close()
			}
		}
	}()

	for {
		if res.IsError() {
			msg := res.String()
			_ = res.Body.Close()
			return fault.Newf(fault.CodeDestination, "scroll properties: %s", msg)
		}
		var page struct {
			ScrollID string `json:"_scroll_id"`
			Hits     struct {
				Hits []struct {
					Source json.RawMessage `json:"_source"`
				} `json:"hits"`
			} `json:"hits"`
		}
		if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
			_ = res.Body.Close()
			return fault.New(fault.CodeDestination, fmt.Errorf("decode scroll page: %w", err))
		}
		_ = res.Body.Close()
		scrollID = page.ScrollID
		if len(page.Hits.Hits) == 0 {
			return nil
		}
		for _, hit := range page.Hits.Hits {
			var prop model.PropertyDoc
			if err := json.Unmarshal(hit.Source, &prop); err != nil {
				return fault.New(fault.CodeSchema, fmt.Errorf("decode property hit: %w", err))
			}
			if err := visit(&prop); err != nil {
				return err
			}
		}
		res, err = b.client.Scroll(
			b.client.Scroll.WithContext(ctx),
			b.client.Scroll.WithScrollID(scrollID),
			b.client.Scroll.WithScroll(scrollKeepAlive),
		)
		if err != nil {
			return fault.Transient(fault.CodeDestination, fmt.Errorf("continue scroll: %w", err))
		}
	}
}

// bulkIndex writes one batch of relationship documents under the per-batch
// network timeout.
func (b *Builder) bulkIndex(ctx context.Context, docs []RelationshipDoc) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	var buf bytes.Buffer
	for _, doc := range docs {
		action := map[string]any{"index": map[string]any{
			"_index": writer.IndexRelationships,
			"_id":    doc.ListingID,
		}}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return fault.New(fault.CodeInternal, fmt.Errorf("encode bulk action: %w", err))
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return fault.New(fault.CodeInternal, fmt.Errorf("encode relationship doc: %w", err))
		}
	}
	res, err := b.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		b.client.Bulk.WithContext(ctx),
		b.client.Bulk.WithIndex(writer.IndexRelationships),
	)
	if err != nil {
		return fault.Transient(fault.CodeDestination, fmt.Errorf("bulk relationships: %w", err))
	}
	defer res.Body.Close()
	if res.IsError() {
		return fault.Newf(fault.CodeDestination, "bulk relationships: status %d", res.StatusCode)
	}
	var parsed struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fault.New(fault.CodeDestination, fmt.Errorf("decode bulk response: %w", err))
	}
	if parsed.Errors {
		return fault.Newf(fault.CodeDestination, "bulk relationships: items rejected")
	}
	return nil
}

func joinText(parts []string) string {
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
