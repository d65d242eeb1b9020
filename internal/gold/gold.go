// Package gold composes the export-ready documents from the silver tier and
// populates their embedding columns. One gold document per primary entity;
// the graph projection is derived from the same documents with the
// excluded-fields rule applied at write time.
package gold

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nucleus/homegraph/internal/embed"
	"github.com/nucleus/homegraph/internal/engine"
	"github.com/nucleus/homegraph/internal/fault"
	"github.com/nucleus/homegraph/internal/model"
)

// Docs is the gold document set plus the vector lookup the relationship
// builder needs for similarity edges.
type Docs struct {
	Properties    []model.PropertyDoc
	Neighborhoods []model.NeighborhoodDoc
	Wikipedia     []model.WikipediaDoc

	// PropertyVectors indexes property embeddings by listing id.
	PropertyVectors map[string][]float32
	// PropertyNeighborhood maps listing id to its resolved neighborhood id.
	PropertyNeighborhood map[string]string
}

// Builder runs the gold enrichment pass.
type Builder struct {
	session *engine.Session
	batcher *embed.Batcher
}

// NewBuilder constructs the gold builder over an open session.
func NewBuilder(session *engine.Session, batcher *embed.Batcher) *Builder {
	return &Builder{session: session, batcher: batcher}
}

// Run composes all three document tables and embeds them.
func (b *Builder) Run(ctx context.Context) (*Docs, error) {
	docs := &Docs{
		PropertyVectors:      make(map[string][]float32),
		PropertyNeighborhood: make(map[string]string),
	}
	if err := b.buildProperties(ctx, docs); err != nil {
		return nil, err
	}
	if err := b.buildNeighborhoods(ctx, docs); err != nil {
		return nil, err
	}
	if err := b.buildWikipedia(ctx, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (b *Builder) buildProperties(ctx context.Context, docs *Docs) error {
	var rows []model.SilverProperty
	err := b.session.DB().SelectContext(ctx, &rows,
		"SELECT * FROM silver_properties ORDER BY listing_id")
	if err != nil {
		return fault.New(fault.CodeSchema, fmt.Errorf("read silver_properties: %w", err))
	}
	texts := make([]string, len(rows))
	propDocs := make([]model.PropertyDoc, len(rows))
	for i, row := range rows {
		var features []string
		if err := json.Unmarshal([]byte(row.FeaturesJSON), &features); err != nil {
			return fmt.Errorf("decode features for %s: %w", row.ListingID, err)
		}
		doc := model.PropertyDoc{
			ListingID:      row.ListingID,
			NeighborhoodID: row.NeighborhoodID,
			AddressStreet:  row.AddressStreet,
			City:           row.AddressCity,
			State:          row.AddressState,
			ZipCode:        row.AddressZip,
			Price:          row.Price,
			PriceBucket:    row.PriceBucket,
			Bedrooms:       row.Bedrooms,
			Bathrooms:      row.Bathrooms,
			SquareFeet:     row.SquareFeet,
			YearBuilt:      row.YearBuilt,
			PropertyType:   row.PropertyType,
			Features:       features,
			Description:    row.Description,
			ListingDate:    row.ListingDate,
		}
		if row.HasCoordinates {
			doc.Location = &model.GeoPoint{Lat: row.Latitude, Lon: row.Longitude}
		}
		propDocs[i] = doc
		texts[i] = propertyText(&row, features)
	}
	vectors, err := b.batcher.EmbedAll(ctx, texts)
	if err != nil {
		return err
	}
	for i := range propDocs {
		propDocs[i].Embedding = vectors[i]
		docs.PropertyVectors[propDocs[i].ListingID] = vectors[i]
		if propDocs[i].NeighborhoodID != "" {
			docs.PropertyNeighborhood[propDocs[i].ListingID] = propDocs[i].NeighborhoodID
		}
	}
	docs.Properties = propDocs
	return nil
}

func (b *Builder) buildNeighborhoods(ctx context.Context, docs *Docs) error {
	var rows []model.SilverNeighborhood
	err := b.session.DB().SelectContext(ctx, &rows,
		"SELECT * FROM silver_neighborhoods ORDER BY neighborhood_id")
	if err != nil {
		return fault.New(fault.CodeSchema, fmt.Errorf("read silver_neighborhoods: %w", err))
	}
	texts := make([]string, len(rows))
	nbDocs := make([]model.NeighborhoodDoc, len(rows))
	for i, row := range rows {
		var tags []string
		if err := json.Unmarshal([]byte(row.LifestyleJSON), &tags); err != nil {
			return fmt.Errorf("decode lifestyle tags for %s: %w", row.NeighborhoodID, err)
		}
		var correlations []model.WikipediaCorrelation
		if err := json.Unmarshal([]byte(row.CorrelationsJSON), &correlations); err != nil {
			return fmt.Errorf("decode correlations for %s: %w", row.NeighborhoodID, err)
		}
		nbDocs[i] = model.NeighborhoodDoc{
			NeighborhoodID:        row.NeighborhoodID,
			Name:                  row.Name,
			City:                  row.City,
			State:                 row.State,
			ZipCode:               row.ZipCode,
			Population:            row.Population,
			WalkabilityScore:      row.WalkabilityScore,
			SchoolRating:          row.SchoolRating,
			CrimeIndex:            row.CrimeIndex,
			Description:           row.Description,
			LifestyleTags:         tags,
			WikipediaCorrelations: correlations,
		}
		texts[i] = neighborhoodText(&row, tags)
	}
	vectors, err := b.batcher.EmbedAll(ctx, texts)
	if err != nil {
		return err
	}
	for i := range nbDocs {
		nbDocs[i].Embedding = vectors[i]
	}
	docs.Neighborhoods = nbDocs
	return nil
}

func (b *Builder) buildWikipedia(ctx context.Context, docs *Docs) error {
	var rows []model.SilverWikipedia
	err := b.session.DB().SelectContext(ctx, &rows,
		"SELECT * FROM silver_wikipedia ORDER BY page_id")
	if err != nil {
		return fault.New(fault.CodeSchema, fmt.Errorf("read silver_wikipedia: %w", err))
	}
	// Wikipedia articles embed the long summary verbatim: the upstream
	// cleaner already produced summary-length text, so no chunking here.
	texts := make([]string, len(rows))
	wikiDocs := make([]model.WikipediaDoc, len(rows))
	for i, row := range rows {
		wikiDocs[i] = model.WikipediaDoc{
			PageID:       row.PageID,
			Title:        row.Title,
			LongSummary:  row.LongSummary,
			ShortSummary: row.ShortSummary,
			TopicTag:     row.TopicTag,
			Truncated:    row.Truncated,
		}
		texts[i] = row.LongSummary
	}
	vectors, err := b.batcher.EmbedAll(ctx, texts)
	if err != nil {
		return err
	}
	for i := range wikiDocs {
		wikiDocs[i].Embedding = vectors[i]
	}
	docs.Wikipedia = wikiDocs
	return nil
}

// propertyText is the fixed text-selection rule for property embeddings:
// address, price, bed/bath counts, square feet, description and features.
func propertyText(row *model.SilverProperty, features []string) string {
	parts := []string{
		row.AddressStreet,
		row.CityNormalized,
		row.StateNormalized,
		row.AddressZip,
		fmt.Sprintf("price %.0f", row.Price),
		fmt.Sprintf("%d bedrooms", row.Bedrooms),
		fmt.Sprintf("%.1f bathrooms", row.Bathrooms),
		fmt.Sprintf("%d square feet", row.SquareFeet),
		row.Description,
		strings.Join(features, ", "),
	}
	return joinNonEmpty(parts)
}

// neighborhoodText is the fixed rule for neighborhood embeddings.
func neighborhoodText(row *model.SilverNeighborhood, tags []string) string {
	parts := []string{
		row.Name,
		row.CityNormalized,
		row.StateNormalized,
		row.Description,
		strings.Join(tags, ", "),
	}
	return joinNonEmpty(parts)
}

func joinNonEmpty(parts []string) string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " | ")
}
