// Package bronze ingests raw sources into the analytical session. Bronze
// preserves source shape: every row is the verbatim source record plus a
// surrogate bronze_id and the source-file identifier. Rows that are not
// JSON objects are routed to the quarantine table instead of aborting.
package bronze

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/engine"
	"github.com/nucleus/homegraph/internal/source"
)

// Stats counts what bronze ingestion produced.
type Stats struct {
	Properties    int64
	Neighborhoods int64
	Wikipedia     int64
	Locations     int64
	Quarantined   int64
}

// Total returns the number of bronze rows across all entity tables.
func (s *Stats) Total() int64 {
	return s.Properties + s.Neighborhoods + s.Wikipedia + s.Locations
}

type bronzeRow struct {
	BronzeID   string `db:"bronze_id"`
	SourceFile string `db:"source_file"`
	Raw        string `db:"raw"`
}

type quarantineRow struct {
	BronzeID   string `db:"bronze_id"`
	SourceFile string `db:"source_file"`
	Entity     string `db:"entity"`
	Reason     string `db:"reason"`
	Raw        string `db:"raw"`
}

// Loader ingests configured sources into bronze tables.
type Loader struct {
	session *engine.Session
	cfg     *config.Config
}

// NewLoader builds a bronze loader over an open session.
func NewLoader(session *engine.Session, cfg *config.Config) *Loader {
	return &Loader{session: session, cfg: cfg}
}

// Load ingests every configured source. File-level failures abort; row-level
// malformations are quarantined and counted.
func (l *Loader) Load(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	n, err := l.loadJSON(ctx, l.cfg.Sources.PropertiesPath, "bronze_properties", "property", stats)
	if err != nil {
		return nil, err
	}
	stats.Properties = n

	n, err = l.loadJSON(ctx, l.cfg.Sources.NeighborhoodsPath, "bronze_neighborhoods", "neighborhood", stats)
	if err != nil {
		return nil, err
	}
	stats.Neighborhoods = n

	if l.cfg.Sources.LocationsPath != "" {
		n, err = l.loadJSON(ctx, l.cfg.Sources.LocationsPath, "bronze_locations", "location", stats)
		if err != nil {
			return nil, err
		}
		stats.Locations = n
	}

	if l.cfg.Sources.WikipediaDBPath != "" {
		n, err = l.loadWikipedia(ctx)
		if err != nil {
			return nil, err
		}
		stats.Wikipedia = n
	}

	return stats, nil
}

func (l *Loader) loadJSON(ctx context.Context, path, table, entity string, stats *Stats) (int64, error) {
	records, err := source.ReadJSONArray(path, l.cfg.SampleSize)
	if err != nil {
		return 0, err
	}
	var rows []any
	var quarantined []any
	for _, rec := range records {
		id := uuid.New().String()
		if !isJSONObject(rec.Raw) {
			quarantined = append(quarantined, quarantineRow{
				BronzeID:   id,
				SourceFile: rec.SourceFile,
				Entity:     entity,
				Reason:     "record is not a JSON object",
				Raw:        string(rec.Raw),
			})
			continue
		}
		rows = append(rows, bronzeRow{BronzeID: id, SourceFile: rec.SourceFile, Raw: string(rec.Raw)})
	}
	insert := fmt.Sprintf("INSERT INTO %s (bronze_id, source_file, raw) VALUES (:bronze_id, :source_file, :raw)", table)
	if err := l.session.InsertBatch(ctx, insert, rows); err != nil {
		return 0, err
	}
	if err := l.quarantine(ctx, quarantined); err != nil {
		return 0, err
	}
	stats.Quarantined += int64(len(quarantined))
	return int64(len(rows)), nil
}

// loadWikipedia copies page_summaries rows into bronze as JSON, so the
// bronze tier stays uniform across file and database sources.
func (l *Loader) loadWikipedia(ctx context.Context) (int64, error) {
	records, err := source.ReadWikipediaDB(ctx, l.cfg.Sources.WikipediaDBPath, l.cfg.SampleSize)
	if err != nil {
		return 0, err
	}
	rows := make([]any, 0, len(records))
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("encode wikipedia row %d: %w", rec.PageID, err)
		}
		rows = append(rows, bronzeRow{
			BronzeID:   uuid.New().String(),
			SourceFile: l.cfg.Sources.WikipediaDBPath,
			Raw:        string(raw),
		})
	}
	insert := "INSERT INTO bronze_wikipedia (bronze_id, source_file, raw) VALUES (:bronze_id, :source_file, :raw)"
	if err := l.session.InsertBatch(ctx, insert, rows); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (l *Loader) quarantine(ctx context.Context, rows []any) error {
	insert := "INSERT INTO bronze_quarantine (bronze_id, source_file, entity, reason, raw) VALUES (:bronze_id, :source_file, :entity, :reason, :raw)"
	return l.session.InsertBatch(ctx, insert, rows)
}

// Quarantine records a silver-stage row malformation against the bronze row
// that produced it.
func Quarantine(ctx context.Context, session *engine.Session, bronzeID, sourceFile, entity, reason, raw string) error {
	insert := "INSERT OR REPLACE INTO bronze_quarantine (bronze_id, source_file, entity, reason, raw) VALUES (:bronze_id, :source_file, :entity, :reason, :raw)"
	return session.InsertBatch(ctx, insert, []any{quarantineRow{
		BronzeID:   bronzeID,
		SourceFile: sourceFile,
		Entity:     entity,
		Reason:     reason,
		Raw:        raw,
	}})
}

func isJSONObject(raw json.RawMessage) bool {
	var probe map[string]json.RawMessage
	return json.Unmarshal(raw, &probe) == nil
}
