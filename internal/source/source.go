// Package source loads the pipeline inputs: JSON files for properties,
// neighborhoods and the zip reference, and the SQLite database carrying
// pre-cleaned Wikipedia summaries. Readers are permissive at the row level;
// only whole-file failures are fatal.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite" // sqlite driver for the page_summaries source

	"github.com/nucleus/homegraph/internal/fault"
	"github.com/nucleus/homegraph/internal/model"
)

// RawRecord is one undecoded source row plus its file of origin.
type RawRecord struct {
	SourceFile string
	Raw        json.RawMessage
}

// ReadJSONArray reads a JSON file holding an array of records. The array
// itself must parse (E_SCHEMA otherwise); individual elements are returned
// undecoded so the bronze loader can quarantine malformed ones without
// aborting. sampleSize > 0 truncates the result for test runs.
func ReadJSONArray(path string, sampleSize int) ([]RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Newf(fault.CodeSource, "read source %s: %v", path, err)
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fault.Newf(fault.CodeSchema, "source %s is not a JSON array: %v", path, err)
	}
	if sampleSize > 0 && len(elements) > sampleSize {
		elements = elements[:sampleSize]
	}
	records := make([]RawRecord, len(elements))
	for i, el := range elements {
		records[i] = RawRecord{SourceFile: path, Raw: el}
	}
	return records, nil
}

// wikipediaColumns is the contract of the page_summaries table. topic_tag
// is optional and read only when present.
var wikipediaColumns = []string{"page_id", "title", "long_summary", "short_summary"}

// ReadWikipediaDB copies the page_summaries table out of the source SQLite
// database. A missing file is E_SOURCE; a missing table or column is
// E_SCHEMA.
func ReadWikipediaDB(ctx context.Context, path string, sampleSize int) ([]model.WikipediaRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fault.Newf(fault.CodeSource, "wikipedia db %s: %v", path, err)
	}
	dbx, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fault.Newf(fault.CodeSource, "open wikipedia db %s: %v", path, err)
	}
	defer dbx.Close()

	columns, err := tableColumns(ctx, dbx, "page_summaries")
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fault.Newf(fault.CodeSchema, "wikipedia db %s has no page_summaries table", path)
	}
	for _, required := range wikipediaColumns {
		if !columns[required] {
			return nil, fault.Newf(fault.CodeSchema, "page_summaries is missing column %s", required)
		}
	}

	query := "SELECT page_id, title, long_summary, short_summary"
	if columns["topic_tag"] {
		query += ", topic_tag"
	} else {
		query += ", '' AS topic_tag"
	}
	query += " FROM page_summaries ORDER BY page_id"
	if sampleSize > 0 {
		query += fmt.Sprintf(" LIMIT %d", sampleSize)
	}

	var records []model.WikipediaRecord
	rows, err := dbx.QueryxContext(ctx, query)
	if err != nil {
		return nil, fault.Newf(fault.CodeSchema, "query page_summaries: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec model.WikipediaRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fault.Newf(fault.CodeSchema, "scan page_summaries row: %v", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Newf(fault.CodeSource, "iterate page_summaries: %v", err)
	}
	return records, nil
}

func tableColumns(ctx context.Context, dbx *sqlx.DB, table string) (map[string]bool, error) {
	rows, err := dbx.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fault.Newf(fault.CodeSchema, "inspect table %s: %v", table, err)
	}
	defer rows.Close()
	columns := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fault.Newf(fault.CodeSchema, "inspect table %s: %v", table, err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
