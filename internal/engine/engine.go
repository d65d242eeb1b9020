// Package engine wraps the in-process analytical SQL layer that owns all
// intermediate tables for one pipeline run. The session lives in memory;
// closing it drops every tier table.
package engine

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite" // in-process sqlite driver
)

const sqliteDriver = "sqlite"

// Session encapsulates the analytical database for a single run.
type Session struct {
	dbx *sqlx.DB
}

// Open creates a fresh in-memory session and installs the tier schema.
func Open(ctx context.Context) (*Session, error) {
	dbx, err := sqlx.Open(sqliteDriver, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open analytical session: %w", err)
	}
	// The in-memory database exists per connection; a pool of one keeps
	// every statement on the same database.
	dbx.SetMaxOpenConns(1)
	s := &Session{dbx: dbx}
	if err := s.createTierTables(ctx); err != nil {
		_ = dbx.Close()
		return nil, err
	}
	return s, nil
}

// Close drops the session and with it all intermediate tables.
func (s *Session) Close() error {
	if s.dbx != nil {
		return s.dbx.Close()
	}
	return nil
}

// DB exposes the underlying handle for tier transformers.
func (s *Session) DB() *sqlx.DB { return s.dbx }

func (s *Session) createTierTables(ctx context.Context) error {
	for _, ddl := range tierSchema {
		if _, err := s.dbx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create tier table: %w", err)
		}
	}
	return nil
}

// TableCount returns the row count of a tier table.
func (s *Session) TableCount(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.dbx.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// InsertBatch runs a named insert for every row inside one transaction.
func (s *Session) InsertBatch(ctx context.Context, query string, rows []any) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.dbx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert batch: %w", err)
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("insert row: %w", err)
		}
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("close insert batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert batch: %w", err)
	}
	return nil
}

// tierSchema is installed at session open. Bronze preserves raw source
// shape; silver holds flattened, normalized columns with JSON-typed array
// columns (unnested via json_each); gold_edges enforces the idempotent edge
// set through its primary key.
var tierSchema = []string{
	`CREATE TABLE bronze_properties (
		bronze_id   TEXT PRIMARY KEY,
		source_file TEXT NOT NULL,
		raw         TEXT NOT NULL
	)`,
	`CREATE TABLE bronze_neighborhoods (
		bronze_id   TEXT PRIMARY KEY,
		source_file TEXT NOT NULL,
		raw         TEXT NOT NULL
	)`,
	`CREATE TABLE bronze_wikipedia (
		bronze_id   TEXT PRIMARY KEY,
		source_file TEXT NOT NULL,
		raw         TEXT NOT NULL
	)`,
	`CREATE TABLE bronze_locations (
		bronze_id   TEXT PRIMARY KEY,
		source_file TEXT NOT NULL,
		raw         TEXT NOT NULL
	)`,
	`CREATE TABLE bronze_quarantine (
		bronze_id   TEXT PRIMARY KEY,
		source_file TEXT NOT NULL,
		entity      TEXT NOT NULL,
		reason      TEXT NOT NULL,
		raw         TEXT NOT NULL
	)`,
	`CREATE TABLE silver_properties (
		bronze_id        TEXT NOT NULL,
		listing_id       TEXT PRIMARY KEY,
		neighborhood_id  TEXT NOT NULL DEFAULT '',
		graph_node_id    TEXT NOT NULL,
		address_street   TEXT NOT NULL DEFAULT '',
		address_city     TEXT NOT NULL DEFAULT '',
		address_state    TEXT NOT NULL DEFAULT '',
		address_zip      TEXT NOT NULL DEFAULT '',
		city_normalized  TEXT NOT NULL DEFAULT '',
		state_normalized TEXT NOT NULL DEFAULT '',
		latitude         REAL NOT NULL DEFAULT 0,
		longitude        REAL NOT NULL DEFAULT 0,
		has_coordinates  INTEGER NOT NULL DEFAULT 0,
		price            REAL NOT NULL DEFAULT 0,
		price_bucket     TEXT NOT NULL DEFAULT '',
		bedrooms         INTEGER NOT NULL DEFAULT 0,
		bathrooms        REAL NOT NULL DEFAULT 0,
		square_feet      INTEGER NOT NULL DEFAULT 0,
		year_built       INTEGER NOT NULL DEFAULT 0,
		property_type    TEXT NOT NULL DEFAULT '',
		features         TEXT NOT NULL DEFAULT '[]',
		description      TEXT NOT NULL DEFAULT '',
		listing_date     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE silver_neighborhoods (
		bronze_id              TEXT NOT NULL,
		neighborhood_id        TEXT PRIMARY KEY,
		graph_node_id          TEXT NOT NULL,
		name                   TEXT NOT NULL,
		city                   TEXT NOT NULL DEFAULT '',
		state                  TEXT NOT NULL DEFAULT '',
		zip_code               TEXT NOT NULL DEFAULT '',
		city_normalized        TEXT NOT NULL DEFAULT '',
		state_normalized       TEXT NOT NULL DEFAULT '',
		population             INTEGER NOT NULL DEFAULT 0,
		walkability_score      REAL NOT NULL DEFAULT 0,
		school_rating          REAL NOT NULL DEFAULT 0,
		crime_index            REAL NOT NULL DEFAULT 0,
		description            TEXT NOT NULL DEFAULT '',
		lifestyle_tags         TEXT NOT NULL DEFAULT '[]',
		wikipedia_correlations TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE silver_wikipedia (
		bronze_id     TEXT NOT NULL,
		page_id       INTEGER PRIMARY KEY,
		graph_node_id TEXT NOT NULL,
		title         TEXT NOT NULL,
		long_summary  TEXT NOT NULL DEFAULT '',
		short_summary TEXT NOT NULL DEFAULT '',
		topic_tag     TEXT NOT NULL DEFAULT '',
		truncated     INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE silver_locations (
		bronze_id        TEXT NOT NULL,
		zip_code         TEXT PRIMARY KEY,
		neighborhood     TEXT NOT NULL DEFAULT '',
		city_normalized  TEXT NOT NULL DEFAULT '',
		county           TEXT NOT NULL DEFAULT '',
		state_normalized TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE gold_edges (
		from_id    TEXT NOT NULL,
		to_id      TEXT NOT NULL,
		type       TEXT NOT NULL,
		weight     REAL NOT NULL DEFAULT 0,
		undirected INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (from_id, to_id, type)
	)`,
}
