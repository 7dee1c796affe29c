// Package sqlite implements db.RelationalStore over the primary SQLite
// database using the modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/marketsearch/internal/db"
)

// Compile-time check: Store implements db.RelationalStore.
var _ db.RelationalStore = (*Store)(nil)

// Store is the SQLite-backed primary record store.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an in-process throwaway database.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return s, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Counts returns row counts of both record tables, for health reporting.
func (s *Store) Counts(ctx context.Context) (listings, providers int, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM listings), (SELECT COUNT(*) FROM providers)`)
	if err := row.Scan(&listings, &providers); err != nil {
		return 0, 0, &db.Error{Op: db.OpQuery, Err: err}
	}
	return listings, providers, nil
}

// Options serves the filter catalog's select-style option lists from
// reference data. Unknown keys yield an empty list.
func (s *Store) Options(ctx context.Context, key string) ([]string, error) {
	var query string
	switch key {
	case "categories":
		query = `SELECT DISTINCT category FROM listings WHERE category != '' ORDER BY category`
	case "cities":
		query = `SELECT city FROM (
			SELECT city FROM listings WHERE city != ''
			UNION SELECT city FROM providers WHERE city != ''
		) ORDER BY city`
	case "services":
		query = `SELECT DISTINCT name FROM services WHERE name != '' ORDER BY name`
	default:
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: err}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id              INTEGER PRIMARY KEY,
	owner_id        INTEGER NOT NULL DEFAULT 0,
	title           TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	tags            TEXT NOT NULL DEFAULT '',
	price_per_hour  INTEGER NOT NULL DEFAULT 0,
	city            TEXT NOT NULL DEFAULT '',
	lat             REAL,
	lng             REAL,
	status          TEXT NOT NULL DEFAULT '',
	is_published    INTEGER NOT NULL DEFAULT 0,
	is_premium      INTEGER NOT NULL DEFAULT 0,
	media_count     INTEGER NOT NULL DEFAULT 0,
	views_count     INTEGER NOT NULL DEFAULT 0,
	owner_name      TEXT NOT NULL DEFAULT '',
	owner_rating    REAL NOT NULL DEFAULT 0,
	owner_reviews   INTEGER NOT NULL DEFAULT 0,
	owner_verified  INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL DEFAULT 0,
	updated_at      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_listings_updated ON listings(updated_at);
CREATE INDEX IF NOT EXISTS idx_listings_category ON listings(category);
CREATE INDEX IF NOT EXISTS idx_listings_city ON listings(city);

CREATE TABLE IF NOT EXISTS providers (
	id                      INTEGER PRIMARY KEY,
	name                    TEXT NOT NULL DEFAULT '',
	bio                     TEXT NOT NULL DEFAULT '',
	specialty               TEXT NOT NULL DEFAULT '',
	city                    TEXT NOT NULL DEFAULT '',
	phone                   TEXT NOT NULL DEFAULT '',
	rating                  REAL NOT NULL DEFAULT 0,
	reviews_count           INTEGER NOT NULL DEFAULT 0,
	repeat_clients_percent  INTEGER NOT NULL DEFAULT 0,
	experience_years        INTEGER NOT NULL DEFAULT 0,
	completed_orders_30d    INTEGER NOT NULL DEFAULT 0,
	is_verified             INTEGER NOT NULL DEFAULT 0,
	is_premium              INTEGER NOT NULL DEFAULT 0,
	has_schedule            INTEGER NOT NULL DEFAULT 0,
	services_count          INTEGER NOT NULL DEFAULT 0,
	media_count             INTEGER NOT NULL DEFAULT 0,
	education_count         INTEGER NOT NULL DEFAULT 0,
	certificate_count       INTEGER NOT NULL DEFAULT 0,
	lat                     REAL,
	lng                     REAL,
	status                  TEXT NOT NULL DEFAULT '',
	last_active_at          INTEGER,
	created_at              INTEGER NOT NULL DEFAULT 0,
	updated_at              INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_providers_updated ON providers(updated_at);
CREATE INDEX IF NOT EXISTS idx_providers_city ON providers(city);

CREATE TABLE IF NOT EXISTS services (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_type   TEXT NOT NULL,
	owner_id     INTEGER NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	price        INTEGER NOT NULL DEFAULT 0,
	duration_min INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_services_owner ON services(owner_type, owner_id);
`

// --- shared helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func likePattern(term string) string {
	return "%" + escapeLike(term) + "%"
}

func prefixPattern(term string) string {
	return escapeLike(term) + "%"
}

// escapeLike escapes LIKE wildcards; queries using it must append ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
