// Package sqlite is the State Store (spec.md §4.1): the single SQLite
// database that exclusively owns every row the rest of the core reads
// and writes. It backs the Store interface each domain package defines
// locally (risk.Store, autonomy.Store, feature.Store, checkpoint.Store,
// human.Store, failure.Store, the three memory tiers, and
// supervisor.SessionStore) with one concrete type, the way the teacher
// backs its own domain-specific Storage interface with one
// *SQLiteStorage.
//
// It runs on github.com/ncruces/go-sqlite3, a cgo-free driver, so the
// forge binary cross-compiles without a C toolchain. Every write goes
// through a single *sql.DB with max one open connection: SQLite only
// ever has one writer at a time, and the teacher's own EXCLUSIVE
// transaction discipline in its migration runner assumes the same.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/webrlabs/arcadiaforge/internal/store/migrations"
)

// Store wraps the project's SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the database at path and brings it up
// to the current schema. dsn pragmas mirror the teacher's own
// freshness test fixture: foreign keys on, a generous busy timeout so a
// concurrently-running forge process backs off instead of erroring.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping state store: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for callers that need a raw query
// the Store type doesn't wrap, such as this package's tests re-running
// migrations and counting seeded rows.
func (s *Store) DB() *sql.DB {
	return s.db
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(data), nil
}

func unmarshalJSONInto(raw string, v any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
