package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion is written to PRAGMA user_version.
//
//	1: breakpoint tables, their rows and the rows dropped by the merge
const currentSchemaVersion = 1

// pragma is a connection setting together with the value SQLite reports
// back once it has taken effect.
type pragma struct {
	name   string
	set    string
	report string
}

var connPragmas = []pragma{
	{name: "journal_mode", set: "WAL", report: "wal"},
	{name: "synchronous", set: "NORMAL", report: "1"},
	{name: "busy_timeout", set: "5000", report: "5000"},
	{name: "foreign_keys", set: "ON", report: "1"},
}

// Store persists compiled breakpoint tables in a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating it if needed, and brings its
// schema up to currentSchemaVersion. Reopening an existing file is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	// One connection: pragmas are per connection and SQLite has a single writer.
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)

	for _, p := range connPragmas {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.set)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return s.migrate()
}

// migrate refuses files written by a newer build and stamps the current
// version on older ones. Version 1 needs no data changes.
func (s *Store) migrate() error {
	var have int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&have); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case have > currentSchemaVersion:
		return fmt.Errorf("schema version %d is newer than %d", have, currentSchemaVersion)
	case have == currentSchemaVersion:
		return nil
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// Close releases the connection. A zero Store closes cleanly.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection for callers that need raw SQL.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) verifyPragma(name, want string) error {
	var got string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("pragma %s = %q, want %q", name, got, want)
	}
	return nil
}
