// Package storage opens the database backends used by the repositories.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Backend selects the persistence engine.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

// IsValid checks if the backend is one of the supported values.
func (b Backend) IsValid() bool {
	switch b {
	case BackendSQLite, BackendPostgres, BackendMemory:
		return true
	default:
		return false
	}
}

// OpenSQLite opens (creating if needed) a local SQLite database file.
// WAL mode keeps the single writer from blocking concurrent readers such as
// an exporter or dashboard pointed at the same file.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("storage: empty sqlite path")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: set busy timeout: %w", err)
	}

	// One writer process drives the engine; a single connection also keeps
	// sqlite's locking out of the picture.
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenPostgres opens a Postgres database via the pgx stdlib driver.
func OpenPostgres(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("storage: empty postgres dsn")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	return db, nil
}
