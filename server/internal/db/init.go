// package db opens the sqlite user directory.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqlFiles embed.FS

// Open opens the sqlite database at path, creating it and its tables if needed.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("error creating db directory: %w", err)
	}

	// Open database (creates file if it doesn't exist)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging db: %w", err)
	}

	// Create tables
	schema, _ := sqlFiles.ReadFile("schema.sql")
	if _, err = db.Exec(string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return db, nil
}
