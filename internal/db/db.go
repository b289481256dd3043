// Package db opens the sqlite database backing a reqline workspace.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	WorkspaceDir = ".reqline"
	FileName     = "reqline.db"
)

// Path returns the database path inside dir's workspace.
func Path(dir string) string {
	return filepath.Join(dir, WorkspaceDir, FileName)
}

// EnsureWorkspace creates the workspace directory under dir if missing.
func EnsureWorkspace(dir string) error {
	return os.MkdirAll(filepath.Join(dir, WorkspaceDir), 0o755)
}

// Open opens the sqlite database at path with foreign keys enforced.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}
