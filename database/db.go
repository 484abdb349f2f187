package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the credentials table.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One row per credential slot; the client only ever uses the default slot.
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS credentials (
		slot TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		user_json TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create credentials table: %w", err)
	}

	slog.Debug("database initialized", "path", path)
	return db, nil
}
