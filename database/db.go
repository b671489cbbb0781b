package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Names of the persisted client stores.
const (
	AuthStorage  = "auth-storage"
	UserStorage  = "user-storage"
	TaskStorage  = "task-store"
	PollStorage  = "poll-storage"
	RetroStorage = "retrospective-store"
)

// InitDB opens the sqlite file backing the client stores.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY between our own goroutines
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS client_storage (
		name TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create client_storage table: %w", err)
	}

	slog.Debug("client storage initialized", "path", path)
	return db, nil
}

// Storage persists JSON slices of client state under a store name.
// Every process opening the same file shares it without coordination: whichever
// writes last wins.
type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Load decodes the named slice into v. found is false when nothing was saved yet.
func (s *Storage) Load(ctx context.Context, name string, v any) (bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT data FROM client_storage WHERE name = ?", name)

	var dataStr string
	err := row.Scan(&dataStr)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", name, err)
	}

	if err := json.Unmarshal([]byte(dataStr), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return true, nil
}

// Save upserts the named slice.
func (s *Storage) Save(ctx context.Context, name string, v any) error {
	dataJSON, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO client_storage (name, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, name, string(dataJSON))
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", name, err)
	}
	return nil
}

// Delete removes the named slice.
func (s *Storage) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM client_storage WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// Clear wipes every persisted store.
func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM client_storage"); err != nil {
		return fmt.Errorf("failed to clear client storage: %w", err)
	}
	return nil
}
