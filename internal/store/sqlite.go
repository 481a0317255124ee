package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gabepages/botkit/internal/metrics"
	"github.com/gabepages/botkit/internal/models"
)

// SQLiteStore persists profiles in a local SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	saves *keyLock
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// If dbPath is empty, defaults to "./data/botkit.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/botkit.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db, saves: newKeyLock()}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT DEFAULT '',
		slots TEXT DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get retrieves a profile by identity.
func (s *SQLiteStore) Get(ctx context.Context, id models.Identity) (*models.Profile, error) {
	start := time.Now()
	defer func() { metrics.StoreLatency.WithLabelValues("sqlite", "get").Observe(time.Since(start).Seconds()) }()

	profile := &models.Profile{}
	var idStr, slotsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slots FROM profiles WHERE id = ?
	`, string(id)).Scan(&idStr, &profile.Name, &slotsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	profile.ID = models.Identity(idStr)
	if slotsJSON != "" && slotsJSON != "{}" {
		if err := json.Unmarshal([]byte(slotsJSON), &profile.Slots); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// Save upserts the full profile record.
func (s *SQLiteStore) Save(ctx context.Context, profile *models.Profile) (models.Identity, error) {
	if profile == nil || profile.ID == "" {
		return "", ErrMissingIdentity
	}

	start := time.Now()
	defer func() { metrics.StoreLatency.WithLabelValues("sqlite", "save").Observe(time.Since(start).Seconds()) }()

	s.saves.Lock(profile.ID)
	defer s.saves.Unlock(profile.ID)

	slots := profile.Slots
	if slots == nil {
		slots = map[string]string{}
	}
	slotsJSON, err := json.Marshal(slots)
	if err != nil {
		return "", err
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, slots, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			slots = excluded.slots,
			updated_at = excluded.updated_at
	`, string(profile.ID), profile.Name, string(slotsJSON), now, now)
	if err != nil {
		return "", err
	}

	return profile.ID, nil
}
