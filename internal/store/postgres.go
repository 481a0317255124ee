package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gabepages/botkit/internal/metrics"
	"github.com/gabepages/botkit/internal/models"
)

// PostgresStore persists profiles in PostgreSQL.
type PostgresStore struct {
	pool  *pgxpool.Pool
	saves *keyLock
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool, saves: newKeyLock()}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates the profiles table if it doesn't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			slots JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Get retrieves a profile by identity.
func (s *PostgresStore) Get(ctx context.Context, id models.Identity) (*models.Profile, error) {
	start := time.Now()
	defer func() {
		metrics.StoreLatency.WithLabelValues("postgres", "get").Observe(time.Since(start).Seconds())
	}()

	profile := &models.Profile{}
	var idStr string
	var slotsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, slots FROM profiles WHERE id = $1
	`, string(id)).Scan(&idStr, &profile.Name, &slotsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	profile.ID = models.Identity(idStr)
	if len(slotsJSON) > 0 {
		if err := json.Unmarshal(slotsJSON, &profile.Slots); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// Save upserts the full profile record.
func (s *PostgresStore) Save(ctx context.Context, profile *models.Profile) (models.Identity, error) {
	if profile == nil || profile.ID == "" {
		return "", ErrMissingIdentity
	}

	start := time.Now()
	defer func() {
		metrics.StoreLatency.WithLabelValues("postgres", "save").Observe(time.Since(start).Seconds())
	}()

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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (id, name, slots)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			slots = EXCLUDED.slots,
			updated_at = NOW()
	`, string(profile.ID), profile.Name, slotsJSON)
	if err != nil {
		return "", err
	}

	return profile.ID, nil
}
