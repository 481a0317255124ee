package store

import (
	"context"
	"errors"

	"github.com/gabepages/botkit/internal/models"
)

// ErrNotFound is returned by Get when no profile exists for the identity.
// Callers must treat it differently from a storage failure: absence means
// "ask the user", a failed backend means "retry later" (never "absent").
var ErrNotFound = errors.New("profile not found")

// ErrMissingIdentity is returned by Save when the profile has no ID.
var ErrMissingIdentity = errors.New("profile identity is required")

// SlotStore is the per-identity key-value persistence boundary. Save is a
// full-record upsert; merging new fields into an existing profile is the
// calling handler's job (read-modify-write). Every implementation
// serializes Save calls for the same identity.
type SlotStore interface {
	Get(ctx context.Context, id models.Identity) (*models.Profile, error)
	Save(ctx context.Context, profile *models.Profile) (models.Identity, error)
	Ping(ctx context.Context) error
	Close() error
}
