package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gabepages/botkit/internal/models"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "U1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	in := &models.Profile{ID: "U1", Name: "Gabe", Slots: map[string]string{"tz": "UTC"}}
	if _, err := s.Save(ctx, in); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "U1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "U1" || got.Name != "Gabe" || got.Slots["tz"] != "UTC" {
		t.Fatalf("got %+v", got)
	}
}

func TestSQLiteStoreUpsert(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, &models.Profile{ID: "U1", Name: "Gabe"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, &models.Profile{ID: "U1", Name: "Gabriel", Slots: map[string]string{"team": "infra"}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "U1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Gabriel" || got.Slots["team"] != "infra" {
		t.Fatalf("got %+v", got)
	}
}

func TestSQLiteStoreSaveRequiresIdentity(t *testing.T) {
	s := newSQLite(t)
	if _, err := s.Save(context.Background(), &models.Profile{}); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("err = %v, want ErrMissingIdentity", err)
	}
}
