package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-fcserver/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewStore(db.DB)
}

func TestAttachDetach(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.RecordAttach(ctx, "fadecandy", "FC01", "Fadecandy (Serial# FC01, Version 1.07)", t0)
	if err != nil {
		t.Fatalf("RecordAttach() error = %v", err)
	}
	if err := s.RecordDetach(ctx, id, t0.Add(time.Minute)); err != nil {
		t.Fatalf("RecordDetach() error = %v", err)
	}

	sessions, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Recent() returned %d sessions, want 1", len(sessions))
	}
	got := sessions[0]
	if got.ID != id || got.Type != "fadecandy" || got.Serial != "FC01" {
		t.Errorf("session = %+v", got)
	}
	if !got.AttachedAt.Equal(t0) {
		t.Errorf("AttachedAt = %v, want %v", got.AttachedAt, t0)
	}
	if got.DetachedAt == nil || !got.DetachedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("DetachedAt = %v, want %v", got.DetachedAt, t0.Add(time.Minute))
	}

	// A closed session cannot be closed again.
	if err := s.RecordDetach(ctx, id, t0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second RecordDetach() error = %v, want ErrSessionNotFound", err)
	}
}

func TestRecentOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if _, err := s.RecordAttach(ctx, "enttec", "", "Enttec DMX USB Pro (Serial# )", t0.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordAttach() error = %v", err)
		}
	}

	sessions, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("Recent() returned %d sessions, want 3", len(sessions))
	}
	for i := 1; i < len(sessions); i++ {
		if sessions[i].AttachedAt.After(sessions[i-1].AttachedAt) {
			t.Errorf("sessions not newest first: %v after %v", sessions[i].AttachedAt, sessions[i-1].AttachedAt)
		}
	}
	if sessions[0].DetachedAt != nil {
		t.Error("open session should have no DetachedAt")
	}
}

func TestCloseOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if _, err := s.RecordAttach(ctx, "fadecandy", "", "Fadecandy", t0); err != nil {
			t.Fatalf("RecordAttach() error = %v", err)
		}
	}

	n, err := s.CloseOpen(ctx, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("CloseOpen() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CloseOpen() closed %d sessions, want 2", n)
	}
}
