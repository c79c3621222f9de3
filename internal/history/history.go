// Package history records when devices were attached and removed.
//
// Sessions live in the device_sessions SQLite table (see migrations/).
// The coordinator writes one row per attach and closes it on removal;
// clients read the latest rows through the device_history control message.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when closing a session that does not exist.
var ErrSessionNotFound = errors.New("history: session not found")

// Session is one attach/detach interval of a device.
type Session struct {
	ID         int64      `json:"id"`
	Type       string     `json:"type"`
	Serial     string     `json:"serial,omitempty"`
	Name       string     `json:"name"`
	AttachedAt time.Time  `json:"attached_at"`
	DetachedAt *time.Time `json:"detached_at,omitempty"`
}

// Store persists sessions in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordAttach opens a session and returns its id.
func (s *Store) RecordAttach(ctx context.Context, typ, serial, name string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO device_sessions (type, serial, name, attached_at) VALUES (?, ?, ?, ?)`,
		typ, serial, name, at.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading session id: %w", err)
	}
	return id, nil
}

// RecordDetach closes a session.
func (s *Store) RecordDetach(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE device_sessions SET detached_at = ? WHERE id = ? AND detached_at IS NULL`,
		at.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("updating session %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	return nil
}

// CloseOpen marks every session still open as detached at t. Used at
// startup after an unclean shutdown.
func (s *Store) CloseOpen(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE device_sessions SET detached_at = ? WHERE detached_at IS NULL`,
		at.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("closing open sessions: %w", err)
	}
	return res.RowsAffected()
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, serial, name, attached_at, detached_at
		 FROM device_sessions
		 ORDER BY attached_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0, limit)
	for rows.Next() {
		var (
			sess     Session
			attached int64
			detached sql.NullInt64
		)
		if err := rows.Scan(&sess.ID, &sess.Type, &sess.Serial, &sess.Name, &attached, &detached); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.AttachedAt = time.UnixMilli(attached).UTC()
		if detached.Valid {
			t := time.UnixMilli(detached.Int64).UTC()
			sess.DetachedAt = &t
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}
