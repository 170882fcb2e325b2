// Package statecache persists a disposable snapshot of the conversation
// list to SQLite so a restarted client can paint the inbox before the first
// network fetch lands. Server data always overwrites the snapshot; every
// failure here is non-fatal to the session.
package statecache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wanderdesk/wanderdesk/internal/inbox"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id             TEXT PRIMARY KEY,
	participant_id TEXT NOT NULL,
	participant_name TEXT NOT NULL,
	participant_email TEXT NOT NULL DEFAULT '',
	participant_avatar TEXT NOT NULL DEFAULT '',
	booking_ref    TEXT NOT NULL DEFAULT '',
	preview_body   TEXT NOT NULL DEFAULT '',
	preview_time   TEXT NOT NULL DEFAULT '',
	unread         INTEGER NOT NULL DEFAULT 0,
	archived       INTEGER NOT NULL DEFAULT 0
);
`

// Store is the snapshot cache handle.
type Store struct {
	db *sql.DB
}

// Open creates or opens the snapshot database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure cache schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveConversations replaces the cached snapshot with the given set.
func (s *Store) SaveConversations(ctx context.Context, convs []inbox.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations (
			id, participant_id, participant_name, participant_email,
			participant_avatar, booking_ref, preview_body, preview_time,
			unread, archived
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, conv := range convs {
		_, err := stmt.ExecContext(ctx,
			conv.ID,
			conv.Participant.ID,
			conv.Participant.Name,
			conv.Participant.Email,
			conv.Participant.AvatarURL,
			conv.BookingRef,
			conv.LastPreview.Body,
			formatTime(conv.LastPreview.Time),
			conv.Unread,
			boolToInt(conv.Archived),
		)
		if err != nil {
			return fmt.Errorf("insert snapshot row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot save: %w", err)
	}
	return nil
}

// LoadConversations returns the cached snapshot, most recent first.
func (s *Store) LoadConversations(ctx context.Context) ([]inbox.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, participant_id, participant_name, participant_email,
			participant_avatar, booking_ref, preview_body, preview_time,
			unread, archived
		FROM conversations
		ORDER BY preview_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var convs []inbox.Conversation
	for rows.Next() {
		var (
			conv        inbox.Conversation
			previewTime string
			archived    int
		)
		err := rows.Scan(
			&conv.ID,
			&conv.Participant.ID,
			&conv.Participant.Name,
			&conv.Participant.Email,
			&conv.Participant.AvatarURL,
			&conv.BookingRef,
			&conv.LastPreview.Body,
			&previewTime,
			&conv.Unread,
			&archived,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		conv.LastPreview.Time = parseTime(previewTime)
		conv.Archived = archived != 0
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return convs, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
