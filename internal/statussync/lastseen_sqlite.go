package statussync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"membership-backend/internal/domain"
)

var _ LastSeenStore = (*SQLiteLastSeenStore)(nil)

const lastSeenSchema = `
CREATE TABLE IF NOT EXISTS session_last_seen (
	user_id    TEXT NOT NULL,
	client_id  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, client_id)
)`

// SQLiteLastSeenStore keeps last-seen statuses in a local SQLite file so
// they survive a server restart.
type SQLiteLastSeenStore struct {
	db *sql.DB
}

// NewSQLiteLastSeenStore opens (creating if needed) the database at dbPath.
func NewSQLiteLastSeenStore(dbPath string) (*SQLiteLastSeenStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer keeps SQLite from returning SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(lastSeenSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session_last_seen table: %w", err)
	}
	return &SQLiteLastSeenStore{db: db}, nil
}

func (s *SQLiteLastSeenStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteLastSeenStore) Get(ctx context.Context, key SessionKey) (domain.RegistrationStatus, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		"SELECT status FROM session_last_seen WHERE user_id = ? AND client_id = ?",
		string(key.UserID), key.ClientID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read last seen status: %w", err)
	}
	return domain.RegistrationStatus(status), true, nil
}

func (s *SQLiteLastSeenStore) Set(ctx context.Context, key SessionKey, status domain.RegistrationStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_last_seen (user_id, client_id, status, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, client_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		string(key.UserID), key.ClientID, string(status), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store last seen status: %w", err)
	}
	return nil
}

func (s *SQLiteLastSeenStore) Clear(ctx context.Context, key SessionKey) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM session_last_seen WHERE user_id = ? AND client_id = ?",
		string(key.UserID), key.ClientID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear last seen status: %w", err)
	}
	return nil
}

func (s *SQLiteLastSeenStore) ClearUser(ctx context.Context, userID domain.ID) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_last_seen WHERE user_id = ?", string(userID)); err != nil {
		return fmt.Errorf("failed to clear last seen statuses: %w", err)
	}
	return nil
}
