// Package session keeps plain-text research transcripts in SQLite.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Session is one transcript row.
type Session struct {
	ID        string    `db:"id" json:"id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// database/sql pools connections and each :memory: connection is its own
	// database, so keep a single one. SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Create starts an empty transcript and returns its 8-character id.
func (s *Store) Create(ctx context.Context) (string, error) {
	now := time.Now().UTC()
	for range 3 {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, content, created_at, updated_at) VALUES (?, '', ?, ?)`,
			id, now, now)
		if err == nil {
			return id, nil
		}
		if !isConstraint(err) {
			return "", fmt.Errorf("create session: %w", err)
		}
	}
	return "", errors.New("create session: id collisions")
}

// Append adds text plus a trailing newline to the transcript.
func (s *Store) Append(ctx context.Context, id, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET content = content || ?, updated_at = ? WHERE id = ?`,
		text+"\n", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("append session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Read(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.GetContext(ctx, &sess,
		`SELECT id, content, created_at, updated_at FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	return &sess, nil
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
