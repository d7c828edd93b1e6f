// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/samia-tarot/providerd/internal/store"
	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

// Compile-time interface check.
var _ store.History = (*HistoryStore)(nil)

// HistoryStore implements store.History backed by SQLite.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens (or creates) a SQLite database at dbPath and
// initialises the executions table.
func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, sterr.Wrapf(err, sterr.CodeStoreDatabaseFailure, "opening history db %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, sterr.Wrapf(err, sterr.CodeStoreDatabaseFailure, "pinging history db %s", dbPath)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, sterr.Wrapf(err, sterr.CodeStoreDatabaseFailure, "migrating history db %s", dbPath)
	}

	return &HistoryStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS executions (
	id               TEXT PRIMARY KEY,
	provider         TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	success          INTEGER NOT NULL,
	attempted_count  INTEGER NOT NULL DEFAULT 0,
	response_time_ns INTEGER NOT NULL DEFAULT 0,
	error            TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_created ON executions(created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

func (s *HistoryStore) RecordExecution(ctx context.Context, rec store.ExecutionRecord) error {
	if rec.ID == "" {
		return sterr.New(sterr.CodeStoreInvalidInput, "execution record id must not be empty")
	}

	const q = `INSERT INTO executions (id, provider, category, success, attempted_count, response_time_ns, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.Provider,
		rec.Category,
		boolToInt(rec.Success),
		rec.AttemptedCount,
		rec.ResponseTime.Nanoseconds(),
		rec.Error,
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return sterr.Wrapf(err, sterr.CodeStoreDatabaseFailure, "recording execution %s", rec.ID)
	}
	return nil
}

func (s *HistoryStore) ListExecutions(ctx context.Context, limit int) ([]store.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	const q = `SELECT id, provider, category, success, attempted_count, response_time_ns, error, created_at
FROM executions ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, sterr.Wrap(err, sterr.CodeStoreDatabaseFailure, "listing executions")
	}
	defer rows.Close()

	var recs []store.ExecutionRecord
	for rows.Next() {
		var rec store.ExecutionRecord
		var success int
		var responseNS int64
		var createdAt string
		if err := rows.Scan(
			&rec.ID,
			&rec.Provider,
			&rec.Category,
			&success,
			&rec.AttemptedCount,
			&responseNS,
			&rec.Error,
			&createdAt,
		); err != nil {
			return nil, sterr.Wrap(err, sterr.CodeStoreDatabaseFailure, "scanning execution row")
		}
		rec.Success = success != 0
		rec.ResponseTime = time.Duration(responseNS)
		rec.CreatedAt = parseTime(createdAt)
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, sterr.Wrap(err, sterr.CodeStoreDatabaseFailure, "iterating execution rows")
	}
	return recs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
