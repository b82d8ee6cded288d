// Package history journals the outcome of install transactions so failures
// can be reported after the fact. It is written by the driver, never by the
// transaction itself.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teamcutter/nest/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    repository  TEXT NOT NULL,
    category    TEXT NOT NULL,
    name        TEXT NOT NULL,
    version     TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    kind        TEXT NOT NULL DEFAULT '',
    message     TEXT NOT NULL DEFAULT '',
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS transactions_package
    ON transactions (repository, category, name, version);
`

type Outcome string

const (
	Committed Outcome = "committed"
	Failed    Outcome = "failed"
)

type Entry struct {
	Target     domain.PackageID
	Outcome    Outcome
	Kind       string
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

type SQLiteHistory struct {
	mu sync.RWMutex
	db *sql.DB
}

func Open(dbPath string) (*SQLiteHistory, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteHistory{db: db}, nil
}

func (h *SQLiteHistory) Record(e Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO transactions
		(repository, category, name, version, outcome, kind, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Target.Repository, e.Target.Category, e.Target.Name, e.Target.Version,
		string(e.Outcome), e.Kind, e.Message,
		e.StartedAt.UTC().Format(time.RFC3339Nano), e.FinishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Recent returns up to limit entries, newest first.
func (h *SQLiteHistory) Recent(limit int) ([]Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.query(`
		SELECT repository, category, name, version, outcome, kind, message, started_at, finished_at
		FROM transactions ORDER BY id DESC LIMIT ?`, limit)
}

// Last returns the most recent entry for id, or nil if it was never installed.
func (h *SQLiteHistory) Last(id domain.PackageID) (*Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries, err := h.query(`
		SELECT repository, category, name, version, outcome, kind, message, started_at, finished_at
		FROM transactions
		WHERE repository = ? AND category = ? AND name = ? AND version = ?
		ORDER BY id DESC LIMIT 1`,
		id.Repository, id.Category, id.Name, id.Version)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (h *SQLiteHistory) query(q string, args ...any) ([]Entry, error) {
	rows, err := h.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var outcome, startedAt, finishedAt string

		if err := rows.Scan(&e.Target.Repository, &e.Target.Category, &e.Target.Name, &e.Target.Version,
			&outcome, &e.Kind, &e.Message, &startedAt, &finishedAt); err != nil {
			return nil, err
		}

		e.Outcome = Outcome(outcome)
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}
