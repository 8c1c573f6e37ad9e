// Package journal persists one row per intervention attempt in sqlite.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/pulseguard/internal/model"

	_ "modernc.org/sqlite"
)

// Statuses of a journal entry.
const (
	StatusPending = "pending"
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
)

// tsLayout has fixed width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one intervention attempt.
type Entry struct {
	ID         string          `json:"intervention_id"`
	Type       string          `json:"type"`
	HeartRate  float64         `json:"heart_rate"`
	Risk       string          `json:"risk_level"`
	Message    string          `json:"message"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Status     string          `json:"status"`
	Detail     string          `json:"detail,omitempty"`
	Outcome    json.RawMessage `json:"outcome,omitempty"`
}

// Store is the sqlite-backed journal.
type Store struct {
	db *sql.DB
}

// Open creates or opens the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	for _, pragma := range []string{`PRAGMA journal_mode = WAL`, `PRAGMA busy_timeout = 5000`} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure journal db (%s): %w", pragma, err)
		}
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS interventions (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	heart_rate REAL NOT NULL,
	risk TEXT NOT NULL,
	message TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	outcome_json TEXT
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin records a new pending intervention.
func (s *Store) Begin(ctx context.Context, b model.Breach) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interventions (id, type, heart_rate, risk, message, started_at, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Type, b.HeartRate, string(b.Risk), b.Message,
		b.Timestamp.UTC().Format(tsLayout), StatusPending,
	)
	if err != nil {
		return fmt.Errorf("journal begin %s: %w", b.ID, err)
	}
	return nil
}

// Finish resolves a pending intervention.
func (s *Store) Finish(ctx context.Context, id, status, detail string, out *model.Outcome, at time.Time) error {
	var outcome sql.NullString
	if out != nil {
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshal outcome: %w", err)
		}
		outcome = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE interventions SET finished_at = ?, status = ?, detail = ?, outcome_json = ? WHERE id = ?`,
		at.UTC().Format(tsLayout), status, detail, outcome, id,
	)
	if err != nil {
		return fmt.Errorf("journal finish %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("journal finish %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Get returns one entry.
func (s *Store) Get(ctx context.Context, id string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, selectEntry+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("query intervention %q: %w", id, err)
	}
	return e, true, nil
}

// List returns the most recent entries, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	q := selectEntry + ` ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list interventions: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intervention row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intervention rows: %w", err)
	}
	return out, nil
}

const selectEntry = `SELECT id, type, heart_rate, risk, message, started_at, finished_at, status, detail, outcome_json FROM interventions`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e        Entry
		started  string
		finished sql.NullString
		outcome  sql.NullString
	)
	if err := sc.Scan(&e.ID, &e.Type, &e.HeartRate, &e.Risk, &e.Message, &started, &finished, &e.Status, &e.Detail, &outcome); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(tsLayout, started)
	if err != nil {
		return Entry{}, fmt.Errorf("parse started_at: %w", err)
	}
	e.StartedAt = t
	if finished.Valid {
		ft, err := time.Parse(tsLayout, finished.String)
		if err != nil {
			return Entry{}, fmt.Errorf("parse finished_at: %w", err)
		}
		e.FinishedAt = &ft
	}
	if outcome.Valid {
		e.Outcome = json.RawMessage(outcome.String)
	}
	return e, nil
}
