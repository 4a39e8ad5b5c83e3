// Package store persists completed refinement runs in SQLite so past runs
// can be listed and re-inspected from the CLI.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/charleslwang/Lumara/internal"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS refinement_runs (
		id TEXT PRIMARY KEY,
		original_prompt TEXT NOT NULL,
		initial_output TEXT NOT NULL,
		model_id TEXT NOT NULL,
		refined_output TEXT NOT NULL,
		overall REAL NOT NULL,
		iteration_count INTEGER NOT NULL,
		stopped BOOLEAN DEFAULT FALSE,
		-- full RefinementResult in the canonical interchange JSON shape
		session_json TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_prompt ON refinement_runs(original_prompt);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON refinement_runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun persists a finished run together with its full iteration history.
func (s *Store) SaveRun(ctx context.Context, req internal.RefinementRequest, res *internal.RefinementResult) error {
	sessionJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO refinement_runs (id, original_prompt, initial_output, model_id, refined_output, overall, iteration_count, stopped, session_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, normalizeText(req.Prompt), req.InitialOutput, req.ModelID,
		res.RefinedOutput, res.Scores.Overall, len(res.Iterations), res.Stopped,
		string(sessionJSON), req.Timestamp)
	return err
}

// RunEntry is a row from the refinement_runs table without the full history.
type RunEntry struct {
	ID             string
	Prompt         string
	ModelID        string
	RefinedOutput  string
	Overall        float64
	IterationCount int
	Stopped        bool
	CreatedAt      time.Time
}

// GetRun returns a run's metadata and its full RefinementResult.
func (s *Store) GetRun(ctx context.Context, id string) (*RunEntry, *internal.RefinementResult, error) {
	var e RunEntry
	var sessionJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, original_prompt, model_id, refined_output, overall, iteration_count, stopped, session_json, created_at
		 FROM refinement_runs WHERE id = ?`, id).
		Scan(&e.ID, &e.Prompt, &e.ModelID, &e.RefinedOutput, &e.Overall, &e.IterationCount, &e.Stopped, &sessionJSON, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, nil, err
	}

	var res internal.RefinementResult
	if err := json.Unmarshal([]byte(sessionJSON), &res); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	res.Stopped = e.Stopped

	return &e, &res, nil
}

// ListRuns returns all runs ordered by most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]RunEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, original_prompt, model_id, refined_output, overall, iteration_count, stopped, created_at
		 FROM refinement_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		if err := rows.Scan(&e.ID, &e.Prompt, &e.ModelID, &e.RefinedOutput, &e.Overall, &e.IterationCount, &e.Stopped, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteRun permanently removes a run by ID.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refinement_runs WHERE id = ?`, id)
	return err
}

// ClearRuns removes all runs and reports how many were deleted.
func (s *Store) ClearRuns(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refinement_runs`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats summarises run history.
type Stats struct {
	TotalRuns       int
	AverageOverall  float64
	BestOverall     float64
	TotalIterations int
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(AVG(overall), 0),
			COALESCE(MAX(overall), 0),
			COALESCE(SUM(iteration_count), 0)
		FROM refinement_runs`).Scan(
		&stats.TotalRuns,
		&stats.AverageOverall,
		&stats.BestOverall,
		&stats.TotalIterations,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization so
// the same prompt always indexes identically.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
