// Package store holds the durable side of a research run: a relational
// ledger row recording that a run happened (terminal audit, not the
// intermediate Research State) and a document-store blob of its findings.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRunNotFound is returned when a run ID has no ledger row.
var ErrRunNotFound = errors.New("research run not found")

// Run is one row of the research_runs ledger: inserted by Create when a run
// starts, and completed by Complete with the terminal outcome once the run's
// synthesis step has succeeded or failed.
type Run struct {
	ID             string     `json:"id"`
	Topic          string     `json:"topic"`
	Success        bool       `json:"success"`
	CompletedSteps int        `json:"completedSteps"`
	TotalSteps     int        `json:"totalSteps"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

// RunStore is the pgx-backed relational ledger, with hand-written SQL in
// place of a generated query package.
type RunStore struct {
	pool *pgxpool.Pool
}

func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// EnsureSchema creates the research_runs table if it does not already
// exist. Called once at startup; idempotent.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS research_runs (
			id              TEXT PRIMARY KEY,
			topic           TEXT NOT NULL,
			success         BOOLEAN NOT NULL DEFAULT FALSE,
			completed_steps INTEGER NOT NULL DEFAULT 0,
			total_steps     INTEGER NOT NULL DEFAULT 0,
			error           TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at     TIMESTAMPTZ
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure research_runs schema: %w", err)
	}
	return nil
}

// Create inserts the ledger row for a newly started run.
func (s *RunStore) Create(ctx context.Context, runID, topic string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO research_runs (id, topic) VALUES ($1, $2)
	`, runID, topic)
	if err != nil {
		return fmt.Errorf("insert research run: %w", err)
	}
	return nil
}

// Complete records a run's terminal outcome.
func (s *RunStore) Complete(ctx context.Context, runID string, success bool, completedSteps, totalSteps int, resultErr string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE research_runs
		SET success = $2, completed_steps = $3, total_steps = $4, error = $5, finished_at = now()
		WHERE id = $1
	`, runID, success, completedSteps, totalSteps, resultErr)
	if err != nil {
		return fmt.Errorf("complete research run: %w", err)
	}
	return nil
}

// Get fetches one run's ledger row.
func (s *RunStore) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, topic, success, completed_steps, total_steps, error, created_at, finished_at
		FROM research_runs WHERE id = $1
	`, runID)

	var run Run
	if err := row.Scan(&run.ID, &run.Topic, &run.Success, &run.CompletedSteps, &run.TotalSteps, &run.Error, &run.CreatedAt, &run.FinishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("get research run: %w", err)
	}
	return &run, nil
}
