package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/andresuchdata/manifest-ingest/internal/repository/postgres"
)

const runColumns = `id, run_id, bucket, manifest_key, output_bucket, status, total_entries,
       processed_entries, total_rows, started_at, completed_at, error_message`

// Repository handles database operations for run tracking
type Repository struct {
	db *postgres.DB
}

// NewRepository creates a new tracking repository
func NewRepository(db *postgres.DB) *Repository {
	return &Repository{db: db}
}

// StartRun inserts a run record
func (r *Repository) StartRun(ctx context.Context, run *ManifestRun) error {
	query := `
		INSERT INTO manifest_runs (
			run_id, bucket, manifest_key, output_bucket, status,
			total_entries, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.QueryRowxContext(
		ctx, query,
		run.RunID, run.Bucket, run.Key, run.OutputBucket, run.Status,
		run.TotalEntries, run.StartedAt,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("insert manifest run: %w", err)
	}
	return nil
}

// SetRunStatus moves a run to run.Status
func (r *Repository) SetRunStatus(ctx context.Context, run *ManifestRun) error {
	_, err := r.db.ExecContext(ctx, `UPDATE manifest_runs SET status = $1 WHERE id = $2`, run.Status, run.ID)
	if err != nil {
		return fmt.Errorf("update manifest run status: %w", err)
	}
	return nil
}

// FinishRun stores the terminal state of a run
func (r *Repository) FinishRun(ctx context.Context, run *ManifestRun) error {
	query := `
		UPDATE manifest_runs
		SET status = $1, output_bucket = $2, completed_at = $3, error_message = $4
		WHERE id = $5
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.OutputBucket, run.CompletedAt, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update manifest run: %w", err)
	}
	return nil
}

// StartEntry inserts an entry record
func (r *Repository) StartEntry(ctx context.Context, job *EntryJob) error {
	query := `
		INSERT INTO manifest_entries (
			run_id, file_name, data_type, source_key, dest_key, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.QueryRowxContext(
		ctx, query,
		job.RunID, job.FileName, job.DataType, job.SourceKey, job.DestKey, job.Status, job.StartedAt,
	).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("insert manifest entry: %w", err)
	}
	return nil
}

// SetEntryStatus moves an entry to job.Status
func (r *Repository) SetEntryStatus(ctx context.Context, job *EntryJob) error {
	_, err := r.db.ExecContext(ctx, `UPDATE manifest_entries SET status = $1 WHERE id = $2`, job.Status, job.ID)
	if err != nil {
		return fmt.Errorf("update manifest entry status: %w", err)
	}
	return nil
}

// FinishEntry stores the entry outcome and, when it completed, adds it to the
// run counters in the same transaction.
func (r *Repository) FinishEntry(ctx context.Context, job *EntryJob) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE manifest_entries
			SET status = $1, row_count = $2, source_hash = $3, dest_hash = $4,
			    error_message = $5, processed_at = $6
			WHERE id = $7
		`, job.Status, job.RowCount, job.SourceHash, job.DestHash, job.ErrorMessage, job.ProcessedAt, job.ID)
		if err != nil {
			return fmt.Errorf("update manifest entry: %w", err)
		}

		if job.Status != EntryStatusCompleted {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE manifest_runs
			SET processed_entries = processed_entries + 1, total_rows = total_rows + $1
			WHERE id = $2
		`, job.RowCount, job.RunID)
		if err != nil {
			return fmt.Errorf("update manifest run counters: %w", err)
		}
		return nil
	})
}

// GetRun retrieves a run by its correlation id. It returns nil when no run matches.
func (r *Repository) GetRun(ctx context.Context, runID string) (*ManifestRun, error) {
	run := &ManifestRun{}
	err := r.db.GetContext(ctx, run, `SELECT `+runColumns+` FROM manifest_runs WHERE run_id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get manifest run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs in any of the given states.
func (r *Repository) ListRuns(ctx context.Context, statuses []RunStatus, limit int) ([]ManifestRun, error) {
	query := `SELECT ` + runColumns + ` FROM manifest_runs
		WHERE status = ANY($1)
		ORDER BY started_at DESC
		LIMIT $2`

	states := lo.Map(statuses, func(s RunStatus, _ int) string { return string(s) })

	var runs []ManifestRun
	if err := r.db.SelectContext(ctx, &runs, query, pq.Array(states), limit); err != nil {
		return nil, fmt.Errorf("list manifest runs: %w", err)
	}
	return runs, nil
}

// ListEntries returns the entries of a run in processing order
func (r *Repository) ListEntries(ctx context.Context, runID int64) ([]EntryJob, error) {
	query := `
		SELECT id, run_id, file_name, data_type, source_key, dest_key, status, row_count,
		       source_hash, dest_hash, error_message, started_at, processed_at
		FROM manifest_entries
		WHERE run_id = $1
		ORDER BY id
	`

	var jobs []EntryJob
	if err := r.db.SelectContext(ctx, &jobs, query, runID); err != nil {
		return nil, fmt.Errorf("list manifest entries: %w", err)
	}
	return jobs, nil
}

var _ Tracker = (*Repository)(nil)
