package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/sitereport/sitereport/internal/model"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Repository stores run records in report_runs.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a run repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertRun writes the start record.
func (r *Repository) InsertRun(ctx context.Context, run *model.ReportRun) error {
	query := `
		INSERT INTO report_runs (
			id, client_id, report_month, trigger_type, status, started_at, output_keys, warning_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.ClientID,
		run.ReportMonth,
		string(run.Trigger),
		string(run.Status),
		run.StartedAt,
		pq.Array(run.OutputKeys()),
		run.WarningCount,
	)
	if err != nil {
		return fmt.Errorf("insert report run: %w", err)
	}
	return nil
}

// FinishRun upserts the terminal record. Only a started row is updated, so a
// terminal row is never rewritten.
func (r *Repository) FinishRun(ctx context.Context, run *model.ReportRun) error {
	query := `
		INSERT INTO report_runs (
			id, client_id, report_month, trigger_type, status, started_at,
			finished_at, output_keys, warning_count, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			output_keys = EXCLUDED.output_keys,
			warning_count = EXCLUDED.warning_count,
			error = EXCLUDED.error
		WHERE report_runs.status = 'started'
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.ClientID,
		run.ReportMonth,
		string(run.Trigger),
		string(run.Status),
		run.StartedAt,
		run.FinishedAt,
		pq.Array(run.OutputKeys()),
		run.WarningCount,
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("finish report run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id.
func (r *Repository) GetRun(ctx context.Context, id string) (*model.ReportRun, error) {
	query := `
		SELECT id, client_id, report_month, trigger_type, status, started_at,
			   finished_at, output_keys, warning_count, error
		FROM report_runs
		WHERE id = $1
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query report run: %w", err)
	}
	return run, nil
}

// ListRuns returns the newest runs of a client month.
func (r *Repository) ListRuns(ctx context.Context, clientID, monthKey string, limit int) ([]*model.ReportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, client_id, report_month, trigger_type, status, started_at,
			   finished_at, output_keys, warning_count, error
		FROM report_runs
		WHERE client_id = $1 AND report_month = $2
		ORDER BY started_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, clientID, monthKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query report runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.ReportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.ReportRun, error) {
	var (
		run     model.ReportRun
		trigger string
		status  string
		keys    []string
		errMsg  sql.NullString
	)
	if err := row.Scan(
		&run.ID,
		&run.ClientID,
		&run.ReportMonth,
		&trigger,
		&status,
		&run.StartedAt,
		&run.FinishedAt,
		pq.Array(&keys),
		&run.WarningCount,
		&errMsg,
	); err != nil {
		return nil, err
	}

	run.Trigger = model.TriggerType(trigger)
	run.Status = model.RunStatus(status)
	run.Error = errMsg.String
	for _, k := range keys {
		switch {
		case strings.HasSuffix(k, ".html"):
			run.HTMLKey = k
		case strings.HasSuffix(k, ".pdf"):
			run.PDFKey = k
		}
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
