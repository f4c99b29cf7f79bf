package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sitereport/sitereport/internal/model"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a client month.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// UpsertSnapshot writes the snapshot row for (client, month), replacing any
// previous row and artifact keys for that identity.
func (r *Repository) UpsertSnapshot(ctx context.Context, rec *model.SnapshotRecord) error {
	payload, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	query := `
		INSERT INTO report_snapshots (client_id, report_month, zone_id, domain, timezone, generated_at, html_key, pdf_key, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (client_id, report_month) DO UPDATE SET
			zone_id = EXCLUDED.zone_id,
			domain = EXCLUDED.domain,
			timezone = EXCLUDED.timezone,
			generated_at = EXCLUDED.generated_at,
			html_key = EXCLUDED.html_key,
			pdf_key = EXCLUDED.pdf_key,
			snapshot = EXCLUDED.snapshot,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		rec.ClientID,
		rec.ReportMonth,
		rec.ZoneID,
		rec.Domain,
		rec.Timezone,
		rec.GeneratedAt,
		rec.Artifacts.HTML,
		rec.Artifacts.PDF,
		payload,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	return nil
}

// GetSnapshot returns the stored snapshot row for a client month.
func (r *Repository) GetSnapshot(ctx context.Context, clientID, monthKey string) (*model.SnapshotRecord, error) {
	query := `
		SELECT client_id, report_month, zone_id, domain, timezone, generated_at, html_key, pdf_key, snapshot, created_at, updated_at
		FROM report_snapshots
		WHERE client_id = $1 AND report_month = $2
	`

	var (
		rec     model.SnapshotRecord
		payload []byte
	)
	err := r.pool.QueryRow(ctx, query, clientID, monthKey).Scan(
		&rec.ClientID,
		&rec.ReportMonth,
		&rec.ZoneID,
		&rec.Domain,
		&rec.Timezone,
		&rec.GeneratedAt,
		&rec.Artifacts.HTML,
		&rec.Artifacts.PDF,
		&payload,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	rec.Snapshot = &model.ReportSnapshot{}
	if err := json.Unmarshal(payload, rec.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return &rec, nil
}

// ListSnapshotMonths returns the months with a stored snapshot for a client,
// newest first.
func (r *Repository) ListSnapshotMonths(ctx context.Context, clientID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT report_month FROM report_snapshots
		WHERE client_id = $1
		ORDER BY report_month DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	months, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot months: %w", err)
	}
	return months, nil
}
