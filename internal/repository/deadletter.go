package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"assetintel/internal/models"
)

const deadletterColumns = `id, org_id, run_id, asset_id, processor_name, processor_version,
	task_name, job_try, error_summary, error_raw, failed_at, requeued_at`

// InsertDeadletterEvent writes the audit row for an exhausted run.
func (r *Repository) InsertDeadletterEvent(ctx context.Context, ev *models.DeadletterEvent) (*models.DeadletterEvent, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO deadletter_events (org_id, run_id, asset_id, processor_name, processor_version,
			task_name, job_try, error_summary, error_raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+deadletterColumns,
		ev.OrgID, ev.RunID, ev.AssetID, ev.ProcessorName, ev.ProcessorVersion,
		ev.TaskName, ev.JobTry, ev.ErrorSummary, ev.ErrorRaw)
	return scanDeadletter(row)
}

func scanDeadletter(row pgx.Row) (*models.DeadletterEvent, error) {
	var ev models.DeadletterEvent
	err := row.Scan(&ev.ID, &ev.OrgID, &ev.RunID, &ev.AssetID, &ev.ProcessorName,
		&ev.ProcessorVersion, &ev.TaskName, &ev.JobTry, &ev.ErrorSummary,
		&ev.ErrorRaw, &ev.FailedAt, &ev.RequeuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// LatestDeadletterForRun returns the newest not-yet-requeued event for a run.
func (r *Repository) LatestDeadletterForRun(ctx context.Context, runID uuid.UUID) (*models.DeadletterEvent, error) {
	return scanDeadletter(r.db.QueryRow(ctx, `
		SELECT `+deadletterColumns+`
		FROM deadletter_events
		WHERE run_id = $1 AND requeued_at IS NULL
		ORDER BY failed_at DESC
		LIMIT 1`, runID))
}

// LatestDeadletterForAsset returns the newest not-yet-requeued event for an
// asset, optionally filtered by processor name.
func (r *Repository) LatestDeadletterForAsset(ctx context.Context, orgID, assetID uuid.UUID, processorName string) (*models.DeadletterEvent, error) {
	if processorName != "" {
		return scanDeadletter(r.db.QueryRow(ctx, `
			SELECT `+deadletterColumns+`
			FROM deadletter_events
			WHERE org_id = $1 AND asset_id = $2 AND processor_name = $3 AND requeued_at IS NULL
			ORDER BY failed_at DESC
			LIMIT 1`, orgID, assetID, processorName))
	}
	return scanDeadletter(r.db.QueryRow(ctx, `
		SELECT `+deadletterColumns+`
		FROM deadletter_events
		WHERE org_id = $1 AND asset_id = $2 AND requeued_at IS NULL
		ORDER BY failed_at DESC
		LIMIT 1`, orgID, assetID))
}

// ListDeadletterEvents pages the audit table, newest first.
func (r *Repository) ListDeadletterEvents(ctx context.Context, limit, offset int) ([]models.DeadletterEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+deadletterColumns+`
		FROM deadletter_events
		ORDER BY failed_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deadletter events: %w", err)
	}
	defer rows.Close()

	var events []models.DeadletterEvent
	for rows.Next() {
		var ev models.DeadletterEvent
		err := rows.Scan(&ev.ID, &ev.OrgID, &ev.RunID, &ev.AssetID, &ev.ProcessorName,
			&ev.ProcessorVersion, &ev.TaskName, &ev.JobTry, &ev.ErrorSummary,
			&ev.ErrorRaw, &ev.FailedAt, &ev.RequeuedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deadletter event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkDeadletterRequeued stamps the event once its run has been requeued.
func (r *Repository) MarkDeadletterRequeued(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE deadletter_events SET requeued_at = NOW()
		WHERE id = $1 AND requeued_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to mark requeued: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
