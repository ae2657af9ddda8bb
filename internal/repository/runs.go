package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"assetintel/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const runColumns = `id, org_id, asset_id, processor_name, processor_version, status,
	error_message, created_at, completed_at, cancel_requested, canceled_at,
	input_fingerprint_signature, progress_current, progress_total, progress_message,
	estimated_cost_cents, retry_count, last_retry_at`

func scanRun(row pgx.Row) (*models.Run, error) {
	var run models.Run
	err := row.Scan(
		&run.ID, &run.OrgID, &run.AssetID, &run.ProcessorName, &run.ProcessorVersion,
		&run.Status, &run.ErrorMessage, &run.CreatedAt, &run.CompletedAt,
		&run.CancelRequested, &run.CanceledAt, &run.InputFingerprintSignature,
		&run.ProgressCurrent, &run.ProgressTotal, &run.ProgressMessage,
		&run.EstimatedCostCents, &run.RetryCount, &run.LastRetryAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// CreateRun inserts a new pending run and returns it with generated fields.
// The input signature binds the run to the content identity it was admitted
// against; nil when no fingerprint exists yet or for fingerprint runs.
func (r *Repository) CreateRun(ctx context.Context, orgID, assetID uuid.UUID, processorName, processorVersion string, costCents int, inputSignature *string) (*models.Run, error) {
	query := `
		INSERT INTO intelligence_runs (org_id, asset_id, processor_name, processor_version, status, estimated_cost_cents, input_fingerprint_signature)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		RETURNING ` + runColumns

	run, err := scanRun(r.db.QueryRow(ctx, query, orgID, assetID, processorName, processorVersion, costCents, inputSignature))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun fetches a run by id without tenant scoping. Worker-side use only.
func (r *Repository) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM intelligence_runs WHERE id = $1`
	return scanRun(r.db.QueryRow(ctx, query, runID))
}

// GetRunForOrg fetches a run scoped to its tenant.
func (r *Repository) GetRunForOrg(ctx context.Context, orgID, runID uuid.UUID) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM intelligence_runs WHERE id = $1 AND org_id = $2`
	return scanRun(r.db.QueryRow(ctx, query, runID, orgID))
}

// LatestRunFor returns the most recent run for an (asset, processor, version)
// triple, or ErrNotFound when none exists.
func (r *Repository) LatestRunFor(ctx context.Context, orgID, assetID uuid.UUID, processorName, processorVersion string) (*models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM intelligence_runs
		WHERE org_id = $1 AND asset_id = $2 AND processor_name = $3 AND processor_version = $4
		ORDER BY created_at DESC
		LIMIT 1`
	return scanRun(r.db.QueryRow(ctx, query, orgID, assetID, processorName, processorVersion))
}

// LatestRunByProcessor returns the most recent run for an (asset, processor)
// pair regardless of version.
func (r *Repository) LatestRunByProcessor(ctx context.Context, orgID, assetID uuid.UUID, processorName string) (*models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM intelligence_runs
		WHERE org_id = $1 AND asset_id = $2 AND processor_name = $3
		ORDER BY created_at DESC
		LIMIT 1`
	return scanRun(r.db.QueryRow(ctx, query, orgID, assetID, processorName))
}

// ListRunsForAsset returns runs for an asset, newest first.
func (r *Repository) ListRunsForAsset(ctx context.Context, orgID, assetID uuid.UUID, limit, offset int) ([]models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM intelligence_runs
		WHERE org_id = $1 AND asset_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.Query(ctx, query, orgID, assetID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListCompletedRunsForAsset returns completed runs for an asset, newest first.
func (r *Repository) ListCompletedRunsForAsset(ctx context.Context, orgID, assetID uuid.UUID) ([]models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM intelligence_runs
		WHERE org_id = $1 AND asset_id = $2 AND status = 'completed'
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, orgID, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

func collectRuns(rows pgx.Rows) ([]models.Run, error) {
	var runs []models.Run
	for rows.Next() {
		var run models.Run
		err := rows.Scan(
			&run.ID, &run.OrgID, &run.AssetID, &run.ProcessorName, &run.ProcessorVersion,
			&run.Status, &run.ErrorMessage, &run.CreatedAt, &run.CompletedAt,
			&run.CancelRequested, &run.CanceledAt, &run.InputFingerprintSignature,
			&run.ProgressCurrent, &run.ProgressTotal, &run.ProgressMessage,
			&run.EstimatedCostCents, &run.RetryCount, &run.LastRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkRunning flips a pending run to running, clearing any stale error and
// progress from a previous attempt. Returns ErrNotFound when the run is no
// longer pending, which lets the worker skip canceled or already-claimed jobs.
func (r *Repository) MarkRunning(ctx context.Context, runID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE intelligence_runs
		SET status = 'running', error_message = NULL,
		    progress_current = 0, progress_message = 'starting'
		WHERE id = $1 AND status = 'pending'`, runID)
	if err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProgress records a progress checkpoint on a running run.
func (r *Repository) UpdateProgress(ctx context.Context, runID uuid.UUID, current int, total *int, message string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE intelligence_runs
		SET progress_current = $2, progress_total = $3, progress_message = $4
		WHERE id = $1`, runID, current, total, message)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// MarkFailed writes a terminal failure with its error message.
func (r *Repository) MarkFailed(ctx context.Context, runID uuid.UUID, errorMessage, progressMessage string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE intelligence_runs
		SET status = 'failed', error_message = $2, completed_at = NOW(), progress_message = $3
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'canceled')`,
		runID, errorMessage, progressMessage)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}
	return nil
}

// MarkDeadlettered finalizes an exhausted run. Unlike MarkFailed it also
// overwrites a run the dispatcher already marked failed on the last attempt,
// so the dead-letter message and progress marker always land.
func (r *Repository) MarkDeadlettered(ctx context.Context, runID uuid.UUID, errorMessage string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE intelligence_runs
		SET status = 'failed', error_message = $2, completed_at = NOW(),
		    progress_message = 'dead-lettered'
		WHERE id = $1 AND status NOT IN ('completed', 'canceled')`,
		runID, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to mark run dead-lettered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCanceled writes the canceled terminal state.
func (r *Repository) MarkCanceled(ctx context.Context, runID uuid.UUID, progressMessage string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE intelligence_runs
		SET status = 'canceled', canceled_at = NOW(), completed_at = NOW(), progress_message = $2
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'canceled')`,
		runID, progressMessage)
	if err != nil {
		return fmt.Errorf("failed to mark run canceled: %w", err)
	}
	return nil
}

// RequestCancel sets the cooperative cancel flag on one run. It only takes
// effect on non-terminal runs; pending runs flip straight to canceled.
func (r *Repository) RequestCancel(ctx context.Context, orgID, runID uuid.UUID) (*models.Run, error) {
	run, err := r.GetRunForOrg(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	if run.IsTerminal() {
		return run, nil
	}

	if run.Status == models.RunStatusPending {
		_, err = r.db.Exec(ctx, `
			UPDATE intelligence_runs
			SET cancel_requested = TRUE, status = 'canceled',
			    canceled_at = NOW(), completed_at = NOW(), progress_message = 'canceled'
			WHERE id = $1 AND status = 'pending'`, runID)
	} else {
		_, err = r.db.Exec(ctx, `
			UPDATE intelligence_runs SET cancel_requested = TRUE WHERE id = $1`, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to request cancel: %w", err)
	}
	return r.GetRunForOrg(ctx, orgID, runID)
}

// RequestCancelLatest flags the newest non-terminal run of one processor for
// an asset, flipping a still-pending run straight to canceled. Returns
// ErrNotFound when no cancelable run exists.
func (r *Repository) RequestCancelLatest(ctx context.Context, orgID, assetID uuid.UUID, processorName string) (*models.Run, error) {
	run, err := scanRun(r.db.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM intelligence_runs
		WHERE org_id = $1 AND asset_id = $2 AND processor_name = $3
		  AND status NOT IN ('completed', 'failed', 'canceled')
		ORDER BY created_at DESC
		LIMIT 1`, orgID, assetID, processorName))
	if err != nil {
		return nil, err
	}

	_, err = r.db.Exec(ctx, `
		UPDATE intelligence_runs SET cancel_requested = TRUE WHERE id = $1`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to flag cancel: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		UPDATE intelligence_runs
		SET status = 'canceled', canceled_at = NOW(), completed_at = NOW(), progress_message = 'canceled'
		WHERE id = $1 AND status = 'pending'`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel pending run: %w", err)
	}
	return r.GetRun(ctx, run.ID)
}

// RequestCancelForProcessors sets the cancel flag on every non-terminal run of
// the given processors for one asset, flipping still-pending runs straight to
// canceled. Returns the affected runs.
func (r *Repository) RequestCancelForProcessors(ctx context.Context, orgID, assetID uuid.UUID, processors []string) ([]models.Run, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+runColumns+`
		FROM intelligence_runs
		WHERE org_id = $1 AND asset_id = $2
		  AND processor_name = ANY($3)
		  AND status NOT IN ('completed', 'failed', 'canceled')`,
		orgID, assetID, processors)
	if err != nil {
		return nil, fmt.Errorf("failed to find cancelable runs: %w", err)
	}
	targets, err := collectRuns(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(targets))
	for i, run := range targets {
		ids[i] = run.ID
	}

	_, err = r.db.Exec(ctx, `
		UPDATE intelligence_runs SET cancel_requested = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to flag cancel: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		UPDATE intelligence_runs
		SET status = 'canceled', canceled_at = NOW(), completed_at = NOW(), progress_message = 'canceled'
		WHERE id = ANY($1) AND status = 'pending'`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel pending runs: %w", err)
	}

	updated := make([]models.Run, 0, len(ids))
	for _, id := range ids {
		run, err := r.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		updated = append(updated, *run)
	}
	return updated, nil
}

// CancelRequested re-reads just the cooperative cancel flag.
func (r *Repository) CancelRequested(ctx context.Context, runID uuid.UUID) (bool, error) {
	var requested bool
	err := r.db.QueryRow(ctx, `
		SELECT cancel_requested FROM intelligence_runs WHERE id = $1`, runID).Scan(&requested)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return requested, nil
}

// SetInputSignature records the fingerprint signature the run executed against.
func (r *Repository) SetInputSignature(ctx context.Context, runID uuid.UUID, signature *string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE intelligence_runs SET input_fingerprint_signature = $2 WHERE id = $1`,
		runID, signature)
	if err != nil {
		return fmt.Errorf("failed to set input signature: %w", err)
	}
	return nil
}

// IncrementRetry bumps the auto-retry counter and stamps the attempt time.
func (r *Repository) IncrementRetry(ctx context.Context, runID uuid.UUID, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE intelligence_runs SET retry_count = retry_count + 1, last_retry_at = $2
		WHERE id = $1`, runID, now)
	if err != nil {
		return fmt.Errorf("failed to increment retry: %w", err)
	}
	return nil
}

// ResetRunForRequeue returns a failed run to pending so the queue can pick it
// up again, clearing every per-attempt field.
func (r *Repository) ResetRunForRequeue(ctx context.Context, runID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE intelligence_runs
		SET status = 'pending', error_message = NULL, completed_at = NULL,
		    cancel_requested = FALSE, canceled_at = NULL,
		    progress_current = 0, progress_total = NULL, progress_message = 'requeued'
		WHERE id = $1 AND status = 'failed'`, runID)
	if err != nil {
		return fmt.Errorf("failed to reset run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
