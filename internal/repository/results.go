package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"assetintel/internal/models"
)

const resultColumns = `id, org_id, asset_id, run_id, type, confidence, data, created_at`

func scanResult(row pgx.Row) (*models.Result, error) {
	var res models.Result
	err := row.Scan(&res.ID, &res.OrgID, &res.AssetID, &res.RunID, &res.Type,
		&res.Confidence, &res.Data, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// InsertResult writes a standalone result row.
func (r *Repository) InsertResult(ctx context.Context, run *models.Run, resultType string, confidence float64, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal result payload: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO intelligence_results (org_id, asset_id, run_id, type, confidence, data)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.OrgID, run.AssetID, run.ID, resultType, confidence, payload)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// GetLatestResultByType returns the newest result of a type for an asset.
func (r *Repository) GetLatestResultByType(ctx context.Context, orgID, assetID uuid.UUID, resultType string) (*models.Result, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM intelligence_results
		WHERE org_id = $1 AND asset_id = $2 AND type = $3
		ORDER BY created_at DESC
		LIMIT 1`
	return scanResult(r.db.QueryRow(ctx, query, orgID, assetID, resultType))
}

// GetPartialResult returns the per-page partial OCR row for a run, if any.
func (r *Repository) GetPartialResult(ctx context.Context, runID uuid.UUID) (*models.Result, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM intelligence_results
		WHERE run_id = $1 AND type = 'ocr_text_partial'`
	return scanResult(r.db.QueryRow(ctx, query, runID))
}

// GetResultsByRunIDs batch-loads results for a set of runs in one query.
func (r *Repository) GetResultsByRunIDs(ctx context.Context, runIDs []uuid.UUID) (map[uuid.UUID][]models.Result, error) {
	if len(runIDs) == 0 {
		return map[uuid.UUID][]models.Result{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+resultColumns+`
		FROM intelligence_results
		WHERE run_id = ANY($1)
		ORDER BY created_at DESC`, runIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]models.Result)
	for rows.Next() {
		var res models.Result
		err := rows.Scan(&res.ID, &res.OrgID, &res.AssetID, &res.RunID, &res.Type,
			&res.Confidence, &res.Data, &res.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		out[res.RunID] = append(out[res.RunID], res)
	}
	return out, rows.Err()
}

// GetLatestFingerprintData returns the newest fingerprint payload for an asset.
func (r *Repository) GetLatestFingerprintData(ctx context.Context, orgID, assetID uuid.UUID) (*models.FingerprintData, error) {
	res, err := r.GetLatestResultByType(ctx, orgID, assetID, models.ResultTypeFingerprint)
	if err != nil {
		return nil, err
	}
	var data models.FingerprintData
	if err := json.Unmarshal(res.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode fingerprint payload: %w", err)
	}
	return &data, nil
}

// UpsertOCRPartial replaces the single partial OCR row for a run and refreshes
// the search index preview in the same transaction, so readers never see the
// partial text without the index reflecting it.
func (r *Repository) UpsertOCRPartial(ctx context.Context, run *models.Run, data models.OCRPartialData, preview string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal partial payload: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO intelligence_results (org_id, asset_id, run_id, type, confidence, data)
		VALUES ($1, $2, $3, 'ocr_text_partial', 0, $4)
		ON CONFLICT (run_id) WHERE type = 'ocr_text_partial'
		DO UPDATE SET data = EXCLUDED.data, created_at = NOW()`,
		run.OrgID, run.AssetID, run.ID, payload)
	if err != nil {
		return fmt.Errorf("failed to upsert partial result: %w", err)
	}

	if err := upsertOCRIndexTx(ctx, tx, run.OrgID, run.AssetID, data.Text, preview); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CompleteFingerprintRun finalizes a fingerprint run: result row, search index
// upsert, and the terminal status flip, atomically.
func (r *Repository) CompleteFingerprintRun(ctx context.Context, run *models.Run, data models.FingerprintData, confidence float64) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal fingerprint payload: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO intelligence_results (org_id, asset_id, run_id, type, confidence, data)
		VALUES ($1, $2, $3, 'fingerprint', $4, $5)`,
		run.OrgID, run.AssetID, run.ID, confidence, payload)
	if err != nil {
		return fmt.Errorf("failed to insert fingerprint result: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO asset_search_index (org_id, asset_id, sha256, etag, content_type, content_length, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (org_id, asset_id)
		DO UPDATE SET sha256 = EXCLUDED.sha256, etag = EXCLUDED.etag,
		              content_type = EXCLUDED.content_type,
		              content_length = EXCLUDED.content_length,
		              last_modified = EXCLUDED.last_modified,
		              updated_at = NOW()`,
		run.OrgID, run.AssetID, data.SHA256, data.ETag, data.ContentType, data.ContentLength, data.LastModified)
	if err != nil {
		return fmt.Errorf("failed to upsert search index: %w", err)
	}

	if err := completeRunTx(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CompleteImageMetadataRun finalizes an image-metadata run.
func (r *Repository) CompleteImageMetadataRun(ctx context.Context, run *models.Run, data models.ImageMetadataData, confidence float64) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata payload: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO intelligence_results (org_id, asset_id, run_id, type, confidence, data)
		VALUES ($1, $2, $3, 'image_metadata', $4, $5)`,
		run.OrgID, run.AssetID, run.ID, confidence, payload)
	if err != nil {
		return fmt.Errorf("failed to insert metadata result: %w", err)
	}

	if err := completeRunTx(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CompleteOCRRun finalizes an OCR run: final result row, partial row removal,
// full-text index update, and the terminal status flip, atomically.
func (r *Repository) CompleteOCRRun(ctx context.Context, run *models.Run, data models.OCRData, confidence float64, preview string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal ocr payload: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM intelligence_results WHERE run_id = $1 AND type = 'ocr_text_partial'`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to clear partial result: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO intelligence_results (org_id, asset_id, run_id, type, confidence, data)
		VALUES ($1, $2, $3, 'ocr_text', $4, $5)`,
		run.OrgID, run.AssetID, run.ID, confidence, payload)
	if err != nil {
		return fmt.Errorf("failed to insert ocr result: %w", err)
	}

	if err := upsertOCRIndexTx(ctx, tx, run.OrgID, run.AssetID, data.Text, preview); err != nil {
		return err
	}

	if err := completeRunTx(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func upsertOCRIndexTx(ctx context.Context, tx pgx.Tx, orgID, assetID uuid.UUID, fullText, preview string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO asset_search_index (org_id, asset_id, ocr_text_preview, ocr_tsv)
		VALUES ($1, $2, $3, to_tsvector('english', $4))
		ON CONFLICT (org_id, asset_id)
		DO UPDATE SET ocr_text_preview = EXCLUDED.ocr_text_preview,
		              ocr_tsv = EXCLUDED.ocr_tsv,
		              updated_at = NOW()`,
		orgID, assetID, preview, fullText)
	if err != nil {
		return fmt.Errorf("failed to upsert ocr index: %w", err)
	}
	return nil
}

// completeRunTx flips a running run to completed and increments the tenant's
// usage counters in the same transaction. Guarding on status='running' means a
// duplicate job envelope for an already-completed run can never double-count:
// the flip fails and the usage write never happens.
func completeRunTx(ctx context.Context, tx pgx.Tx, run *models.Run) error {
	tag, err := tx.Exec(ctx, `
		UPDATE intelligence_runs
		SET status = 'completed', completed_at = NOW(), progress_message = 'done'
		WHERE id = $1 AND status = 'running'`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO org_usage (org_id, period, intelligence_runs, estimated_cost_cents)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (org_id, period)
		DO UPDATE SET intelligence_runs = org_usage.intelligence_runs + 1,
		              estimated_cost_cents = org_usage.estimated_cost_cents + EXCLUDED.estimated_cost_cents`,
		run.OrgID, models.CurrentPeriod(time.Now()), int64(run.EstimatedCostCents))
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}
