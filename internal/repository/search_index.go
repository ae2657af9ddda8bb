package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"assetintel/internal/models"
)

const indexColumns = `id, org_id, asset_id, sha256, etag, content_type, content_length,
	last_modified, ocr_text_preview, (ocr_tsv IS NOT NULL), updated_at`

func scanIndexEntry(row pgx.Row) (*models.SearchIndexEntry, error) {
	var e models.SearchIndexEntry
	err := row.Scan(&e.ID, &e.OrgID, &e.AssetID, &e.SHA256, &e.ETag, &e.ContentType,
		&e.ContentLength, &e.LastModified, &e.OCRTextPreview, &e.HasOCRVector, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func collectIndexEntries(rows pgx.Rows) ([]models.SearchIndexEntry, error) {
	var entries []models.SearchIndexEntry
	for rows.Next() {
		var e models.SearchIndexEntry
		err := rows.Scan(&e.ID, &e.OrgID, &e.AssetID, &e.SHA256, &e.ETag, &e.ContentType,
			&e.ContentLength, &e.LastModified, &e.OCRTextPreview, &e.HasOCRVector, &e.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan index entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetIndexEntry returns the search index row for one asset.
func (r *Repository) GetIndexEntry(ctx context.Context, orgID, assetID uuid.UUID) (*models.SearchIndexEntry, error) {
	return scanIndexEntry(r.db.QueryRow(ctx, `
		SELECT `+indexColumns+`
		FROM asset_search_index
		WHERE org_id = $1 AND asset_id = $2`, orgID, assetID))
}

// SearchResult pairs an index entry with its full-text rank.
type SearchResult struct {
	Entry models.SearchIndexEntry
	Rank  float64
}

// SearchAssets runs plain full-text search over OCR'd content, ranked by
// ts_rank_cd with recency as the tie-break.
func (r *Repository) SearchAssets(ctx context.Context, orgID uuid.UUID, query string, limit, offset int) ([]SearchResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+indexColumns+`,
		       ts_rank_cd(ocr_tsv, plainto_tsquery('english', $2)) AS rank
		FROM asset_search_index
		WHERE org_id = $1
		  AND ocr_tsv @@ plainto_tsquery('english', $2)
		ORDER BY rank DESC, updated_at DESC
		LIMIT $3 OFFSET $4`, orgID, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search assets: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var res SearchResult
		e := &res.Entry
		err := rows.Scan(&e.ID, &e.OrgID, &e.AssetID, &e.SHA256, &e.ETag, &e.ContentType,
			&e.ContentLength, &e.LastModified, &e.OCRTextPreview, &e.HasOCRVector,
			&e.UpdatedAt, &res.Rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// FindDuplicates returns assets whose indexed sha256 or etag matches the
// given values. Empty values disable that side of the match.
func (r *Repository) FindDuplicates(ctx context.Context, orgID uuid.UUID, sha256, etag string, limit int) ([]models.SearchIndexEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+indexColumns+`
		FROM asset_search_index
		WHERE org_id = $1
		  AND (
		      ($2 != '' AND sha256 = $2)
		   OR ($3 != '' AND etag = $3)
		  )
		ORDER BY updated_at DESC
		LIMIT $4`, orgID, sha256, etag, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicates: %w", err)
	}
	defer rows.Close()
	return collectIndexEntries(rows)
}

// FindBySHA256 returns other assets with an exact content hash match.
func (r *Repository) FindBySHA256(ctx context.Context, orgID, excludeAssetID uuid.UUID, sha256 string, limit int) ([]models.SearchIndexEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+indexColumns+`
		FROM asset_search_index
		WHERE org_id = $1 AND asset_id != $2 AND sha256 = $3
		ORDER BY updated_at DESC
		LIMIT $4`, orgID, excludeAssetID, sha256, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query by sha256: %w", err)
	}
	defer rows.Close()
	return collectIndexEntries(rows)
}

// FindByETag returns other assets with an exact ETag match.
func (r *Repository) FindByETag(ctx context.Context, orgID, excludeAssetID uuid.UUID, etag string, limit int) ([]models.SearchIndexEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+indexColumns+`
		FROM asset_search_index
		WHERE org_id = $1 AND asset_id != $2 AND etag = $3
		ORDER BY updated_at DESC
		LIMIT $4`, orgID, excludeAssetID, etag, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query by etag: %w", err)
	}
	defer rows.Close()
	return collectIndexEntries(rows)
}

// FindNearSize returns other assets of the same content type whose
// content_length lies within the inclusive byte range.
func (r *Repository) FindNearSize(ctx context.Context, orgID, excludeAssetID uuid.UUID, contentType string, minLen, maxLen int64, limit int) ([]models.SearchIndexEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+indexColumns+`
		FROM asset_search_index
		WHERE org_id = $1 AND asset_id != $2
		  AND content_type = $3
		  AND content_length IS NOT NULL
		  AND content_length BETWEEN $4 AND $5
		ORDER BY updated_at DESC
		LIMIT $6`, orgID, excludeAssetID, contentType, minLen, maxLen, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query near size: %w", err)
	}
	defer rows.Close()
	return collectIndexEntries(rows)
}

// FindTextRelated ranks other OCR-indexed assets against a seed phrase.
func (r *Repository) FindTextRelated(ctx context.Context, orgID, excludeAssetID uuid.UUID, seed string, limit int) ([]SearchResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+indexColumns+`,
		       ts_rank(ocr_tsv, plainto_tsquery('english', $3)) AS rank
		FROM asset_search_index
		WHERE org_id = $1 AND asset_id != $2
		  AND ocr_tsv @@ plainto_tsquery('english', $3)
		ORDER BY rank DESC, updated_at DESC
		LIMIT $4`, orgID, excludeAssetID, seed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query text related: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var res SearchResult
		e := &res.Entry
		err := rows.Scan(&e.ID, &e.OrgID, &e.AssetID, &e.SHA256, &e.ETag, &e.ContentType,
			&e.ContentLength, &e.LastModified, &e.OCRTextPreview, &e.HasOCRVector,
			&e.UpdatedAt, &res.Rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan text related: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
