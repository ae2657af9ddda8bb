package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"assetintel/internal/models"
)

const assetColumns = `id, org_id, source_uri, asset_type, metadata, status, created_at, processed_at`

func scanAsset(row pgx.Row) (*models.Asset, error) {
	var a models.Asset
	err := row.Scan(&a.ID, &a.OrgID, &a.SourceURI, &a.AssetType, &a.Metadata,
		&a.Status, &a.CreatedAt, &a.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateAsset registers an external content reference for a tenant.
func (r *Repository) CreateAsset(ctx context.Context, orgID uuid.UUID, sourceURI, assetType string, metadata json.RawMessage) (*models.Asset, error) {
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	asset, err := scanAsset(r.db.QueryRow(ctx, `
		INSERT INTO assets (org_id, source_uri, asset_type, metadata, status)
		VALUES ($1, $2, $3, $4, 'registered')
		RETURNING `+assetColumns,
		orgID, sourceURI, assetType, metadata))
	if err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}
	return asset, nil
}

// GetAsset fetches an asset scoped to its tenant.
func (r *Repository) GetAsset(ctx context.Context, orgID, assetID uuid.UUID) (*models.Asset, error) {
	return scanAsset(r.db.QueryRow(ctx, `
		SELECT `+assetColumns+` FROM assets WHERE id = $1 AND org_id = $2`,
		assetID, orgID))
}

// GetAssetAny fetches an asset without tenant scoping. Worker-side use only.
func (r *Repository) GetAssetAny(ctx context.Context, assetID uuid.UUID) (*models.Asset, error) {
	return scanAsset(r.db.QueryRow(ctx, `
		SELECT `+assetColumns+` FROM assets WHERE id = $1`, assetID))
}

// MarkAssetProcessed stamps the asset once any processor completes against it.
func (r *Repository) MarkAssetProcessed(ctx context.Context, assetID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE assets SET status = 'processed', processed_at = NOW() WHERE id = $1`, assetID)
	if err != nil {
		return fmt.Errorf("failed to mark asset processed: %w", err)
	}
	return nil
}

// LookupAPIKey resolves a SHA-256 key hash to its active key record.
func (r *Repository) LookupAPIKey(ctx context.Context, keyHash string) (*models.APIKeyRecord, error) {
	var k models.APIKeyRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, org_id, key_hash, key_prefix, name, role, is_active, created_at, last_used
		FROM api_keys
		WHERE key_hash = $1 AND is_active = TRUE`, keyHash).
		Scan(&k.ID, &k.OrgID, &k.KeyHash, &k.KeyPrefix, &k.Name, &k.Role,
			&k.IsActive, &k.CreatedAt, &k.LastUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &k, nil
}

// TouchAPIKey records key usage, best effort.
func (r *Repository) TouchAPIKey(ctx context.Context, keyID uuid.UUID) {
	_, _ = r.db.Exec(ctx, `UPDATE api_keys SET last_used = NOW() WHERE id = $1`, keyID)
}

// GetOrganization fetches a tenant.
func (r *Repository) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	err := r.db.QueryRow(ctx, `
		SELECT id, name, slug, plan, is_active, stripe_customer_id, stripe_subscription_id,
		       stripe_last_event_created, created_at
		FROM organizations WHERE id = $1`, orgID).
		Scan(&org.ID, &org.Name, &org.Slug, &org.Plan, &org.IsActive,
			&org.StripeCustomerID, &org.StripeSubscriptionID,
			&org.StripeLastEventCreated, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}
