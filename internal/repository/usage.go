package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"assetintel/internal/models"
)

// GetUsage returns the counters for one period, zero-valued when absent.
// Usage is written by completeRunTx inside each run-completion transaction.
func (r *Repository) GetUsage(ctx context.Context, orgID uuid.UUID, period string) (*models.OrgUsage, error) {
	usage := &models.OrgUsage{OrgID: orgID, Period: period}
	err := r.db.QueryRow(ctx, `
		SELECT intelligence_runs, estimated_cost_cents
		FROM org_usage
		WHERE org_id = $1 AND period = $2`, orgID, period).
		Scan(&usage.IntelligenceRuns, &usage.EstimatedCostCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return usage, nil
		}
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return usage, nil
}
