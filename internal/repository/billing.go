package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateEvent means the billing event id was already recorded.
var ErrDuplicateEvent = errors.New("duplicate billing event")

// InsertStripeEvent records a webhook event id before any side effect runs.
// The unique constraint on stripe_event_id makes concurrent deliveries of the
// same event collapse to a single processor.
func (r *Repository) InsertStripeEvent(ctx context.Context, stripeEventID, eventType string, eventCreated int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO stripe_events (stripe_event_id, event_type, stripe_event_created)
		VALUES ($1, $2, $3)`,
		stripeEventID, eventType, eventCreated)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("failed to insert billing event: %w", err)
	}
	return nil
}

// ApplyPlanUpdate sets the org's plan and subscription details, guarded by the
// event creation timestamp so a stale out-of-order delivery never clobbers a
// newer state.
func (r *Repository) ApplyPlanUpdate(ctx context.Context, orgID uuid.UUID, plan string, customerID, subscriptionID *string, eventCreated int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE organizations
		SET plan = $2, stripe_customer_id = COALESCE($3, stripe_customer_id),
		    stripe_subscription_id = COALESCE($4, stripe_subscription_id),
		    stripe_last_event_created = $5
		WHERE id = $1 AND stripe_last_event_created < $5`,
		orgID, plan, customerID, subscriptionID, eventCreated)
	if err != nil {
		return false, fmt.Errorf("failed to apply plan update: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindOrgByStripeCustomer maps a billing customer id back to a tenant.
func (r *Repository) FindOrgByStripeCustomer(ctx context.Context, customerID string) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := r.db.QueryRow(ctx, `
		SELECT id FROM organizations WHERE stripe_customer_id = $1`, customerID).Scan(&orgID)
	if err != nil {
		return uuid.Nil, ErrNotFound
	}
	return orgID, nil
}
