package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Run statuses. Terminal statuses are immutable once written.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// IsTerminalStatus reports whether a run status is terminal.
func IsTerminalStatus(status string) bool {
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCanceled:
		return true
	}
	return false
}

// Result types written by processors.
const (
	ResultTypeFingerprint    = "fingerprint"
	ResultTypeImageMetadata  = "image_metadata"
	ResultTypeOCRText        = "ocr_text"
	ResultTypeOCRTextPartial = "ocr_text_partial"
)

// Run is the authoritative lifecycle record for one processor execution.
type Run struct {
	ID                        uuid.UUID  `json:"id"`
	OrgID                     uuid.UUID  `json:"org_id"`
	AssetID                   uuid.UUID  `json:"asset_id"`
	ProcessorName             string     `json:"processor_name"`
	ProcessorVersion          string     `json:"processor_version"`
	Status                    string     `json:"status"`
	ErrorMessage              *string    `json:"error_message,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
	CompletedAt               *time.Time `json:"completed_at,omitempty"`
	CancelRequested           bool       `json:"cancel_requested"`
	CanceledAt                *time.Time `json:"canceled_at,omitempty"`
	InputFingerprintSignature *string    `json:"input_fingerprint_signature,omitempty"`
	ProgressCurrent           int        `json:"progress_current"`
	ProgressTotal             *int       `json:"progress_total,omitempty"`
	ProgressMessage           *string    `json:"progress_message,omitempty"`
	EstimatedCostCents        int        `json:"estimated_cost_cents"`
	RetryCount                int        `json:"retry_count"`
	LastRetryAt               *time.Time `json:"last_retry_at,omitempty"`
}

// IsTerminal reports whether the run has reached a terminal status.
func (r *Run) IsTerminal() bool { return IsTerminalStatus(r.Status) }

// Result is one typed output of a run. Results cascade-delete with their run.
type Result struct {
	ID         uuid.UUID       `json:"id"`
	OrgID      uuid.UUID       `json:"org_id"`
	AssetID    uuid.UUID       `json:"asset_id"`
	RunID      uuid.UUID       `json:"run_id"`
	Type       string          `json:"type"`
	Confidence float64         `json:"confidence"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DeadletterEvent is the audit record written when a run exhausts its retries.
// ErrorRaw is internal-only and must never be exposed through the API.
type DeadletterEvent struct {
	ID               uuid.UUID  `json:"id"`
	OrgID            uuid.UUID  `json:"org_id"`
	RunID            uuid.UUID  `json:"run_id"`
	AssetID          uuid.UUID  `json:"asset_id"`
	ProcessorName    string     `json:"processor_name"`
	ProcessorVersion string     `json:"processor_version"`
	TaskName         string     `json:"task_name"`
	JobTry           int        `json:"job_try"`
	ErrorSummary     *string    `json:"error_summary,omitempty"`
	ErrorRaw         *string    `json:"-"`
	FailedAt         time.Time  `json:"failed_at"`
	RequeuedAt       *time.Time `json:"requeued_at,omitempty"`
}

// SearchIndexEntry is the per-asset search/dedupe row. Unique on (org, asset).
type SearchIndexEntry struct {
	ID             uuid.UUID `json:"id"`
	OrgID          uuid.UUID `json:"org_id"`
	AssetID        uuid.UUID `json:"asset_id"`
	SHA256         *string   `json:"sha256,omitempty"`
	ETag           *string   `json:"etag,omitempty"`
	ContentType    *string   `json:"content_type,omitempty"`
	ContentLength  *int64    `json:"content_length,omitempty"`
	LastModified   *string   `json:"last_modified,omitempty"`
	OCRTextPreview *string   `json:"ocr_text_preview,omitempty"`
	HasOCRVector   bool      `json:"ocr_indexed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OrgUsage is the monthly accounting counter. Period is "YYYY-MM".
type OrgUsage struct {
	OrgID              uuid.UUID `json:"org_id"`
	Period             string    `json:"period"`
	IntelligenceRuns   int64     `json:"intelligence_runs"`
	EstimatedCostCents int64     `json:"estimated_cost_cents"`
}

// Asset references external content by URI.
type Asset struct {
	ID          uuid.UUID       `json:"id"`
	OrgID       uuid.UUID       `json:"org_id"`
	SourceURI   string          `json:"source_uri"`
	AssetType   string          `json:"asset_type"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// Organization is the tenant. Plan drives quota limits.
type Organization struct {
	ID                     uuid.UUID `json:"id"`
	Name                   string    `json:"name"`
	Slug                   string    `json:"slug"`
	Plan                   string    `json:"plan"`
	IsActive               bool      `json:"is_active"`
	StripeCustomerID       *string   `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID   *string   `json:"stripe_subscription_id,omitempty"`
	StripeLastEventCreated int64     `json:"stripe_last_event_created"`
	CreatedAt              time.Time `json:"created_at"`
}

// APIKeyRecord maps a SHA-256 key hash to an org identity.
type APIKeyRecord struct {
	ID        uuid.UUID  `json:"id"`
	OrgID     uuid.UUID  `json:"org_id"`
	KeyHash   string     `json:"-"`
	KeyPrefix string     `json:"key_prefix"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// StripeEvent records a processed billing webhook event. The unique
// stripe_event_id acts as the idempotency lock.
type StripeEvent struct {
	ID                 uuid.UUID `json:"id"`
	StripeEventID      string    `json:"stripe_event_id"`
	EventType          string    `json:"event_type"`
	StripeEventCreated int64     `json:"stripe_event_created"`
	ProcessedAt        time.Time `json:"processed_at"`
}

// PlanQuota bounds a tenant's monthly consumption.
type PlanQuota struct {
	MaxRunsPerMonth      int64
	MaxCostCentsPerMonth int64
}

// DefaultPlan is applied when an org has no (or an unknown) plan.
const DefaultPlan = "free"

// PlanQuotas maps plan name to its monthly limits.
var PlanQuotas = map[string]PlanQuota{
	"free": {MaxRunsPerMonth: 1_000, MaxCostCentsPerMonth: 10_00},
	"pro":  {MaxRunsPerMonth: 50_000, MaxCostCentsPerMonth: 500_00},
	"team": {MaxRunsPerMonth: 200_000, MaxCostCentsPerMonth: 2_000_00},
}

// QuotaForPlan resolves a plan name to its limits, falling back to the
// default plan for unknown names.
func QuotaForPlan(plan string) PlanQuota {
	if q, ok := PlanQuotas[plan]; ok {
		return q
	}
	return PlanQuotas[DefaultPlan]
}

// CurrentPeriod returns the usage accounting period for a point in time.
func CurrentPeriod(now time.Time) string {
	return now.UTC().Format("2006-01")
}
