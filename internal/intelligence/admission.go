package intelligence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"assetintel/internal/models"
	"assetintel/internal/repository"
)

// Admission errors mapped to HTTP status codes by the API layer.
var (
	ErrUnknownProcessor  = errors.New("unknown processor")
	ErrQuotaRunsExceeded = errors.New("monthly run quota exceeded")
	ErrQuotaCostExceeded = errors.New("monthly cost quota exceeded")
)

// EnqueueOptions tune the admission reuse policy.
type EnqueueOptions struct {
	// Force always creates a fresh run, ignoring any existing one.
	Force bool
	// Retry creates a fresh run when the latest one failed.
	Retry bool
}

// EnqueueIntelligence admits a processor run for an asset. Quota is enforced
// before the reuse check so an over-quota tenant is rejected even when a
// reusable run exists. Returns the run and whether it was reused.
func (s *Service) EnqueueIntelligence(ctx context.Context, orgID, assetID uuid.UUID, processorName string, opts EnqueueOptions) (*models.Run, bool, error) {
	spec, ok := LookupProcessor(processorName)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownProcessor, processorName)
	}

	if _, err := s.Store.GetAsset(ctx, orgID, assetID); err != nil {
		return nil, false, err
	}

	if err := s.checkQuota(ctx, orgID); err != nil {
		return nil, false, err
	}

	// Non-fingerprint runs bind to the content identity known at admission so
	// a later content change invalidates reuse and drives auto-retry checks.
	var currentSig *string
	if spec.Name != ProcessorFingerprint {
		sig, err := s.currentSignature(ctx, orgID, assetID)
		if err != nil {
			return nil, false, err
		}
		currentSig = sig
	}

	latest, err := s.Store.LatestRunFor(ctx, orgID, assetID, spec.Name, spec.Version)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	if latest != nil && !opts.Force && canReuse(latest, currentSig, opts) {
		return latest, true, nil
	}

	run, err := s.Store.CreateRun(ctx, orgID, assetID, spec.Name, spec.Version, spec.PriceCents, currentSig)
	if err != nil {
		return nil, false, err
	}
	s.notify(run)

	if err := s.dispatchNew(ctx, spec, run); err != nil {
		return nil, false, err
	}
	return run, false, nil
}

func (s *Service) checkQuota(ctx context.Context, orgID uuid.UUID) error {
	org, err := s.Store.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	usage, err := s.Store.GetUsage(ctx, orgID, models.CurrentPeriod(time.Now()))
	if err != nil {
		return err
	}
	return quotaCheck(usage, models.QuotaForPlan(org.Plan))
}

// quotaCheck rejects a tenant whose current-period counters have reached the
// plan caps. The comparison is against accumulated usage, so even a
// zero-priced run is refused once the cost cap is hit.
func quotaCheck(usage *models.OrgUsage, quota models.PlanQuota) error {
	if usage.IntelligenceRuns >= quota.MaxRunsPerMonth {
		return ErrQuotaRunsExceeded
	}
	if usage.EstimatedCostCents >= quota.MaxCostCentsPerMonth {
		return ErrQuotaCostExceeded
	}
	return nil
}

// canReuse applies the reuse table to the latest run:
//
//	pending/running/completed  reuse unless the content signature mismatches
//	failed                     reuse the failure unless retry was requested
//	canceled                   never reuse
//
// An unknown signature on either side counts as a match.
func canReuse(latest *models.Run, currentSig *string, opts EnqueueOptions) bool {
	switch latest.Status {
	case models.RunStatusPending, models.RunStatusRunning, models.RunStatusCompleted:
		return SignaturesMatch(latest.InputFingerprintSignature, currentSig)

	case models.RunStatusFailed:
		return !opts.Retry
	}
	return false
}

func (s *Service) currentSignature(ctx context.Context, orgID, assetID uuid.UUID) (*string, error) {
	fp, err := s.Store.GetLatestFingerprintData(ctx, orgID, assetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return DeriveSignature(fp), nil
}

// dispatchNew hands a created run to its executor: the queue in normal
// operation, an in-process goroutine in the development fallback.
func (s *Service) dispatchNew(ctx context.Context, spec ProcessorSpec, run *models.Run) error {
	if s.UseQueue {
		if err := s.Queue.EnqueueRun(ctx, spec.TaskName, run.ID); err != nil {
			return err
		}
		return nil
	}

	go func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), s.JobTimeout)
		defer cancel()
		if err := s.Dispatch(jobCtx, spec.TaskName, run.ID); err != nil {
			log.Printf("[intelligence] in-process run %s failed: %v", run.ID, err)
		}
	}()
	return nil
}
