package intelligence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"assetintel/internal/models"
	"assetintel/internal/repository"
)

// ErrCanceled is returned by processors that observed a cancel request at a
// checkpoint. The run is already in its terminal canceled state by then, so
// callers must not treat it as a failure.
var ErrCanceled = errors.New("run canceled")

// checkCancel is the cooperative cancellation checkpoint. If the flag is set
// it finalizes the run as canceled and returns ErrCanceled.
func (s *Service) checkCancel(ctx context.Context, run *models.Run) error {
	return s.checkCancelWith(ctx, run, "canceled")
}

// checkCancelWith is checkCancel with a checkpoint-specific progress message,
// so multi-page work can record how far it got before stopping.
func (s *Service) checkCancelWith(ctx context.Context, run *models.Run, progressMessage string) error {
	requested, err := s.Store.CancelRequested(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to check cancel flag: %w", err)
	}
	if !requested {
		return nil
	}
	if err := s.Store.MarkCanceled(ctx, run.ID, progressMessage); err != nil {
		return err
	}
	s.notifyByID(ctx, run)
	return ErrCanceled
}

// CancelRun requests cancellation of one run by id. Pending runs cancel
// immediately; running ones stop at their next checkpoint. Terminal runs are
// returned untouched.
func (s *Service) CancelRun(ctx context.Context, orgID, runID uuid.UUID) (*models.Run, error) {
	run, err := s.Store.RequestCancel(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	s.notify(run)
	return run, nil
}

// CancelLatest requests cancellation of the newest non-terminal run of a
// processor for an asset. With cascade set, canceling a fingerprint run also
// cancels any in-flight OCR work, since OCR reads the fingerprint signature.
// Older concurrent runs of the named processor are left alone.
func (s *Service) CancelLatest(ctx context.Context, orgID, assetID uuid.UUID, processorName string, cascade bool) ([]models.Run, error) {
	name := NormalizeProcessorName(processorName)
	if _, ok := LookupProcessor(name); !ok {
		return nil, fmt.Errorf("unknown processor %q", processorName)
	}

	var runs []models.Run
	primary, err := s.Store.RequestCancelLatest(ctx, orgID, assetID, name)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if primary != nil {
		runs = append(runs, *primary)
	}

	if cascade && name == ProcessorFingerprint {
		dependent, err := s.Store.RequestCancelForProcessors(ctx, orgID, assetID, []string{ProcessorOCRText})
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		runs = append(runs, dependent...)
	}

	for i := range runs {
		s.notify(&runs[i])
	}
	return runs, nil
}
