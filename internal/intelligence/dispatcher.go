package intelligence

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"assetintel/internal/repository"
)

// Dispatch executes one run for a queue task. It guarantees the run ends in a
// terminal state: if the handler errors out without having finalized the run,
// the failure is written here before the error propagates to the retry layer.
// A run that no longer exists is skipped silently so a stale job envelope
// cannot burn retries against nothing.
func (s *Service) Dispatch(ctx context.Context, task string, runID uuid.UUID) error {
	run, err := s.Store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("[dispatcher] run %s no longer exists, skipping", runID)
			return nil
		}
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if run.IsTerminal() {
		log.Printf("[dispatcher] run %s already %s, skipping", runID, run.Status)
		return nil
	}

	spec, ok := LookupTask(task)
	if !ok {
		if markErr := s.Store.MarkFailed(ctx, runID, fmt.Sprintf("Unknown processor: %s", task), "failed"); markErr != nil {
			log.Printf("[dispatcher] failed to mark run %s failed: %v", runID, markErr)
		}
		s.notifyByID(ctx, run)
		return nil
	}

	err = spec.Handler(ctx, s, run)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCanceled) {
		log.Printf("[dispatcher] run %s canceled", runID)
		return nil
	}

	// Terminal-state fallback. MarkFailed is a no-op when the handler
	// already finalized the run.
	if markErr := s.Store.MarkFailed(ctx, runID, err.Error(), "failed"); markErr != nil {
		log.Printf("[dispatcher] failed to mark run %s failed: %v", runID, markErr)
	}
	s.notifyByID(ctx, run)
	return err
}
