package intelligence

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetintel/internal/models"
	"assetintel/internal/queue"
)

const errorSummaryMaxChars = 200

// SanitizeErrorSummary collapses an internal error into the operator-safe
// form: single line, at most 200 bytes with an ellipsis when cut. The cut
// lands on a rune boundary so a multibyte message stays valid UTF-8.
func SanitizeErrorSummary(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	if len(s) > errorSummaryMaxChars {
		return cutUTF8(s, errorSummaryMaxChars) + "…"
	}
	return s
}

// DeadletterRun records an exhausted run: terminal failure on the run, a
// durable audit row with the raw error kept internal, and a bounded Redis
// peek entry for operators. The dispatcher has usually marked the run failed
// already on the final attempt, so the status write must overwrite a failed
// run rather than respect the terminal guard.
func (s *Service) DeadletterRun(ctx context.Context, job queue.Job, run *models.Run, runErr error) error {
	raw := runErr.Error()
	summary := SanitizeErrorSummary(raw)

	if err := s.Store.MarkDeadlettered(ctx, run.ID,
		"Dead-lettered after repeated failures: "+raw); err != nil {
		return err
	}
	s.notifyByID(ctx, run)

	ev := &models.DeadletterEvent{
		OrgID:            run.OrgID,
		RunID:            run.ID,
		AssetID:          run.AssetID,
		ProcessorName:    run.ProcessorName,
		ProcessorVersion: run.ProcessorVersion,
		TaskName:         job.Task,
		JobTry:           job.JobTry,
		ErrorSummary:     &summary,
		ErrorRaw:         &raw,
	}
	stored, err := s.Store.InsertDeadletterEvent(ctx, ev)
	if err != nil {
		return err
	}

	if s.Queue != nil {
		peekErr := s.Queue.PushDeadletterPeek(ctx, queue.DeadletterPeekItem{
			RunID:         run.ID,
			AssetID:       run.AssetID,
			ProcessorName: run.ProcessorName,
			Task:          job.Task,
			JobTry:        job.JobTry,
			ErrorSummary:  summary,
			FailedAt:      stored.FailedAt,
		})
		if peekErr != nil {
			// The durable row exists; losing the peek entry is tolerable.
			log.Printf("[deadletter] failed to push peek item for run %s: %v", run.ID, peekErr)
		}
	}
	return nil
}

// RequeueDeadletter resets a dead-lettered run to pending and enqueues it
// again. The backing event is stamped so it cannot be requeued twice.
func (s *Service) RequeueDeadletter(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	ev, err := s.Store.LatestDeadletterForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s.requeueEvent(ctx, ev)
}

// RequeueLatestForAsset requeues the newest un-requeued dead-letter for an
// asset, optionally narrowed to one processor.
func (s *Service) RequeueLatestForAsset(ctx context.Context, orgID, assetID uuid.UUID, processorName string) (*models.Run, error) {
	if processorName != "" {
		processorName = NormalizeProcessorName(processorName)
	}
	ev, err := s.Store.LatestDeadletterForAsset(ctx, orgID, assetID, processorName)
	if err != nil {
		return nil, err
	}
	return s.requeueEvent(ctx, ev)
}

func (s *Service) requeueEvent(ctx context.Context, ev *models.DeadletterEvent) (*models.Run, error) {
	if err := s.Store.MarkDeadletterRequeued(ctx, ev.ID); err != nil {
		return nil, err
	}
	if err := s.Store.ResetRunForRequeue(ctx, ev.RunID); err != nil {
		return nil, err
	}
	run, err := s.Store.GetRun(ctx, ev.RunID)
	if err != nil {
		return nil, err
	}
	s.notify(run)

	spec, ok := LookupProcessor(ev.ProcessorName)
	if !ok {
		spec = ProcessorSpec{TaskName: ev.TaskName}
	}
	if err := s.dispatchNew(ctx, spec, run); err != nil {
		return nil, err
	}
	log.Printf("[deadletter] requeued run %s (%s) at %s", run.ID, ev.ProcessorName, time.Now().UTC().Format(time.RFC3339))
	return run, nil
}
