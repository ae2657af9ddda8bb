package intelligence

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetintel/internal/models"
	"assetintel/internal/repository"
)

// IndexStatus reports how far an asset has progressed through the indexing
// pipeline, plus whether a reconciliation pass kicked off new work.
type IndexStatus struct {
	AssetID           uuid.UUID `json:"asset_id"`
	Indexed           bool      `json:"indexed"`
	HasFingerprint    bool      `json:"has_fingerprint"`
	HasOCR            bool      `json:"has_ocr"`
	FingerprintStatus *string   `json:"fingerprint_status,omitempty"`
	OCRStatus         *string   `json:"ocr_status,omitempty"`
	WorkStarted       bool      `json:"work_started"`
	StartedProcessors []string  `json:"started_processors,omitempty"`
}

// EnsureAssetIndexing reconciles an asset toward a fully indexed state.
// Fingerprinting always comes first since OCR binds to its signature. Failed
// OCR runs are retried automatically within the retry policy bounds.
func (s *Service) EnsureAssetIndexing(ctx context.Context, orgID, assetID uuid.UUID, ensure bool) (*IndexStatus, error) {
	if _, err := s.Store.GetAsset(ctx, orgID, assetID); err != nil {
		return nil, err
	}

	status := &IndexStatus{AssetID: assetID}

	entry, err := s.Store.GetIndexEntry(ctx, orgID, assetID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if entry != nil {
		status.Indexed = true
		status.HasFingerprint = entry.SHA256 != nil || entry.ETag != nil || entry.ContentLength != nil
		status.HasOCR = entry.HasOCRVector
	}

	fpRun, err := s.Store.LatestRunByProcessor(ctx, orgID, assetID, ProcessorFingerprint)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if fpRun != nil {
		status.FingerprintStatus = &fpRun.Status
	}

	ocrRun, err := s.Store.LatestRunByProcessor(ctx, orgID, assetID, ProcessorOCRText)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if ocrRun != nil {
		status.OCRStatus = &ocrRun.Status
	}

	if !ensure {
		return status, nil
	}

	// Fingerprint first.
	if fpRun == nil || fpRun.Status == models.RunStatusCanceled {
		if _, reused, err := s.EnqueueIntelligence(ctx, orgID, assetID, ProcessorFingerprint, EnqueueOptions{Force: fpRun != nil}); err != nil {
			return nil, err
		} else if !reused {
			status.WorkStarted = true
			status.StartedProcessors = append(status.StartedProcessors, ProcessorFingerprint)
		}
		return status, nil
	}
	if !fpRun.IsTerminal() {
		// Fingerprint still in flight; OCR waits for its signature.
		return status, nil
	}

	if !ocrEligible(entry) {
		return status, nil
	}

	switch {
	case ocrRun == nil:
		if _, reused, err := s.EnqueueIntelligence(ctx, orgID, assetID, ProcessorOCRText, EnqueueOptions{}); err != nil {
			return nil, err
		} else if !reused {
			status.WorkStarted = true
			status.StartedProcessors = append(status.StartedProcessors, ProcessorOCRText)
		}

	case ocrRun.Status == models.RunStatusFailed:
		current, err := s.currentSignature(ctx, orgID, assetID)
		if err != nil {
			return nil, err
		}
		if ShouldAutoRetryOCR(ocrRun, current, time.Now()) {
			if err := s.Store.IncrementRetry(ctx, ocrRun.ID, time.Now()); err != nil {
				return nil, err
			}
			if err := s.Store.ResetRunForRequeue(ctx, ocrRun.ID); err != nil {
				return nil, err
			}
			spec, _ := LookupProcessor(ProcessorOCRText)
			if err := s.dispatchNew(ctx, spec, ocrRun); err != nil {
				return nil, err
			}
			log.Printf("[indexing] auto-retrying ocr run %s (attempt %d)", ocrRun.ID, ocrRun.RetryCount+1)
			status.WorkStarted = true
			status.StartedProcessors = append(status.StartedProcessors, ProcessorOCRText)
		}
	}
	return status, nil
}

// ocrEligible reports whether the indexed content type can yield text. An
// unknown type is still worth an attempt; the processor classifies it
// properly from the downloaded bytes.
func ocrEligible(entry *models.SearchIndexEntry) bool {
	if entry == nil || entry.ContentType == nil {
		return true
	}
	ct := strings.ToLower(*entry.ContentType)
	switch {
	case strings.HasPrefix(ct, "text/"),
		strings.HasPrefix(ct, "image/"),
		strings.Contains(ct, "pdf"),
		strings.Contains(ct, "octet-stream"),
		strings.Contains(ct, "json"),
		strings.Contains(ct, "xml"):
		return true
	}
	return false
}
