package intelligence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"assetintel/internal/models"
	"assetintel/internal/repository"
)

const summaryPreviewChars = 500

// OCRSummary is the shaped OCR view in the asset summary: a bounded preview
// instead of the full extracted text.
type OCRSummary struct {
	Preview    string  `json:"preview"`
	Source     string  `json:"source"`
	Truncated  bool    `json:"truncated"`
	Confidence float64 `json:"confidence"`
}

// AssetSummary aggregates the latest result of each type plus the latest run
// of each processor.
type AssetSummary struct {
	AssetID       uuid.UUID                 `json:"asset_id"`
	Fingerprint   *models.FingerprintData   `json:"fingerprint,omitempty"`
	ImageMetadata *models.ImageMetadataData `json:"image_metadata,omitempty"`
	OCR           *OCRSummary               `json:"ocr,omitempty"`
	Runs          []models.Run              `json:"runs"`
}

// Summarize builds the per-asset intelligence summary.
func (s *Service) Summarize(ctx context.Context, orgID, assetID uuid.UUID) (*AssetSummary, error) {
	if _, err := s.Store.GetAsset(ctx, orgID, assetID); err != nil {
		return nil, err
	}

	summary := &AssetSummary{AssetID: assetID, Runs: []models.Run{}}

	if fp, err := s.Store.GetLatestFingerprintData(ctx, orgID, assetID); err == nil {
		summary.Fingerprint = fp
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if res, err := s.Store.GetLatestResultByType(ctx, orgID, assetID, models.ResultTypeImageMetadata); err == nil {
		var meta models.ImageMetadataData
		if json.Unmarshal(res.Data, &meta) == nil {
			summary.ImageMetadata = &meta
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if res, err := s.Store.GetLatestResultByType(ctx, orgID, assetID, models.ResultTypeOCRText); err == nil {
		var ocr models.OCRData
		if json.Unmarshal(res.Data, &ocr) == nil {
			summary.OCR = &OCRSummary{
				Preview:    previewOf(ocr.Text, summaryPreviewChars),
				Source:     ocr.Source,
				Truncated:  ocr.Truncated,
				Confidence: res.Confidence,
			}
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	for _, spec := range Processors() {
		run, err := s.Store.LatestRunByProcessor(ctx, orgID, assetID, spec.Name)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		summary.Runs = append(summary.Runs, *run)
	}
	return summary, nil
}

// RunWithResults pairs a completed run with its result rows.
type RunWithResults struct {
	Run     models.Run      `json:"run"`
	Results []models.Result `json:"results"`
}

// ListIntelligence returns the completed runs for an asset with their
// results, loaded in a single batched query.
func (s *Service) ListIntelligence(ctx context.Context, orgID, assetID uuid.UUID) ([]RunWithResults, error) {
	runs, err := s.Store.ListCompletedRunsForAsset(ctx, orgID, assetID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(runs))
	for i, run := range runs {
		ids[i] = run.ID
	}
	byRun, err := s.Store.GetResultsByRunIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]RunWithResults, 0, len(runs))
	for _, run := range runs {
		results := byRun[run.ID]
		if results == nil {
			results = []models.Result{}
		}
		out = append(out, RunWithResults{Run: run, Results: results})
	}
	return out, nil
}
