package intelligence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"assetintel/internal/models"
)

// SearchHit is one full-text search result.
type SearchHit struct {
	AssetID     uuid.UUID `json:"asset_id"`
	Rank        float64   `json:"rank"`
	Snippet     *string   `json:"snippet,omitempty"`
	ContentType *string   `json:"content_type,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SearchAssets runs plain-text search over indexed OCR content.
func (s *Service) SearchAssets(ctx context.Context, orgID uuid.UUID, query string, limit, offset int) ([]SearchHit, error) {
	results, err := s.Store.SearchAssets(ctx, orgID, query, limit, offset)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(results))
	for _, res := range results {
		hit := SearchHit{
			AssetID:     res.Entry.AssetID,
			Rank:        res.Rank,
			ContentType: res.Entry.ContentType,
			UpdatedAt:   res.Entry.UpdatedAt,
		}
		if res.Entry.OCRTextPreview != nil {
			sn := previewOf(*res.Entry.OCRTextPreview, snippetChars)
			hit.Snippet = &sn
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// FindDuplicates lists assets whose indexed content hash or ETag matches the
// given values.
func (s *Service) FindDuplicates(ctx context.Context, orgID uuid.UUID, sha256, etag string, limit int) ([]models.SearchIndexEntry, error) {
	return s.Store.FindDuplicates(ctx, orgID, sha256, etag, limit)
}
