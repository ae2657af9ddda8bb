package intelligence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetintel/internal/models"
	"assetintel/internal/repository"
)

// Related-asset scoring.
const (
	scoreSHA256     = 1.00
	scoreETag       = 0.95
	scoreNearSize   = 0.75
	scoreTextWeight = 0.70
	textRankDamping = 0.25

	nearSizeTolerance = 0.03
	textSeedTokens    = 20
	snippetChars      = 220

	defaultBucketLimit = 20
)

// RelatedAsset is one ranked entry in the related-assets response.
type RelatedAsset struct {
	AssetID      uuid.UUID `json:"asset_id"`
	Score        float64   `json:"score"`
	Badges       []string  `json:"badges"`
	Explanations []string  `json:"explanations"`
	Snippet      *string   `json:"snippet,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RelatedAssets ranks other assets against a seed asset across four signals:
// exact content hash, ETag match, near-identical size, and full-text
// similarity. Each bucket contributes at most perBucket candidates; an asset
// hit by several signals keeps its best score and the union of badges.
func (s *Service) RelatedAssets(ctx context.Context, orgID, assetID uuid.UUID, perBucket int) ([]RelatedAsset, error) {
	if perBucket <= 0 {
		perBucket = defaultBucketLimit
	}
	seed, err := s.Store.GetIndexEntry(ctx, orgID, assetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	byAsset := make(map[uuid.UUID]*RelatedAsset)

	merge := func(e *models.SearchIndexEntry, score float64, badge, explanation string, snippet *string) {
		cur, ok := byAsset[e.AssetID]
		if !ok {
			cur = &RelatedAsset{AssetID: e.AssetID, UpdatedAt: e.UpdatedAt}
			byAsset[e.AssetID] = cur
		}
		if score > cur.Score {
			cur.Score = score
		}
		if !containsString(cur.Badges, badge) {
			cur.Badges = append(cur.Badges, badge)
		}
		cur.Explanations = append(cur.Explanations, explanation)
		if cur.Snippet == nil && snippet != nil {
			cur.Snippet = snippet
		}
		if e.UpdatedAt.After(cur.UpdatedAt) {
			cur.UpdatedAt = e.UpdatedAt
		}
	}

	if seed.SHA256 != nil && *seed.SHA256 != "" {
		matches, err := s.Store.FindBySHA256(ctx, orgID, assetID, *seed.SHA256, perBucket)
		if err != nil {
			return nil, err
		}
		for i := range matches {
			merge(&matches[i], scoreSHA256, "exact-duplicate", "identical content hash", nil)
		}
	}

	if seed.ETag != nil && *seed.ETag != "" {
		matches, err := s.Store.FindByETag(ctx, orgID, assetID, *seed.ETag, perBucket)
		if err != nil {
			return nil, err
		}
		for i := range matches {
			merge(&matches[i], scoreETag, "etag-match", "matching ETag", nil)
		}
	}

	if seed.ContentLength != nil && *seed.ContentLength > 0 && seed.ContentType != nil && *seed.ContentType != "" {
		size := *seed.ContentLength
		span := int64(math.Ceil(float64(size) * nearSizeTolerance))
		matches, err := s.Store.FindNearSize(ctx, orgID, assetID, *seed.ContentType, size-span, size+span, perBucket)
		if err != nil {
			return nil, err
		}
		for i := range matches {
			m := &matches[i]
			if m.ContentLength == nil {
				continue
			}
			diff := math.Abs(float64(*m.ContentLength-size)) / float64(size)
			if diff > nearSizeTolerance {
				continue
			}
			score := scoreNearSize * (1 - diff/nearSizeTolerance)
			merge(m, score, "similar-size",
				fmt.Sprintf("content size within %.1f%%", diff*100), nil)
		}
	}

	if seedPhrase := textSeed(seed.OCRTextPreview); seedPhrase != "" {
		matches, err := s.Store.FindTextRelated(ctx, orgID, assetID, seedPhrase, perBucket)
		if err != nil {
			return nil, err
		}
		for i := range matches {
			m := &matches[i]
			rank := m.Rank
			score := scoreTextWeight * rank / (rank + textRankDamping)
			var snippet *string
			if m.Entry.OCRTextPreview != nil {
				sn := previewOf(*m.Entry.OCRTextPreview, snippetChars)
				snippet = &sn
			}
			merge(&m.Entry, score, "text-match", "similar extracted text", snippet)
		}
	}

	out := make([]RelatedAsset, 0, len(byAsset))
	for _, ra := range byAsset {
		out = append(out, *ra)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// textSeed takes the leading tokens of the OCR preview as the similarity
// query phrase.
func textSeed(preview *string) string {
	if preview == nil {
		return ""
	}
	tokens := strings.Fields(*preview)
	if len(tokens) == 0 {
		return ""
	}
	if len(tokens) > textSeedTokens {
		tokens = tokens[:textSeedTokens]
	}
	return strings.Join(tokens, " ")
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
