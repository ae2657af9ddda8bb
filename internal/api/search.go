package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"assetintel/internal/models"
	"assetintel/internal/repository"
)

func (s *Server) handleSearchAssets(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		query = strings.TrimSpace(r.URL.Query().Get("q"))
	}
	if query == "" {
		writeAPIError(w, http.StatusBadRequest, "query is required")
		return
	}
	limit, offset := parseLimitOffset(r)

	hits, err := s.svc.SearchAssets(r.Context(), rc.OrgID, query, limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeAPIResponse(w, hits, map[string]interface{}{
		"query":  query,
		"limit":  limit,
		"offset": offset,
		"count":  len(hits),
	}, nil)
}

// handleFindDuplicates looks up exact duplicates by sha256 and/or etag.
func (s *Server) handleFindDuplicates(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())

	sha := strings.TrimSpace(r.URL.Query().Get("sha256"))
	etag := strings.TrimSpace(r.URL.Query().Get("etag"))
	if sha == "" && etag == "" {
		writeAPIError(w, http.StatusBadRequest, "sha256 or etag is required")
		return
	}
	limit, _ := parseLimitOffset(r)

	entries, err := s.svc.FindDuplicates(r.Context(), rc.OrgID, sha, etag, limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "duplicate lookup failed")
		return
	}
	if entries == nil {
		entries = []models.SearchIndexEntry{}
	}
	writeAPIResponse(w, entries, map[string]interface{}{"count": len(entries)}, nil)
}

// handleRelatedAssets ranks related assets. With ensure_index set, missing
// index inputs kick off the indexing pipeline first and the response is 202.
func (s *Server) handleRelatedAssets(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	assetID, ok := pathUUID(r, "asset_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	perBucket := 20
	if v := r.URL.Query().Get("limit_per_bucket"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			perBucket = n
		}
	}

	if boolQuery(r, "ensure_index") {
		status, err := s.svc.EnsureAssetIndexing(r.Context(), rc.OrgID, assetID, true)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeAPIError(w, http.StatusNotFound, "asset not found")
				return
			}
			writeAPIError(w, http.StatusInternalServerError, "indexing failed")
			return
		}
		if status.WorkStarted {
			writeAPIStatus(w, http.StatusAccepted, status, nil)
			return
		}
	}

	related, err := s.svc.RelatedAssets(r.Context(), rc.OrgID, assetID, perBucket)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "related lookup failed")
		return
	}
	writeAPIResponse(w, related, map[string]interface{}{"count": len(related)}, nil)
}

// handleIndexStatus reports indexing progress. With auto_retry_ocr set, it
// also reconciles: missing fingerprint or OCR work is started and the
// response becomes 202.
func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	assetID, ok := pathUUID(r, "asset_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	status, err := s.svc.EnsureAssetIndexing(r.Context(), rc.OrgID, assetID, boolQuery(r, "auto_retry_ocr"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "asset not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "failed to resolve index status")
		return
	}

	if status.WorkStarted {
		writeAPIStatus(w, http.StatusAccepted, status, nil)
		return
	}
	writeAPIResponse(w, status, nil, nil)
}
