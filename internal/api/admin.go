package api

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"assetintel/internal/models"
	"assetintel/internal/repository"
)

// adminMiddleware gates the operator surface. When the admin API is disabled
// the routes do not exist as far as callers can tell.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.AdminAPIEnabled || s.cfg.AdminKey == "" {
			writeAPIError(w, http.StatusNotFound, "not found")
			return
		}
		key := r.Header.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) != 1 {
			writeAPIError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAdminDeadletterList(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)

	events, err := s.repo.ListDeadletterEvents(r.Context(), limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "failed to list deadletter events")
		return
	}
	if events == nil {
		events = []models.DeadletterEvent{}
	}
	writeAPIResponse(w, events, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
		"count":  len(events),
	}, nil)
}

func (s *Server) handleAdminDeadletterPeek(w http.ResponseWriter, r *http.Request) {
	limit, _ := parseLimitOffset(r)

	items, err := s.queue.ListDeadletterPeek(r.Context(), limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "failed to read peek list")
		return
	}
	writeAPIResponse(w, items, map[string]interface{}{"count": len(items)}, nil)
}

func (s *Server) handleAdminRequeue(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(r, "run_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.svc.RequeueDeadletter(r.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "no requeueable deadletter event for run")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "requeue failed")
		return
	}
	writeAPIStatus(w, http.StatusAccepted, run, nil)
}

func (s *Server) handleAdminRequeueLatest(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathUUID(r, "asset_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	asset, err := s.repo.GetAssetAny(r.Context(), assetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "asset not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "failed to load asset")
		return
	}

	run, err := s.svc.RequeueLatestForAsset(r.Context(), asset.OrgID, assetID, r.URL.Query().Get("processor_name"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "no deadletter event for asset")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "requeue failed")
		return
	}
	writeAPIStatus(w, http.StatusAccepted, run, nil)
}
