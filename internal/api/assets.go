package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"assetintel/internal/models"
	"assetintel/internal/repository"
)

type createAssetRequest struct {
	SourceURI string          `json:"source_uri"`
	AssetType string          `json:"asset_type"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())

	var req createAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SourceURI == "" {
		writeAPIError(w, http.StatusBadRequest, "source_uri is required")
		return
	}
	if u, err := url.Parse(req.SourceURI); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		writeAPIError(w, http.StatusBadRequest, "source_uri must be an http(s) URL")
		return
	}
	if req.AssetType == "" {
		req.AssetType = "file"
	}

	asset, err := s.repo.CreateAsset(r.Context(), rc.OrgID, req.SourceURI, req.AssetType, req.Metadata)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "failed to create asset")
		return
	}
	writeAPIStatus(w, http.StatusCreated, asset, nil)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	assetID, ok := pathUUID(r, "asset_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	asset, err := s.repo.GetAsset(r.Context(), rc.OrgID, assetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "asset not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "failed to load asset")
		return
	}
	writeAPIResponse(w, asset, nil, nil)
}

func (s *Server) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())

	period := r.URL.Query().Get("period")
	if period == "" {
		period = models.CurrentPeriod(time.Now())
	}

	usage, err := s.repo.GetUsage(r.Context(), rc.OrgID, period)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}

	org, err := s.repo.GetOrganization(r.Context(), rc.OrgID)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "failed to load organization")
		return
	}
	quota := models.QuotaForPlan(org.Plan)

	writeAPIResponse(w, usage, map[string]interface{}{
		"plan":                     org.Plan,
		"max_runs_per_month":       quota.MaxRunsPerMonth,
		"max_cost_cents_per_month": quota.MaxCostCentsPerMonth,
	}, nil)
}
