package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"assetintel/internal/intelligence"
	"assetintel/internal/models"
	"assetintel/internal/repository"
)

func (s *Server) handleEnqueueIntelligence(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	assetID, ok := pathUUID(r, "asset_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid asset id")
		return
	}
	processor := pathVar(r, "processor")

	opts := intelligence.EnqueueOptions{
		Force: boolQuery(r, "force"),
		Retry: boolQuery(r, "retry"),
	}

	run, reused, err := s.svc.EnqueueIntelligence(r.Context(), rc.OrgID, assetID, processor, opts)
	if err != nil {
		switch {
		case errors.Is(err, intelligence.ErrUnknownProcessor):
			writeAPIError(w, http.StatusBadRequest, "unknown processor")
		case errors.Is(err, intelligence.ErrQuotaRunsExceeded):
			writeAPIError(w, http.StatusTooManyRequests, "monthly run quota exceeded")
		case errors.Is(err, intelligence.ErrQuotaCostExceeded):
			writeAPIError(w, http.StatusPaymentRequired, "monthly cost quota exceeded")
		case errors.Is(err, repository.ErrNotFound):
			writeAPIError(w, http.StatusNotFound, "asset not found")
		default:
			writeAPIError(w, http.StatusInternalServerError, "failed to enqueue run")
		}
		return
	}

	status := http.StatusAccepted
	if reused {
		status = http.StatusOK
	}
	writeAPIStatus(w, status, run, map[string]interface{}{"reused": reused})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	runID, ok := pathUUID(r, "run_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.repo.GetRunForOrg(r.Context(), rc.OrgID, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "run not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	meta := map[string]interface{}{}
	if !run.IsTerminal() {
		if partial, err := s.repo.GetPartialResult(r.Context(), run.ID); err == nil {
			var data models.OCRPartialData
			if json.Unmarshal(partial.Data, &data) == nil {
				meta["partial"] = map[string]interface{}{
					"pages_processed": data.PagesProcessed,
					"pages_total":     data.PagesTotal,
					"truncated":       data.Truncated,
					"preview":         previewString(data.Text, 500),
				}
			}
		}
	}
	if len(meta) == 0 {
		meta = nil
	}
	writeAPIResponse(w, run, meta, nil)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	assetID, ok := pathUUID(r, "asset_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid asset id")
		return
	}
	name := intelligence.NormalizeProcessorName(r.URL.Query().Get("processor"))
	if _, ok := intelligence.LookupProcessor(name); !ok {
		writeAPIError(w, http.StatusBadRequest, "unknown processor")
		return
	}

	run, err := s.repo.LatestRunByProcessor(r.Context(), rc.OrgID, assetID, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "no runs for processor")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeAPIResponse(w, run, nil, nil)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	assetID, ok := pathUUID(r, "asset_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid asset id")
		return
	}
	limit, offset := parseLimitOffset(r)

	runs, err := s.repo.ListRunsForAsset(r.Context(), rc.OrgID, assetID, limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	writeAPIResponse(w, runs, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
		"count":  len(runs),
	}, nil)
}

func (s *Server) handleListIntelligence(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	assetID, ok := pathUUID(r, "asset_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	out, err := s.svc.ListIntelligence(r.Context(), rc.OrgID, assetID)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "failed to list intelligence")
		return
	}
	writeAPIResponse(w, out, map[string]interface{}{"count": len(out)}, nil)
}

func (s *Server) handleAssetSummary(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	assetID, ok := pathUUID(r, "asset_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	summary, err := s.svc.Summarize(r.Context(), rc.OrgID, assetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "asset not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	writeAPIResponse(w, summary, nil, nil)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	runID, ok := pathUUID(r, "run_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.svc.CancelRun(r.Context(), rc.OrgID, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "run not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "failed to cancel run")
		return
	}
	writeAPIResponse(w, run, nil, nil)
}

func (s *Server) handleCancelLatest(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	assetID, ok := pathUUID(r, "asset_id")
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid asset id")
		return
	}
	processor := pathVar(r, "processor")
	cascade := boolQuery(r, "cascade")

	runs, err := s.svc.CancelLatest(r.Context(), rc.OrgID, assetID, processor, cascade)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	writeAPIResponse(w, runs, map[string]interface{}{
		"canceled": len(runs),
		"cascade":  cascade,
	}, nil)
}
