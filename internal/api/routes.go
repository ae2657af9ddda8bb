package api

import (
	"github.com/gorilla/mux"
)

func (s *Server) registerRoutes(r *mux.Router) {
	// Unauthenticated surface.
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/ws/runs", s.handleRunEventsWebSocket)
	r.HandleFunc("/billing/webhook", s.handleBillingWebhook).Methods("POST")

	// Admin surface, gated by X-Admin-Key rather than tenant auth.
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminMiddleware)
	admin.HandleFunc("/deadletter/intelligence_runs", s.handleAdminDeadletterList).Methods("GET")
	admin.HandleFunc("/deadletter/intelligence_runs/peek", s.handleAdminDeadletterPeek).Methods("GET")
	admin.HandleFunc("/deadletter/intelligence_runs/{run_id}/requeue", s.handleAdminRequeue).Methods("POST")
	admin.HandleFunc("/deadletter/assets/{asset_id}/requeue_latest", s.handleAdminRequeueLatest).Methods("POST")

	// Tenant API.
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.auth.Middleware)

	v1.HandleFunc("/assets", s.handleCreateAsset).Methods("POST")
	v1.HandleFunc("/assets/{asset_id}", s.handleGetAsset).Methods("GET")
	v1.HandleFunc("/assets/{asset_id}/intelligence", s.handleListIntelligence).Methods("GET")
	v1.HandleFunc("/assets/{asset_id}/intelligence/runs", s.handleListRuns).Methods("GET")
	v1.HandleFunc("/assets/{asset_id}/intelligence/runs/latest", s.handleLatestRun).Methods("GET")
	v1.HandleFunc("/assets/{asset_id}/intelligence/summary", s.handleAssetSummary).Methods("GET")
	v1.HandleFunc("/assets/{asset_id}/intelligence/{processor}", s.handleEnqueueIntelligence).Methods("POST")
	v1.HandleFunc("/assets/{asset_id}/intelligence/{processor}/cancel", s.handleCancelLatest).Methods("POST")
	v1.HandleFunc("/assets/{asset_id}/index/status", s.handleIndexStatus).Methods("GET")
	v1.HandleFunc("/assets/{asset_id}/related", s.handleRelatedAssets).Methods("GET")
	v1.HandleFunc("/intelligence/runs/{run_id}", s.handleGetRun).Methods("GET")
	v1.HandleFunc("/intelligence/runs/{run_id}/cancel", s.handleCancelRun).Methods("POST")
	v1.HandleFunc("/search/assets", s.handleSearchAssets).Methods("GET")
	v1.HandleFunc("/search/duplicates", s.handleFindDuplicates).Methods("GET")
	v1.HandleFunc("/usage", s.handleGetUsage).Methods("GET")
}
