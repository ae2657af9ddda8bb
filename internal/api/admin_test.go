package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"assetintel/internal/config"
)

func TestAdminMiddlewareGating(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		enabled    bool
		adminKey   string
		headerKey  string
		wantStatus int
	}{
		{"disabled api hides routes", false, "secret", "secret", http.StatusNotFound},
		{"enabled without key configured hides routes", true, "", "anything", http.StatusNotFound},
		{"wrong key forbidden", true, "secret", "wrong", http.StatusForbidden},
		{"missing key forbidden", true, "secret", "", http.StatusForbidden},
		{"correct key passes", true, "secret", "secret", http.StatusNoContent},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{cfg: &config.Config{
				AdminAPIEnabled: tt.enabled,
				AdminKey:        tt.adminKey,
			}}

			req := httptest.NewRequest("GET", "/admin/deadletter", nil)
			if tt.headerKey != "" {
				req.Header.Set("X-Admin-Key", tt.headerKey)
			}
			rec := httptest.NewRecorder()
			s.adminMiddleware(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
