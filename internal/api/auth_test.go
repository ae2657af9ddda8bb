package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func signToken(t *testing.T, secret string, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestAuthMiddlewareJWT(t *testing.T) {
	const secret = "test-secret"
	orgID := uuid.New()
	auth := NewAuthMiddleware(secret, nil)

	var captured *RequestContext
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = FromContext(r.Context())
	})
	handler := auth.Middleware(next)

	t.Run("valid token", func(t *testing.T) {
		captured = nil
		token := signToken(t, secret, jwtlib.MapClaims{"org_id": orgID.String(), "role": "admin"})

		req := httptest.NewRequest("GET", "/v1/usage", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if captured == nil {
			t.Fatal("request context not set")
		}
		if captured.OrgID != orgID {
			t.Errorf("org = %s, want %s", captured.OrgID, orgID)
		}
		if captured.Role != "admin" {
			t.Errorf("role = %q, want admin", captured.Role)
		}
	})

	t.Run("role defaults to member", func(t *testing.T) {
		captured = nil
		token := signToken(t, secret, jwtlib.MapClaims{"org_id": orgID.String()})

		req := httptest.NewRequest("GET", "/v1/usage", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if captured == nil || captured.Role != "member" {
			t.Errorf("expected default member role, got %+v", captured)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/usage", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		token := signToken(t, "other-secret", jwtlib.MapClaims{"org_id": orgID.String()})

		req := httptest.NewRequest("GET", "/v1/usage", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("org_id must be a UUID", func(t *testing.T) {
		token := signToken(t, secret, jwtlib.MapClaims{"org_id": "not-a-uuid"})

		req := httptest.NewRequest("GET", "/v1/usage", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestHashAPIKey(t *testing.T) {
	a := HashAPIKey("sk_live_example")
	b := HashAPIKey("sk_live_example")
	c := HashAPIKey("sk_live_other")

	if a != b {
		t.Error("hash must be deterministic")
	}
	if a == c {
		t.Error("different keys must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
