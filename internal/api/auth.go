package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"assetintel/internal/repository"
)

type contextKey string

const requestContextKey contextKey = "request_context"

// RequestContext is the authenticated tenant identity placed on each request.
type RequestContext struct {
	OrgID uuid.UUID
	Role  string
}

type AuthMiddleware struct {
	jwtSecret []byte
	repo      *repository.Repository
}

func NewAuthMiddleware(jwtSecret string, repo *repository.Repository) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: []byte(jwtSecret),
		repo:      repo,
	}
}

func (a *AuthMiddleware) extract(r *http.Request) (*RequestContext, error) {
	// Try API Key first
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		hash := sha256.Sum256([]byte(apiKey))
		keyHash := hex.EncodeToString(hash[:])
		record, err := a.repo.LookupAPIKey(r.Context(), keyHash)
		if err != nil {
			return nil, fmt.Errorf("invalid API key")
		}
		a.repo.TouchAPIKey(r.Context(), record.ID)
		return &RequestContext{OrgID: record.OrgID, Role: record.Role}, nil
	}

	// Try JWT
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing Authorization header or X-API-Key")
	}

	tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid JWT: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid JWT claims")
	}

	orgClaim, ok := claims["org_id"].(string)
	if !ok || orgClaim == "" {
		return nil, fmt.Errorf("JWT missing org_id claim")
	}
	orgID, err := uuid.Parse(orgClaim)
	if err != nil {
		return nil, fmt.Errorf("JWT org_id is not a UUID")
	}

	role, _ := claims["role"].(string)
	if role == "" {
		role = "member"
	}
	return &RequestContext{OrgID: orgID, Role: role}, nil
}

func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			next.ServeHTTP(w, r)
			return
		}

		rc, err := a.extract(r)
		if err != nil {
			writeAPIError(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), requestContextKey, rc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the authenticated identity, nil when absent.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey).(*RequestContext)
	return rc
}

// HashAPIKey derives the stored hash for a raw API key. Used by provisioning
// tooling; raw keys are never persisted.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
