package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"assetintel/internal/config"
	"assetintel/internal/intelligence"
	"assetintel/internal/queue"
	"assetintel/internal/repository"
)

// BuildCommit is set by main to the git commit hash baked in at build time.
var BuildCommit = "dev"

type Server struct {
	repo       *repository.Repository
	svc        *intelligence.Service
	queue      *queue.Queue
	cfg        *config.Config
	auth       *AuthMiddleware
	httpServer *http.Server
	startedAt  time.Time
}

func NewServer(repo *repository.Repository, svc *intelligence.Service, q *queue.Queue, cfg *config.Config) *Server {
	s := &Server{
		repo:      repo,
		svc:       svc,
		queue:     q,
		cfg:       cfg,
		auth:      NewAuthMiddleware(cfg.JWTSecret, repo),
		startedAt: time.Now(),
	}

	r := mux.NewRouter()
	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)

	s.registerRoutes(r)

	s.httpServer = &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}
	return s
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.repo.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	writeAPIResponse(w, map[string]interface{}{
		"status":  status,
		"version": BuildCommit,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	}, nil, nil)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":       "ok",
		"version":      BuildCommit,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"queue_mode":   s.cfg.UseQueueWorker,
	}

	if s.queue != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if depth, err := s.queue.Depth(ctx); err == nil {
			resp["queue_depth"] = depth
		} else {
			resp["queue_depth"] = nil
		}
	}

	processors := make([]map[string]interface{}, 0)
	for _, spec := range intelligence.Processors() {
		processors = append(processors, map[string]interface{}{
			"name":        spec.Name,
			"version":     spec.Version,
			"price_cents": spec.PriceCents,
		})
	}
	resp["processors"] = processors

	writeAPIResponse(w, resp, nil, nil)
}
