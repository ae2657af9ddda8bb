package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assetintel/internal/api"
	"assetintel/internal/config"
	"assetintel/internal/intelligence"
	"assetintel/internal/queue"
	"assetintel/internal/repository"
	"assetintel/internal/worker"
)

// BuildCommit is stamped via -ldflags "-X main.BuildCommit=$(git rev-parse --short HEAD)".
var BuildCommit = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	api.BuildCommit = BuildCommit

	cfg := config.FromEnv()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fileCfg, err := config.LoadFile(path)
		if err != nil {
			log.Fatalf("[main] failed to load config file %s: %v", path, err)
		}
		cfg = fileCfg
	}

	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[main] database connection failed: %v", err)
	}
	defer repo.Close()

	schemaPath := os.Getenv("SCHEMA_PATH")
	if schemaPath == "" {
		schemaPath = "schema.sql"
	}
	if err := repo.Migrate(schemaPath); err != nil {
		log.Fatalf("[main] migration failed: %v", err)
	}
	log.Printf("[main] schema applied from %s", schemaPath)

	q, err := queue.New(cfg.RedisURL, cfg.DeadletterMaxItems)
	if err != nil {
		log.Fatalf("[main] redis connection failed: %v", err)
	}
	defer q.Close()
	if err := q.Ping(context.Background()); err != nil {
		log.Fatalf("[main] redis ping failed: %v", err)
	}

	// The OCR/PDF engine is deployment-provided. Without one, OCR runs fail
	// with a classified dependency error instead of crashing.
	var engine intelligence.Engine = intelligence.UnavailableEngine{}

	svc := intelligence.NewService(repo, q, intelligence.NewFetcher(), engine, cfg.UseQueueWorker, cfg.JobTimeout)
	svc.Notify = api.BroadcastRunUpdate

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := os.Getenv("RUN_MODE")
	if mode == "" {
		mode = "all"
	}

	workerDone := make(chan struct{})
	if cfg.UseQueueWorker && (mode == "all" || mode == "worker") {
		w := worker.New(repo, q, worker.Options{
			Concurrency: cfg.WorkerConcurrency,
			JobTimeout:  cfg.JobTimeout,
			MaxTries:    cfg.MaxTries,
			Engine:      engine,
		})
		go func() {
			w.Run(ctx)
			close(workerDone)
		}()
	} else {
		close(workerDone)
		if !cfg.UseQueueWorker {
			log.Printf("[main] queue worker disabled, runs execute in-process")
		}
	}

	if mode == "worker" {
		log.Printf("[main] worker-only mode, commit %s", BuildCommit)
		<-ctx.Done()
		<-workerDone
		return
	}

	server := api.NewServer(repo, svc, q, cfg)
	go func() {
		log.Printf("[main] api listening on :%s, commit %s", cfg.APIPort, BuildCommit)
		if err := server.Start(); err != nil {
			log.Printf("[main] api server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] api shutdown error: %v", err)
	}
	<-workerDone
	log.Printf("[main] bye")
}
