package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.APIPort != "8080" {
		t.Errorf("APIPort = %q, want 8080", cfg.APIPort)
	}
	if !cfg.UseQueueWorker {
		t.Error("UseQueueWorker should default to true")
	}
	if cfg.WorkerConcurrency != 10 {
		t.Errorf("WorkerConcurrency = %d, want 10", cfg.WorkerConcurrency)
	}
	if cfg.JobTimeout != 600*time.Second {
		t.Errorf("JobTimeout = %s, want 10m", cfg.JobTimeout)
	}
	if cfg.MaxTries != 3 {
		t.Errorf("MaxTries = %d, want 3", cfg.MaxTries)
	}
	if cfg.DeadletterMaxItems != 200 {
		t.Errorf("DeadletterMaxItems = %d, want 200", cfg.DeadletterMaxItems)
	}
	if cfg.AdminAPIEnabled {
		t.Error("AdminAPIEnabled should default to false")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("USE_ARQ_WORKER", "false")
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("JOB_TIMEOUT_SEC", "120")
	t.Setenv("ADMIN_API_ENABLED", "true")

	cfg := FromEnv()
	if cfg.APIPort != "9999" {
		t.Errorf("APIPort = %q", cfg.APIPort)
	}
	if cfg.UseQueueWorker {
		t.Error("USE_ARQ_WORKER=false not honored")
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
	if cfg.JobTimeout != 2*time.Minute {
		t.Errorf("JobTimeout = %s", cfg.JobTimeout)
	}
	if !cfg.AdminAPIEnabled {
		t.Error("ADMIN_API_ENABLED=true not honored")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("api_port: \"7070\"\nworker_concurrency: 2\nadmin_key: \"topsecret\"\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.APIPort != "7070" {
		t.Errorf("APIPort = %q, want 7070", cfg.APIPort)
	}
	if cfg.WorkerConcurrency != 2 {
		t.Errorf("WorkerConcurrency = %d, want 2", cfg.WorkerConcurrency)
	}
	if cfg.AdminKey != "topsecret" {
		t.Errorf("AdminKey = %q", cfg.AdminKey)
	}
	// Untouched fields keep env defaults.
	if cfg.MaxTries != 3 {
		t.Errorf("MaxTries = %d, want default 3", cfg.MaxTries)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
