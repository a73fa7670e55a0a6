package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("MODE", "")
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("SWEEP_CONCURRENCY", "")
	t.Setenv("DB_DRIVER", "")

	cfg := FromEnv()
	if cfg.Mode != ModeOffline {
		t.Fatalf("mode = %q, want offline", cfg.Mode)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Fatalf("sweep interval = %v", cfg.SweepInterval)
	}
	if cfg.SweepConcurrency != 1 {
		t.Fatalf("sweep concurrency = %d", cfg.SweepConcurrency)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("db driver = %q", cfg.DBDriver)
	}
	if cfg.AlertDedupWindow != 24*time.Hour {
		t.Fatalf("dedup window = %v", cfg.AlertDedupWindow)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("LOG_MODE", "")
	t.Setenv("SWEEP_INTERVAL", "90s")
	t.Setenv("SWEEP_CONCURRENCY", "4")
	t.Setenv("ENABLE_SWEEP", "no")
	t.Setenv("CORS_ORIGINS_ONLINE", " https://a.example , https://b.example ,")

	cfg := FromEnv()
	if cfg.LogMode != "prod" {
		t.Fatalf("log mode = %q, want prod", cfg.LogMode)
	}
	if cfg.SweepInterval != 90*time.Second || cfg.SweepConcurrency != 4 || cfg.EnableSweep {
		t.Fatalf("unexpected sweep config: %+v", cfg)
	}
	if len(cfg.CORSOriginsOnline) != 2 || cfg.CORSOriginsOnline[1] != "https://b.example" {
		t.Fatalf("cors origins = %v", cfg.CORSOriginsOnline)
	}
}
