package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_HS256_SECRET", "")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("addr=%q", cfg.HTTP.Addr)
	}
	if !cfg.UseMemory() {
		t.Fatalf("expected memory backend without DATABASE_URL")
	}
	if cfg.AuthEnabled() {
		t.Fatalf("auth should be off without a secret")
	}
	if cfg.Redis.LockTTL != 30*time.Second {
		t.Fatalf("lock ttl=%v", cfg.Redis.LockTTL)
	}
	if cfg.Redis.LockTTL < cfg.HTTP.WriteTimeout {
		t.Fatalf("lock ttl %v shorter than write timeout %v", cfg.Redis.LockTTL, cfg.HTTP.WriteTimeout)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/mill")
	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("LOCK_TTL", "3s")
	t.Setenv("JWT_HS256_SECRET", "s3cret")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.UseMemory() || !cfg.DB.AutoMigrate {
		t.Fatalf("unexpected db config %+v", cfg.DB)
	}
	if cfg.Log.Format != "text" {
		t.Fatalf("format=%q", cfg.Log.Format)
	}
	if cfg.Redis.LockTTL != 3*time.Second {
		t.Fatalf("ttl=%v", cfg.Redis.LockTTL)
	}
	if !cfg.AuthEnabled() {
		t.Fatalf("expected auth enabled")
	}
}

func TestFromEnvRejectsBadFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for LOG_FORMAT=xml")
	}
}
