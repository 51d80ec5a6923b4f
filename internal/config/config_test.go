package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "test-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GitHub.BaseBranch != "master" {
		t.Errorf("Expected base branch master, got %s", cfg.GitHub.BaseBranch)
	}
	if cfg.RateLimit.Window != 60*time.Second {
		t.Errorf("Expected 60s window, got %v", cfg.RateLimit.Window)
	}
	if cfg.Submission.MaxBatchSize != 10 {
		t.Errorf("Expected batch cap 10, got %d", cfg.Submission.MaxBatchSize)
	}
	if cfg.Content.Strategy != StrategyFiles {
		t.Errorf("Expected files strategy, got %s", cfg.Content.Strategy)
	}
	if cfg.Content.IDWidth != 4 {
		t.Errorf("Expected id width 4, got %d", cfg.Content.IDWidth)
	}
	if cfg.Admin.Header != "x-admin-password" {
		t.Errorf("Unexpected admin header %s", cfg.Admin.Header)
	}
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Error("Expected error when GITHUB_TOKEN is missing")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "test-token")
	t.Setenv("CONTENT_STRATEGY", "array")
	t.Setenv("RATE_LIMIT_STORE", "sqlite")
	t.Setenv("RESOLVER_PROXIES", " https://a.example/?u=%s , ,https://b.example/%s ")
	t.Setenv("RATE_LIMIT_WINDOW", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Content.Strategy != StrategyArray {
		t.Errorf("Expected array strategy, got %s", cfg.Content.Strategy)
	}
	if cfg.Store.Driver != StoreDriverSQLite {
		t.Errorf("Expected sqlite store, got %s", cfg.Store.Driver)
	}
	if len(cfg.Resolver.Proxies) != 2 || cfg.Resolver.Proxies[1] != "https://b.example/%s" {
		t.Errorf("Unexpected proxies: %v", cfg.Resolver.Proxies)
	}
	if cfg.RateLimit.Window != 90*time.Second {
		t.Errorf("Expected 90s window, got %v", cfg.RateLimit.Window)
	}
}

func TestValidate_UnknownStrategy(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "test-token")
	t.Setenv("CONTENT_STRATEGY", "yaml")

	if _, err := Load(); err == nil {
		t.Error("Expected error for unknown content strategy")
	}
}
