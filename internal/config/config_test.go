package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_ORG", "SCS-Carleton")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Host != "github.com" {
		t.Errorf("Host = %s, want github.com", cfg.Host)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.CloneTimeout != 2*time.Minute {
		t.Errorf("CloneTimeout = %v, want 2m", cfg.CloneTimeout)
	}
	if cfg.MetadataFile != "submit-01" {
		t.Errorf("MetadataFile = %s, want submit-01", cfg.MetadataFile)
	}
	if cfg.Deadline != nil {
		t.Errorf("Deadline = %v, want nil", cfg.Deadline)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_WORKERS", "8")
	t.Setenv("SYNC_CLONE_TIMEOUT", "30s")
	t.Setenv("SYNC_DEADLINE", "2024-03-01-23-59")
	t.Setenv("EMAIL_MATCH_PREFIX", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.CloneTimeout != 30*time.Second {
		t.Errorf("CloneTimeout = %v, want 30s", cfg.CloneTimeout)
	}
	want := time.Date(2024, 3, 1, 23, 59, 0, 0, time.Local)
	if cfg.Deadline == nil || !cfg.Deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", cfg.Deadline, want)
	}
	if !cfg.EmailMatchPrefix {
		t.Error("EmailMatchPrefix should be true")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "workers", key: "SYNC_WORKERS", value: "many"},
		{name: "timeout", key: "SYNC_READ_TIMEOUT", value: "soon"},
		{name: "deadline", key: "SYNC_DEADLINE", value: "next friday"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.key, tc.value)

			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestLoad_TOMLOverlay(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "sync.toml")
	content := `
org = "COMP1406"
prefix = "a1-"
workers = 2
clone_timeout = "45s"
deadline = "2024-03-01T23:59:00Z"
storage_type = "none"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Org != "COMP1406" {
		t.Errorf("Org = %s, want COMP1406", cfg.Org)
	}
	if cfg.GitHubToken != "ghp_test" {
		t.Errorf("GitHubToken = %s, want value from env", cfg.GitHubToken)
	}
	if cfg.Prefix != "a1-" {
		t.Errorf("Prefix = %s, want a1-", cfg.Prefix)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
	if cfg.CloneTimeout != 45*time.Second {
		t.Errorf("CloneTimeout = %v, want 45s", cfg.CloneTimeout)
	}
	want := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	if cfg.Deadline == nil || !cfg.Deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", cfg.Deadline, want)
	}
}

func TestValidate_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{name: "missing token", mutate: func(c *Config) { c.GitHubToken = "" }, field: "GITHUB_TOKEN"},
		{name: "missing org", mutate: func(c *Config) { c.Org = "" }, field: "GITHUB_ORG"},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }, field: "SYNC_WORKERS"},
		{name: "bad storage", mutate: func(c *Config) { c.StorageType = "mongo" }, field: "STORAGE_TYPE"},
		{name: "postgres without url", mutate: func(c *Config) { c.StorageType = "postgres" }, field: "POSTGRES_URL"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.mutate(cfg)

			err = cfg.Validate()
			cfgErr, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tc.field {
				t.Errorf("Field = %s, want %s", cfgErr.Field, tc.field)
			}
		})
	}
}

func TestWithPrefix_DoesNotMutate(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	derived := cfg.WithPrefix("a2-")
	if cfg.Prefix == "a2-" {
		t.Error("source config was mutated")
	}
	if derived.Prefix != "a2-" {
		t.Errorf("Prefix = %s, want a2-", derived.Prefix)
	}
}
