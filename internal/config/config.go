package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DeadlineLayouts are the accepted deadline formats, tried in order.
// Layouts without a zone are read in local time.
var DeadlineLayouts = []string{
	"2006-01-02-15-04",
	"2006-01-02-15:04",
	time.RFC3339,
}

// Config holds the application configuration.
// It is loaded once and passed explicitly; nothing mutates it during a run.
type Config struct {
	// GitHub
	GitHubToken string
	Org         string
	Host        string

	// Sync
	Prefix        string
	DestRoot      string
	Deadline      *time.Time
	Workers       int
	CloneTimeout  time.Duration
	ReadTimeout   time.Duration
	FetchExisting bool

	// Submission metadata
	MetadataFile     string
	EmailDomain      string
	EmailMatchPrefix bool

	// Output
	ReportDir string

	// Storage
	StorageType string // "sqlite", "postgres" or "none"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string

	LogLevel string
}

// fileConfig mirrors the TOML layout. Durations and the deadline are strings
// so they share parsing with the environment.
type fileConfig struct {
	Token            string `toml:"token"`
	Org              string `toml:"org"`
	Host             string `toml:"host"`
	Prefix           string `toml:"prefix"`
	DestRoot         string `toml:"dest_root"`
	Deadline         string `toml:"deadline"`
	Workers          int    `toml:"workers"`
	CloneTimeout     string `toml:"clone_timeout"`
	ReadTimeout      string `toml:"read_timeout"`
	FetchExisting    bool   `toml:"fetch_existing"`
	MetadataFile     string `toml:"metadata_file"`
	EmailDomain      string `toml:"email_domain"`
	EmailMatchPrefix bool   `toml:"email_match_prefix"`
	ReportDir        string `toml:"report_dir"`
	StorageType      string `toml:"storage_type"`
	SQLitePath       string `toml:"sqlite_path"`
	PostgresURL      string `toml:"postgres_url"`
	LogLevel         string `toml:"log_level"`
}

// Load loads the configuration from environment variables, then overlays the
// TOML file at path when path is not empty.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		GitHubToken:      getEnv("GITHUB_TOKEN", ""),
		Org:              getEnv("GITHUB_ORG", ""),
		Host:             getEnv("GITHUB_HOST", "github.com"),
		Prefix:           getEnv("SYNC_PREFIX", ""),
		DestRoot:         getEnv("SYNC_DEST_ROOT", "."),
		MetadataFile:     getEnv("METADATA_FILE", "submit-01"),
		EmailDomain:      getEnv("EMAIL_DOMAIN", "cmail.carleton.ca"),
		ReportDir:        getEnv("REPORT_DIR", "./data"),
		StorageType:      getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:       getEnv("SQLITE_PATH", "./submissions.db"),
		PostgresURL:      getEnv("POSTGRES_URL", ""),
		APIPort:          getEnv("API_PORT", "8080"),
		APIHost:          getEnv("API_HOST", "localhost"),
		APIEndpoint:      getEnv("API_ENDPOINT", "http://localhost:8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		FetchExisting:    getEnvBool("SYNC_FETCH_EXISTING", false),
		EmailMatchPrefix: getEnvBool("EMAIL_MATCH_PREFIX", false),
	}

	var err error
	if cfg.Workers, err = getEnvInt("SYNC_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.CloneTimeout, err = getEnvDuration("SYNC_CLONE_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout, err = getEnvDuration("SYNC_READ_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if raw := os.Getenv("SYNC_DEADLINE"); raw != "" {
		deadline, err := ParseDeadline(raw)
		if err != nil {
			return nil, &ConfigError{Field: "SYNC_DEADLINE", Message: err.Error()}
		}
		cfg.Deadline = &deadline
	}

	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	overlay(&c.GitHubToken, fc.Token)
	overlay(&c.Org, fc.Org)
	overlay(&c.Host, fc.Host)
	overlay(&c.Prefix, fc.Prefix)
	overlay(&c.DestRoot, fc.DestRoot)
	overlay(&c.MetadataFile, fc.MetadataFile)
	overlay(&c.EmailDomain, fc.EmailDomain)
	overlay(&c.ReportDir, fc.ReportDir)
	overlay(&c.StorageType, fc.StorageType)
	overlay(&c.SQLitePath, fc.SQLitePath)
	overlay(&c.PostgresURL, fc.PostgresURL)
	overlay(&c.LogLevel, fc.LogLevel)
	if fc.Workers != 0 {
		c.Workers = fc.Workers
	}
	if fc.FetchExisting {
		c.FetchExisting = true
	}
	if fc.EmailMatchPrefix {
		c.EmailMatchPrefix = true
	}
	if fc.CloneTimeout != "" {
		d, err := time.ParseDuration(fc.CloneTimeout)
		if err != nil {
			return &ConfigError{Field: "clone_timeout", Message: err.Error()}
		}
		c.CloneTimeout = d
	}
	if fc.ReadTimeout != "" {
		d, err := time.ParseDuration(fc.ReadTimeout)
		if err != nil {
			return &ConfigError{Field: "read_timeout", Message: err.Error()}
		}
		c.ReadTimeout = d
	}
	if fc.Deadline != "" {
		deadline, err := ParseDeadline(fc.Deadline)
		if err != nil {
			return &ConfigError{Field: "deadline", Message: err.Error()}
		}
		c.Deadline = &deadline
	}
	return nil
}

// WithPrefix returns a copy of the configuration using prefix.
func (c *Config) WithPrefix(prefix string) *Config {
	cp := *c
	cp.Prefix = prefix
	return &cp
}

// WithDeadline returns a copy of the configuration using deadline.
func (c *Config) WithDeadline(deadline time.Time) *Config {
	cp := *c
	cp.Deadline = &deadline
	return &cp
}

// ParseDeadline parses a deadline in one of DeadlineLayouts.
func ParseDeadline(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range DeadlineLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("deadline %q must look like YYYY-MM-DD-HH-MM or RFC3339", raw)
}

func overlay(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be a duration such as 30s or 2m"}
	}
	return d, nil
}

// Validate validates the configuration needed for a sync run
func (c *Config) Validate() error {
	if c.GitHubToken == "" {
		return &ConfigError{Field: "GITHUB_TOKEN", Message: "GitHub token is required"}
	}
	if c.Org == "" {
		return &ConfigError{Field: "GITHUB_ORG", Message: "organization is required"}
	}
	if c.Workers < 1 {
		return &ConfigError{Field: "SYNC_WORKERS", Message: "must be at least 1"}
	}
	if c.CloneTimeout <= 0 {
		return &ConfigError{Field: "SYNC_CLONE_TIMEOUT", Message: "must be positive"}
	}
	if c.ReadTimeout <= 0 {
		return &ConfigError{Field: "SYNC_READ_TIMEOUT", Message: "must be positive"}
	}
	if c.MetadataFile == "" {
		return &ConfigError{Field: "METADATA_FILE", Message: "must not be empty"}
	}
	return c.ValidateStorage()
}

// ValidateStorage validates only the storage settings
func (c *Config) ValidateStorage() error {
	switch c.StorageType {
	case "sqlite", "none":
	case "postgres":
		if c.PostgresURL == "" {
			return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
		}
	default:
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite', 'postgres' or 'none'"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
