package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/lamim/catalogseo/pkg/models"
)

// Load reads and parses the configuration file and environment variables
func Load(configPath string) (*Config, *Secrets, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes TOML, applies defaults, validates and loads secrets
func Parse(data []byte) (*Config, *Secrets, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Load secrets from environment
	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	if secrets.DatabaseDSN != "" {
		cfg.Store.DSN = secrets.DatabaseDSN
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Additional input security validation
	if err := cfg.ValidateInputs(); err != nil {
		return nil, nil, fmt.Errorf("input validation failed: %w", err)
	}

	return &cfg, secrets, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 15
	}

	// Store defaults
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "file"
	}
	if cfg.Store.Driver == "file" && cfg.Store.Dir == "" {
		cfg.Store.Dir = "checkpoints"
	}

	// Catalog defaults
	if cfg.Catalog.APIVersion == "" {
		cfg.Catalog.APIVersion = "2024-01"
	}
	if cfg.Catalog.PageSize == 0 {
		cfg.Catalog.PageSize = 50
	}
	if cfg.Catalog.RequestsPerSecond == 0 {
		cfg.Catalog.RequestsPerSecond = 2 // REST Admin leaky bucket refill rate
	}
	if cfg.Catalog.HTTPTimeoutSeconds == 0 {
		cfg.Catalog.HTTPTimeoutSeconds = 30
	}
	if cfg.Catalog.DownloadTimeoutSeconds == 0 {
		cfg.Catalog.DownloadTimeoutSeconds = 30
	}
	if cfg.Catalog.MaxDownloadBytes == 0 {
		cfg.Catalog.MaxDownloadBytes = 20 << 20
	}
	if cfg.Catalog.MaxRetries == 0 {
		cfg.Catalog.MaxRetries = 2
	}
	if cfg.Catalog.Scheme == "" {
		cfg.Catalog.Scheme = "https"
	}

	// Generator defaults
	g := &cfg.Generator
	if g.BaseURL == "" {
		g.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if g.ModelName == "" {
		g.ModelName = "gemini-1.5-flash"
	}
	if g.Temperature == 0 {
		g.Temperature = 0.4
	}
	if g.TopP == 0 {
		g.TopP = 0.95
	}
	if g.MaxOutputTokens == 0 {
		g.MaxOutputTokens = 1024
	}
	if g.RateLimitPerMinute == 0 {
		g.RateLimitPerMinute = 60
	}
	if g.MaxBackoffSeconds == 0 {
		g.MaxBackoffSeconds = 30
	}
	// NOTE: In TOML, we can't distinguish 0 from unset, so:
	// - Unset (0) → defaults to 2
	// - Explicitly set to -1 → no transport retries
	if g.MaxRetries == 0 {
		g.MaxRetries = 2
	}
	if g.HTTPTimeoutSeconds == 0 {
		g.HTTPTimeoutSeconds = 60
	}

	// Pipeline defaults
	p := &cfg.Pipeline
	if p.MaxAPIErrors == 0 {
		p.MaxAPIErrors = 3
	}
	if p.MaxProcessedImages == 0 {
		p.MaxProcessedImages = models.DefaultMaxProcessedImages
	}
	if p.RetryAttempts == 0 {
		p.RetryAttempts = 3
	}
	if p.RetryDelayMs == 0 {
		p.RetryDelayMs = 2000
	}
	if p.MaxTitleLength == 0 {
		p.MaxTitleLength = 60
	}
	if p.MinDescriptionLength == 0 {
		p.MinDescriptionLength = 50
	}

	// Apply default templates if not provided
	if cfg.PromptTemplates.ImageMetadata == "" {
		cfg.PromptTemplates.ImageMetadata = GetDefaultImageMetadataTemplate()
	}
	if cfg.PromptTemplates.ProductContent == "" {
		cfg.PromptTemplates.ProductContent = GetDefaultProductContentTemplate()
	}
	if cfg.PromptTemplates.SystemPrompt == "" {
		cfg.PromptTemplates.SystemPrompt = GetDefaultSystemPrompt()
	}
}
