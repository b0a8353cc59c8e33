package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/lamim/catalogseo/pkg/models"
)

// Config represents the complete application configuration
type Config struct {
	Server               ServerConfig    `toml:"server"`
	Store                StoreConfig     `toml:"store"`
	Catalog              CatalogConfig   `toml:"catalog"`
	Generator            GeneratorConfig `toml:"generator"`
	Pipeline             PipelineConfig  `toml:"pipeline"`
	PromptTemplates      PromptTemplates `toml:"prompt_templates"`
	Tenants              []TenantConfig  `toml:"tenants"`
	ProviderRateLimits   map[string]int  `toml:"provider_rate_limits"`   // Global rate limits per provider (requests per minute)
	ProviderBurstPercent int             `toml:"provider_burst_percent"` // Burst capacity as percentage (1-50, default: 15)
}

// ServerConfig holds the job status HTTP surface settings
type ServerConfig struct {
	Addr                   string `toml:"addr"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
	LogPath                string `toml:"log_path"` // Optional JSON log file
}

// StoreConfig selects the checkpoint store backend
type StoreConfig struct {
	Driver string `toml:"driver"` // memory, file, sqlite, postgres
	Dir    string `toml:"dir"`    // Checkpoint directory for the file driver
	DSN    string `toml:"dsn"`    // Database DSN for sqlite/postgres (DATABASE_DSN overrides)
}

// CatalogConfig holds commerce API settings
type CatalogConfig struct {
	APIVersion             string  `toml:"api_version"`
	PageSize               int     `toml:"page_size"`
	RequestsPerSecond      float64 `toml:"requests_per_second"`
	HTTPTimeoutSeconds     int     `toml:"http_timeout_seconds"`
	DownloadTimeoutSeconds int     `toml:"download_timeout_seconds"`
	MaxDownloadBytes       int64   `toml:"max_download_bytes"`
	MaxRetries             int     `toml:"max_retries"` // Retries on 429/5xx (default 2, -1 = none)
	Scheme                 string  `toml:"scheme"`      // https unless pointing at a local mock
}

// GeneratorConfig represents configuration for the content generation endpoint
type GeneratorConfig struct {
	BaseURL            string  `toml:"base_url"`
	ModelName          string  `toml:"model_name"`
	Temperature        float64 `toml:"temperature"`
	TopP               float64 `toml:"top_p"`
	MaxOutputTokens    int     `toml:"max_output_tokens"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"`
	MaxBackoffSeconds  int     `toml:"max_backoff_seconds"`  // Optional: max backoff duration (default 30)
	MaxRetries         int     `toml:"max_retries"`          // Optional: transport retry attempts (default 2, -1 = none)
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds"` // Optional: HTTP request timeout (default 60)
}

// PipelineConfig holds per-run optimization settings
type PipelineConfig struct {
	MaxAPIErrors         int `toml:"max_api_errors"`         // Consecutive auth/rate-limit failures before a forced stop
	MaxProcessedImages   int `toml:"max_processed_images"`   // Capacity of the recent-image buffer
	RetryAttempts        int `toml:"retry_attempts"`         // Attempts for content generation and product update
	RetryDelayMs         int `toml:"retry_delay_ms"`         // Fixed delay between attempts
	MaxTitleLength       int `toml:"max_title_length"`       // Upper bound for a generated title
	MinDescriptionLength int `toml:"min_description_length"` // Lower bound for a generated description
}

// PromptTemplates holds all customizable prompt templates
type PromptTemplates struct {
	ImageMetadata  string `toml:"image_metadata"`
	ProductContent string `toml:"product_content"`
	SystemPrompt   string `toml:"system_prompt"` // Optional text sent ahead of every prompt
}

// TenantConfig declares a store that the CLI can run without an HTTP request
type TenantConfig struct {
	ID       string   `toml:"id"`
	ShopName string   `toml:"shop_name"` // e.g. my-shop.myshopify.com
	SEOTypes []string `toml:"seo_types"`
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	CatalogAccessToken string
	GeneratorAPIKey    string
	DatabaseDSN        string
}

const (
	// MaxAPIErrorsLimit bounds the breaker threshold
	MaxAPIErrorsLimit = 100
	// MaxRetryAttempts bounds pipeline retries
	MaxRetryAttempts = 10
	// MaxProcessedImagesLimit bounds the recent-image buffer
	MaxProcessedImagesLimit = 100
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Set default provider burst percent if not specified
	if c.ProviderBurstPercent == 0 {
		c.ProviderBurstPercent = 15
	}
	if c.ProviderBurstPercent < 1 || c.ProviderBurstPercent > 50 {
		return fmt.Errorf("provider_burst_percent must be between 1 and 50 (got %d)", c.ProviderBurstPercent)
	}

	switch c.Store.Driver {
	case "memory":
	case "file":
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for driver=file")
		}
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn (or DATABASE_DSN) is required for driver=%s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be one of: memory, file, sqlite, postgres (got %q)", c.Store.Driver)
	}

	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := validateGeneratorConfig(c.Generator); err != nil {
		return err
	}

	if c.Catalog.PageSize < 1 || c.Catalog.PageSize > 250 {
		return fmt.Errorf("catalog.page_size must be between 1 and 250 (got %d)", c.Catalog.PageSize)
	}
	if c.Catalog.RequestsPerSecond <= 0 {
		return fmt.Errorf("catalog.requests_per_second must be positive")
	}
	if c.Catalog.Scheme != "http" && c.Catalog.Scheme != "https" {
		return fmt.Errorf("catalog.scheme must be http or https (got %q)", c.Catalog.Scheme)
	}

	seen := make(map[string]bool, len(c.Tenants))
	for i, t := range c.Tenants {
		if t.ID == "" {
			return fmt.Errorf("tenants[%d].id is required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("tenants[%d].id %q is duplicated", i, t.ID)
		}
		seen[t.ID] = true
		if t.ShopName == "" {
			return fmt.Errorf("tenants[%d].shop_name is required", i)
		}
		if len(t.SEOTypes) > 0 {
			if _, err := models.ParseSEOTypes(t.SEOTypes); err != nil {
				return fmt.Errorf("tenants[%d].seo_types: %w", i, err)
			}
		}
	}

	// Validate prompt templates
	if c.PromptTemplates.ImageMetadata == "" {
		return fmt.Errorf("prompt_templates.image_metadata is required")
	}
	if c.PromptTemplates.ProductContent == "" {
		return fmt.Errorf("prompt_templates.product_content is required")
	}

	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.MaxAPIErrors < 1 || p.MaxAPIErrors > MaxAPIErrorsLimit {
		return fmt.Errorf("pipeline.max_api_errors must be between 1 and %d (got %d)", MaxAPIErrorsLimit, p.MaxAPIErrors)
	}
	if p.MaxProcessedImages < 1 || p.MaxProcessedImages > MaxProcessedImagesLimit {
		return fmt.Errorf("pipeline.max_processed_images must be between 1 and %d (got %d)", MaxProcessedImagesLimit, p.MaxProcessedImages)
	}
	if p.RetryAttempts < 1 || p.RetryAttempts > MaxRetryAttempts {
		return fmt.Errorf("pipeline.retry_attempts must be between 1 and %d (got %d)", MaxRetryAttempts, p.RetryAttempts)
	}
	if p.RetryDelayMs < 0 {
		return fmt.Errorf("pipeline.retry_delay_ms must not be negative")
	}
	if p.MaxTitleLength < 1 {
		return fmt.Errorf("pipeline.max_title_length must be at least 1")
	}
	if p.MinDescriptionLength < 0 {
		return fmt.Errorf("pipeline.min_description_length must not be negative")
	}
	return nil
}

func validateGeneratorConfig(gc GeneratorConfig) error {
	if gc.BaseURL == "" {
		return fmt.Errorf("generator.base_url is required")
	}
	if gc.ModelName == "" {
		return fmt.Errorf("generator.model_name is required")
	}
	if gc.Temperature < 0 || gc.Temperature > 2 {
		return fmt.Errorf("generator.temperature must be between 0 and 2")
	}
	if gc.TopP < 0 || gc.TopP > 1 {
		return fmt.Errorf("generator.top_p must be between 0 and 1")
	}
	if gc.MaxOutputTokens < 1 {
		return fmt.Errorf("generator.max_output_tokens must be at least 1")
	}
	if gc.RateLimitPerMinute < 1 {
		return fmt.Errorf("generator.rate_limit_per_minute must be at least 1")
	}
	return nil
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		CatalogAccessToken: os.Getenv("CATALOG_ACCESS_TOKEN"),
		DatabaseDSN:        os.Getenv("DATABASE_DSN"),
	}

	// Provider-specific key wins over the generic one
	secrets.GeneratorAPIKey = os.Getenv("GENERATOR_API_KEY")
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		secrets.GeneratorAPIKey = key
	}

	return secrets, nil
}

// Tenant returns the configured tenant with the given id
func (c *Config) Tenant(id string) (TenantConfig, bool) {
	for _, t := range c.Tenants {
		if t.ID == id {
			return t, true
		}
	}
	return TenantConfig{}, false
}

// GetProviderName extracts a provider name from a base URL for rate limiting
func GetProviderName(baseURL string) string {
	if strings.Contains(baseURL, "generativelanguage.googleapis.com") {
		return "gemini"
	}
	// For localhost or unknown providers, use the full base URL as provider name
	return baseURL
}

// ProviderRateLimit returns the global rate limit for baseURL's provider, or
// the generator's own limit when none is configured.
func (c *Config) ProviderRateLimit(baseURL string) int {
	if rpm, ok := c.ProviderRateLimits[GetProviderName(baseURL)]; ok && rpm > 0 {
		return rpm
	}
	return c.Generator.RateLimitPerMinute
}
