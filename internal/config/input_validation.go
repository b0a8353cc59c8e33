package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxShopNameLength is the maximum allowed length for a shop domain
	MaxShopNameLength = 255

	// MaxModelNameLength is the maximum allowed length for model names
	MaxModelNameLength = 100

	// MaxTemplateSize is the maximum allowed size for template content
	MaxTemplateSize = 50 * 1024 // 50KB
)

// Host names only; ports are allowed for local mocks
var shopNameRegex = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)*(:[0-9]{1,5})?$`)

// ValidateInputs performs additional security validation on user-controllable fields.
func (c *Config) ValidateInputs() error {
	if err := validateModelName(c.Generator.ModelName); err != nil {
		return err
	}
	if err := validateBaseURL(c.Generator.BaseURL); err != nil {
		return err
	}

	for _, t := range c.Tenants {
		if err := ValidateShopName(t.ShopName); err != nil {
			return fmt.Errorf("tenant '%s': %w", t.ID, err)
		}
	}

	// Validate template sizes
	if err := c.validateTemplateSizes(); err != nil {
		return err
	}

	return nil
}

// ValidateShopName checks that a shop domain is a bare host name. Shop names
// are interpolated into request URLs, so anything carrying a scheme, path or
// query is rejected.
func ValidateShopName(shopName string) error {
	if shopName == "" {
		return fmt.Errorf("shop name cannot be empty")
	}
	if len(shopName) > MaxShopNameLength {
		return fmt.Errorf("shop name exceeds maximum length of %d characters (got %d)",
			MaxShopNameLength, len(shopName))
	}
	if containsControlChars(shopName) {
		return fmt.Errorf("shop name contains invalid control characters")
	}
	if strings.ContainsAny(shopName, "/?#@") {
		return fmt.Errorf("shop name must be a host name without scheme or path (got %q)", shopName)
	}
	if !shopNameRegex.MatchString(shopName) {
		return fmt.Errorf("invalid shop name format: %q", shopName)
	}
	return nil
}

// validateModelName checks model name for security issues
func validateModelName(modelName string) error {
	if len(modelName) > MaxModelNameLength {
		return fmt.Errorf("generator model name exceeds maximum length of %d (got %d)",
			MaxModelNameLength, len(modelName))
	}
	if containsControlChars(modelName) {
		return fmt.Errorf("generator model name contains invalid control characters")
	}
	if strings.ContainsAny(modelName, "/?#") {
		return fmt.Errorf("generator model name must not contain URL delimiters")
	}
	return nil
}

// validateBaseURL checks that the base URL is properly formatted and safe
func validateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("generator has invalid base_url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("generator base_url must use http or https scheme (got %s)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("generator base_url must have a host")
	}

	return nil
}

// validateTemplateSizes checks that templates are within reasonable size limits
func (c *Config) validateTemplateSizes() error {
	templates := []struct {
		name  string
		value string
	}{
		{"image_metadata", c.PromptTemplates.ImageMetadata},
		{"product_content", c.PromptTemplates.ProductContent},
		{"system_prompt", c.PromptTemplates.SystemPrompt},
	}

	for _, tmpl := range templates {
		if len(tmpl.value) > MaxTemplateSize {
			return fmt.Errorf("template '%s' exceeds maximum size of %d bytes (got %d)",
				tmpl.name, MaxTemplateSize, len(tmpl.value))
		}
	}

	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
