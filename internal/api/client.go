package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/lamim/catalogseo/internal/config"
	"github.com/lamim/catalogseo/internal/metrics"
	"github.com/lamim/catalogseo/internal/util"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests
	DefaultHTTPTimeout = 60 * time.Second
	// DefaultMaxRetries is the default maximum number of transport retry attempts
	DefaultMaxRetries = 2
	// DefaultBaseRetryDelay is the base delay for exponential backoff
	DefaultBaseRetryDelay = 1 * time.Second
	// DefaultMaxBackoffDuration caps a single backoff sleep
	DefaultMaxBackoffDuration = 30 * time.Second
	// maxResponseBytes bounds how much of a reply body is read
	maxResponseBytes = 4 << 20
)

// Client calls a Gemini-style generateContent endpoint on behalf of one API key
type Client struct {
	httpClient      *http.Client
	rateLimiterPool *RateLimiterPool
	metrics         *metrics.Collector
	logger          *slog.Logger
	cfg             config.GeneratorConfig
	apiKey          string
	systemPrompt    string
	providerRPM     int
	burstPercent    int
	maxRetries      int
	baseRetryDelay  time.Duration
}

// NewClient creates a new generator client
func NewClient(cfg config.GeneratorConfig, apiKey string, logger *slog.Logger) *Client {
	timeout := DefaultHTTPTimeout
	if cfg.HTTPTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	}

	maxRetries := cfg.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = DefaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimiterPool: NewRateLimiterPool(),
		logger:          logger.With("component", "generator_client"),
		cfg:             cfg,
		apiKey:          apiKey,
		maxRetries:      maxRetries,
		baseRetryDelay:  DefaultBaseRetryDelay,
	}
}

// SetRateLimiterPool shares a pool across clients. providerRPM > 0 adds a
// provider-wide limit on top of the per-model one.
func (c *Client) SetRateLimiterPool(pool *RateLimiterPool, providerRPM, burstPercent int) {
	c.rateLimiterPool = pool
	c.providerRPM = providerRPM
	c.burstPercent = burstPercent
}

// SetSystemPrompt sets the instruction sent with every request
func (c *Client) SetSystemPrompt(prompt string) {
	c.systemPrompt = prompt
}

// SetMetrics attaches a metrics collector
func (c *Client) SetMetrics(m *metrics.Collector) {
	c.metrics = m
}

// Generate sends parts as a single user turn and returns the reply text.
// Only 5xx and transport failures are retried here; 401/403/429 surface
// immediately so the caller can classify them.
func (c *Client) Generate(ctx context.Context, parts []Part) (string, error) {
	modelID := fmt.Sprintf("%s:%s", c.cfg.BaseURL, c.cfg.ModelName)
	providerName := config.GetProviderName(c.cfg.BaseURL)

	rateLimitStart := time.Now()
	if err := c.rateLimiterPool.Wait(ctx, modelID, c.cfg.RateLimitPerMinute, providerName, c.providerRPM, c.burstPercent); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}
	c.metrics.RecordRateLimiterWait(c.cfg.ModelName, time.Since(rateLimitStart))

	req := GenerateContentRequest{
		Contents: []Content{{Role: "user", Parts: parts}},
		GenerationConfig: &GenerationConfig{
			Temperature:     c.cfg.Temperature,
			TopP:            c.cfg.TopP,
			MaxOutputTokens: c.cfg.MaxOutputTokens,
		},
	}
	if c.systemPrompt != "" {
		req.SystemInstruction = &Content{Parts: []Part{TextPart(c.systemPrompt)}}
	}

	var (
		text    string
		attempt int
	)
	operation := func() error {
		attempt++
		start := time.Now()
		reply, err := c.doRequest(ctx, req)
		c.metrics.RecordGeneratorRequest(c.cfg.ModelName, time.Since(start), err == nil)
		if err == nil {
			text = reply
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Retrying generator request",
			"attempt", attempt,
			"max_retries", c.maxRetries,
			"backoff", wait,
			"model", c.cfg.ModelName,
			"error", err)
	}

	if err := backoff.RetryNotify(operation, c.retryPolicy(ctx), notify); err != nil {
		if isRetryable(err) {
			return "", fmt.Errorf("max retries exceeded: %w", err)
		}
		return "", err
	}
	return text, nil
}

// retryPolicy doubles the delay from baseRetryDelay up to the configured cap,
// with 10% jitter, for at most maxRetries retries.
func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	// WithMaxRetries treats zero as unlimited
	if c.maxRetries == 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	maxBackoff := DefaultMaxBackoffDuration
	if c.cfg.MaxBackoffSeconds > 0 {
		maxBackoff = time.Duration(c.cfg.MaxBackoffSeconds) * time.Second
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.baseRetryDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.1
	exp.MaxInterval = maxBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxRetries)), ctx)
}

func (c *Client) endpoint() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	return fmt.Sprintf("%s/models/%s:generateContent", base, url.PathEscape(c.cfg.ModelName))
}

func (c *Client) doRequest(ctx context.Context, req GenerateContentRequest) (string, error) {
	// Encode request
	buf := getBuffer()
	defer putBuffer(buf)

	if err := json.NewEncoder(buf).Encode(req); err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.endpoint()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-goog-api-key", c.apiKey)
		c.logger.Debug("Generator request", "endpoint", endpoint, "has_key", true, "body_bytes", buf.Len())
	} else {
		c.logger.Warn("Generator request without key", "endpoint", endpoint)
	}

	// Send request
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &APIError{
			Message:    fmt.Sprintf("request failed: %v", err),
			StatusCode: 0,
			Retryable:  true,
		}
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return "", &APIError{
			Message:   fmt.Sprintf("failed to read response: %v", err),
			Retryable: true,
		}
	}

	// Check status code
	if httpResp.StatusCode != http.StatusOK {
		retryable := isStatusCodeRetryable(httpResp.StatusCode)

		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return "", &APIError{
				Message:    errResp.Error.Message,
				StatusCode: httpResp.StatusCode,
				Status:     errResp.Error.Status,
				Retryable:  retryable,
			}
		}

		return "", &APIError{
			Message:    fmt.Sprintf("API request failed with status %d: %s", httpResp.StatusCode, util.TruncateString(string(respBody), 512)),
			StatusCode: httpResp.StatusCode,
			Retryable:  retryable,
		}
	}

	var resp GenerateContentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned in response")
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty reply (finish reason %q)", resp.Candidates[0].FinishReason)
	}

	c.logger.Debug("Generator reply",
		"finish_reason", resp.Candidates[0].FinishReason,
		"total_tokens", resp.UsageMetadata.TotalTokenCount)

	return text, nil
}

func isStatusCodeRetryable(statusCode int) bool {
	// Server errors only; 429 feeds the job-level breaker instead
	return statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}
