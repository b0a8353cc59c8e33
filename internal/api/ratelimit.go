package api

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultBurstPercent is the burst capacity as a share of the per-minute rate
const DefaultBurstPercent = 15

// RateLimiterPool manages rate limiters keyed by model or provider. One pool
// is shared by every tenant's client so concurrent jobs draw from the same
// budget.
type RateLimiterPool struct {
	limiters map[string]*rate.Limiter
	rates    map[string]int // Track original rates for consistency check
	mu       sync.Mutex
}

// NewRateLimiterPool creates a new rate limiter pool
func NewRateLimiterPool() *RateLimiterPool {
	return &RateLimiterPool{
		limiters: make(map[string]*rate.Limiter),
		rates:    make(map[string]int),
	}
}

// GetOrCreate returns an existing rate limiter or creates a new one
// If a limiter exists with a different rate, it logs a warning and keeps the existing one
func (p *RateLimiterPool) GetOrCreate(key string, requestsPerMinute, burstPercent int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limiter, exists := p.limiters[key]; exists {
		if existingRate, ok := p.rates[key]; ok && existingRate != requestsPerMinute {
			slog.Warn("Rate limiter already exists with different rate, using existing rate",
				"key", key,
				"existing_rpm", existingRate,
				"requested_rpm", requestsPerMinute)
		}
		return limiter
	}

	if burstPercent <= 0 {
		burstPercent = DefaultBurstPercent
	}

	// Convert requests per minute to requests per second
	rps := float64(requestsPerMinute) / 60.0
	burst := max(1, requestsPerMinute*burstPercent/100)
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	p.limiters[key] = limiter
	p.rates[key] = requestsPerMinute

	slog.Debug("Created rate limiter",
		"key", key,
		"rpm", requestsPerMinute,
		"rps", rps,
		"burst", burst)

	return limiter
}

// Wait blocks until both the model limiter and, when providerRPM > 0, the
// shared provider limiter allow the next request.
func (p *RateLimiterPool) Wait(ctx context.Context, modelID string, requestsPerMinute int, providerName string, providerRPM, burstPercent int) error {
	if providerRPM > 0 && providerName != "" {
		if err := p.GetOrCreate("provider:"+providerName, providerRPM, burstPercent).Wait(ctx); err != nil {
			return err
		}
	}
	return p.GetOrCreate(modelID, requestsPerMinute, burstPercent).Wait(ctx)
}
