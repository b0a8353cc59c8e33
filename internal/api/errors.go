package api

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents an error returned by the generator API
type APIError struct {
	Message    string
	StatusCode int
	Status     string // provider status, e.g. RESOURCE_EXHAUSTED
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %s", e.Message)
}

// ErrorClass is the breaker-relevant category of a generator failure
type ErrorClass int

const (
	ClassOther ErrorClass = iota
	ClassUnauthorized
	ClassRateLimited
)

func (c ErrorClass) String() string {
	switch c {
	case ClassUnauthorized:
		return "unauthorized"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "other"
	}
}

// Classify maps an error from Generate onto an ErrorClass
func Classify(err error) ErrorClass {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return ClassOther
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ClassUnauthorized
	case http.StatusTooManyRequests:
		return ClassRateLimited
	}
	switch apiErr.Status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return ClassUnauthorized
	case "RESOURCE_EXHAUSTED":
		return ClassRateLimited
	}
	return ClassOther
}

// IsAuthOrRateLimited reports whether err should count against the breaker
func IsAuthOrRateLimited(err error) bool {
	return Classify(err) != ClassOther
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}
