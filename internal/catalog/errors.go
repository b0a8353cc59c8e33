package catalog

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrDownload marks failures fetching image bytes
var ErrDownload = errors.New("image download failed")

// Error is a failed catalog API call
type Error struct {
	Op         string
	StatusCode int // 0 for transport failures
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("catalog %s failed (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("catalog %s failed: %s", e.Op, e.Message)
}

func statusOf(err error) int {
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr.StatusCode
	}
	return 0
}

// IsNotFound reports a 404 from the catalog
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsUnauthorized reports a 401 or 403 from the catalog
func IsUnauthorized(err error) bool {
	s := statusOf(err)
	return s == http.StatusUnauthorized || s == http.StatusForbidden
}

// IsRateLimited reports a 429 from the catalog
func IsRateLimited(err error) bool {
	return statusOf(err) == http.StatusTooManyRequests
}

// retryable reports whether a failed request may be sent again. A POST that
// timed out or hit a 5xx may already have been applied.
func retryable(method string, status int) bool {
	if method == http.MethodPost {
		return status == http.StatusTooManyRequests
	}
	return retryableStatus(status)
}

func retryableStatus(status int) bool {
	return status == 0 ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}
