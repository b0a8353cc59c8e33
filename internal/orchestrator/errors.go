package orchestrator

import (
	"errors"
	"fmt"

	"github.com/lamim/catalogseo/pkg/models"
)

// ErrBreakerTripped is returned once consecutive auth or rate-limit failures
// from the content generator reach the configured threshold.
var ErrBreakerTripped = errors.New("circuit breaker tripped")

// errStopped ends a retry loop once a stop was requested. The type it
// interrupted stays pending so the product resumes on the next run.
var errStopped = errors.New("stop requested")

// ProductError is a terminal failure for one or more types of a single product.
// It is recorded in the checkpoint and never stops the job.
type ProductError struct {
	ProductID   int64
	FailedTypes models.SEOTypes
	Err         error
}

func (e *ProductError) Error() string {
	return fmt.Sprintf("product %d failed (%v): %v", e.ProductID, e.FailedTypes.Strings(), e.Err)
}

func (e *ProductError) Unwrap() error {
	return e.Err
}
