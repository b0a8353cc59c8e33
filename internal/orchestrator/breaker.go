package orchestrator

import (
	"fmt"

	"github.com/lamim/catalogseo/internal/api"
	"github.com/lamim/catalogseo/pkg/models"
)

// breaker counts consecutive auth or rate-limit failures from the content
// generator. The count lives in the checkpoint so status reflects it.
type breaker struct {
	threshold int
}

// observe folds the outcome of one generator call into cp and reports
// whether the threshold has been reached. Other failures leave the count as is.
func (b breaker) observe(cp *models.Checkpoint, err error) bool {
	switch {
	case err == nil:
		cp.APIErrorCount = 0
	case api.IsAuthOrRateLimited(err):
		cp.APIErrorCount++
	}
	return b.threshold > 0 && cp.APIErrorCount >= b.threshold
}

// trip applies the forced stop to cp
func (b breaker) trip(cp *models.Checkpoint, cause error) {
	cp.IsRunning = false
	cp.StopReason = models.StopReasonBreaker
	cp.LastError = fmt.Sprintf("Optimization stopped after %d consecutive authentication or rate-limit errors from the content generator (last %s: %v)",
		b.threshold, api.Classify(cause), cause)
	cp.APIErrorCount = 0
}
