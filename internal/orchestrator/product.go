package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lamim/catalogseo/pkg/models"
)

// processProduct runs each pending type for one product. Types succeed or
// fail independently; a failure of one is recorded and never skips the other.
// Only ErrBreakerTripped and *ProductError are returned.
func (o *Orchestrator) processProduct(ctx context.Context, logger *slog.Logger, product models.Product, todo models.SEOTypes) (err error) {
	var (
		failed models.SEOTypes
		errs   []error
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic while processing product", "panic", r)
			failed = todo
			errs = append(errs, fmt.Errorf("panic: %v", r))
			err = o.recordProductError(product.ID, todo, failed, errs)
		}
	}()

	if todo.Has(models.SEOTypeContent) {
		cErr := o.optimizeContent(ctx, logger, product)
		switch {
		case errors.Is(cErr, ErrBreakerTripped):
			return cErr
		case errors.Is(cErr, errStopped):
			logger.Info("Content left pending after stop request")
		case cErr != nil:
			failed = append(failed, models.SEOTypeContent)
			errs = append(errs, fmt.Errorf("content: %w", cErr))
		default:
			o.update(func(cp *models.Checkpoint) {
				cp.MarkTypeComplete(product.ID, models.SEOTypeContent)
			})
			o.flush(ctx)
		}
	}

	if todo.Has(models.SEOTypeImages) && !o.stopped(ctx) {
		done, iErr := o.optimizeImages(ctx, logger, product)
		switch {
		case errors.Is(iErr, ErrBreakerTripped):
			return iErr
		case iErr != nil:
			failed = append(failed, models.SEOTypeImages)
			errs = append(errs, fmt.Errorf("images: %w", iErr))
		case done:
			o.update(func(cp *models.Checkpoint) {
				cp.MarkTypeComplete(product.ID, models.SEOTypeImages)
			})
			o.flush(ctx)
		}
	}

	if len(errs) > 0 {
		return o.recordProductError(product.ID, todo, failed, errs)
	}
	return nil
}

// recordProductError stores the failure details and returns it as a *ProductError
func (o *Orchestrator) recordProductError(productID int64, attempted, failed models.SEOTypes, errs []error) error {
	joined := errors.Join(errs...)
	o.update(func(cp *models.Checkpoint) {
		cp.RecordProductError(productID, models.OptimizationDetail{
			Error:          joined.Error(),
			AttemptedTypes: attempted,
			FailedTypes:    failed,
			At:             time.Now().UTC(),
		})
	})
	return &ProductError{ProductID: productID, FailedTypes: failed, Err: joined}
}
