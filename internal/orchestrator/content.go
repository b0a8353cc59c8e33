package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/lamim/catalogseo/internal/generator"
	"github.com/lamim/catalogseo/pkg/models"
)

// retryPolicy is a fixed delay between a bounded number of attempts
func (o *Orchestrator) retryPolicy(ctx context.Context) backoff.BackOff {
	// WithMaxRetries treats zero as unlimited
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if o.cfg.RetryAttempts > 1 {
		delay := time.Duration(o.cfg.RetryDelayMs) * time.Millisecond
		policy = backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(o.cfg.RetryAttempts-1))
	}
	return backoff.WithContext(policy, ctx)
}

// optimizeContent rewrites the title and description of a product. The first
// image grounds the prompt when it can be downloaded. A stop request ends the
// retries with errStopped; the attempt in flight is allowed to finish.
func (o *Orchestrator) optimizeContent(ctx context.Context, logger *slog.Logger, product models.Product) error {
	var (
		mediaType string
		image     []byte
	)
	if len(product.Images) > 0 {
		data, mt, err := o.downloader.Download(ctx, product.Images[0].Src)
		if err != nil {
			logger.Warn("Representative image unavailable, generating content from text only", "error", err)
		} else {
			image, mediaType = data, mt
		}
	}

	parts, err := o.prompts.ContentParts(product, mediaType, image)
	if err != nil {
		return err
	}

	// Generate, parse and validate as one round trip
	var content generator.ProductContent
	attempt := 0
	generateOp := func() error {
		attempt++
		if attempt > 1 && o.stopped(ctx) {
			return backoff.Permanent(errStopped)
		}
		reply, err := o.generate(ctx, parts)
		if err != nil {
			if errors.Is(err, ErrBreakerTripped) {
				return backoff.Permanent(err)
			}
			logger.Warn("Content generation failed", "attempt", attempt, "error", err)
			return err
		}

		parsed, err := generator.ParseProductContent(reply)
		if err == nil {
			err = o.prompts.ValidateContent(parsed)
		}
		if err != nil {
			logger.Warn("Generated content rejected", "attempt", attempt, "error", err)
			return err
		}
		content = parsed
		return nil
	}
	if err := backoff.Retry(generateOp, o.retryPolicy(ctx)); err != nil {
		if errors.Is(err, ErrBreakerTripped) || errors.Is(err, errStopped) {
			return err
		}
		return fmt.Errorf("content generation failed after %d attempts: %w", attempt, err)
	}

	updateAttempt := 0
	updateOp := func() error {
		updateAttempt++
		if updateAttempt > 1 && o.stopped(ctx) {
			return backoff.Permanent(errStopped)
		}
		err := o.catalog.UpdateProduct(ctx, product.ID, content.Title, content.DescriptionHTML)
		if err != nil {
			logger.Warn("Product update failed", "attempt", updateAttempt, "error", err)
		}
		return err
	}
	if err := backoff.Retry(updateOp, o.retryPolicy(ctx)); err != nil {
		if errors.Is(err, errStopped) {
			return err
		}
		return fmt.Errorf("product update failed after %d attempts: %w", updateAttempt, err)
	}

	logger.Info("Updated product content",
		"old_title", product.Title,
		"new_title", content.Title,
		"description_chars", len(content.DescriptionHTML))
	return nil
}
