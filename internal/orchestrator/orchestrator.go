package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lamim/catalogseo/internal/api"
	"github.com/lamim/catalogseo/internal/checkpoint"
	"github.com/lamim/catalogseo/internal/config"
	"github.com/lamim/catalogseo/internal/generator"
	"github.com/lamim/catalogseo/internal/metrics"
	"github.com/lamim/catalogseo/pkg/models"
)

// Catalog is the commerce API the pipeline reads from and writes back to
type Catalog interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProductDetail(ctx context.Context, productID int64) (models.ProductDetail, error)
	UploadImage(ctx context.Context, productID int64, sourceURL, alt, filename string) (models.UploadedImage, error)
	UpdateVariantImage(ctx context.Context, productID, variantID, imageID int64) error
	DeleteImage(ctx context.Context, productID, imageID int64) error
	UpdateProduct(ctx context.Context, productID int64, title, descriptionHTML string) error
}

// Downloader fetches image bytes
type Downloader interface {
	Download(ctx context.Context, src string) ([]byte, string, error)
}

// Generator is the content generation service
type Generator interface {
	Generate(ctx context.Context, parts []api.Part) (string, error)
}

// Options selects what one run does
type Options struct {
	TenantID string
	SEOTypes models.SEOTypes
	Resume   checkpoint.ResumeRequest
}

// Deps are the collaborators of one run
type Deps struct {
	Catalog    Catalog
	Downloader Downloader
	Generator  Generator
	Prompts    *generator.Prompts
	Store      checkpoint.Store
	Metrics    *metrics.Collector // optional
}

// Orchestrator runs the optimization pipeline for one tenant. Products are
// processed strictly one at a time, as are the images of a product.
type Orchestrator struct {
	opts       Options
	cfg        config.PipelineConfig
	catalog    Catalog
	downloader Downloader
	gen        Generator
	prompts    *generator.Prompts
	store      checkpoint.Store
	metrics    *metrics.Collector
	breaker    breaker
	runID      string
	logger     *slog.Logger

	stopRequested atomic.Bool

	// Live mirror of the checkpoint; flushed to the store after every unit of work
	mu    sync.RWMutex
	state *models.Checkpoint
}

// New creates an orchestrator for one run
func New(opts Options, deps Deps, cfg config.PipelineConfig, logger *slog.Logger) *Orchestrator {
	runID := uuid.NewString()
	return &Orchestrator{
		opts:       opts,
		cfg:        cfg,
		catalog:    deps.Catalog,
		downloader: deps.Downloader,
		gen:        deps.Generator,
		prompts:    deps.Prompts,
		store:      deps.Store,
		metrics:    deps.Metrics,
		breaker:    breaker{threshold: cfg.MaxAPIErrors},
		runID:      runID,
		logger:     logger.With("component", "orchestrator", "tenant_id", opts.TenantID, "run_id", runID),
	}
}

// RunID identifies this run in logs and in the checkpoint
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Prepare persists the start of a run: the running flag, run id, selected
// types and a cleared error budget. A fresh run also clears all progress.
func (o *Orchestrator) Prepare(ctx context.Context) error {
	now := time.Now().UTC()
	cp, err := o.store.Upsert(ctx, o.opts.TenantID, func(cp *models.Checkpoint) {
		if o.opts.Resume.StartFresh {
			cp.ResetProgress()
		}
		cp.RunID = o.runID
		cp.SEOTypes = o.opts.SEOTypes
		cp.IsRunning = true
		cp.StopReason = models.StopReasonNone
		cp.LastError = ""
		cp.APIErrorCount = 0
		cp.CurrentImage = nil
		cp.StartedAt = &now
	})
	if err != nil {
		return fmt.Errorf("failed to persist run start: %w", err)
	}

	o.mu.Lock()
	o.state = cp
	o.mu.Unlock()
	return nil
}

// Stop requests cooperative cancellation. The in-flight external call is not
// aborted; no further work is scheduled once it returns.
func (o *Orchestrator) Stop() {
	if o.stopRequested.CompareAndSwap(false, true) {
		o.logger.Info("Stop requested")
	}
}

// Snapshot returns a copy of the live checkpoint
func (o *Orchestrator) Snapshot() *models.Checkpoint {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Clone()
}

// Run executes the pipeline until the catalog is exhausted, a stop is
// requested, or the breaker trips. Prepare must have succeeded first.
// The returned error is non-nil only when the catalog could not be listed.
func (o *Orchestrator) Run(ctx context.Context) (*models.Checkpoint, error) {
	start := time.Now()
	o.metrics.JobStarted()

	o.logger.Info("Starting optimization pipeline",
		"seo_types", o.opts.SEOTypes.Strings(),
		"start_fresh", o.opts.Resume.StartFresh)

	// Phase 1: fetch the catalog
	products, err := o.catalog.ListProducts(ctx)
	if err != nil && o.stopped(ctx) {
		o.logger.Info("Stopped while fetching products", "error", err)
		o.finish(ctx, models.StopReasonStopped, "", start)
		return o.Snapshot(), nil
	}
	if err != nil {
		o.logger.Error("Failed to fetch products", "error", err)
		o.finish(ctx, models.StopReasonFailed, fmt.Sprintf("Failed to fetch products: %v", err), start)
		return o.Snapshot(), fmt.Errorf("failed to fetch products: %w", err)
	}

	// Phase 2: resolve where to begin
	point := checkpoint.Resolve(products, o.Snapshot(), o.opts.Resume)
	if point.Mode == checkpoint.ResumeExplicitMissing {
		o.logger.Warn("Start product not found in catalog, starting from the beginning",
			"product_id", *o.opts.Resume.StartFromProductID)
	}
	o.update(func(cp *models.Checkpoint) {
		cp.TotalProducts = len(products)
		cp.CompletedProducts = point.CompletedProducts
	})
	o.flush(ctx)

	pending := products[point.Index:]
	o.logger.Info("Resolved resume point",
		"mode", point.Mode,
		"index", point.Index,
		"total", len(products),
		"remaining", len(pending),
		"progress", fmt.Sprintf("%.1f%%", checkpoint.GetProgressPercentage(o.Snapshot())))

	// Phase 3: process products in catalog order
	for _, product := range pending {
		if o.stopped(ctx) {
			break
		}

		err := o.runProduct(ctx, product)
		if errors.Is(err, ErrBreakerTripped) {
			o.logger.Error("Circuit breaker tripped, stopping job", "product_id", product.ID, "error", err)
			o.metrics.JobFinished(string(models.StopReasonBreaker), time.Since(start))
			return o.Snapshot(), nil
		}
	}

	if o.stopped(ctx) {
		o.finish(ctx, models.StopReasonStopped, "", start)
	} else {
		o.finish(ctx, models.StopReasonCompleted, "", start)
	}
	return o.Snapshot(), nil
}

// runProduct processes one product and records its outcome
func (o *Orchestrator) runProduct(ctx context.Context, product models.Product) error {
	logger := o.logger.With("product_id", product.ID)

	todo := o.pendingTypes(product.ID)
	if len(todo) == 0 {
		// Every requested type was recorded by an earlier invocation
		o.update(func(cp *models.Checkpoint) {
			cp.MarkProductComplete(product.ID)
		})
		logger.Debug("Skipping product, already optimized")
		return nil
	}

	o.update(func(cp *models.Checkpoint) {
		cp.CurrentProduct = &models.CurrentProduct{ID: product.ID, Title: product.Title, SEOTypes: o.opts.SEOTypes}
		cp.CurrentImage = nil
	})
	o.flush(ctx)

	productStart := time.Now()
	err := o.processProduct(ctx, logger, product, todo)
	if errors.Is(err, ErrBreakerTripped) {
		return err
	}

	completed := false
	o.update(func(cp *models.Checkpoint) {
		cp.LastProductID = product.ID
		if o.allTypesDone(cp, product.ID) {
			completed = true
			cp.MarkProductComplete(product.ID)
		}
	})
	o.flush(ctx)

	var pErr *ProductError
	switch {
	case errors.As(err, &pErr):
		o.metrics.IncrementProduct("error")
		logger.Error("Product optimization failed",
			"title", product.Title,
			"failed_types", pErr.FailedTypes.Strings(),
			"error", pErr.Err)
	case completed:
		o.metrics.IncrementProduct("completed")
		logger.Info("Product optimized",
			"title", product.Title,
			"types", todo.Strings(),
			"duration_ms", time.Since(productStart).Milliseconds())
	default:
		// Stop arrived between types
		o.metrics.IncrementProduct("partial")
		logger.Info("Product left partially optimized", "title", product.Title)
	}
	return err
}

// pendingTypes returns the requested types not yet recorded for productID
func (o *Orchestrator) pendingTypes(productID int64) models.SEOTypes {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out models.SEOTypes
	for _, t := range o.opts.SEOTypes {
		if !o.state.TypeDone(productID, t) {
			out = append(out, t)
		}
	}
	return out
}

func (o *Orchestrator) allTypesDone(cp *models.Checkpoint, productID int64) bool {
	for _, t := range o.opts.SEOTypes {
		if !cp.TypeDone(productID, t) {
			return false
		}
	}
	return true
}

// generate calls the content generator and feeds the outcome to the breaker.
// A trip forces the job to stop and surfaces ErrBreakerTripped.
func (o *Orchestrator) generate(ctx context.Context, parts []api.Part) (string, error) {
	reply, err := o.gen.Generate(ctx, parts)

	tripped := false
	o.update(func(cp *models.Checkpoint) {
		if o.breaker.observe(cp, err) {
			tripped = true
			o.breaker.trip(cp, err)
		}
	})
	if err != nil && api.IsAuthOrRateLimited(err) {
		o.logger.Warn("Content generator rejected request",
			"class", api.Classify(err).String(),
			"api_error_count", o.Snapshot().APIErrorCount,
			"error", err)
	}
	if tripped {
		o.stopRequested.Store(true)
		o.metrics.RecordBreakerTrip()
		o.flush(ctx)
		return "", fmt.Errorf("%w: %v", ErrBreakerTripped, err)
	}
	return reply, err
}

// stopped reports whether no further work should be scheduled
func (o *Orchestrator) stopped(ctx context.Context) bool {
	return o.stopRequested.Load() || ctx.Err() != nil
}

// finish persists the end of a run
func (o *Orchestrator) finish(ctx context.Context, reason models.StopReason, lastError string, start time.Time) {
	o.update(func(cp *models.Checkpoint) {
		cp.IsRunning = false
		cp.StopReason = reason
		cp.APIErrorCount = 0
		cp.CurrentImage = nil
		if lastError != "" {
			cp.LastError = lastError
		}
		if reason == models.StopReasonCompleted {
			cp.CurrentProduct = nil
		}
	})
	o.flush(ctx)
	o.metrics.JobFinished(string(reason), time.Since(start))

	final := o.Snapshot()
	o.logger.Info("Optimization pipeline finished",
		"reason", reason,
		"total_products", final.TotalProducts,
		"completed_products", final.CompletedProducts,
		"completed_images", final.CompletedByType.Images,
		"completed_content", final.CompletedByType.Content,
		"products_with_errors", len(final.ProductsWithErrors),
		"duration", time.Since(start))
}

// update mutates the live checkpoint under the lock
func (o *Orchestrator) update(fn checkpoint.Update) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o.state)
	o.state.Recount()
	o.state.UpdatedAt = time.Now().UTC()
}

// flush writes the live checkpoint to the store. It outlives ctx so the
// final state of a cancelled run is still persisted.
func (o *Orchestrator) flush(ctx context.Context) {
	snap := o.Snapshot()
	_, err := o.store.Upsert(context.WithoutCancel(ctx), o.opts.TenantID, func(cp *models.Checkpoint) {
		*cp = *snap
	})
	if err != nil {
		o.logger.Error("Failed to persist checkpoint", "error", err)
	}
}
