// Package jobs owns the registry of running optimization jobs and exposes
// the start, stop and status operations used by the HTTP surface and the CLI.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lamim/catalogseo/internal/checkpoint"
	"github.com/lamim/catalogseo/internal/config"
	"github.com/lamim/catalogseo/internal/generator"
	"github.com/lamim/catalogseo/internal/metrics"
	"github.com/lamim/catalogseo/internal/orchestrator"
	"github.com/lamim/catalogseo/pkg/models"
)

var (
	// ErrInvalidArgument marks a rejected start, stop or status request
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyRunning is returned when a tenant already has a live job
	ErrAlreadyRunning = errors.New("optimization already running")
)

// Credentials identify the shop and carry the secrets for one run. Empty
// tokens fall back to the process-wide secrets.
type Credentials struct {
	ShopName     string
	CatalogToken string
	GeneratorKey string
}

// StartRequest describes one start invocation
type StartRequest struct {
	TenantID           string
	Credentials        Credentials
	StartFresh         bool
	StartFromProductID *int64
	SEOTypes           []string
}

// ClientFactory builds the external collaborators for one run. The returned
// Deps need not carry a store or prompts; the controller fills those in.
type ClientFactory func(creds Credentials) (orchestrator.Deps, error)

// job is a registry slot. orch is nil while Start is still preparing the run;
// a stop requested in that window is applied once the run exists.
type job struct {
	orch          *orchestrator.Orchestrator
	stopRequested bool
	done          chan struct{}
}

// stop must be called with the controller lock held
func (j *job) stop() {
	if j.orch == nil {
		j.stopRequested = true
		return
	}
	j.orch.Stop()
}

// Controller is the tenant-keyed registry of live jobs. A tenant's slot is
// reserved before Start does any I/O, so a second Start for the same tenant
// fails fast while other tenants are not held up.
type Controller struct {
	mu   sync.Mutex
	jobs map[string]*job

	store    checkpoint.Store
	factory  ClientFactory
	prompts  *generator.Prompts
	pipeline config.PipelineConfig
	metrics  *metrics.Collector
	logger   *slog.Logger
	base     *slog.Logger

	// Runs outlive the request that started them; cancel ends them on shutdown
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a controller. m may be nil.
func NewController(cfg *config.Config, store checkpoint.Store, factory ClientFactory, m *metrics.Collector, logger *slog.Logger) (*Controller, error) {
	prompts, err := generator.New(cfg.PromptTemplates, cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt templates: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Controller{
		jobs:     make(map[string]*job),
		store:    store,
		factory:  factory,
		prompts:  prompts,
		pipeline: cfg.Pipeline,
		metrics:  m,
		logger:   logger.With("component", "job_controller"),
		base:     logger,
		runCtx:   runCtx,
		cancel:   cancel,
	}, nil
}

// Start registers and launches a job without waiting for it. It returns the
// run id recorded in the checkpoint.
func (c *Controller) Start(ctx context.Context, req StartRequest) (string, error) {
	if err := checkpoint.ValidateTenantID(req.TenantID); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	seoTypes, err := models.ParseSEOTypes(req.SEOTypes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	logger := c.logger.With("tenant_id", req.TenantID)

	c.mu.Lock()
	if _, ok := c.jobs[req.TenantID]; ok {
		c.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	j := &job{done: make(chan struct{})}
	c.jobs[req.TenantID] = j
	c.wg.Add(1)
	c.mu.Unlock()

	orch, err := c.prepare(ctx, req, seoTypes, logger)
	if err != nil {
		c.release(req.TenantID, j)
		return "", err
	}

	c.mu.Lock()
	j.orch = orch
	if j.stopRequested {
		orch.Stop()
	}
	c.mu.Unlock()
	go c.run(req.TenantID, j)

	logger.Info("Started optimization job",
		"run_id", orch.RunID(),
		"seo_types", seoTypes.Strings(),
		"start_fresh", req.StartFresh)
	return orch.RunID(), nil
}

// prepare builds the run's collaborators and persists the resolved resume
// point. It runs without the controller lock.
func (c *Controller) prepare(ctx context.Context, req StartRequest, seoTypes models.SEOTypes, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	existing, err := c.store.Load(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if existing != nil && existing.IsRunning {
		logger.Warn("Clearing stale running flag left by an earlier process", "run_id", existing.RunID)
	}

	deps, err := c.factory(req.Credentials)
	if err != nil {
		return nil, err
	}
	deps.Store = c.store
	deps.Prompts = c.prompts
	if deps.Metrics == nil {
		deps.Metrics = c.metrics
	}

	orch := orchestrator.New(orchestrator.Options{
		TenantID: req.TenantID,
		SEOTypes: seoTypes,
		Resume: checkpoint.ResumeRequest{
			StartFresh:         req.StartFresh,
			StartFromProductID: req.StartFromProductID,
		},
	}, deps, c.pipeline, c.base)

	if err := orch.Prepare(ctx); err != nil {
		return nil, err
	}
	return orch, nil
}

// release frees a slot whose start failed
func (c *Controller) release(tenantID string, j *job) {
	c.mu.Lock()
	if c.jobs[tenantID] == j {
		delete(c.jobs, tenantID)
	}
	c.mu.Unlock()
	close(j.done)
	c.wg.Done()
}

func (c *Controller) run(tenantID string, j *job) {
	defer c.wg.Done()
	defer close(j.done)

	if _, err := j.orch.Run(c.runCtx); err != nil {
		c.logger.Error("Optimization job failed", "tenant_id", tenantID, "error", err)
	}

	c.mu.Lock()
	// A newer job may already be registered after a stop and restart
	if c.jobs[tenantID] == j {
		delete(c.jobs, tenantID)
	}
	c.mu.Unlock()
}

// Stop asks the live job to stop. Without a live job a persisted running
// flag is cleared directly. Stopping a stopped job succeeds.
func (c *Controller) Stop(ctx context.Context, tenantID string) error {
	if err := checkpoint.ValidateTenantID(tenantID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if j, ok := c.jobs[tenantID]; ok {
		j.stop()
		return nil
	}

	return c.clearRunning(ctx, tenantID)
}

// clearRunning flips a persisted running flag that no live job backs
func (c *Controller) clearRunning(ctx context.Context, tenantID string) error {
	cp, err := c.store.Load(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil || !cp.IsRunning {
		return nil
	}

	_, err = c.store.Upsert(ctx, tenantID, func(cp *models.Checkpoint) {
		cp.IsRunning = false
		cp.StopReason = models.StopReasonStopped
		cp.APIErrorCount = 0
		cp.CurrentImage = nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear running flag: %w", err)
	}
	c.logger.Info("Cleared running flag without a live job", "tenant_id", tenantID, "run_id", cp.RunID)
	return nil
}

// Status returns the live job's state once its run exists, otherwise the
// persisted checkpoint (created on first query).
func (c *Controller) Status(ctx context.Context, tenantID string) (models.JobStatus, error) {
	if err := checkpoint.ValidateTenantID(tenantID); err != nil {
		return models.JobStatus{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	var orch *orchestrator.Orchestrator
	c.mu.Lock()
	if j, ok := c.jobs[tenantID]; ok {
		orch = j.orch
	}
	c.mu.Unlock()

	if orch != nil {
		return projectFromLive(orch.Snapshot()), nil
	}

	cp, err := c.store.Load(ctx, tenantID)
	if err != nil {
		return models.JobStatus{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		if cp, err = c.store.Upsert(ctx, tenantID, nil); err != nil {
			return models.JobStatus{}, fmt.Errorf("failed to create checkpoint: %w", err)
		}
	}
	return projectFromCheckpoint(cp), nil
}

// Done returns a channel closed when the tenant has no live job
func (c *Controller) Done(tenantID string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j, ok := c.jobs[tenantID]; ok {
		return j.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// RecoverStale clears running flags left behind by a crashed process. It
// needs a store that can list tenants and must run before any Start.
func (c *Controller) RecoverStale(ctx context.Context) (int, error) {
	lister, ok := c.store.(checkpoint.Lister)
	if !ok {
		return 0, nil
	}
	tenants, err := lister.ListTenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tenants: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	recovered := 0
	for _, tenantID := range tenants {
		if _, live := c.jobs[tenantID]; live {
			continue
		}
		cp, err := c.store.Load(ctx, tenantID)
		if err != nil {
			return recovered, fmt.Errorf("failed to load checkpoint for %s: %w", tenantID, err)
		}
		if cp == nil || !cp.IsRunning {
			continue
		}
		if err := c.clearRunning(ctx, tenantID); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

// Shutdown stops every live job and waits for them to persist their final
// state. When ctx expires first, in-flight calls are cancelled.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	for _, j := range c.jobs {
		j.stop()
	}
	c.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-finished
		return ctx.Err()
	}
}
