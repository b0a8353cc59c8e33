package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/lamim/catalogseo/internal/jobs"
	"github.com/lamim/catalogseo/pkg/models"
)

var (
	runShop       string
	runSEOTypes   []string
	runStartFresh bool
	runStartFrom  int64
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <tenant>",
		Short: "Run one tenant's optimization in the foreground",
		Long: `Run the optimization pipeline for one tenant and wait for it to finish:
1. Fetch every product from the catalog
2. Resolve where to resume from the tenant's checkpoint
3. Optimize content and/or images product by product

Shop name and SEO types default to the tenant's [[tenants]] entry in the
config. Ctrl+C stops after the current step; run again to resume.`,
		Args: cobra.ExactArgs(1),
		RunE: runForeground,
	}

	cmd.Flags().StringVar(&runShop, "shop", "", "Shop host name (e.g. my-shop.myshopify.com)")
	cmd.Flags().StringSliceVar(&runSEOTypes, "seo-types", nil, "Optimization types: images, content")
	cmd.Flags().BoolVar(&runStartFresh, "start-fresh", false, "Discard checkpoint progress and start from the first product")
	cmd.Flags().Int64Var(&runStartFrom, "start-from", 0, "Start at this product id")
	return cmd
}

func runForeground(cmd *cobra.Command, args []string) error {
	tenantID := args[0]

	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger.With("tenant_id", tenantID)

	req := jobs.StartRequest{
		TenantID:    tenantID,
		Credentials: jobs.Credentials{ShopName: runShop},
		StartFresh:  runStartFresh,
		SEOTypes:    runSEOTypes,
	}
	if tc, ok := a.cfg.Tenant(tenantID); ok {
		if req.Credentials.ShopName == "" {
			req.Credentials.ShopName = tc.ShopName
		}
		if len(req.SEOTypes) == 0 {
			req.SEOTypes = tc.SEOTypes
		}
	}
	if cmd.Flags().Changed("start-from") {
		id := runStartFrom
		req.StartFromProductID = &id
	}

	controller, err := jobs.NewController(a.cfg, a.store, jobs.NewClientFactory(a.cfg, a.secrets, a.metrics, a.logger), a.metrics, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create job controller: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.Server.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		_ = controller.Shutdown(shutdownCtx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID, err := controller.Start(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to start optimization: %w", err)
	}
	logger.Info("Optimization started", "run_id", runID)

	status := waitWithProgress(ctx, controller, tenantID, logger)
	return reportOutcome(status)
}

// waitWithProgress polls status until the job ends. The first interrupt
// requests a graceful stop.
func waitWithProgress(ctx context.Context, controller *jobs.Controller, tenantID string, logger *slog.Logger) models.JobStatus {
	bar := progressbar.Default(-1, "Optimizing products")
	total := -1

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	interrupt := ctx.Done()
	done := controller.Done(tenantID)

	refresh := func() models.JobStatus {
		status, err := controller.Status(context.Background(), tenantID)
		if err != nil {
			return status
		}
		if status.TotalProducts > 0 && status.TotalProducts != total {
			total = status.TotalProducts
			bar.ChangeMax(total)
		}
		if status.CurrentProduct != nil {
			bar.Describe(fmt.Sprintf("Optimizing %q", status.CurrentProduct.Title))
		}
		_ = bar.Set(status.CompletedProducts)
		return status
	}

	for {
		select {
		case <-interrupt:
			interrupt = nil
			logger.Warn("Interrupt received, stopping after the current step")
			_ = controller.Stop(context.Background(), tenantID)
		case <-ticker.C:
			refresh()
		case <-done:
			status := refresh()
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
			return status
		}
	}
}

func reportOutcome(status models.JobStatus) error {
	fmt.Printf("Run %s finished: %s\n", status.RunID, stopReasonText(status.StopReason))
	fmt.Printf("  Products:          %d / %d (%.1f%%)\n", status.CompletedProducts, status.TotalProducts, status.ProgressPercent)
	fmt.Printf("  Content optimized: %d\n", status.CompletedByType.Content)
	fmt.Printf("  Images optimized:  %d\n", status.CompletedByType.Images)
	if len(status.ProductsWithErrors) > 0 {
		fmt.Printf("  Products with errors: %v\n", status.ProductsWithErrors)
	}
	if status.LastError != "" {
		fmt.Printf("  Last error:        %s\n", status.LastError)
	}

	switch status.StopReason {
	case models.StopReasonBreaker, models.StopReasonFailed:
		return fmt.Errorf("optimization did not complete: %s", status.LastError)
	case models.StopReasonStopped:
		fmt.Println("Run the same command again to resume.")
	}
	return nil
}

func stopReasonText(reason models.StopReason) string {
	switch reason {
	case models.StopReasonCompleted:
		return "completed"
	case models.StopReasonStopped:
		return "stopped on request"
	case models.StopReasonBreaker:
		return "stopped after repeated generator auth or rate-limit errors"
	case models.StopReasonFailed:
		return "failed"
	default:
		return "unknown"
	}
}
