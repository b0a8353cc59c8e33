package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lamim/catalogseo/internal/checkpoint"
	"github.com/lamim/catalogseo/internal/jobs"
	"github.com/lamim/catalogseo/pkg/models"
)

func newCheckpointCmd() *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage checkpoints",
		Long:  "Inspect and repair per-tenant optimization checkpoints",
	}

	checkpointCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tenants with a checkpoint",
		RunE:  listCheckpoints,
	})
	checkpointCmd.AddCommand(&cobra.Command{
		Use:   "inspect <tenant>",
		Short: "Inspect a tenant's checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectCheckpoint,
	})
	checkpointCmd.AddCommand(&cobra.Command{
		Use:   "clear-running <tenant>",
		Short: "Clear a running flag left behind by a crashed process",
		Long: `Clear a running flag that no live process backs, so the tenant can be
started again. Progress is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: clearRunning,
	})

	return checkpointCmd
}

// listCheckpoints lists all tenants the store knows about
func listCheckpoints(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	lister, ok := a.store.(checkpoint.Lister)
	if !ok {
		return fmt.Errorf("store driver %q cannot list tenants", a.cfg.Store.Driver)
	}
	ctx := context.Background()
	tenants, err := lister.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}
	if len(tenants) == 0 {
		fmt.Println("No checkpoints found.")
		return nil
	}

	fmt.Printf("%-30s %-10s %-12s %s\n", "TENANT", "RUNNING", "STOP REASON", "PROGRESS")
	fmt.Println(strings.Repeat("-", 70))
	for _, tenantID := range tenants {
		cp, err := a.store.Load(ctx, tenantID)
		if err != nil || cp == nil {
			fmt.Printf("%-30s %-10s %-12s %s\n", tenantID, "?", "?", "unreadable")
			continue
		}
		fmt.Printf("%-30s %-10s %-12s %d/%d (%.1f%%)\n",
			tenantID,
			yesNo(cp.IsRunning),
			stopReasonLabel(cp.StopReason),
			cp.CompletedProducts,
			cp.TotalProducts,
			checkpoint.GetProgressPercentage(cp))
	}
	return nil
}

// inspectCheckpoint displays detailed information about a tenant's checkpoint
func inspectCheckpoint(cmd *cobra.Command, args []string) error {
	tenantID := args[0]
	if err := checkpoint.ValidateTenantID(tenantID); err != nil {
		return err
	}

	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	cp, err := a.store.Load(context.Background(), tenantID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		return fmt.Errorf("no checkpoint for tenant %s", tenantID)
	}

	fmt.Printf("Checkpoint Information for: %s\n", tenantID)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Run ID:              %s\n", cp.RunID)
	fmt.Printf("SEO Types:           %s\n", strings.Join(cp.SEOTypes.Strings(), ", "))
	fmt.Printf("Running:             %s\n", yesNo(cp.IsRunning))
	fmt.Printf("Stop Reason:         %s\n", stopReasonLabel(cp.StopReason))
	if cp.StartedAt != nil {
		fmt.Printf("Started At:          %s\n", cp.StartedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Updated At:          %s\n", cp.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println()

	fmt.Println("Progress:")
	fmt.Printf("  Products:          %d / %d completed (%.1f%%)\n",
		cp.CompletedProducts, cp.TotalProducts, checkpoint.GetProgressPercentage(cp))
	fmt.Printf("  Content:           %d\n", cp.CompletedByType.Content)
	fmt.Printf("  Images:            %d\n", cp.CompletedByType.Images)
	fmt.Printf("  Last Product:      %d\n", cp.LastProductID)
	if cp.CurrentProduct != nil {
		fmt.Printf("  Current Product:   %d (%s)\n", cp.CurrentProduct.ID, cp.CurrentProduct.Title)
	}
	fmt.Println()

	fmt.Println("Errors:")
	fmt.Printf("  API Error Count:   %d\n", cp.APIErrorCount)
	if cp.LastError != "" {
		fmt.Printf("  Last Error:        %s\n", cp.LastError)
	}
	for _, id := range cp.ProductsWithErrors.Sorted() {
		detail := cp.OptimizationDetails[id]
		fmt.Printf("  Product %-10d %s\n", id, detail.Error)
	}
	fmt.Println()

	if len(cp.ProcessedImages) > 0 {
		fmt.Println("Recent Images:")
		for _, img := range cp.ProcessedImages {
			fmt.Printf("  %-10d %-10s %s\n", img.ID, img.Status, describeImage(img))
		}
		fmt.Println()
	}

	if cp.StopReason != models.StopReasonCompleted {
		fmt.Println("To resume this tenant, run:")
		fmt.Printf("  catalogseo run %s\n", tenantID)
	}
	return nil
}

// clearRunning performs the stop operation without a live job
func clearRunning(cmd *cobra.Command, args []string) error {
	tenantID := args[0]

	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	controller, err := jobs.NewController(a.cfg, a.store, nil, nil, a.logger)
	if err != nil {
		return err
	}
	if err := controller.Stop(context.Background(), tenantID); err != nil {
		return fmt.Errorf("failed to clear running flag: %w", err)
	}
	fmt.Printf("Tenant %s is no longer marked as running.\n", tenantID)
	return nil
}

func describeImage(img models.ImageState) string {
	if img.Error != "" {
		return img.Error
	}
	if img.NewFilename != "" {
		return fmt.Sprintf("%s (%s)", img.NewFilename, img.NewAltText)
	}
	return img.Src
}

func stopReasonLabel(reason models.StopReason) string {
	if reason == models.StopReasonNone {
		return "-"
	}
	return string(reason)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
