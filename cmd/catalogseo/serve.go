package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lamim/catalogseo/internal/httpapi"
	"github.com/lamim/catalogseo/internal/jobs"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the job API",
		Long: `Serve the per-tenant job API over HTTP:
  POST /api/tenants/:tenant/start
  POST /api/tenants/:tenant/stop
  GET  /api/tenants/:tenant/status
Running flags left behind by a previous crash are cleared on startup.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	logger := a.logger
	logger.Info("catalogseo starting",
		"version", Version,
		"addr", a.cfg.Server.Addr,
		"store", a.cfg.Store.Driver)

	controller, err := jobs.NewController(a.cfg, a.store, jobs.NewClientFactory(a.cfg, a.secrets, a.metrics, logger), a.metrics, logger)
	if err != nil {
		return fmt.Errorf("failed to create job controller: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recovered, err := controller.RecoverStale(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover stale jobs: %w", err)
	}
	if recovered > 0 {
		logger.Warn("Cleared running flags from a previous process", "tenants", recovered)
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           httpapi.NewRouter(controller, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := time.Duration(a.cfg.Server.ShutdownTimeoutSeconds) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		logger.Info("Shutting down, stopping running jobs", "timeout", timeout)
		err := srv.Shutdown(shutdownCtx)
		if jobErr := controller.Shutdown(shutdownCtx); jobErr != nil {
			logger.Warn("Jobs did not stop before the shutdown timeout", "error", jobErr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
