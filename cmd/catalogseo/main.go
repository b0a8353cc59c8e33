package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lamim/catalogseo/internal/checkpoint"
	"github.com/lamim/catalogseo/internal/config"
	"github.com/lamim/catalogseo/internal/logging"
	"github.com/lamim/catalogseo/internal/metrics"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "catalogseo",
		Short: "catalogseo - resumable SEO optimization for commerce catalogs",
		Long: `catalogseo rewrites product titles, descriptions, image alt text and
image filenames with a multimodal content generator. Jobs are per tenant,
checkpointed after every step and resumable after a stop or crash.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCheckpointCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles what every command needs
type app struct {
	cfg     *config.Config
	secrets *config.Secrets
	logger  *slog.Logger
	metrics *metrics.Collector
	store   checkpoint.Store
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// bootstrap loads env, configuration, logger and checkpoint store
func bootstrap(cmd *cobra.Command) (*app, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	cfg, secrets, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.Setup(cfg.Server.LogPath, logging.Level(verbose))
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	a := &app{
		cfg:     cfg,
		secrets: secrets,
		logger:  logger,
		metrics: metrics.NewCollector(logger),
		closers: []func() error{closeLog},
	}

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)
	return a, nil
}

// loadConfig reads the config file. Without an explicit --config a missing
// default file falls back to built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, *config.Secrets, error) {
	cfg, secrets, err := config.Load(configPath)
	if err == nil {
		return cfg, secrets, nil
	}
	if !errors.Is(err, fs.ErrNotExist) || cmd.Flag("config").Changed {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg = config.Default()
	if secrets, err = config.LoadSecrets(); err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	if secrets.DatabaseDSN != "" {
		cfg.Store.DSN = secrets.DatabaseDSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid default configuration: %w", err)
	}
	return cfg, secrets, nil
}

// openStore builds the checkpoint store selected by store.driver
func openStore(cfg *config.Config, logger *slog.Logger) (checkpoint.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("Using in-memory checkpoint store, progress is lost on exit")
		return checkpoint.NewMemoryStore(), noop, nil
	case "file":
		store, err := checkpoint.NewFileStore(cfg.Store.Dir, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open checkpoint directory: %w", err)
		}
		return store, noop, nil
	default:
		db, err := checkpoint.OpenDB(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to access database handle: %w", err)
		}
		store, err := checkpoint.NewSQLStore(db, logger)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return store, sqlDB.Close, nil
	}
}
