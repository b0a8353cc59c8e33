package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lamim/catalogseo/internal/api"
	"github.com/lamim/catalogseo/internal/catalog"
	"github.com/lamim/catalogseo/internal/config"
	"github.com/lamim/catalogseo/internal/metrics"
	"github.com/lamim/catalogseo/internal/orchestrator"
)

// NewClientFactory returns a factory that talks to the configured catalog
// and content generator. All runs share one generator rate limiter pool.
func NewClientFactory(cfg *config.Config, secrets *config.Secrets, m *metrics.Collector, logger *slog.Logger) ClientFactory {
	pool := api.NewRateLimiterPool()
	providerRPM := cfg.ProviderRateLimit(cfg.Generator.BaseURL)
	if secrets == nil {
		secrets = &config.Secrets{}
	}

	return func(creds Credentials) (orchestrator.Deps, error) {
		if err := config.ValidateShopName(creds.ShopName); err != nil {
			return orchestrator.Deps{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		token := creds.CatalogToken
		if token == "" {
			token = secrets.CatalogAccessToken
		}
		if token == "" {
			return orchestrator.Deps{}, fmt.Errorf("%w: catalog access token is required", ErrInvalidArgument)
		}
		key := creds.GeneratorKey
		if key == "" {
			key = secrets.GeneratorAPIKey
		}
		if key == "" {
			return orchestrator.Deps{}, fmt.Errorf("%w: generator API key is required", ErrInvalidArgument)
		}

		catalogClient := catalog.NewClient(cfg.Catalog, creds.ShopName, token, logger)
		catalogClient.SetMetrics(m)

		downloader := catalog.NewDownloader(
			time.Duration(cfg.Catalog.DownloadTimeoutSeconds)*time.Second,
			cfg.Catalog.MaxDownloadBytes,
			logger)

		generatorClient := api.NewClient(cfg.Generator, key, logger)
		generatorClient.SetRateLimiterPool(pool, providerRPM, cfg.ProviderBurstPercent)
		generatorClient.SetSystemPrompt(cfg.PromptTemplates.SystemPrompt)
		generatorClient.SetMetrics(m)

		return orchestrator.Deps{
			Catalog:    catalogClient,
			Downloader: downloader,
			Generator:  generatorClient,
			Metrics:    m,
		}, nil
	}
}
