package di

import (
	"fmt"

	"github.com/aristath/advisor/internal/audit"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/events"
	"github.com/aristath/advisor/internal/market_regime"
	"github.com/aristath/advisor/internal/metrics"
	"github.com/aristath/advisor/internal/modules/advisory"
	"github.com/aristath/advisor/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// InitializeServices builds the registry and the advisory service, then
// restores persisted clients into the registry
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)
	container.Metrics = metrics.New()
	container.Classifier = market_regime.NewClassifier(cfg.Policy.Market, log)
	container.Recorder = audit.NewRecorder(container.AuditStore, log)

	container.Registry = portfolio.NewRegistry(container.PortfolioRepo, log)
	if err := container.Registry.Load(); err != nil {
		return fmt.Errorf("failed to restore clients: %w", err)
	}
	container.Metrics.SetClients(container.Registry.Len())

	container.Advisory = advisory.NewService(
		cfg.Policy,
		container.Registry,
		container.Recorder,
		container.EventManager,
		container.Metrics,
		log,
	)

	log.Info().
		Int("clients", container.Registry.Len()).
		Msg("Services initialized")
	return nil
}
