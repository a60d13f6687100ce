package di

import (
	"fmt"

	"github.com/aristath/advisor/internal/audit"
	"github.com/aristath/advisor/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the SQLite-backed stores
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.PortfolioRepo = portfolio.NewRepository(container.PortfolioDB.Conn(), log)
	container.AuditStore = audit.NewLedgerStore(container.LedgerDB.Conn(), log)

	log.Info().Msg("Repositories initialized")
	return nil
}
