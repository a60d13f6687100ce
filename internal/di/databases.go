package di

import (
	"fmt"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases under the data directory and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// portfolio.db - client mandates and holdings
	portfolioDB, err := database.Open(cfg.DataDir, database.NamePortfolio, database.ProfileStandard)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portfolio database: %w", err)
	}
	container.PortfolioDB = portfolioDB

	// ledger.db - audit trail, maximum durability
	ledgerDB, err := database.Open(cfg.DataDir, database.NameLedger, database.ProfileLedger)
	if err != nil {
		portfolioDB.Close()
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	log.Info().
		Str("data_dir", cfg.DataDir).
		Msg("Databases initialized")

	return container, nil
}
