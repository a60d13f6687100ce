// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/advisor/internal/audit"
	"github.com/aristath/advisor/internal/database"
	"github.com/aristath/advisor/internal/events"
	"github.com/aristath/advisor/internal/market_regime"
	"github.com/aristath/advisor/internal/metrics"
	"github.com/aristath/advisor/internal/modules/advisory"
	"github.com/aristath/advisor/internal/modules/portfolio"
	"github.com/aristath/advisor/internal/scheduler"
)

// Container holds every long-lived dependency of the advisory server.
// Databases come first, then stores, then services, then jobs.
type Container struct {
	// Databases
	PortfolioDB *database.DB // client mandates and holdings
	LedgerDB    *database.DB // append-only audit trail

	// Repositories and stores
	PortfolioRepo *portfolio.Repository
	AuditStore    *audit.LedgerStore

	// Services
	Registry     *portfolio.Registry
	Recorder     *audit.Recorder
	EventBus     *events.Bus
	EventManager *events.Manager
	Metrics      *metrics.Metrics
	Classifier   *market_regime.Classifier
	Advisory     *advisory.Service

	// Background jobs
	Scheduler *scheduler.Scheduler
	Jobs      *JobInstances
}

// JobInstances exposes registered jobs for manual triggering
type JobInstances struct {
	DriftReview   *scheduler.DriftReviewJob
	WALCheckpoint *scheduler.WALCheckpointJob
	AuditArchive  *scheduler.AuditArchiveJob // nil unless the archive is configured
}

// Databases returns the open databases in close order
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.PortfolioDB, c.LedgerDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close stops the scheduler and closes every database
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	for _, db := range c.Databases() {
		_ = db.Close()
	}
}
