package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/advisor/internal/audit"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/scheduler"
	"github.com/rs/zerolog"
)

const walCheckpointSpec = "0 */15 * * * *"

// RegisterJobs creates the cron scheduler and registers the periodic jobs.
// The scheduler is not started here.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	container.Scheduler = scheduler.New(log)
	instances := &JobInstances{}

	reviewSpec, err := cfg.ReviewSpec()
	if err != nil {
		return nil, err
	}
	instances.DriftReview = scheduler.NewDriftReviewJob(
		container.Advisory,
		container.Classifier,
		container.EventManager,
		container.Metrics,
		cfg.ReviewConcurrency,
		log,
	)
	if err := container.Scheduler.AddJob(reviewSpec, instances.DriftReview); err != nil {
		return nil, fmt.Errorf("failed to register drift review: %w", err)
	}

	instances.WALCheckpoint = scheduler.NewWALCheckpointJob(log, container.Databases()...)
	if err := container.Scheduler.AddJob(walCheckpointSpec, instances.WALCheckpoint); err != nil {
		return nil, fmt.Errorf("failed to register WAL checkpoint: %w", err)
	}

	if cfg.AuditArchive.Enabled() {
		archive := cfg.AuditArchive
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		uploader, err := audit.NewS3Uploader(ctx, audit.S3Config{
			Bucket:          archive.Bucket,
			Prefix:          archive.Prefix,
			Region:          archive.Region,
			Endpoint:        archive.Endpoint,
			AccessKeyID:     archive.AccessKeyID,
			SecretAccessKey: archive.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create audit uploader: %w", err)
		}
		archiver := audit.NewS3Archiver(container.AuditStore, uploader, archive.Bucket, archive.Prefix, archive.BatchSize, log)
		instances.AuditArchive = scheduler.NewAuditArchiveJob(archiver, log)
		if err := container.Scheduler.AddJob(archive.Schedule, instances.AuditArchive); err != nil {
			return nil, fmt.Errorf("failed to register audit archive: %w", err)
		}
	}

	container.Jobs = instances
	log.Info().
		Str("review_schedule", reviewSpec).
		Bool("audit_archive", instances.AuditArchive != nil).
		Int("jobs", container.Scheduler.Entries()).
		Msg("Jobs registered")
	return instances, nil
}
