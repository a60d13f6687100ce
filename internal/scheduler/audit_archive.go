package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Archiver drains unarchived audit records to long-term storage
type Archiver interface {
	Archive(ctx context.Context) (int, error)
}

// AuditArchiveJob ships the audit ledger to the archive
type AuditArchiveJob struct {
	archiver Archiver
	timeout  time.Duration
	log      zerolog.Logger
}

// NewAuditArchiveJob creates a new audit archive job
func NewAuditArchiveJob(archiver Archiver, log zerolog.Logger) *AuditArchiveJob {
	return &AuditArchiveJob{
		archiver: archiver,
		timeout:  5 * time.Minute,
		log:      log.With().Str("job", "audit_archive").Logger(),
	}
}

// Name returns the job name
func (j *AuditArchiveJob) Name() string {
	return "audit_archive"
}

// Run executes the audit archive job
func (j *AuditArchiveJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.archiver.Archive(ctx)
	if n > 0 {
		j.log.Info().Int("records", n).Msg("Audit records archived")
	}
	return err
}
