package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/events"
	"github.com/aristath/advisor/internal/metrics"
	"github.com/aristath/advisor/internal/modules/advisory"
	"github.com/aristath/advisor/internal/modules/rebalancing"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Reviewer runs a drift review for one client
type Reviewer interface {
	ClientIDs() []string
	Review(ctx context.Context, clientID string, signal domain.MarketSignal) (advisory.ReviewResult, error)
}

// SignalSource supplies the current market signal
type SignalSource interface {
	Signal() domain.MarketSignal
}

// ReviewSummary counts the outcomes of one review run
type ReviewSummary struct {
	Clients   int
	Triggered int
	Planned   int
	Conflicts int
	Errors    int
	Duration  time.Duration
}

// DriftReviewJob reviews every registered client, several at a time.
// A failing client is logged and counted; it never stops the others.
type DriftReviewJob struct {
	reviewer    Reviewer
	signals     SignalSource
	events      *events.Manager
	metrics     *metrics.Metrics
	concurrency int
	timeout     time.Duration
	log         zerolog.Logger

	last atomic.Value // ReviewSummary
}

// NewDriftReviewJob creates the periodic review job. signals may be nil.
func NewDriftReviewJob(
	reviewer Reviewer,
	signals SignalSource,
	eventManager *events.Manager,
	m *metrics.Metrics,
	concurrency int,
	log zerolog.Logger,
) *DriftReviewJob {
	if concurrency < 1 {
		concurrency = 1
	}
	return &DriftReviewJob{
		reviewer:    reviewer,
		signals:     signals,
		events:      eventManager,
		metrics:     m,
		concurrency: concurrency,
		timeout:     10 * time.Minute,
		log:         log.With().Str("job", "drift_review").Logger(),
	}
}

// Name returns the job name
func (j *DriftReviewJob) Name() string {
	return "drift_review"
}

// Run executes one review across all clients
func (j *DriftReviewJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	_, err := j.Review(ctx)
	return err
}

// Review reviews every client and returns the counts
func (j *DriftReviewJob) Review(ctx context.Context) (ReviewSummary, error) {
	start := time.Now()
	signal := domain.SignalNormal
	if j.signals != nil {
		signal = j.signals.Signal()
	}

	clients := j.reviewer.ClientIDs()
	var triggered, planned, conflicts, failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for _, clientID := range clients {
		clientID := clientID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			result, err := j.reviewer.Review(gctx, clientID, signal)
			if result.Report.Trigger {
				atomic.AddInt64(&triggered, 1)
			}

			var conflict *rebalancing.ConflictError
			switch {
			case errors.As(err, &conflict):
				atomic.AddInt64(&conflicts, 1)
				j.log.Warn().Str("client_id", clientID).Str("verdict", conflict.Verdict.Summary()).Msg("Drift review found no compliant plan")
			case err != nil:
				atomic.AddInt64(&failed, 1)
				j.log.Error().Err(err).Str("client_id", clientID).Msg("Drift review failed")
				j.events.EmitError("scheduler", err, map[string]interface{}{"client_id": clientID, "job": j.Name()})
			case result.ActionNeeded:
				atomic.AddInt64(&planned, 1)
			}
			return nil
		})
	}
	err := g.Wait()

	summary := ReviewSummary{
		Clients:   len(clients),
		Triggered: int(triggered),
		Planned:   int(planned),
		Conflicts: int(conflicts),
		Errors:    int(failed),
		Duration:  time.Since(start),
	}
	j.last.Store(summary)
	j.metrics.ObserveReview(summary.Duration)
	j.metrics.SetClients(summary.Clients)

	j.events.Emit("scheduler", &events.ReviewCompletedData{
		Clients:   summary.Clients,
		Triggered: summary.Triggered,
		Planned:   summary.Planned,
		Errors:    summary.Errors + summary.Conflicts,
		Duration:  summary.Duration.String(),
	})

	j.log.Info().
		Int("clients", summary.Clients).
		Int("triggered", summary.Triggered).
		Int("planned", summary.Planned).
		Int("conflicts", summary.Conflicts).
		Int("errors", summary.Errors).
		Str("signal", signal.String()).
		Dur("duration", summary.Duration).
		Msg("Drift review completed")

	return summary, err
}

// LastSummary returns the counts of the most recent run
func (j *DriftReviewJob) LastSummary() (ReviewSummary, bool) {
	s, ok := j.last.Load().(ReviewSummary)
	return s, ok
}
