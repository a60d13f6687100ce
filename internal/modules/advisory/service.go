// Package advisory orchestrates onboarding, compliance checks, drift
// reviews and plan acceptance for registered clients.
package advisory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/advisor/internal/audit"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/events"
	"github.com/aristath/advisor/internal/metrics"
	"github.com/aristath/advisor/internal/modules/allocation"
	"github.com/aristath/advisor/internal/modules/compliance"
	"github.com/aristath/advisor/internal/modules/drift"
	"github.com/aristath/advisor/internal/modules/portfolio"
	"github.com/aristath/advisor/internal/modules/rebalancing"
	"github.com/aristath/advisor/internal/modules/simulation"
	"github.com/rs/zerolog"
)

const module = "advisory"

// Service wires the engine components around the portfolio registry
type Service struct {
	policy    config.Policy
	registry  *portfolio.Registry
	model     *allocation.Model
	engine    *compliance.Engine
	detector  *drift.Detector
	planner   *rebalancing.Planner
	simulator *simulation.Simulator
	recorder  *audit.Recorder
	events    *events.Manager
	metrics   *metrics.Metrics

	// latest proposed plan per client, awaiting acceptance
	pendingMu sync.Mutex
	pending   map[string]rebalancing.Plan

	now func() time.Time
	log zerolog.Logger
}

// NewService builds the engine components from policy and wires them to
// the registry, audit recorder, event manager and metrics.
func NewService(
	policy config.Policy,
	registry *portfolio.Registry,
	recorder *audit.Recorder,
	eventManager *events.Manager,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Service {
	model := allocation.NewModel(policy, log)
	engine := compliance.NewEngine(policy, log)
	return &Service{
		policy:    policy,
		registry:  registry,
		model:     model,
		engine:    engine,
		detector:  drift.NewDetector(policy, model, log),
		planner:   rebalancing.NewPlanner(policy, engine, log),
		simulator: simulation.NewSimulator(policy, engine, model, log),
		recorder:  recorder,
		events:    eventManager,
		metrics:   m,
		pending:   make(map[string]rebalancing.Plan),
		now:       time.Now,
		log:       log.With().Str("service", "advisory").Logger(),
	}
}

// Registry returns the portfolio registry the service operates on
func (s *Service) Registry() *portfolio.Registry {
	return s.registry
}

// Policy returns the policy the engine components were built from
func (s *Service) Policy() config.Policy { return s.policy }

// Model returns the allocation model built from the service policy
func (s *Service) Model() *allocation.Model { return s.model }

// Engine returns the compliance engine
func (s *Service) Engine() *compliance.Engine { return s.engine }

// Detector returns the drift detector
func (s *Service) Detector() *drift.Detector { return s.detector }

// Planner returns the rebalancing planner
func (s *Service) Planner() *rebalancing.Planner { return s.planner }

// Simulator returns the impact simulator
func (s *Service) Simulator() *simulation.Simulator { return s.simulator }

// ClientIDs returns every registered client in sorted order
func (s *Service) ClientIDs() []string {
	return s.registry.ClientIDs()
}

// Get returns a snapshot of the client's portfolio
func (s *Service) Get(clientID string) (domain.Portfolio, error) {
	return s.registry.Snapshot(clientID)
}

// Delete removes a client and any plan awaiting its acceptance
func (s *Service) Delete(clientID string) error {
	if err := s.registry.Delete(clientID); err != nil {
		return err
	}
	s.dropPending(clientID)
	s.metrics.SetClients(s.registry.Len())
	return nil
}

// OnboardRequest registers or replaces a client mandate. Either Score (a
// raw profiler score) or RiskCategory with Subscore is given.
type OnboardRequest struct {
	ClientID     string               `json:"client_id"`
	RiskCategory *domain.RiskCategory `json:"risk_category,omitempty"`
	Subscore     *float64             `json:"subscore,omitempty"`
	Score        *float64             `json:"score,omitempty"`
	Horizon      domain.GoalHorizon   `json:"horizon,omitempty"`
	Holdings     []domain.Holding     `json:"holdings"`
}

func (req OnboardRequest) resolve() (domain.RiskCategory, float64, error) {
	if req.Score != nil {
		return domain.ClassifyScore(*req.Score)
	}
	if req.RiskCategory == nil {
		return 0, 0, fmt.Errorf("%w: risk_category or score is required", domain.ErrInvalidCategory)
	}
	subscore := 50.0
	if req.Subscore != nil {
		subscore = *req.Subscore
	}
	if err := domain.ValidateSubscore(subscore); err != nil {
		return 0, 0, err
	}
	return *req.RiskCategory, subscore, nil
}

// OnboardResult is the stored mandate with the target's verdict and metrics
type OnboardResult struct {
	Portfolio domain.Portfolio   `json:"portfolio"`
	Verdict   compliance.Verdict `json:"verdict"`
	Metrics   allocation.Metrics `json:"metrics"`
}

// Onboard computes the client's target allocation, checks it for
// suitability, stores the mandate and audits the verdict. Re-onboarding an
// existing client replaces its mandate and drops its pending plan.
func (s *Service) Onboard(ctx context.Context, req OnboardRequest) (OnboardResult, error) {
	category, subscore, err := req.resolve()
	if err != nil {
		return OnboardResult{}, err
	}

	target, err := s.model.TargetForGoal(category, subscore, req.Horizon)
	if err != nil {
		return OnboardResult{}, err
	}
	verdict, err := s.engine.Evaluate(compliance.SubjectFromTarget(req.ClientID, category, target))
	if err != nil {
		return OnboardResult{}, err
	}
	targetMetrics, err := s.model.Metrics(target)
	if err != nil {
		return OnboardResult{}, err
	}

	p := domain.Portfolio{
		ClientID: req.ClientID,
		Category: category,
		Subscore: subscore,
		Horizon:  req.Horizon,
		Target:   target,
		Holdings: req.Holdings,
	}
	if p.Holdings == nil {
		p.Holdings = []domain.Holding{}
	}
	if err := s.registry.Upsert(p); err != nil {
		return OnboardResult{}, err
	}
	// a new mandate supersedes any plan built against the old target
	s.dropPending(p.ClientID)
	s.metrics.SetClients(s.registry.Len())
	s.observeVerdict(verdict)

	if _, err := s.recorder.Record(ctx, audit.KindOnboarding, p.ClientID, verdict.Summary(),
		verdictPayload(verdict, subscore, target)); err != nil {
		return OnboardResult{}, err
	}

	s.events.Emit(module, &events.ClientOnboardedData{
		ClientID:     p.ClientID,
		RiskCategory: category.String(),
		Subscore:     subscore,
		Target:       vectorMap(target),
		Compliant:    verdict.Passed,
	})

	s.log.Info().
		Str("client_id", p.ClientID).
		Str("category", category.String()).
		Float64("subscore", subscore).
		Bool("compliant", verdict.Passed).
		Msg("Client onboarded")

	return OnboardResult{Portfolio: p, Verdict: verdict, Metrics: targetMetrics}, nil
}

// UpdateHoldings replaces the client's holdings snapshot. The mandate is
// kept and any pending plan for the client is dropped.
func (s *Service) UpdateHoldings(ctx context.Context, clientID string, holdings []domain.Holding) (domain.Portfolio, error) {
	if holdings == nil {
		holdings = []domain.Holding{}
	}
	updated, err := s.registry.Update(clientID, func(p *domain.Portfolio) error {
		p.Holdings = holdings
		return nil
	})
	if err != nil {
		return domain.Portfolio{}, err
	}
	s.dropPending(clientID)

	s.events.Emit(module, &events.PortfolioUpdatedData{
		ClientID:   clientID,
		Holdings:   len(updated.Holdings),
		TotalValue: updated.TotalValue().StringFixed(2),
	})
	return updated, nil
}

// Evaluate runs the compliance engine on the client's current holdings and
// audits the verdict
func (s *Service) Evaluate(ctx context.Context, clientID string) (compliance.Verdict, error) {
	p, err := s.registry.Snapshot(clientID)
	if err != nil {
		return compliance.Verdict{}, err
	}
	subject, err := compliance.SubjectFromPortfolio(p)
	if err != nil {
		return compliance.Verdict{}, err
	}
	verdict, err := s.engine.Evaluate(subject)
	if err != nil {
		return compliance.Verdict{}, err
	}

	if err := s.recordVerdict(ctx, p, subject.Vector, verdict); err != nil {
		return compliance.Verdict{}, err
	}
	return verdict, nil
}

// Drift returns a fresh drift report for the client
func (s *Service) Drift(ctx context.Context, clientID string, signal domain.MarketSignal) (drift.Report, error) {
	p, err := s.registry.Snapshot(clientID)
	if err != nil {
		return drift.Report{}, err
	}
	report, err := s.detector.Detect(p, signal)
	if err != nil {
		return drift.Report{}, err
	}
	s.metrics.ObserveDrift(string(report.Reason), report.Magnitude)
	return report, nil
}

// ReviewResult is the outcome of a drift review
type ReviewResult struct {
	ActionNeeded bool               `json:"action_needed"`
	Reason       string             `json:"reason,omitempty"`
	Report       drift.Report       `json:"report"`
	Plan         *rebalancing.Plan  `json:"plan,omitempty"`
	Simulation   *simulation.Result `json:"simulation,omitempty"`
}

// Review runs drift detection and, when triggered, proposes and simulates a
// plan. A review that needs no action is a result, not an error. The
// proposed plan is held until it is accepted or superseded.
func (s *Service) Review(ctx context.Context, clientID string, signal domain.MarketSignal) (ReviewResult, error) {
	p, err := s.registry.Snapshot(clientID)
	if err != nil {
		return ReviewResult{}, err
	}

	report, err := s.detector.Detect(p, signal)
	if err != nil {
		return ReviewResult{}, err
	}
	s.metrics.ObserveDrift(string(report.Reason), report.Magnitude)
	result := ReviewResult{Report: report}

	if report.Trigger {
		s.events.Emit(module, &events.DriftDetectedData{
			ClientID:      clientID,
			Magnitude:     report.Magnitude,
			MaxDriftClass: report.MaxDriftClass.String(),
			Signal:        report.Signal.String(),
			Reason:        string(report.Reason),
		})
	}

	plan, err := s.planner.Plan(report, p)
	var conflict *rebalancing.ConflictError
	switch {
	case errors.Is(err, domain.ErrNoActionNeeded):
		s.metrics.ObservePlan(metrics.PlanNoAction)
		result.Reason = err.Error()
		return result, nil
	case errors.As(err, &conflict):
		s.metrics.ObservePlan(metrics.PlanConflict)
		if recErr := s.recordVerdict(ctx, p, report.Target, conflict.Verdict); recErr != nil {
			s.log.Error().Err(recErr).Str("client_id", clientID).Msg("Failed to audit conflicting verdict")
		}
		return result, err
	case errors.Is(err, domain.ErrStalePlan):
		s.metrics.ObservePlan(metrics.PlanStale)
		return result, err
	case err != nil:
		s.metrics.ObservePlan(metrics.PlanFailed)
		return result, err
	}

	sim, err := s.simulator.Simulate(plan, p)
	if err != nil {
		s.metrics.ObservePlan(metrics.PlanFailed)
		return result, err
	}

	s.pendingMu.Lock()
	s.pending[clientID] = plan
	s.pendingMu.Unlock()

	s.metrics.ObservePlan(metrics.PlanProposed)
	s.metrics.ObserveIterations(plan.Iterations)
	s.observeVerdict(plan.Verdict)

	if _, err := s.recorder.Record(ctx, audit.KindPlanProposed, clientID,
		fmt.Sprintf("%d trades, turnover %.4f", len(plan.Trades), plan.Turnover()),
		planPayload(plan, sim, p.Subscore)); err != nil {
		return result, err
	}

	s.events.Emit(module, &events.PlanProposedData{
		ClientID:      clientID,
		PlanID:        plan.ID,
		Trades:        len(plan.Trades),
		Turnover:      plan.Turnover(),
		EstimatedCost: sim.EstimatedCostImpact.StringFixed(2),
		Iterations:    plan.Iterations,
	})

	result.ActionNeeded = true
	result.Plan = &plan
	result.Simulation = &sim
	return result, nil
}

// AcceptResult is an accepted plan with its re-simulation
type AcceptResult struct {
	Plan       rebalancing.Plan  `json:"plan"`
	Simulation simulation.Result `json:"simulation"`
	Portfolio  domain.Portfolio  `json:"portfolio"`
}

// Accept re-simulates the pending plan against the client's current
// holdings and, when it is still fresh and compliant, applies the projected
// holdings and audits the acceptance. Stale plans are discarded.
func (s *Service) Accept(ctx context.Context, clientID, planID string) (AcceptResult, error) {
	s.pendingMu.Lock()
	plan, ok := s.pending[clientID]
	s.pendingMu.Unlock()
	if !ok || plan.ID != planID {
		return AcceptResult{}, fmt.Errorf("%w: %s for client %s", domain.ErrPlanNotFound, planID, clientID)
	}

	var sim simulation.Result
	updated, err := s.registry.Update(clientID, func(p *domain.Portfolio) error {
		var err error
		sim, err = s.simulator.Simulate(plan, *p)
		if err != nil {
			return err
		}
		if !sim.Verdict.Passed {
			return &rebalancing.ConflictError{ClientID: clientID, Iterations: plan.Iterations, Verdict: sim.Verdict}
		}
		p.Holdings = sim.Projected.Holdings
		return nil
	})
	if err != nil {
		s.metrics.ObservePlan(metrics.PlanAcceptFailed)
		if errors.Is(err, domain.ErrStalePlan) {
			s.dropPending(clientID)
		}
		return AcceptResult{}, err
	}
	s.dropPending(clientID)
	s.metrics.ObservePlan(metrics.PlanAccepted)

	if _, err := s.recorder.Record(ctx, audit.KindPlanAccepted, clientID,
		fmt.Sprintf("plan %s accepted: %d trades", plan.ID, len(plan.Trades)),
		planPayload(plan, sim, updated.Subscore)); err != nil {
		return AcceptResult{}, err
	}

	trades := make([]events.TradeData, 0, len(plan.Trades))
	for _, t := range plan.Trades {
		trades = append(trades, events.TradeData{
			AssetClass: t.Class.String(),
			Side:       t.Side.String(),
			Weight:     t.Weight,
			Notional:   t.Notional.StringFixed(2),
		})
	}
	s.events.Emit(module, &events.PlanAcceptedData{ClientID: clientID, PlanID: plan.ID, Trades: trades})

	s.log.Info().Str("client_id", clientID).Str("plan_id", plan.ID).Msg("Rebalancing plan accepted")

	return AcceptResult{Plan: plan, Simulation: sim, Portfolio: updated}, nil
}

// PendingPlan returns the client's plan awaiting acceptance
func (s *Service) PendingPlan(clientID string) (rebalancing.Plan, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	plan, ok := s.pending[clientID]
	return plan, ok
}

// History returns the client's audit trail, newest first
func (s *Service) History(ctx context.Context, clientID string, limit int) ([]audit.Record, error) {
	return s.recorder.History(ctx, clientID, limit)
}

func (s *Service) dropPending(clientID string) {
	s.pendingMu.Lock()
	delete(s.pending, clientID)
	s.pendingMu.Unlock()
}

func (s *Service) recordVerdict(ctx context.Context, p domain.Portfolio, vector domain.Vector, verdict compliance.Verdict) error {
	s.observeVerdict(verdict)

	if _, err := s.recorder.Record(ctx, audit.KindVerdict, p.ClientID, verdict.Summary(),
		verdictPayload(verdict, p.Subscore, vector)); err != nil {
		return err
	}

	data := &events.VerdictRecordedData{
		ClientID: p.ClientID,
		Passed:   verdict.Passed,
		Summary:  verdict.Summary(),
	}
	for _, r := range verdict.Failures() {
		data.Failures = append(data.Failures, r.Rule)
	}
	for _, r := range verdict.Warnings() {
		data.Warnings = append(data.Warnings, r.Rule)
	}
	s.events.Emit(module, data)
	return nil
}

func (s *Service) observeVerdict(v compliance.Verdict) {
	failed := make(map[string]string)
	for _, r := range v.Results {
		if !r.Passed {
			failed[r.Rule] = r.Severity.String()
		}
	}
	s.metrics.ObserveVerdict(v.Passed, failed)
}
