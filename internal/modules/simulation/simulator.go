// Package simulation projects the effect of a rebalancing plan without
// touching the live portfolio.
package simulation

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/allocation"
	"github.com/aristath/advisor/internal/modules/compliance"
	"github.com/aristath/advisor/internal/modules/rebalancing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MetricsProvider computes portfolio-level expected return and risk
type MetricsProvider interface {
	Metrics(v domain.Vector) (allocation.Metrics, error)
}

// Result is the projected outcome of applying a plan
type Result struct {
	PlanID              string             `json:"plan_id"`
	ClientID            string             `json:"client_id"`
	ResultingVector     domain.Vector      `json:"resulting_vector"`
	Projected           domain.Portfolio   `json:"projected"`
	TradedNotional      decimal.Decimal    `json:"traded_notional"`
	Turnover            float64            `json:"turnover"`
	EstimatedCostImpact decimal.Decimal    `json:"estimated_cost_impact"`
	CostRatio           float64            `json:"cost_ratio"`
	Verdict             compliance.Verdict `json:"verdict"`
	Before              allocation.Metrics `json:"before"`
	After               allocation.Metrics `json:"after"`
	SimulatedAt         time.Time          `json:"simulated_at"`
}

// Simulator projects plans onto portfolio snapshots
type Simulator struct {
	policy  config.Policy
	engine  *compliance.Engine
	metrics MetricsProvider
	now     func() time.Time
	log     zerolog.Logger
}

// NewSimulator creates a new impact simulator
func NewSimulator(policy config.Policy, engine *compliance.Engine, metrics MetricsProvider, log zerolog.Logger) *Simulator {
	return &Simulator{
		policy:  policy,
		engine:  engine,
		metrics: metrics,
		now:     time.Now,
		log:     log.With().Str("component", "impact_simulator").Logger(),
	}
}

// Simulate applies the plan to a copy of the portfolio. The plan must have
// been derived from a snapshot that still matches the portfolio within the
// staleness tolerances, otherwise ErrStalePlan is returned.
func (s *Simulator) Simulate(plan rebalancing.Plan, p domain.Portfolio) (Result, error) {
	if err := plan.Report.CheckFresh(p, s.policy.StaleWeightTolerance, s.policy.StaleValueTolerance); err != nil {
		return Result{}, fmt.Errorf("plan %s: %w", plan.ID, err)
	}

	shifts := plan.Shifts()
	if sum := shifts.Sum(); math.Abs(sum) > 1e-9 {
		return Result{}, fmt.Errorf("%w: plan %s trades sum to %.12f", domain.ErrUnbalancedPlan, plan.ID, sum)
	}

	projected, err := p.Shifted(shifts)
	if err != nil {
		return Result{}, fmt.Errorf("%w: plan %s: %v", domain.ErrUnbalancedPlan, plan.ID, err)
	}
	subject, err := compliance.SubjectFromPortfolio(projected)
	if err != nil {
		return Result{}, fmt.Errorf("%w: plan %s: %v", domain.ErrUnbalancedPlan, plan.ID, err)
	}
	verdict, err := s.engine.Evaluate(subject)
	if err != nil {
		return Result{}, fmt.Errorf("failed to evaluate projected portfolio: %w", err)
	}

	current, err := p.CurrentVector()
	if err != nil {
		return Result{}, err
	}
	before, err := s.metrics.Metrics(current)
	if err != nil {
		return Result{}, fmt.Errorf("failed to compute current metrics: %w", err)
	}
	after, err := s.metrics.Metrics(subject.Vector)
	if err != nil {
		return Result{}, fmt.Errorf("failed to compute projected metrics: %w", err)
	}

	cost := s.EstimateCost(plan)
	result := Result{
		PlanID:              plan.ID,
		ClientID:            p.ClientID,
		ResultingVector:     subject.Vector,
		Projected:           projected,
		TradedNotional:      plan.TradedNotional(),
		Turnover:            plan.Turnover(),
		EstimatedCostImpact: cost,
		Verdict:             verdict,
		Before:              before,
		After:               after,
		SimulatedAt:         s.now(),
	}
	if total := p.TotalValue(); total.IsPositive() {
		result.CostRatio = cost.Div(total).InexactFloat64()
	}

	s.log.Debug().
		Str("client_id", p.ClientID).
		Str("plan_id", plan.ID).
		Str("cost", cost.StringFixed(2)).
		Bool("compliant", verdict.Passed).
		Msg("Plan simulated")

	return result, nil
}

// EstimateCost is linear in traded notional: each trade costs its notional
// times the class rate. A non-zero transaction_cost_fixed adds a flat amount
// per trade, which makes the estimate affine in the trade count rather than
// purely linear; the default policy sets it to zero.
func (s *Simulator) EstimateCost(plan rebalancing.Plan) decimal.Decimal {
	cost := decimal.Zero
	fixed := decimal.NewFromFloat(s.policy.TransactionCostFixed)
	for _, t := range plan.Trades {
		rate := decimal.NewFromFloat(s.policy.CostRate(t.Class))
		cost = cost.Add(t.Notional.Mul(rate)).Add(fixed)
	}
	return cost.Round(2)
}
