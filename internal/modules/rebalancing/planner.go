// Package rebalancing turns drift reports into compliant trade plans.
package rebalancing

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/compliance"
	"github.com/aristath/advisor/internal/modules/drift"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Planner proposes rebalancing plans
type Planner struct {
	policy config.Policy
	engine *compliance.Engine
	newID  func() string
	now    func() time.Time
	log    zerolog.Logger
}

// NewPlanner creates a new rebalancing planner
func NewPlanner(policy config.Policy, engine *compliance.Engine, log zerolog.Logger) *Planner {
	return &Planner{
		policy: policy,
		engine: engine,
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
		log:    log.With().Str("component", "rebalancing_planner").Logger(),
	}
}

// MinTradeAmount is the absolute trade floor implied by transaction costs.
// It is zero when no fixed cost is configured.
func (p *Planner) MinTradeAmount() float64 {
	if p.policy.TransactionCostFixed <= 0 {
		return 0
	}
	return CalculateMinTradeAmount(
		p.policy.TransactionCostFixed,
		p.policy.TransactionCostPercent,
		p.policy.MaxCostRatio,
	)
}

// minTradeWeight is the stricter of the weight floor and the absolute
// trade floor expressed as a weight of this portfolio
func (p *Planner) minTradeWeight(total decimal.Decimal) float64 {
	floor := p.policy.MinTradeWeight
	if amount := p.MinTradeAmount(); amount > 0 && total.IsPositive() {
		floor = math.Max(floor, amount/total.InexactFloat64())
	}
	return floor
}

// Plan builds a plan from a triggered drift report. Overweight classes are
// sold down to target and underweight classes bought up to it; immaterial
// trades are dropped with the larger side scaled to keep capital balanced.
// When the projected portfolio fails a Hard rule, the buy feeding the worst
// violation is scaled back and the plan re-evaluated, up to the configured
// number of iterations.
func (p *Planner) Plan(report drift.Report, portfolio domain.Portfolio) (Plan, error) {
	if !report.Trigger {
		return Plan{}, fmt.Errorf("%w: client %s drift %.4f within threshold %.4f",
			domain.ErrNoActionNeeded, report.ClientID, report.Magnitude, report.Threshold)
	}
	if err := report.CheckFresh(portfolio, p.policy.StaleWeightTolerance, p.policy.StaleValueTolerance); err != nil {
		return Plan{}, err
	}

	total := portfolio.TotalValue()
	minWeight := p.minTradeWeight(total)

	shifts := applyMateriality(p.targetShifts(report), minWeight)
	if len(shifts) == 0 {
		return Plan{}, fmt.Errorf("%w: client %s every adjustment is below the materiality floor %.4f",
			domain.ErrNoActionNeeded, report.ClientID, minWeight)
	}

	for iteration := 0; ; iteration++ {
		projected, err := portfolio.Shifted(shifts)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: %v", domain.ErrUnbalancedPlan, err)
		}
		subject, err := compliance.SubjectFromPortfolio(projected)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: %v", domain.ErrUnbalancedPlan, err)
		}
		verdict, err := p.engine.Evaluate(subject)
		if err != nil {
			return Plan{}, fmt.Errorf("failed to evaluate projected portfolio: %w", err)
		}

		if verdict.Passed {
			return p.finalize(report, portfolio, shifts, subject.Vector, verdict, iteration)
		}

		conflict := &ConflictError{ClientID: report.ClientID, Iterations: iteration, Verdict: verdict}
		if iteration >= p.policy.MaxResolutionIterations {
			return Plan{}, conflict
		}
		next, ok := p.resolve(shifts, verdict, minWeight)
		if !ok {
			return Plan{}, conflict
		}
		shifts = next
	}
}

// targetShifts moves every class to its target. A sell never takes a
// class below target minus the overshoot guard.
func (p *Planner) targetShifts(report drift.Report) domain.Vector {
	shifts := make(domain.Vector)
	for _, class := range report.Deltas.Classes() {
		current := report.Current.Get(class)
		target := report.Target.Get(class)
		delta := current - target

		switch {
		case delta > 0:
			floor := math.Max(target-p.policy.OvershootGuard, 0)
			shifts[class] = -math.Min(delta, current-floor)
		case delta < 0:
			shifts[class] = -delta
		}
	}
	balance(shifts)
	return shifts
}

// resolve scales back the buy that contributes most to a Hard failure.
// Without an offending buy the largest buy is scaled instead. It reports
// false when there is nothing left to scale.
func (p *Planner) resolve(shifts domain.Vector, verdict compliance.Verdict, minWeight float64) (domain.Vector, bool) {
	var pick domain.AssetClass
	worst := -1.0
	rule := ""
	for _, result := range verdict.Failures() {
		for _, o := range result.Offenders {
			if shifts[o.Class] > 0 && o.Excess() > worst {
				pick, worst, rule = o.Class, o.Excess(), result.Rule
			}
		}
	}
	if worst < 0 {
		largest := 0.0
		for _, class := range shifts.Classes() {
			if shifts[class] > largest {
				pick, largest = class, shifts[class]
			}
		}
		if largest == 0 {
			return nil, false
		}
	}

	next := shifts.Clone()
	next[pick] *= p.policy.ResolutionScaleFactor
	balance(next)
	next = applyMateriality(next, minWeight)

	p.log.Debug().
		Str("class", pick.String()).
		Str("rule", rule).
		Float64("excess", worst).
		Int("remaining_trades", len(next)).
		Msg("Scaled back buy to resolve compliance failure")

	return next, len(next) > 0
}

func (p *Planner) finalize(
	report drift.Report,
	portfolio domain.Portfolio,
	shifts domain.Vector,
	endState domain.Vector,
	verdict compliance.Verdict,
	iterations int,
) (Plan, error) {
	if sum := shifts.Sum(); math.Abs(sum) > balanceTolerance {
		return Plan{}, fmt.Errorf("%w: trades sum to %.12f", domain.ErrUnbalancedPlan, sum)
	}
	if err := endState.Validate(); err != nil {
		return Plan{}, fmt.Errorf("%w: end state: %v", domain.ErrUnbalancedPlan, err)
	}

	total := portfolio.TotalValue()
	trades := make([]Trade, 0, len(shifts))
	for _, side := range []domain.TradeSide{domain.Sell, domain.Buy} {
		for _, class := range shifts.Classes() {
			shift := shifts[class]
			if (side == domain.Sell) != (shift < 0) {
				continue
			}
			weight := math.Abs(shift)
			trades = append(trades, Trade{
				Class:    class,
				Side:     side,
				Weight:   weight,
				Notional: total.Mul(decimal.NewFromFloat(weight)).Round(2),
			})
		}
	}

	plan := Plan{
		ID:         p.newID(),
		ClientID:   report.ClientID,
		CreatedAt:  p.now(),
		Trades:     trades,
		Report:     report,
		EndState:   endState,
		Verdict:    verdict,
		Iterations: iterations,
	}

	p.log.Info().
		Str("client_id", plan.ClientID).
		Str("plan_id", plan.ID).
		Int("trades", len(trades)).
		Float64("turnover", plan.Turnover()).
		Int("iterations", iterations).
		Msg("Rebalancing plan proposed")

	return plan, nil
}
