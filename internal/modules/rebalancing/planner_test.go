package rebalancing

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/compliance"
	"github.com/aristath/advisor/internal/modules/drift"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var moderateTarget = domain.Vector{
	domain.EquityDomestic: 0.55,
	domain.Debt:           0.35,
	domain.Gold:           0.10,
}

// buildPortfolio creates a moderate client with one holding per value in
// each class. Equity holdings get distinct sectors.
func buildPortfolio(equity, debt, gold []int64) domain.Portfolio {
	p := domain.Portfolio{ClientID: "client-1", Category: domain.Moderate, Subscore: 50, Target: moderateTarget.Clone()}
	add := func(prefix string, class domain.AssetClass, values []int64, sectors bool) {
		for i, v := range values {
			h := domain.Holding{
				ID:          fmt.Sprintf("%s%d", prefix, i+1),
				Class:       class,
				MarketValue: decimal.NewFromInt(v),
				Quantity:    decimal.NewFromInt(10),
			}
			if sectors {
				h.Sector = fmt.Sprintf("sector-%d", i+1)
			}
			p.Holdings = append(p.Holdings, h)
		}
	}
	add("EQ", domain.EquityDomestic, equity, true)
	add("BD", domain.Debt, debt, false)
	add("GLD", domain.Gold, gold, false)
	return p
}

// driftedPortfolio is 45/45/10 against a 55/35/10 target, worth 10,000
func driftedPortfolio() domain.Portfolio {
	return buildPortfolio(
		[]int64{500, 500, 500, 500, 500, 500, 500, 500, 500},
		[]int64{500, 500, 500, 500, 500, 500, 500, 500, 500},
		[]int64{500, 500},
	)
}

func newTestPlanner(policy config.Policy) *Planner {
	planner := NewPlanner(policy, compliance.NewEngine(policy, zerolog.Nop()), zerolog.Nop())
	planner.newID = func() string { return "plan-1" }
	planner.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return planner
}

func detect(t *testing.T, policy config.Policy, p domain.Portfolio, signal domain.MarketSignal) drift.Report {
	t.Helper()
	report, err := drift.NewDetector(policy, nil, zerolog.Nop()).Detect(p, signal)
	require.NoError(t, err)
	return report
}

func assertBalanced(t *testing.T, plan Plan) {
	t.Helper()
	assert.LessOrEqual(t, math.Abs(plan.Shifts().Sum()), balanceTolerance)
	require.NoError(t, plan.EndState.Validate())
	assert.True(t, plan.Verdict.Passed, plan.Verdict.Summary())
}

func TestPlanNoActionWhenNotTriggered(t *testing.T) {
	policy := config.DefaultPolicy()
	p := driftedPortfolio()
	p.Target = domain.Vector{domain.EquityDomestic: 0.46, domain.Debt: 0.44, domain.Gold: 0.10}

	report := detect(t, policy, p, domain.SignalNormal)
	require.False(t, report.Trigger)

	_, err := newTestPlanner(policy).Plan(report, p)
	assert.ErrorIs(t, err, domain.ErrNoActionNeeded)
}

func TestPlanRestoresTarget(t *testing.T) {
	policy := config.DefaultPolicy()
	p := driftedPortfolio()
	report := detect(t, policy, p, domain.SignalNormal)

	plan, err := newTestPlanner(policy).Plan(report, p)
	require.NoError(t, err)
	assertBalanced(t, plan)

	assert.Equal(t, "plan-1", plan.ID)
	assert.Equal(t, "client-1", plan.ClientID)
	assert.Equal(t, 0, plan.Iterations)
	assert.Equal(t, report, plan.Report)

	require.Len(t, plan.Trades, 2)
	assert.Equal(t, domain.Debt, plan.Trades[0].Class)
	assert.Equal(t, domain.Sell, plan.Trades[0].Side)
	assert.InDelta(t, 0.10, plan.Trades[0].Weight, 1e-9)
	assert.Equal(t, domain.EquityDomestic, plan.Trades[1].Class)
	assert.Equal(t, domain.Buy, plan.Trades[1].Side)
	assert.InDelta(t, 0.10, plan.Trades[1].Weight, 1e-9)
	assert.Equal(t, "1000.00", plan.Trades[1].Notional.StringFixed(2))

	for class, target := range moderateTarget {
		assert.InDelta(t, target, plan.EndState.Get(class), 1e-6, class.String())
		assert.GreaterOrEqual(t, plan.EndState.Get(class), target-policy.OvershootGuard-1e-6, "%s sold below target", class)
	}

	assert.InDelta(t, 0.20, plan.Turnover(), 1e-9)
	assert.Equal(t, "2000.00", plan.TradedNotional().StringFixed(2))
}

func TestPlanMateriality(t *testing.T) {
	policy := config.DefaultPolicy()

	t.Run("signal trigger with immaterial drift", func(t *testing.T) {
		p := driftedPortfolio()
		p.Target = domain.Vector{domain.EquityDomestic: 0.453, domain.Debt: 0.447, domain.Gold: 0.10}
		report := detect(t, policy, p, domain.SignalVolatilitySpike)
		require.True(t, report.Trigger)

		_, err := newTestPlanner(policy).Plan(report, p)
		assert.ErrorIs(t, err, domain.ErrNoActionNeeded)
	})

	t.Run("immaterial trade dropped and sells rebalanced", func(t *testing.T) {
		p := driftedPortfolio()
		p.Target = domain.Vector{domain.EquityDomestic: 0.55, domain.Debt: 0.347, domain.Gold: 0.103}
		report := detect(t, policy, p, domain.SignalNormal)

		plan, err := newTestPlanner(policy).Plan(report, p)
		require.NoError(t, err)
		assertBalanced(t, plan)

		shifts := plan.Shifts()
		assert.NotContains(t, shifts, domain.Gold)
		assert.InDelta(t, 0.10, shifts[domain.EquityDomestic], 1e-9)
		assert.InDelta(t, -0.10, shifts[domain.Debt], 1e-9)
	})

	t.Run("absolute trade floor from fixed costs", func(t *testing.T) {
		costly := config.DefaultPolicy()
		costly.TransactionCostFixed = 2
		planner := newTestPlanner(costly)
		assert.InDelta(t, 250.0, planner.MinTradeAmount(), 1e-9)

		// 2% shifts on 10,000 are 200, under the 250 floor
		p := driftedPortfolio()
		p.Target = domain.Vector{domain.EquityDomestic: 0.47, domain.Debt: 0.43, domain.Gold: 0.10}
		report := detect(t, costly, p, domain.SignalSectorRotation)

		_, err := planner.Plan(report, p)
		assert.ErrorIs(t, err, domain.ErrNoActionNeeded)
	})

	t.Run("no absolute floor without fixed costs", func(t *testing.T) {
		assert.Equal(t, 0.0, newTestPlanner(policy).MinTradeAmount())
	})
}

func TestPlanResolvesComplianceConflict(t *testing.T) {
	policy := config.DefaultPolicy()
	// five equity holdings at 9%: buying the full 10% pushes each to 11%
	p := buildPortfolio(
		[]int64{900, 900, 900, 900, 900},
		[]int64{900, 900, 900, 900, 900},
		[]int64{500, 500},
	)
	report := detect(t, policy, p, domain.SignalNormal)

	plan, err := newTestPlanner(policy).Plan(report, p)
	require.NoError(t, err)
	assertBalanced(t, plan)

	assert.Equal(t, 1, plan.Iterations)
	shifts := plan.Shifts()
	assert.InDelta(t, 0.05, shifts[domain.EquityDomestic], 1e-9)
	assert.InDelta(t, -0.05, shifts[domain.Debt], 1e-9)

	single, ok := plan.Verdict.Result(compliance.RuleSingleAsset)
	require.True(t, ok)
	assert.True(t, single.Passed)
}

func TestPlanUnresolvableConflict(t *testing.T) {
	policy := config.DefaultPolicy()
	// one equity holding already at 45%: every equity buy makes it worse
	p := buildPortfolio(
		[]int64{4500},
		[]int64{900, 900, 900, 900, 900},
		[]int64{500, 500},
	)
	report := detect(t, policy, p, domain.SignalNormal)

	_, err := newTestPlanner(policy).Plan(report, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnresolvableComplianceConflict)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.False(t, conflict.Verdict.Passed)
	assert.LessOrEqual(t, conflict.Iterations, policy.MaxResolutionIterations)

	failed := make([]string, 0)
	for _, r := range conflict.Verdict.Failures() {
		failed = append(failed, r.Rule)
	}
	assert.Contains(t, failed, compliance.RuleSingleAsset)
	assert.Contains(t, err.Error(), compliance.RuleSingleAsset)
}

func TestPlanIterationLimit(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.MaxResolutionIterations = 1
	policy.ResolutionScaleFactor = 0.9

	p := buildPortfolio(
		[]int64{900, 900, 900, 900, 900},
		[]int64{900, 900, 900, 900, 900},
		[]int64{500, 500},
	)
	report := detect(t, policy, p, domain.SignalNormal)

	_, err := newTestPlanner(policy).Plan(report, p)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, 1, conflict.Iterations)
}

func TestPlanRejectsStaleReport(t *testing.T) {
	policy := config.DefaultPolicy()
	p := driftedPortfolio()
	report := detect(t, policy, p, domain.SignalNormal)

	moved := p.Clone()
	moved.Holdings[0].MarketValue = decimal.NewFromInt(1500)

	_, err := newTestPlanner(policy).Plan(report, moved)
	assert.ErrorIs(t, err, domain.ErrStalePlan)
}

func TestPlanNewAssetClass(t *testing.T) {
	policy := config.DefaultPolicy()
	p := driftedPortfolio()
	p.Target = domain.Vector{
		domain.EquityDomestic:      0.50,
		domain.Debt:                0.35,
		domain.Gold:                0.07,
		domain.EquityInternational: 0.08,
	}
	report := detect(t, policy, p, domain.SignalNormal)

	plan, err := newTestPlanner(policy).Plan(report, p)
	require.NoError(t, err)
	assertBalanced(t, plan)

	assert.InDelta(t, 0.08, plan.EndState.Get(domain.EquityInternational), 1e-6)
	assert.InDelta(t, 0.07, plan.EndState.Get(domain.Gold), 1e-6)
}

func TestPlanCapitalConservation(t *testing.T) {
	policy := config.DefaultPolicy()
	targets := []domain.Vector{
		{domain.EquityDomestic: 0.55, domain.Debt: 0.35, domain.Gold: 0.10},
		{domain.EquityDomestic: 0.52, domain.Debt: 0.38, domain.Gold: 0.10},
		{domain.EquityDomestic: 0.50, domain.Debt: 0.40, domain.Gold: 0.05, domain.EquityInternational: 0.05},
		{domain.EquityDomestic: 0.58, domain.Debt: 0.32, domain.Gold: 0.05, domain.EquityInternational: 0.05},
	}

	for i, target := range targets {
		t.Run(fmt.Sprintf("target %d", i), func(t *testing.T) {
			p := driftedPortfolio()
			p.Target = target
			report := detect(t, policy, p, domain.SignalNormal)

			plan, err := newTestPlanner(policy).Plan(report, p)
			require.NoError(t, err)
			assertBalanced(t, plan)

			buys, sells := decimal.Zero, decimal.Zero
			for _, trade := range plan.Trades {
				assert.Greater(t, trade.Weight, 0.0)
				if trade.Side == domain.Buy {
					buys = buys.Add(trade.Notional)
				} else {
					sells = sells.Add(trade.Notional)
				}
			}
			assert.True(t, buys.Sub(sells).Abs().LessThanOrEqual(decimal.NewFromFloat(0.05)),
				"buys %s sells %s", buys, sells)
		})
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	policy := config.DefaultPolicy()
	p := driftedPortfolio()
	report := detect(t, policy, p, domain.SignalNormal)
	planner := newTestPlanner(policy)

	first, err := planner.Plan(report, p)
	require.NoError(t, err)
	second, err := planner.Plan(report, p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestConflictErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("review: %w", &ConflictError{ClientID: "c"})
	assert.True(t, errors.Is(err, domain.ErrUnresolvableComplianceConflict))
}
