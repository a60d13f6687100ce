package advisory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aristath/advisor/internal/audit"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/events"
	"github.com/aristath/advisor/internal/metrics"
	"github.com/aristath/advisor/internal/modules/portfolio"
	"github.com/aristath/advisor/internal/modules/rebalancing"
	testutil "github.com/aristath/advisor/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service *Service
	store   *audit.MemoryStore

	mu     sync.Mutex
	events map[events.EventType]int
}

func (f *fixture) count(t events.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[t]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  audit.NewMemoryStore(),
		events: make(map[events.EventType]int),
	}

	bus := events.NewBus()
	for _, eventType := range events.AllTypes() {
		bus.Subscribe(eventType, func(e *events.Event) {
			f.mu.Lock()
			f.events[e.Type]++
			f.mu.Unlock()
		})
	}

	f.service = NewService(
		config.DefaultPolicy(),
		portfolio.NewRegistry(nil, zerolog.Nop()),
		audit.NewRecorder(f.store, zerolog.Nop()),
		events.NewManager(bus, zerolog.Nop()),
		metrics.New(),
		zerolog.Nop(),
	)
	return f
}

func concentratedPortfolio(clientID string) domain.Portfolio {
	p := testutil.NewDriftedPortfolio(clientID)
	var holdings []domain.Holding
	holdings = append(holdings, testutil.NewHolding("EQ1", domain.EquityDomestic, "Technology", 4500))
	for _, h := range p.Holdings {
		if h.Class != domain.EquityDomestic {
			holdings = append(holdings, h)
		}
	}
	p.Holdings = holdings
	return p
}

func TestOnboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subscore := 50.0
	category := domain.Moderate

	result, err := f.service.Onboard(ctx, OnboardRequest{
		ClientID:     "client-1",
		RiskCategory: &category,
		Subscore:     &subscore,
		Holdings:     testutil.NewDriftedPortfolio("client-1").Holdings,
	})
	require.NoError(t, err)

	target := result.Portfolio.Target
	assert.InDelta(t, 0.55, target[domain.EquityDomestic], 1e-9)
	assert.InDelta(t, 0.35, target[domain.Debt], 1e-9)
	assert.InDelta(t, 0.05, target[domain.Gold], 1e-9)
	assert.InDelta(t, 0.05, target[domain.EquityInternational], 1e-9)
	assert.True(t, result.Verdict.Passed, result.Verdict.Summary())
	assert.Greater(t, result.Metrics.ExpectedReturn, 0.0)

	stored, err := f.service.Get("client-1")
	require.NoError(t, err)
	assert.Equal(t, target, stored.Target)
	assert.Len(t, stored.Holdings, 20)

	history, err := f.service.History(ctx, "client-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, audit.KindOnboarding, history[0].Kind)
	assert.Equal(t, 1, f.count(events.ClientOnboarded))
}

func TestOnboardFromRawScore(t *testing.T) {
	f := newFixture(t)
	score := 90.0

	result, err := f.service.Onboard(context.Background(), OnboardRequest{ClientID: "client-1", Score: &score})
	require.NoError(t, err)
	assert.Equal(t, domain.Aggressive, result.Portfolio.Category)
	assert.NotNil(t, result.Portfolio.Holdings)
}

func TestOnboardRejectsBadInput(t *testing.T) {
	bad := 140.0
	moderate := domain.Moderate

	tests := []struct {
		name string
		req  OnboardRequest
		err  error
	}{
		{name: "no risk profile", req: OnboardRequest{ClientID: "c"}, err: domain.ErrInvalidCategory},
		{name: "score out of range", req: OnboardRequest{ClientID: "c", Score: &bad}, err: domain.ErrInvalidSubscore},
		{name: "subscore out of range", req: OnboardRequest{ClientID: "c", RiskCategory: &moderate, Subscore: &bad}, err: domain.ErrInvalidSubscore},
		{name: "blank client", req: OnboardRequest{RiskCategory: &moderate}, err: domain.ErrInvalidClientID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.Onboard(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 0, f.store.Len())
		})
	}
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.Registry().Upsert(concentratedPortfolio("client-1")))

	verdict, err := f.service.Evaluate(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, verdict.Passed)
	assert.NotEmpty(t, verdict.Failures())

	history, err := f.service.History(ctx, "client-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, audit.KindVerdict, history[0].Kind)

	var payload audit.VerdictPayload
	require.NoError(t, history[0].Decode(&payload))
	assert.False(t, payload.Passed)
	assert.Equal(t, "moderate", payload.RiskCategory)
	assert.InDelta(t, 0.45, payload.Vector["equity_domestic"], 1e-9)
	assert.Equal(t, 1, f.count(events.VerdictRecorded))

	_, err = f.service.Evaluate(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestReviewNoAction(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.Registry().Upsert(testutil.NewBalancedPortfolio("client-1")))

	result, err := f.service.Review(context.Background(), "client-1", domain.SignalNormal)
	require.NoError(t, err)
	assert.False(t, result.ActionNeeded)
	assert.NotEmpty(t, result.Reason)
	assert.Nil(t, result.Plan)
	assert.Equal(t, 0, f.count(events.DriftDetected))
	_, ok := f.service.PendingPlan("client-1")
	assert.False(t, ok)
}

func TestReviewAndAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.Registry().Upsert(testutil.NewDriftedPortfolio("client-1")))

	result, err := f.service.Review(ctx, "client-1", domain.SignalNormal)
	require.NoError(t, err)
	require.True(t, result.ActionNeeded)
	require.NotNil(t, result.Plan)
	require.NotNil(t, result.Simulation)
	assert.True(t, result.Simulation.Verdict.Passed)
	assert.Equal(t, 1, f.count(events.DriftDetected))
	assert.Equal(t, 1, f.count(events.PlanProposed))

	pending, ok := f.service.PendingPlan("client-1")
	require.True(t, ok)
	assert.Equal(t, result.Plan.ID, pending.ID)

	accepted, err := f.service.Accept(ctx, "client-1", result.Plan.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Plan.ID, accepted.Plan.ID)
	assert.Equal(t, 1, f.count(events.PlanAccepted))

	current, err := accepted.Portfolio.CurrentVector()
	require.NoError(t, err)
	assert.InDelta(t, 0.55, current[domain.EquityDomestic], 1e-6)
	assert.InDelta(t, 0.35, current[domain.Debt], 1e-6)
	assert.True(t, accepted.Portfolio.TotalValue().Equal(decimal.NewFromInt(10000)))

	_, ok = f.service.PendingPlan("client-1")
	assert.False(t, ok)

	history, err := f.service.History(ctx, "client-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, audit.KindPlanAccepted, history[0].Kind)
	assert.Equal(t, audit.KindPlanProposed, history[1].Kind)

	var payload audit.PlanPayload
	require.NoError(t, history[0].Decode(&payload))
	assert.Equal(t, result.Plan.ID, payload.PlanID)
	assert.Len(t, payload.Trades, len(result.Plan.Trades))

	again, err := f.service.Review(ctx, "client-1", domain.SignalNormal)
	require.NoError(t, err)
	assert.False(t, again.ActionNeeded)
}

func TestReviewConflict(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.Registry().Upsert(concentratedPortfolio("client-1")))

	_, err := f.service.Review(context.Background(), "client-1", domain.SignalNormal)

	var conflict *rebalancing.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, domain.ErrUnresolvableComplianceConflict)
	assert.NotEmpty(t, conflict.Verdict.Failures())
	assert.Equal(t, 1, f.count(events.VerdictRecorded))
	_, ok := f.service.PendingPlan("client-1")
	assert.False(t, ok)
}

func TestAcceptRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown plan", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.Registry().Upsert(testutil.NewDriftedPortfolio("client-1")))

		_, err := f.service.Accept(ctx, "client-1", "nope")
		assert.ErrorIs(t, err, domain.ErrPlanNotFound)
	})

	t.Run("stale plan is discarded", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.Registry().Upsert(testutil.NewDriftedPortfolio("client-1")))
		result, err := f.service.Review(ctx, "client-1", domain.SignalNormal)
		require.NoError(t, err)
		require.NotNil(t, result.Plan)

		_, err = f.service.Registry().Update("client-1", func(p *domain.Portfolio) error {
			p.Holdings[0].MarketValue = decimal.NewFromInt(2500)
			return nil
		})
		require.NoError(t, err)

		_, err = f.service.Accept(ctx, "client-1", result.Plan.ID)
		assert.ErrorIs(t, err, domain.ErrStalePlan)
		_, ok := f.service.PendingPlan("client-1")
		assert.False(t, ok)
		assert.Equal(t, 0, f.count(events.PlanAccepted))
	})

	t.Run("holdings update supersedes plan", func(t *testing.T) {
		f := newFixture(t)
		p := testutil.NewDriftedPortfolio("client-1")
		require.NoError(t, f.service.Registry().Upsert(p))
		result, err := f.service.Review(ctx, "client-1", domain.SignalNormal)
		require.NoError(t, err)

		_, err = f.service.UpdateHoldings(ctx, "client-1", p.Holdings)
		require.NoError(t, err)
		assert.Equal(t, 1, f.count(events.PortfolioUpdated))

		_, err = f.service.Accept(ctx, "client-1", result.Plan.ID)
		assert.ErrorIs(t, err, domain.ErrPlanNotFound)
	})

	t.Run("re-onboarding supersedes plan", func(t *testing.T) {
		f := newFixture(t)
		p := testutil.NewDriftedPortfolio("client-1")
		require.NoError(t, f.service.Registry().Upsert(p))
		result, err := f.service.Review(ctx, "client-1", domain.SignalNormal)
		require.NoError(t, err)
		require.NotNil(t, result.Plan)

		category := domain.Moderate
		subscore := 0.0
		onboarded, err := f.service.Onboard(ctx, OnboardRequest{
			ClientID:     "client-1",
			RiskCategory: &category,
			Subscore:     &subscore,
			Holdings:     p.Holdings,
		})
		require.NoError(t, err)
		require.NotEqual(t, p.Target, onboarded.Portfolio.Target)

		_, ok := f.service.PendingPlan("client-1")
		assert.False(t, ok)

		_, err = f.service.Accept(ctx, "client-1", result.Plan.ID)
		assert.ErrorIs(t, err, domain.ErrPlanNotFound)

		snap, err := f.service.Get("client-1")
		require.NoError(t, err)
		current, err := snap.CurrentVector()
		require.NoError(t, err)
		assert.InDelta(t, 0.45, current[domain.EquityDomestic], 1e-9)
		assert.Equal(t, 0, f.count(events.PlanAccepted))
	})

	t.Run("target change makes plan stale", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.Registry().Upsert(testutil.NewDriftedPortfolio("client-1")))
		result, err := f.service.Review(ctx, "client-1", domain.SignalNormal)
		require.NoError(t, err)
		require.NotNil(t, result.Plan)

		_, err = f.service.Registry().Update("client-1", func(p *domain.Portfolio) error {
			p.Target = domain.Vector{domain.EquityDomestic: 0.45, domain.Debt: 0.45, domain.Gold: 0.10}
			return nil
		})
		require.NoError(t, err)

		_, err = f.service.Accept(ctx, "client-1", result.Plan.ID)
		assert.ErrorIs(t, err, domain.ErrStalePlan)
		_, ok := f.service.PendingPlan("client-1")
		assert.False(t, ok)

		snap, err := f.service.Get("client-1")
		require.NoError(t, err)
		current, err := snap.CurrentVector()
		require.NoError(t, err)
		assert.InDelta(t, 0.45, current[domain.EquityDomestic], 1e-9)
	})
}

func TestSchedule(t *testing.T) {
	f := newFixture(t)
	f.service.now = func() time.Time { return time.Date(2026, 2, 15, 12, 0, 0, 0, time.Local) }
	require.NoError(t, f.service.Registry().Upsert(testutil.NewDriftedPortfolio("client-1")))

	schedule, err := f.service.Schedule("client-1", "quarterly")
	require.NoError(t, err)
	require.Len(t, schedule, 4)

	wantMonths := []time.Month{time.April, time.July, time.October, time.January}
	for i, s := range schedule {
		assert.Equal(t, wantMonths[i], s.Date.Month())
		assert.Equal(t, 1, s.Date.Day())
		assert.Equal(t, 9, s.Date.Hour())
		assert.GreaterOrEqual(t, s.EstimatedTrades, 10)
		assert.True(t, s.EstimatedCost.IsPositive())
	}
	assert.Equal(t, 2027, schedule[3].Date.Year())

	_, err = f.service.Schedule("client-1", "fortnightly")
	assert.ErrorIs(t, err, domain.ErrUnknownEnum)
	_, err = f.service.Schedule("missing", "monthly")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestScheduleEmptyPortfolio(t *testing.T) {
	f := newFixture(t)
	p := testutil.NewDriftedPortfolio("client-1")
	p.Holdings = []domain.Holding{}
	require.NoError(t, f.service.Registry().Upsert(p))

	schedule, err := f.service.Schedule("client-1", "annual")
	require.NoError(t, err)
	require.Len(t, schedule, 4)
	assert.Equal(t, 0, schedule[0].EstimatedTrades)
	assert.True(t, schedule[0].EstimatedCost.IsZero())
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.Registry().Upsert(testutil.NewDriftedPortfolio("client-1")))

	require.NoError(t, f.service.Delete("client-1"))
	_, err := f.service.Get("client-1")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}
