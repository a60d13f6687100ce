package advisory

import (
	"fmt"
	"time"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const (
	scheduledDates = 4

	// estimated trades grow with portfolio volatility relative to this level (percent)
	referenceVolatility = 15.0
	baseCostRate        = 0.001
	equityCostPremium   = 0.0005
)

var scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ScheduledReview is one upcoming periodic rebalancing with its estimated
// trade count and cost
type ScheduledReview struct {
	Date            time.Time       `json:"date"`
	Frequency       string          `json:"frequency"`
	EstimatedTrades int             `json:"estimated_trades"`
	EstimatedCost   decimal.Decimal `json:"estimated_cost"`
}

// Schedule lists the next periodic rebalancing dates for the client.
// Estimates scale with holding count, portfolio volatility and equity weight.
func (s *Service) Schedule(clientID, frequency string) ([]ScheduledReview, error) {
	spec, ok := config.ReviewFrequencies[frequency]
	if !ok {
		return nil, fmt.Errorf("%w: review frequency %q", domain.ErrUnknownEnum, frequency)
	}
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule for %s: %w", frequency, err)
	}

	p, err := s.registry.Snapshot(clientID)
	if err != nil {
		return nil, err
	}
	trades, cost, err := s.estimate(p)
	if err != nil {
		return nil, err
	}

	out := make([]ScheduledReview, 0, scheduledDates)
	next := s.now()
	for i := 0; i < scheduledDates; i++ {
		next = sched.Next(next)
		out = append(out, ScheduledReview{
			Date:            next,
			Frequency:       frequency,
			EstimatedTrades: trades,
			EstimatedCost:   cost,
		})
	}
	return out, nil
}

func (s *Service) estimate(p domain.Portfolio) (int, decimal.Decimal, error) {
	n := len(p.Holdings)
	total := p.TotalValue()
	if n == 0 || !total.IsPositive() {
		return 0, decimal.Zero, nil
	}

	current, err := p.CurrentVector()
	if err != nil {
		return 0, decimal.Zero, err
	}
	m, err := s.model.Metrics(current)
	if err != nil {
		return 0, decimal.Zero, err
	}

	base := n / 2
	if base < 2 {
		base = 2
	}
	trades := int(float64(base) * (1 + m.Volatility/referenceVolatility*0.5))

	equity := current.Get(domain.EquityDomestic) + current.Get(domain.EquityInternational)
	rate := baseCostRate + equity*equityCostPremium
	cost := total.
		Mul(decimal.NewFromFloat(rate)).
		Mul(decimal.NewFromInt(int64(trades))).
		Div(decimal.NewFromInt(int64(n))).
		Round(2)

	return trades, cost, nil
}
