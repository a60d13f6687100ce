// Package market_regime derives a market signal from closing price history.
package market_regime

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
)

// tradingDaysPerYear annualises daily volatility
const tradingDaysPerYear = 252

// ErrInsufficientHistory is returned when the series is shorter than the
// longest configured window
var ErrInsufficientHistory = errors.New("insufficient price history")

// Series is a daily closing price history, oldest first. Benchmark is
// optional and must have the same length as Closes when present.
type Series struct {
	Closes    []float64 `json:"closes"`
	Benchmark []float64 `json:"benchmark,omitempty"`
}

// Assessment is the classifier output with the indicators behind it
type Assessment struct {
	Signal      domain.MarketSignal `json:"signal"`
	Volatility  float64             `json:"volatility_pct"`
	Correlation *float64            `json:"correlation,omitempty"`
	FastSMA     float64             `json:"fast_sma"`
	SlowSMA     float64             `json:"slow_sma"`
	Momentum    float64             `json:"momentum"`
	Crossover   bool                `json:"crossover"`
	AssessedAt  time.Time           `json:"assessed_at"`
}

// Classifier maps price history onto a MarketSignal. Volatility spikes take
// precedence over correlation breakdowns, which take precedence over
// sector rotation.
type Classifier struct {
	thresholds config.MarketThresholds
	log        zerolog.Logger

	mu      sync.RWMutex
	current Assessment
	now     func() time.Time
}

// NewClassifier creates a classifier with the policy's market thresholds
func NewClassifier(thresholds config.MarketThresholds, log zerolog.Logger) *Classifier {
	return &Classifier{
		thresholds: thresholds,
		now:        time.Now,
		log:        log.With().Str("component", "market_regime").Logger(),
	}
}

// Classify computes an assessment and makes it the current one
func (c *Classifier) Classify(s Series) (Assessment, error) {
	a, err := c.assess(s)
	if err != nil {
		return Assessment{}, err
	}

	c.mu.Lock()
	previous := c.current.Signal
	c.current = a
	c.mu.Unlock()

	event := c.log.Debug()
	if a.Signal != previous {
		event = c.log.Info().Str("previous", previous.String())
	}
	event.
		Str("signal", a.Signal.String()).
		Float64("volatility_pct", a.Volatility).
		Float64("momentum", a.Momentum).
		Bool("crossover", a.Crossover).
		Msg("Market regime classified")

	return a, nil
}

// Current returns the latest assessment. Before the first classification
// the signal is normal.
func (c *Classifier) Current() Assessment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Signal returns the latest signal
func (c *Classifier) Signal() domain.MarketSignal {
	return c.Current().Signal
}

func (c *Classifier) assess(s Series) (Assessment, error) {
	t := c.thresholds
	need := maxInt(t.VolatilityWindow, t.SlowPeriod, t.MomentumPeriod) + 2
	if len(s.Closes) < need {
		return Assessment{}, fmt.Errorf("%w: have %d closes, need %d", ErrInsufficientHistory, len(s.Closes), need)
	}
	for i, p := range s.Closes {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return Assessment{}, fmt.Errorf("close %d is not a positive price: %v", i, p)
		}
	}
	if len(s.Benchmark) > 0 && len(s.Benchmark) != len(s.Closes) {
		return Assessment{}, fmt.Errorf("benchmark has %d closes, series has %d", len(s.Benchmark), len(s.Closes))
	}

	returns := dailyReturns(s.Closes)
	last := len(s.Closes) - 1

	a := Assessment{AssessedAt: c.now()}

	stddev := talib.StdDev(returns, t.VolatilityWindow, 1)
	a.Volatility = stddev[len(stddev)-1] * math.Sqrt(tradingDaysPerYear) * 100

	if len(s.Benchmark) > 0 && len(returns) >= t.CorrelationWindow {
		correl := talib.Correl(returns, dailyReturns(s.Benchmark), t.CorrelationWindow)
		if v := correl[len(correl)-1]; !math.IsNaN(v) {
			a.Correlation = &v
		}
	}

	fast := talib.Sma(s.Closes, t.FastPeriod)
	slow := talib.Sma(s.Closes, t.SlowPeriod)
	a.FastSMA, a.SlowSMA = fast[last], slow[last]
	a.Crossover = (fast[last] > slow[last]) != (fast[last-1] > slow[last-1])

	roc := talib.Roc(s.Closes, t.MomentumPeriod)
	a.Momentum = roc[last] / 100

	switch {
	case a.Volatility >= t.VolatilitySpikePct:
		a.Signal = domain.SignalVolatilitySpike
	case a.Correlation != nil && *a.Correlation < t.CorrelationFloor:
		a.Signal = domain.SignalCorrelationBreakdown
	case a.Crossover && math.Abs(a.Momentum) >= t.MomentumThreshold:
		a.Signal = domain.SignalSectorRotation
	default:
		a.Signal = domain.SignalNormal
	}
	return a, nil
}

// dailyReturns returns simple returns, one shorter than prices
func dailyReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		out[i-1] = prices[i]/prices[i-1] - 1
	}
	return out
}

func maxInt(vals ...int) int {
	m := 0
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}
