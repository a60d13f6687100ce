// Package drift compares a portfolio's live allocation against its target.
package drift

import (
	"fmt"
	"time"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

// TriggerReason records why a report asks for rebalancing
type TriggerReason string

const (
	ReasonNone            TriggerReason = "none"
	ReasonThreshold       TriggerReason = "threshold"
	ReasonMarketSignal    TriggerReason = "market_signal"
	ReasonThresholdSignal TriggerReason = "threshold_and_market_signal"
)

// TargetProvider recomputes a target when a portfolio carries none
type TargetProvider interface {
	TargetFor(category domain.RiskCategory, subscore float64) (domain.Vector, error)
}

// Report is a snapshot comparison of current and target weights. It is
// created fresh on every evaluation and never treated as authoritative state.
type Report struct {
	ClientID         string              `json:"client_id"`
	Category         domain.RiskCategory `json:"risk_category"`
	Subscore         float64             `json:"subscore"`
	Current          domain.Vector       `json:"current"`
	Target           domain.Vector       `json:"target"`
	Deltas           domain.Vector       `json:"deltas"`
	Magnitude        float64             `json:"magnitude"`
	MaxDriftClass    domain.AssetClass   `json:"max_drift_class,omitempty"`
	Dispersion       float64             `json:"dispersion"`
	Threshold        float64             `json:"threshold"`
	Signal           domain.MarketSignal `json:"signal"`
	Trigger          bool                `json:"trigger"`
	Reason           TriggerReason       `json:"reason"`
	TargetRecomputed bool                `json:"target_recomputed"`
	PortfolioValue   decimal.Decimal     `json:"portfolio_value"`
	EvaluatedAt      time.Time           `json:"evaluated_at"`
}

// Detector produces drift reports
type Detector struct {
	threshold float64
	targets   TargetProvider
	now       func() time.Time
	log       zerolog.Logger
}

// NewDetector creates a new drift detector. targets may be nil when every
// portfolio is expected to carry its own target.
func NewDetector(policy config.Policy, targets TargetProvider, log zerolog.Logger) *Detector {
	return &Detector{
		threshold: policy.DriftThreshold,
		targets:   targets,
		now:       time.Now,
		log:       log.With().Str("component", "drift_detector").Logger(),
	}
}

// Detect compares current weights against the target. Magnitude is the
// largest absolute per-class delta, so a compensated pair of large deltas
// still counts. The report triggers when magnitude exceeds the threshold or
// when the market signal requests a review on its own.
func (d *Detector) Detect(p domain.Portfolio, signal domain.MarketSignal) (Report, error) {
	if !signal.Valid() {
		return Report{}, fmt.Errorf("%w: market signal %d", domain.ErrUnknownEnum, signal)
	}

	current, err := p.CurrentVector()
	if err != nil {
		return Report{}, err
	}

	target, recomputed, err := d.resolveTarget(p)
	if err != nil {
		return Report{}, err
	}

	deltas := current.Delta(target)
	class, magnitude := deltas.MaxAbs()

	report := Report{
		ClientID:         p.ClientID,
		Category:         p.Category,
		Subscore:         p.Subscore,
		Current:          current,
		Target:           target,
		Deltas:           deltas,
		Magnitude:        magnitude,
		MaxDriftClass:    class,
		Dispersion:       floats.Norm(deltas.Slice(), 2),
		Threshold:        d.threshold,
		Signal:           signal,
		TargetRecomputed: recomputed,
		PortfolioValue:   p.TotalValue(),
		EvaluatedAt:      d.now(),
	}

	overThreshold := magnitude > d.threshold
	switch {
	case overThreshold && signal.RequestsReview():
		report.Reason = ReasonThresholdSignal
	case overThreshold:
		report.Reason = ReasonThreshold
	case signal.RequestsReview():
		report.Reason = ReasonMarketSignal
	default:
		report.Reason = ReasonNone
	}
	report.Trigger = report.Reason != ReasonNone

	d.log.Debug().
		Str("client_id", p.ClientID).
		Float64("magnitude", magnitude).
		Str("max_drift_class", class.String()).
		Str("signal", signal.String()).
		Bool("trigger", report.Trigger).
		Msg("Drift evaluated")

	return report, nil
}

func (d *Detector) resolveTarget(p domain.Portfolio) (domain.Vector, bool, error) {
	if p.HasTarget() {
		if err := p.Target.Validate(); err != nil {
			return nil, false, fmt.Errorf("target for client %s: %w", p.ClientID, err)
		}
		return p.Target.Clone(), false, nil
	}
	if d.targets == nil {
		return nil, false, fmt.Errorf("%w: client %s has no target and no target provider is configured", domain.ErrInvalidVector, p.ClientID)
	}

	target, err := d.targets.TargetFor(p.Category, p.Subscore)
	if err != nil {
		return nil, false, fmt.Errorf("failed to recompute target for client %s: %w", p.ClientID, err)
	}
	return target, true, nil
}
