// Package allocation maps a client's risk classification onto a target
// allocation vector and reports class-level allocation breakdowns.
package allocation

import (
	"fmt"
	"math"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/rs/zerolog"
)

// Model produces target allocations from the configured risk bands.
// It holds no mutable state; one Model may be shared across goroutines.
type Model struct {
	policy       config.Policy
	correlations map[[2]domain.AssetClass]float64
	log          zerolog.Logger
}

// NewModel creates a new allocation model for a policy
func NewModel(policy config.Policy, log zerolog.Logger) *Model {
	correlations := make(map[[2]domain.AssetClass]float64, len(policy.Correlations)*2)
	for _, c := range policy.Correlations {
		correlations[[2]domain.AssetClass{c.A, c.B}] = c.Value
		correlations[[2]domain.AssetClass{c.B, c.A}] = c.Value
	}

	return &Model{
		policy:       policy,
		correlations: correlations,
		log:          log.With().Str("component", "allocation_model").Logger(),
	}
}

// Bands returns the configured bands for a category
func (m *Model) Bands(category domain.RiskCategory) (config.Bands, error) {
	return m.policy.CategoryBands(category)
}

// TargetFor interpolates the category's bands at the given subscore.
//
// With t = subscore/100, growth classes move from min to max, defensive
// classes from max to min, and ballast classes share whatever is left in
// proportion to their band midpoints. The result is scaled proportionally
// to sum to 1 and then every weight must still sit inside its band;
// a band set that cannot satisfy that returns ErrInfeasibleBand.
func (m *Model) TargetFor(category domain.RiskCategory, subscore float64) (domain.Vector, error) {
	bands, err := m.policy.CategoryBands(category)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateSubscore(subscore); err != nil {
		return nil, err
	}

	t := subscore / 100
	raw := make(domain.Vector, len(bands))
	var allocated, ballastMidpoints float64
	var ballast []domain.AssetClass

	for _, class := range domain.AssetClasses() {
		band, ok := bands[class]
		if !ok {
			continue
		}
		switch band.Role {
		case config.RoleGrowth:
			raw[class] = band.Min + t*(band.Max-band.Min)
		case config.RoleDefensive:
			raw[class] = band.Max - t*(band.Max-band.Min)
		case config.RoleBallast:
			ballast = append(ballast, class)
			ballastMidpoints += band.Midpoint()
			continue
		default:
			return nil, fmt.Errorf("%w: %s has unknown role %q", domain.ErrInfeasibleBand, class, band.Role)
		}
		allocated += raw[class]
	}

	remainder := 1 - allocated
	for _, class := range ballast {
		share := 0.0
		if ballastMidpoints > 0 {
			share = bands[class].Midpoint() / ballastMidpoints
		}
		raw[class] = remainder * share
	}

	target, err := raw.Normalized()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInfeasibleBand, category, err)
	}

	for _, class := range target.Classes() {
		band := bands[class]
		w := target[class]
		if w < band.Min-domain.WeightTolerance || w > band.Max+domain.WeightTolerance {
			return nil, fmt.Errorf("%w: %s %s weight %.6f outside [%.4f, %.4f] at subscore %.2f",
				domain.ErrInfeasibleBand, category, class, w, band.Min, band.Max, subscore)
		}
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	m.log.Debug().
		Str("category", category.String()).
		Float64("subscore", subscore).
		Interface("target", target).
		Msg("Computed target allocation")

	return target, nil
}

// TargetForGoal adjusts the subscore for the goal horizon before
// interpolating: short horizons lower it, long horizons raise it. The
// adjusted subscore is held inside [0,100]; the horizon never moves the
// target outside the category's bands.
func (m *Model) TargetForGoal(category domain.RiskCategory, subscore float64, horizon domain.GoalHorizon) (domain.Vector, error) {
	if err := domain.ValidateSubscore(subscore); err != nil {
		return nil, err
	}

	effective := subscore
	switch horizon {
	case domain.HorizonShort:
		effective -= m.policy.ShortHorizonPenalty
	case domain.HorizonLong:
		effective += m.policy.LongHorizonBonus
	}
	effective = math.Max(0, math.Min(100, effective))

	return m.TargetFor(category, effective)
}
