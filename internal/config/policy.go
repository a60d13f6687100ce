package config

import (
	"fmt"
	"math"
	"os"

	"github.com/aristath/advisor/internal/domain"
	"gopkg.in/yaml.v3"
)

// BandRole says how a class moves as the subscore rises inside a category
type BandRole string

const (
	RoleGrowth    BandRole = "growth"    // rises with subscore
	RoleDefensive BandRole = "defensive" // falls with subscore
	RoleBallast   BandRole = "ballast"   // absorbs the remainder by band midpoint
)

// Band is the allowed weight range of one asset class inside a risk category
type Band struct {
	Min  float64  `yaml:"min" json:"min"`
	Max  float64  `yaml:"max" json:"max"`
	Role BandRole `yaml:"role" json:"role"`
}

// Midpoint returns the centre of the band
func (b Band) Midpoint() float64 {
	return (b.Min + b.Max) / 2
}

// Bands holds one category's band per asset class. Classes not declared
// have an implicit maximum of zero.
type Bands map[domain.AssetClass]Band

// Range is a closed numeric interval
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v lies in the range, with tolerance
func (r Range) Contains(v, tolerance float64) bool {
	return v >= r.Min-tolerance && v <= r.Max+tolerance
}

// ComplianceLimits are the regulatory ceilings and floors checked by the rule engine
type ComplianceLimits struct {
	MaxSingleAssetPct             float64                       `yaml:"max_single_asset_pct"`
	MaxSectorPct                  float64                       `yaml:"max_sector_pct"`
	MinHoldings                   int                           `yaml:"min_holdings"`
	DiversificationValueThreshold float64                       `yaml:"diversification_value_threshold"`
	MaxSmallCapPct                float64                       `yaml:"max_small_cap_pct"`
	MaxInternationalPct           float64                       `yaml:"max_international_pct"`
	MinLiquidPct                  float64                       `yaml:"min_liquid_pct"`
	RiskScores                    map[domain.AssetClass]float64 `yaml:"risk_scores"`
	SuitabilityBands              map[domain.RiskCategory]Range `yaml:"suitability_bands"`
}

// ClassAssumption is the long-run return and volatility assumed for a class (annual, percent)
type ClassAssumption struct {
	ExpectedReturn float64 `yaml:"expected_return" json:"expected_return"`
	Volatility     float64 `yaml:"volatility" json:"volatility"`
}

// Correlation between two asset classes. Pairs not listed are uncorrelated.
type Correlation struct {
	A     domain.AssetClass `yaml:"a"`
	B     domain.AssetClass `yaml:"b"`
	Value float64           `yaml:"value"`
}

// MarketThresholds drive the market regime classifier
type MarketThresholds struct {
	VolatilityWindow   int     `yaml:"volatility_window"`
	VolatilitySpikePct float64 `yaml:"volatility_spike_pct"` // annualised, percent
	CorrelationWindow  int     `yaml:"correlation_window"`
	CorrelationFloor   float64 `yaml:"correlation_floor"`
	FastPeriod         int     `yaml:"fast_period"`
	SlowPeriod         int     `yaml:"slow_period"`
	MomentumPeriod     int     `yaml:"momentum_period"`
	MomentumThreshold  float64 `yaml:"momentum_threshold"` // fraction, e.g. 0.03
}

// Policy is the complete regulatory and rebalancing configuration. It is
// passed by value into every engine component; nothing reads it globally.
type Policy struct {
	Bands map[domain.RiskCategory]Bands `yaml:"bands"`

	DriftThreshold float64 `yaml:"drift_threshold"`
	OvershootGuard float64 `yaml:"overshoot_guard"`
	MinTradeWeight float64 `yaml:"min_trade_weight"`

	// Absolute materiality floor derived from trading costs
	TransactionCostFixed   float64 `yaml:"transaction_cost_fixed"`
	TransactionCostPercent float64 `yaml:"transaction_cost_percent"`
	MaxCostRatio           float64 `yaml:"max_cost_ratio"`

	CostPerTurnover float64                       `yaml:"cost_per_turnover"`
	ClassCostRates  map[domain.AssetClass]float64 `yaml:"class_cost_rates"`

	MaxResolutionIterations int     `yaml:"max_resolution_iterations"`
	ResolutionScaleFactor   float64 `yaml:"resolution_scale_factor"`

	StaleWeightTolerance float64 `yaml:"stale_weight_tolerance"`
	StaleValueTolerance  float64 `yaml:"stale_value_tolerance"`

	Compliance ComplianceLimits `yaml:"compliance"`

	ShortHorizonPenalty float64 `yaml:"short_horizon_penalty"`
	LongHorizonBonus    float64 `yaml:"long_horizon_bonus"`

	ClassAssumptions map[domain.AssetClass]ClassAssumption `yaml:"class_assumptions"`
	Correlations     []Correlation                         `yaml:"correlations"`
	RiskFreeRate     float64                               `yaml:"risk_free_rate"` // percent

	Market MarketThresholds `yaml:"market"`
}

// DefaultPolicy returns the baseline regulatory regime
func DefaultPolicy() Policy {
	return Policy{
		Bands: map[domain.RiskCategory]Bands{
			domain.Conservative: {
				domain.EquityDomestic: {Min: 0.20, Max: 0.30, Role: RoleGrowth},
				domain.Debt:           {Min: 0.60, Max: 0.70, Role: RoleDefensive},
				domain.Gold:           {Min: 0.05, Max: 0.10, Role: RoleBallast},
			},
			domain.Moderate: {
				domain.EquityDomestic:      {Min: 0.50, Max: 0.60, Role: RoleGrowth},
				domain.Debt:                {Min: 0.30, Max: 0.40, Role: RoleDefensive},
				domain.Gold:                {Min: 0.05, Max: 0.10, Role: RoleBallast},
				domain.EquityInternational: {Min: 0.05, Max: 0.10, Role: RoleBallast},
			},
			domain.Aggressive: {
				domain.EquityDomestic:      {Min: 0.70, Max: 0.80, Role: RoleGrowth},
				domain.Debt:                {Min: 0.10, Max: 0.20, Role: RoleDefensive},
				domain.Gold:                {Min: 0.02, Max: 0.05, Role: RoleBallast},
				domain.EquityInternational: {Min: 0.05, Max: 0.10, Role: RoleBallast},
			},
		},
		DriftThreshold: 0.05,
		OvershootGuard: 0,
		MinTradeWeight: 0.005,

		TransactionCostFixed:   0,
		TransactionCostPercent: 0.002,
		MaxCostRatio:           0.01,

		CostPerTurnover: 0.001,
		ClassCostRates: map[domain.AssetClass]float64{
			domain.EquityDomestic:      0.001,
			domain.Debt:                0.0005,
			domain.EquityInternational: 0.0015,
		},

		MaxResolutionIterations: 10,
		ResolutionScaleFactor:   0.5,

		StaleWeightTolerance: 0.005,
		StaleValueTolerance:  0.01,

		Compliance: ComplianceLimits{
			MaxSingleAssetPct:             0.10,
			MaxSectorPct:                  0.25,
			MinHoldings:                   5,
			DiversificationValueThreshold: 100000,
			MaxSmallCapPct:                0.15,
			MaxInternationalPct:           0.10,
			MinLiquidPct:                  0.10,
			RiskScores: map[domain.AssetClass]float64{
				domain.Cash:                0.5,
				domain.Debt:                2,
				domain.Gold:                4,
				domain.EquityDomestic:      7,
				domain.EquityInternational: 8,
			},
			SuitabilityBands: map[domain.RiskCategory]Range{
				domain.Conservative: {Min: 2.5, Max: 4.25},
				domain.Moderate:     {Min: 4.0, Max: 6.0},
				domain.Aggressive:   {Min: 5.5, Max: 8.5},
			},
		},

		ShortHorizonPenalty: 20,
		LongHorizonBonus:    10,

		ClassAssumptions: map[domain.AssetClass]ClassAssumption{
			domain.EquityDomestic:      {ExpectedReturn: 12, Volatility: 15},
			domain.EquityInternational: {ExpectedReturn: 10, Volatility: 18},
			domain.Debt:                {ExpectedReturn: 7, Volatility: 3},
			domain.Gold:                {ExpectedReturn: 8, Volatility: 12},
			domain.Cash:                {ExpectedReturn: 4, Volatility: 0.5},
		},
		RiskFreeRate: 6,

		Market: MarketThresholds{
			VolatilityWindow:   20,
			VolatilitySpikePct: 25,
			CorrelationWindow:  20,
			CorrelationFloor:   0.3,
			FastPeriod:         5,
			SlowPeriod:         20,
			MomentumPeriod:     20,
			MomentumThreshold:  0.03,
		},
	}
}

// LoadPolicy reads a YAML policy file over DefaultPolicy. A missing file
// yields the defaults. A category listed under bands replaces that
// category's default bands entirely.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &policy); err != nil {
			return Policy{}, fmt.Errorf("parse policy: %w", err)
		}
	}

	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// CategoryBands returns the bands declared for a category
func (p Policy) CategoryBands(category domain.RiskCategory) (Bands, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidCategory, category)
	}
	bands, ok := p.Bands[category]
	if !ok || len(bands) == 0 {
		return nil, fmt.Errorf("%w: no bands configured for %s", domain.ErrInvalidCategory, category)
	}
	return bands, nil
}

// CostRate returns the turnover cost rate for a class
func (p Policy) CostRate(class domain.AssetClass) float64 {
	if rate, ok := p.ClassCostRates[class]; ok {
		return rate
	}
	return p.CostPerTurnover
}

// Validate checks the policy is internally consistent
func (p Policy) Validate() error {
	for _, category := range domain.RiskCategories() {
		bands, ok := p.Bands[category]
		if !ok || len(bands) == 0 {
			return fmt.Errorf("bands.%s is required", category)
		}
		if err := validateBands(category, bands); err != nil {
			return err
		}
		if _, ok := p.Compliance.SuitabilityBands[category]; !ok {
			return fmt.Errorf("compliance.suitability_bands.%s is required", category)
		}
	}

	fractions := []struct {
		name  string
		value float64
	}{
		{"drift_threshold", p.DriftThreshold},
		{"min_trade_weight", p.MinTradeWeight},
		{"resolution_scale_factor", p.ResolutionScaleFactor},
		{"stale_weight_tolerance", p.StaleWeightTolerance},
		{"stale_value_tolerance", p.StaleValueTolerance},
		{"compliance.max_single_asset_pct", p.Compliance.MaxSingleAssetPct},
		{"compliance.max_sector_pct", p.Compliance.MaxSectorPct},
		{"compliance.max_small_cap_pct", p.Compliance.MaxSmallCapPct},
		{"compliance.max_international_pct", p.Compliance.MaxInternationalPct},
	}
	for _, f := range fractions {
		if math.IsNaN(f.value) || f.value <= 0 || f.value > 1 {
			return fmt.Errorf("%s must be in (0,1], got %v", f.name, f.value)
		}
	}

	if p.OvershootGuard < 0 || p.OvershootGuard >= 1 {
		return fmt.Errorf("overshoot_guard must be in [0,1), got %v", p.OvershootGuard)
	}
	if p.Compliance.MinLiquidPct < 0 || p.Compliance.MinLiquidPct > 1 {
		return fmt.Errorf("compliance.min_liquid_pct must be in [0,1], got %v", p.Compliance.MinLiquidPct)
	}
	if p.ResolutionScaleFactor >= 1 {
		return fmt.Errorf("resolution_scale_factor must shrink trades, got %v", p.ResolutionScaleFactor)
	}
	if p.MaxResolutionIterations < 1 {
		return fmt.Errorf("max_resolution_iterations must be positive")
	}
	if p.Compliance.MinHoldings < 0 {
		return fmt.Errorf("compliance.min_holdings must not be negative")
	}
	if p.CostPerTurnover < 0 || p.TransactionCostFixed < 0 || p.TransactionCostPercent < 0 {
		return fmt.Errorf("trading costs must not be negative")
	}
	for class, rate := range p.ClassCostRates {
		if !class.Valid() || rate < 0 {
			return fmt.Errorf("class_cost_rates.%s is invalid", class)
		}
	}
	for category, r := range p.Compliance.SuitabilityBands {
		if r.Min > r.Max {
			return fmt.Errorf("compliance.suitability_bands.%s: min above max", category)
		}
	}
	for _, c := range p.Correlations {
		if !c.A.Valid() || !c.B.Valid() || c.Value < -1 || c.Value > 1 {
			return fmt.Errorf("correlation %s/%s=%v is invalid", c.A, c.B, c.Value)
		}
	}
	if p.Market.FastPeriod >= p.Market.SlowPeriod {
		return fmt.Errorf("market.fast_period must be shorter than market.slow_period")
	}
	return nil
}

func validateBands(category domain.RiskCategory, bands Bands) error {
	var sumMin, sumMax float64
	for class, band := range bands {
		if !class.Valid() {
			return fmt.Errorf("bands.%s: unknown asset class %d", category, class)
		}
		if band.Min < 0 || band.Max > 1 || band.Min > band.Max {
			return fmt.Errorf("bands.%s.%s: invalid range [%v, %v]", category, class, band.Min, band.Max)
		}
		switch band.Role {
		case RoleGrowth, RoleDefensive, RoleBallast:
		default:
			return fmt.Errorf("bands.%s.%s: unknown role %q", category, class, band.Role)
		}
		sumMin += band.Min
		sumMax += band.Max
	}
	if sumMin > 1+domain.WeightTolerance || sumMax < 1-domain.WeightTolerance {
		return fmt.Errorf("bands.%s cannot sum to 1 (min %.4f, max %.4f)", category, sumMin, sumMax)
	}
	return nil
}
