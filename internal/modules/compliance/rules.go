package compliance

import (
	"fmt"
	"sort"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/shopspring/decimal"
)

// Rule names
const (
	RuleSingleAsset         = "single_asset_exposure"
	RuleClassConcentration  = "asset_class_concentration"
	RuleSectorConcentration = "sector_concentration"
	RuleMinDiversification  = "min_diversification"
	RuleSmallCap            = "small_cap_exposure"
	RuleInternational       = "international_exposure"
	RuleMinLiquidity        = "min_liquid_assets"
	RuleSuitability         = "suitability"
)

const noHoldingDetail = "no holding detail supplied"

// Rule is an independent, named predicate over a subject
type Rule interface {
	Name() string
	Description() string
	Check(s Subject) Result
}

// DefaultRules returns the regulatory rule set in declaration order
func DefaultRules(policy config.Policy) []Rule {
	limits := policy.Compliance
	return []Rule{
		SingleAssetRule{Max: limits.MaxSingleAssetPct},
		ClassConcentrationRule{Bands: policy.Bands},
		SectorConcentrationRule{Max: limits.MaxSectorPct},
		DiversificationRule{MinHoldings: limits.MinHoldings, ValueThreshold: limits.DiversificationValueThreshold},
		SmallCapRule{Max: limits.MaxSmallCapPct},
		InternationalRule{Max: limits.MaxInternationalPct},
		LiquidityRule{Min: limits.MinLiquidPct},
		SuitabilityRule{RiskScores: limits.RiskScores, Bands: limits.SuitabilityBands},
	}
}

func newResult(r Rule, severity domain.Severity) Result {
	return Result{
		Rule:        r.Name(),
		Description: r.Description(),
		Severity:    severity,
		Passed:      true,
	}
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func weightOf(value, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	return value.Div(total).InexactFloat64()
}

// SingleAssetRule caps every individual holding
type SingleAssetRule struct {
	Max float64
}

func (r SingleAssetRule) Name() string { return RuleSingleAsset }
func (r SingleAssetRule) Description() string {
	return fmt.Sprintf("No single holding may exceed %s of portfolio value", pct(r.Max))
}

func (r SingleAssetRule) Check(s Subject) Result {
	res := newResult(r, domain.Hard)
	res.Limit = r.Max
	if len(s.Holdings) == 0 {
		res.Detail = noHoldingDetail
		return res
	}

	total := s.holdingsValue()
	for _, h := range s.Holdings {
		w := weightOf(h.MarketValue, total)
		if w > res.Observed {
			res.Observed = w
		}
		if w > r.Max+domain.WeightTolerance {
			res.Offenders = append(res.Offenders, Offender{Class: h.Class, HoldingID: h.ID, Observed: w, Limit: r.Max})
		}
	}

	if len(res.Offenders) > 0 {
		res.Passed = false
		worst := res.Offenders[0]
		for _, o := range res.Offenders[1:] {
			if o.Observed > worst.Observed {
				worst = o
			}
		}
		res.Detail = fmt.Sprintf("%d holding(s) above ceiling; %s at %s exceeds %s",
			len(res.Offenders), worst.HoldingID, pct(worst.Observed), pct(r.Max))
		return res
	}
	res.Detail = fmt.Sprintf("largest holding at %s", pct(res.Observed))
	return res
}

// ClassConcentrationRule keeps every class at or below its band maximum for
// the client's category. Classes the category does not declare have max 0.
type ClassConcentrationRule struct {
	Bands map[domain.RiskCategory]config.Bands
}

func (r ClassConcentrationRule) Name() string { return RuleClassConcentration }
func (r ClassConcentrationRule) Description() string {
	return "No asset class may exceed its risk band maximum"
}

func (r ClassConcentrationRule) Check(s Subject) Result {
	res := newResult(r, domain.Hard)
	bands := r.Bands[s.Category]

	var worstExcess float64
	for _, class := range domain.AssetClasses() {
		w := s.Vector[class]
		limit := bands[class].Max
		if w <= limit+domain.WeightTolerance {
			continue
		}
		res.Offenders = append(res.Offenders, Offender{Class: class, Observed: w, Limit: limit})
		if excess := w - limit; excess > worstExcess {
			worstExcess = excess
			res.Observed, res.Limit = w, limit
		}
	}

	if len(res.Offenders) > 0 {
		res.Passed = false
		parts := make([]string, 0, len(res.Offenders))
		for _, o := range res.Offenders {
			parts = append(parts, fmt.Sprintf("%s %s > %s", o.Class, pct(o.Observed), pct(o.Limit)))
		}
		res.Detail = fmt.Sprintf("classes above band maximum: %v", parts)
		return res
	}
	res.Detail = fmt.Sprintf("all classes within %s band maxima", s.Category)
	return res
}

// SectorConcentrationRule caps the combined weight of holdings in one sector
type SectorConcentrationRule struct {
	Max float64
}

func (r SectorConcentrationRule) Name() string { return RuleSectorConcentration }
func (r SectorConcentrationRule) Description() string {
	return fmt.Sprintf("No sector may exceed %s of portfolio value", pct(r.Max))
}

func (r SectorConcentrationRule) Check(s Subject) Result {
	res := newResult(r, domain.Hard)
	res.Limit = r.Max

	total := s.holdingsValue()
	sectors := make(map[string]decimal.Decimal)
	// per sector, value contributed by each class
	contributions := make(map[string]map[domain.AssetClass]decimal.Decimal)
	for _, h := range s.Holdings {
		if h.Sector == "" {
			continue
		}
		sectors[h.Sector] = sectors[h.Sector].Add(h.MarketValue)
		if contributions[h.Sector] == nil {
			contributions[h.Sector] = make(map[domain.AssetClass]decimal.Decimal)
		}
		contributions[h.Sector][h.Class] = contributions[h.Sector][h.Class].Add(h.MarketValue)
	}
	if len(sectors) == 0 {
		res.Detail = "no sector detail supplied"
		return res
	}

	names := make([]string, 0, len(sectors))
	for name := range sectors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w := weightOf(sectors[name], total)
		if w > res.Observed {
			res.Observed = w
		}
		if w <= r.Max+domain.WeightTolerance {
			continue
		}
		res.Offenders = append(res.Offenders, Offender{
			Class:    dominantClass(contributions[name]),
			Sector:   name,
			Observed: w,
			Limit:    r.Max,
		})
	}

	if len(res.Offenders) > 0 {
		res.Passed = false
		res.Detail = fmt.Sprintf("%d sector(s) above %s; largest at %s", len(res.Offenders), pct(r.Max), pct(res.Observed))
		return res
	}
	res.Detail = fmt.Sprintf("largest sector at %s", pct(res.Observed))
	return res
}

func dominantClass(values map[domain.AssetClass]decimal.Decimal) domain.AssetClass {
	var (
		best  domain.AssetClass
		value decimal.Decimal
	)
	for _, class := range domain.AssetClasses() {
		if v, ok := values[class]; ok && (best == 0 || v.GreaterThan(value)) {
			best, value = class, v
		}
	}
	return best
}

// DiversificationRule requires a minimum number of distinct holdings. It is
// Soft at or below the portfolio value threshold and Hard above it.
type DiversificationRule struct {
	MinHoldings    int
	ValueThreshold float64
}

func (r DiversificationRule) Name() string { return RuleMinDiversification }
func (r DiversificationRule) Description() string {
	return fmt.Sprintf("Portfolio must hold at least %d distinct assets", r.MinHoldings)
}

func (r DiversificationRule) Check(s Subject) Result {
	severity := domain.Soft
	value := s.holdingsValue()
	if value.GreaterThan(decimal.NewFromFloat(r.ValueThreshold)) {
		severity = domain.Hard
	}

	res := newResult(r, severity)
	res.Limit = float64(r.MinHoldings)
	if len(s.Holdings) == 0 {
		res.Detail = noHoldingDetail
		return res
	}

	distinct := make(map[string]struct{}, len(s.Holdings))
	for _, h := range s.Holdings {
		if h.MarketValue.IsPositive() {
			distinct[h.ID] = struct{}{}
		}
	}
	res.Observed = float64(len(distinct))

	if len(distinct) < r.MinHoldings {
		res.Passed = false
		res.Detail = fmt.Sprintf("%d distinct holdings, at least %d required (portfolio value %s)",
			len(distinct), r.MinHoldings, value.StringFixed(2))
		return res
	}
	res.Detail = fmt.Sprintf("%d distinct holdings", len(distinct))
	return res
}

// SmallCapRule caps the combined weight of small-cap holdings
type SmallCapRule struct {
	Max float64
}

func (r SmallCapRule) Name() string { return RuleSmallCap }
func (r SmallCapRule) Description() string {
	return fmt.Sprintf("Small-cap exposure may not exceed %s", pct(r.Max))
}

func (r SmallCapRule) Check(s Subject) Result {
	res := newResult(r, domain.Hard)
	res.Limit = r.Max
	if len(s.Holdings) == 0 {
		res.Detail = noHoldingDetail
		return res
	}

	total := s.holdingsValue()
	byClass := make(map[domain.AssetClass]bool)
	smallCap := decimal.Zero
	for _, h := range s.Holdings {
		if h.CapSize != domain.SmallCap {
			continue
		}
		smallCap = smallCap.Add(h.MarketValue)
		byClass[h.Class] = true
	}
	res.Observed = weightOf(smallCap, total)

	if res.Observed > r.Max+domain.WeightTolerance {
		res.Passed = false
		for _, class := range domain.AssetClasses() {
			if byClass[class] {
				res.Offenders = append(res.Offenders, Offender{Class: class, Observed: res.Observed, Limit: r.Max})
			}
		}
		res.Detail = fmt.Sprintf("small-cap exposure %s exceeds %s", pct(res.Observed), pct(r.Max))
		return res
	}
	res.Detail = fmt.Sprintf("small-cap exposure %s", pct(res.Observed))
	return res
}

// InternationalRule caps international equity
type InternationalRule struct {
	Max float64
}

func (r InternationalRule) Name() string { return RuleInternational }
func (r InternationalRule) Description() string {
	return fmt.Sprintf("International exposure may not exceed %s", pct(r.Max))
}

func (r InternationalRule) Check(s Subject) Result {
	res := newResult(r, domain.Hard)
	res.Limit = r.Max
	res.Observed = s.Vector[domain.EquityInternational]

	if res.Observed > r.Max+domain.WeightTolerance {
		res.Passed = false
		res.Offenders = []Offender{{Class: domain.EquityInternational, Observed: res.Observed, Limit: r.Max}}
		res.Detail = fmt.Sprintf("international exposure %s exceeds %s", pct(res.Observed), pct(r.Max))
		return res
	}
	res.Detail = fmt.Sprintf("international exposure %s", pct(res.Observed))
	return res
}

// LiquidityRule requires a floor of cash and debt
type LiquidityRule struct {
	Min float64
}

func (r LiquidityRule) Name() string { return RuleMinLiquidity }
func (r LiquidityRule) Description() string {
	return fmt.Sprintf("At least %s must be held in liquid assets (cash and debt)", pct(r.Min))
}

func (r LiquidityRule) Check(s Subject) Result {
	res := newResult(r, domain.Soft)
	res.Limit = r.Min
	res.Observed = s.Vector[domain.Cash] + s.Vector[domain.Debt]

	if res.Observed < r.Min-domain.WeightTolerance {
		res.Passed = false
		res.Detail = fmt.Sprintf("liquid assets %s below %s", pct(res.Observed), pct(r.Min))
		return res
	}
	res.Detail = fmt.Sprintf("liquid assets %s", pct(res.Observed))
	return res
}

// SuitabilityRule checks the vector's weighted risk score sits inside the
// band expected for the client's category
type SuitabilityRule struct {
	RiskScores map[domain.AssetClass]float64
	Bands      map[domain.RiskCategory]config.Range
}

func (r SuitabilityRule) Name() string { return RuleSuitability }
func (r SuitabilityRule) Description() string {
	return "Portfolio risk must match the client's assessed risk category"
}

// Score returns the weighted risk score of a vector
func (r SuitabilityRule) Score(v domain.Vector) float64 {
	score := 0.0
	for _, class := range domain.AssetClasses() {
		score += v[class] * r.RiskScores[class]
	}
	return score
}

func (r SuitabilityRule) Check(s Subject) Result {
	res := newResult(r, domain.Hard)
	band := r.Bands[s.Category]
	res.Observed = r.Score(s.Vector)

	if band.Contains(res.Observed, domain.WeightTolerance) {
		res.Limit = band.Max
		res.Detail = fmt.Sprintf("risk score %.2f within %s band [%.2f, %.2f]", res.Observed, s.Category, band.Min, band.Max)
		return res
	}

	res.Passed = false
	tooRisky := res.Observed > band.Max
	res.Limit = band.Min
	if tooRisky {
		res.Limit = band.Max
	}
	// the held classes pushing the score out of band
	for _, class := range domain.AssetClasses() {
		if s.Vector[class] <= 0 {
			continue
		}
		score := r.RiskScores[class]
		if (tooRisky && score > band.Max) || (!tooRisky && score < band.Min) {
			res.Offenders = append(res.Offenders, Offender{Class: class, Observed: res.Observed, Limit: res.Limit})
		}
	}
	direction := "below"
	if tooRisky {
		direction = "above"
	}
	res.Detail = fmt.Sprintf("risk score %.2f %s %s band [%.2f, %.2f]", res.Observed, direction, s.Category, band.Min, band.Max)
	return res
}
