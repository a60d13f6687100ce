package compliance

import (
	"fmt"

	"github.com/aristath/advisor/internal/domain"
	"github.com/shopspring/decimal"
)

// Subject is the allocation snapshot a verdict is rendered for. Holdings are
// optional; rules that need holding detail pass with an explanatory detail
// when none is supplied.
type Subject struct {
	ClientID       string              `json:"client_id"`
	Category       domain.RiskCategory `json:"risk_category"`
	Vector         domain.Vector       `json:"vector"`
	Holdings       []domain.Holding    `json:"holdings,omitempty"`
	PortfolioValue decimal.Decimal     `json:"portfolio_value"`
}

// SubjectFromPortfolio builds a subject from a portfolio's current holdings
func SubjectFromPortfolio(p domain.Portfolio) (Subject, error) {
	current, err := p.CurrentVector()
	if err != nil {
		return Subject{}, err
	}
	return Subject{
		ClientID:       p.ClientID,
		Category:       p.Category,
		Vector:         current,
		Holdings:       p.Holdings,
		PortfolioValue: p.TotalValue(),
	}, nil
}

// SubjectFromTarget builds a vector-only subject for a target allocation
func SubjectFromTarget(clientID string, category domain.RiskCategory, target domain.Vector) Subject {
	return Subject{
		ClientID: clientID,
		Category: category,
		Vector:   target,
	}
}

// holdingsValue is the denominator for holding-level exposures
func (s Subject) holdingsValue() decimal.Decimal {
	if s.PortfolioValue.IsPositive() {
		return s.PortfolioValue
	}
	total := decimal.Zero
	for _, h := range s.Holdings {
		total = total.Add(h.MarketValue)
	}
	return total
}

// Offender identifies what pushed a rule over its limit
type Offender struct {
	Class     domain.AssetClass `json:"asset_class,omitempty"`
	HoldingID string            `json:"holding_id,omitempty"`
	Sector    string            `json:"sector,omitempty"`
	Observed  float64           `json:"observed"`
	Limit     float64           `json:"limit"`
}

// Excess is how far the offender is past its limit, in the rule's units
func (o Offender) Excess() float64 {
	if o.Observed > o.Limit {
		return o.Observed - o.Limit
	}
	return o.Limit - o.Observed
}

// Result is one rule's outcome
type Result struct {
	Rule        string          `json:"rule"`
	Description string          `json:"description"`
	Severity    domain.Severity `json:"severity"`
	Passed      bool            `json:"passed"`
	Detail      string          `json:"detail"`
	Observed    float64         `json:"observed"`
	Limit       float64         `json:"limit"`
	Offenders   []Offender      `json:"offenders,omitempty"`
}

// Verdict is the outcome of running the full rule set against one snapshot.
// Results keep rule declaration order.
type Verdict struct {
	ClientID string              `json:"client_id"`
	Category domain.RiskCategory `json:"risk_category"`
	Passed   bool                `json:"passed"`
	Results  []Result            `json:"results"`
}

// Failures returns failed Hard rules
func (v Verdict) Failures() []Result {
	return v.filter(domain.Hard)
}

// Warnings returns failed Soft rules
func (v Verdict) Warnings() []Result {
	return v.filter(domain.Soft)
}

func (v Verdict) filter(severity domain.Severity) []Result {
	var out []Result
	for _, r := range v.Results {
		if !r.Passed && r.Severity == severity {
			out = append(out, r)
		}
	}
	return out
}

// Result returns the named rule's result
func (v Verdict) Result(rule string) (Result, bool) {
	for _, r := range v.Results {
		if r.Rule == rule {
			return r, true
		}
	}
	return Result{}, false
}

// Summary renders a one-line description of the verdict
func (v Verdict) Summary() string {
	status := "PASS"
	if !v.Passed {
		status = "FAIL"
	}
	return fmt.Sprintf("%s: %d rules, %d failures, %d warnings",
		status, len(v.Results), len(v.Failures()), len(v.Warnings()))
}
