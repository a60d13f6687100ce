package rebalancing

import (
	"fmt"
	"time"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/compliance"
	"github.com/aristath/advisor/internal/modules/drift"
	"github.com/shopspring/decimal"
)

// Trade moves Weight of portfolio value into or out of one asset class
type Trade struct {
	Class    domain.AssetClass `json:"asset_class"`
	Side     domain.TradeSide  `json:"side"`
	Weight   float64           `json:"weight"`
	Notional decimal.Decimal   `json:"notional"`
}

// Signed returns the weight with sells negative
func (t Trade) Signed() float64 {
	if t.Side == domain.Sell {
		return -t.Weight
	}
	return t.Weight
}

// Plan is a capital-conserving set of trades that moves a portfolio toward
// its target and passes every Hard compliance rule. Plans are values; callers
// never modify one after it is returned.
type Plan struct {
	ID         string             `json:"id"`
	ClientID   string             `json:"client_id"`
	CreatedAt  time.Time          `json:"created_at"`
	Trades     []Trade            `json:"trades"`
	Report     drift.Report       `json:"report"`
	EndState   domain.Vector      `json:"end_state"`
	Verdict    compliance.Verdict `json:"verdict"`
	Iterations int                `json:"iterations"`
}

// Shifts returns the signed weight change per class
func (p Plan) Shifts() domain.Vector {
	shifts := make(domain.Vector, len(p.Trades))
	for _, t := range p.Trades {
		shifts[t.Class] += t.Signed()
	}
	return shifts
}

// Turnover is the total traded weight, buys and sells together
func (p Plan) Turnover() float64 {
	total := 0.0
	for _, t := range p.Trades {
		total += t.Weight
	}
	return total
}

// TradedNotional is the total traded value, buys and sells together
func (p Plan) TradedNotional() decimal.Decimal {
	total := decimal.Zero
	for _, t := range p.Trades {
		total = total.Add(t.Notional)
	}
	return total
}

// ConflictError is returned when no sequence of scaled trades satisfies the
// Hard compliance rules. Verdict is the last verdict evaluated.
type ConflictError struct {
	ClientID   string
	Iterations int
	Verdict    compliance.Verdict
}

func (e *ConflictError) Error() string {
	rules := make([]string, 0)
	for _, r := range e.Verdict.Failures() {
		rules = append(rules, r.Rule)
	}
	return fmt.Sprintf("%s: client %s after %d iterations, failing %v",
		domain.ErrUnresolvableComplianceConflict, e.ClientID, e.Iterations, rules)
}

func (e *ConflictError) Unwrap() error {
	return domain.ErrUnresolvableComplianceConflict
}
