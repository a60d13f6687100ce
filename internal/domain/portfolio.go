package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Holding represents a single position in a client portfolio
type Holding struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Class       AssetClass      `json:"asset_class"`
	Sector      string          `json:"sector,omitempty"`
	CapSize     CapSize         `json:"cap_size"`
	MarketValue decimal.Decimal `json:"market_value"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// Portfolio is one client's ordered holdings plus its investment mandate
// (risk classification and target allocation).
type Portfolio struct {
	ClientID string       `json:"client_id"`
	Category RiskCategory `json:"risk_category"`
	Subscore float64      `json:"subscore"`
	Horizon  GoalHorizon  `json:"horizon,omitempty"`
	Target   Vector       `json:"target,omitempty"`
	Holdings []Holding    `json:"holdings"`
}

// Validate checks the mandate and every holding. An absent target is
// allowed; a present one must be a valid vector.
func (p Portfolio) Validate() error {
	if strings.TrimSpace(p.ClientID) == "" {
		return ErrInvalidClientID
	}
	if !p.Category.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidCategory, p.Category)
	}
	if err := ValidateSubscore(p.Subscore); err != nil {
		return err
	}
	if p.HasTarget() {
		if err := p.Target.Validate(); err != nil {
			return fmt.Errorf("target: %w", err)
		}
	}

	seen := make(map[string]bool, len(p.Holdings))
	for i, h := range p.Holdings {
		switch {
		case strings.TrimSpace(h.ID) == "":
			return fmt.Errorf("%w: holding %d has no id", ErrInvalidHolding, i)
		case seen[h.ID]:
			return fmt.Errorf("%w: duplicate holding id %s", ErrInvalidHolding, h.ID)
		case !h.Class.Valid():
			return fmt.Errorf("%w: holding %s has unknown asset class", ErrInvalidHolding, h.ID)
		case h.MarketValue.IsNegative():
			return fmt.Errorf("%w: holding %s has negative market value", ErrInvalidHolding, h.ID)
		case h.Quantity.IsNegative():
			return fmt.Errorf("%w: holding %s has negative quantity", ErrInvalidHolding, h.ID)
		}
		seen[h.ID] = true
	}
	return nil
}

// TotalValue sums market value across all holdings
func (p Portfolio) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, h := range p.Holdings {
		total = total.Add(h.MarketValue)
	}
	return total
}

// ClassValues sums market value per asset class
func (p Portfolio) ClassValues() map[AssetClass]decimal.Decimal {
	values := make(map[AssetClass]decimal.Decimal)
	for _, h := range p.Holdings {
		values[h.Class] = values[h.Class].Add(h.MarketValue)
	}
	return values
}

// CurrentVector derives the current allocation from the holdings.
// It is recomputed on every call; there is no cached copy to go stale.
func (p Portfolio) CurrentVector() (Vector, error) {
	total := p.TotalValue()
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: client %s total value %s", ErrEmptyPortfolio, p.ClientID, total.String())
	}

	current := make(Vector)
	for class, value := range p.ClassValues() {
		if !class.Valid() {
			return nil, fmt.Errorf("%w: holding with unknown asset class %d", ErrInvalidVector, class)
		}
		current[class] = value.Div(total).InexactFloat64()
	}
	if err := current.Validate(); err != nil {
		return nil, fmt.Errorf("client %s: %w", p.ClientID, err)
	}
	return current, nil
}

// HasTarget reports whether a target allocation is recorded
func (p Portfolio) HasTarget() bool {
	return len(p.Target) > 0
}

// Clone returns a deep copy safe to mutate
func (p Portfolio) Clone() Portfolio {
	out := p
	if p.Target != nil {
		out.Target = p.Target.Clone()
	}
	out.Holdings = make([]Holding, len(p.Holdings))
	copy(out.Holdings, p.Holdings)
	return out
}

// Shifted returns a projected copy of the portfolio with each class's value
// moved by shift*TotalValue. The change is spread pro-rata across the
// class's holdings (prices constant, so quantity moves with value). A class
// with no holdings that receives a buy gets a placeholder "<class>/new"
// holding. Selling more than a class holds is an error.
func (p Portfolio) Shifted(shifts Vector) (Portfolio, error) {
	out := p.Clone()
	total := p.TotalValue()
	classValues := p.ClassValues()

	for _, class := range shifts.Classes() {
		shift := shifts[class]
		if shift == 0 {
			continue
		}
		delta := total.Mul(decimal.NewFromFloat(shift))
		current := classValues[class]
		next := current.Add(delta)
		if next.IsNegative() {
			// tolerate float noise from a full liquidation
			if next.Abs().GreaterThan(total.Mul(decimal.NewFromFloat(WeightTolerance))) {
				return Portfolio{}, fmt.Errorf("%w: selling %s of %s leaves %s", ErrInvalidVector, delta.Neg().String(), class, next.String())
			}
			next = decimal.Zero
		}

		if !current.IsPositive() {
			if !next.IsPositive() {
				continue
			}
			out.Holdings = append(out.Holdings, Holding{
				ID:          class.String() + "/new",
				Name:        "New " + class.String() + " position",
				Class:       class,
				MarketValue: next,
				Quantity:    decimal.Zero,
			})
			continue
		}

		factor := next.Div(current)
		for i := range out.Holdings {
			if out.Holdings[i].Class != class {
				continue
			}
			out.Holdings[i].MarketValue = out.Holdings[i].MarketValue.Mul(factor)
			out.Holdings[i].Quantity = out.Holdings[i].Quantity.Mul(factor)
		}
	}
	return out, nil
}
