package testing

import (
	"fmt"

	"github.com/aristath/advisor/internal/domain"
	"github.com/shopspring/decimal"
)

// NewHolding builds a holding worth value with ten units
func NewHolding(id string, class domain.AssetClass, sector string, value int64) domain.Holding {
	return domain.Holding{
		ID:          id,
		Name:        id,
		Class:       class,
		Sector:      sector,
		CapSize:     domain.LargeCap,
		MarketValue: decimal.NewFromInt(value),
		Quantity:    decimal.NewFromInt(10),
	}
}

var sectors = []string{
	"Technology", "Financials", "Energy", "Healthcare", "Industrials", "Utilities",
	"Materials", "Consumer", "Telecom", "Real Estate", "Staples",
}

// NewDriftedPortfolio is a moderate client worth 10,000 holding 45/45/10
// against a 55/35/10 target. Nine equity and nine debt positions keep every
// holding-level rule satisfied after a full rebalance.
func NewDriftedPortfolio(clientID string) domain.Portfolio {
	return newModeratePortfolio(clientID, 9, 9)
}

// NewBalancedPortfolio is a moderate client worth 10,000 sitting on its
// 55/35/10 target
func NewBalancedPortfolio(clientID string) domain.Portfolio {
	return newModeratePortfolio(clientID, 11, 7)
}

func newModeratePortfolio(clientID string, equity, debt int) domain.Portfolio {
	p := domain.Portfolio{
		ClientID: clientID,
		Category: domain.Moderate,
		Subscore: 50,
		Target: domain.Vector{
			domain.EquityDomestic: 0.55,
			domain.Debt:           0.35,
			domain.Gold:           0.10,
		},
	}
	for i := 0; i < equity; i++ {
		p.Holdings = append(p.Holdings, NewHolding(fmt.Sprintf("EQ%d", i+1), domain.EquityDomestic, sectors[i%len(sectors)], 500))
	}
	for i := 0; i < debt; i++ {
		p.Holdings = append(p.Holdings, NewHolding(fmt.Sprintf("BD%d", i+1), domain.Debt, "", 500))
	}
	p.Holdings = append(p.Holdings,
		NewHolding("GLD1", domain.Gold, "", 500),
		NewHolding("GLD2", domain.Gold, "", 500),
	)
	return p
}
