package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func holding(id string, class AssetClass, value int64) Holding {
	return Holding{
		ID:          id,
		Class:       class,
		MarketValue: decimal.NewFromInt(value),
		Quantity:    decimal.NewFromInt(value),
	}
}

func TestPortfolioCurrentVector(t *testing.T) {
	p := Portfolio{
		ClientID: "c1",
		Holdings: []Holding{
			holding("EQ1", EquityDomestic, 30),
			holding("EQ2", EquityDomestic, 15),
			holding("BOND", Debt, 45),
			holding("GLD", Gold, 10),
		},
	}

	v, err := p.CurrentVector()
	require.NoError(t, err)
	assert.InDelta(t, 0.45, v[EquityDomestic], 1e-12)
	assert.InDelta(t, 0.45, v[Debt], 1e-12)
	assert.InDelta(t, 0.10, v[Gold], 1e-12)
	assert.NoError(t, v.Validate())
	assert.Equal(t, "100", p.TotalValue().String())
}

func TestPortfolioCurrentVectorIsRecomputed(t *testing.T) {
	p := Portfolio{Holdings: []Holding{holding("A", EquityDomestic, 50), holding("B", Debt, 50)}}

	before, err := p.CurrentVector()
	require.NoError(t, err)

	p.Holdings[0].MarketValue = decimal.NewFromInt(150)
	after, err := p.CurrentVector()
	require.NoError(t, err)

	assert.InDelta(t, 0.5, before[EquityDomestic], 1e-12)
	assert.InDelta(t, 0.75, after[EquityDomestic], 1e-12)
}

func TestPortfolioCurrentVectorEmpty(t *testing.T) {
	tests := []struct {
		name     string
		holdings []Holding
	}{
		{name: "no holdings"},
		{name: "zero value", holdings: []Holding{holding("A", Debt, 0)}},
		{name: "negative value", holdings: []Holding{holding("A", Debt, -10)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Portfolio{ClientID: "c1", Holdings: tt.holdings}.CurrentVector()
			assert.ErrorIs(t, err, ErrEmptyPortfolio)
		})
	}
}

func TestPortfolioCurrentVectorRejectsShortPositions(t *testing.T) {
	p := Portfolio{Holdings: []Holding{holding("A", Debt, 120), holding("B", Gold, -20)}}
	_, err := p.CurrentVector()
	assert.ErrorIs(t, err, ErrInvalidVector)
}

func TestPortfolioClone(t *testing.T) {
	p := Portfolio{
		ClientID: "c1",
		Target:   Vector{Debt: 1},
		Holdings: []Holding{holding("A", Debt, 100)},
	}

	c := p.Clone()
	c.Holdings[0].MarketValue = decimal.NewFromInt(1)
	c.Target[Debt] = 0.5

	assert.Equal(t, "100", p.Holdings[0].MarketValue.String())
	assert.Equal(t, 1.0, p.Target[Debt])
}

func TestPortfolioShifted(t *testing.T) {
	p := Portfolio{
		ClientID: "c1",
		Holdings: []Holding{
			holding("EQ1", EquityDomestic, 25),
			holding("EQ2", EquityDomestic, 25),
			holding("BOND", Debt, 50),
		},
	}

	t.Run("pro-rata within class", func(t *testing.T) {
		out, err := p.Shifted(Vector{EquityDomestic: -0.1, Debt: 0.1})
		require.NoError(t, err)

		assert.Equal(t, "20", out.Holdings[0].MarketValue.String())
		assert.Equal(t, "20", out.Holdings[1].MarketValue.String())
		assert.Equal(t, "60", out.Holdings[2].MarketValue.String())
		assert.Equal(t, "60", out.Holdings[2].Quantity.String())
		assert.True(t, out.TotalValue().Equal(p.TotalValue()))

		// source untouched
		assert.Equal(t, "25", p.Holdings[0].MarketValue.String())
	})

	t.Run("new class gets placeholder holding", func(t *testing.T) {
		out, err := p.Shifted(Vector{Debt: -0.1, Gold: 0.1})
		require.NoError(t, err)
		require.Len(t, out.Holdings, 4)

		added := out.Holdings[3]
		assert.Equal(t, "gold/new", added.ID)
		assert.Equal(t, Gold, added.Class)
		assert.Equal(t, "10", added.MarketValue.String())

		v, err := out.CurrentVector()
		require.NoError(t, err)
		assert.InDelta(t, 0.1, v[Gold], 1e-12)
		assert.InDelta(t, 0.4, v[Debt], 1e-12)
	})

	t.Run("overselling is rejected", func(t *testing.T) {
		_, err := p.Shifted(Vector{Debt: -0.6, EquityDomestic: 0.6})
		assert.ErrorIs(t, err, ErrInvalidVector)
	})
}

func TestClassifyScore(t *testing.T) {
	tests := []struct {
		score    float64
		category RiskCategory
		subscore float64
	}{
		{0, Conservative, 0},
		{35, Conservative, 100},
		{17.5, Conservative, 50},
		{50, Moderate, 50},
		{65, Moderate, 100},
		{100, Aggressive, 100},
	}

	for _, tt := range tests {
		category, subscore, err := ClassifyScore(tt.score)
		require.NoError(t, err)
		assert.Equal(t, tt.category, category, "score %v", tt.score)
		assert.InDelta(t, tt.subscore, subscore, 1e-9, "score %v", tt.score)
	}

	_, _, err := ClassifyScore(101)
	assert.ErrorIs(t, err, ErrInvalidSubscore)
	_, _, err = ClassifyScore(-1)
	assert.ErrorIs(t, err, ErrInvalidSubscore)
}

func TestPortfolioValidate(t *testing.T) {
	valid := func() Portfolio {
		return Portfolio{
			ClientID: "c1",
			Category: Moderate,
			Subscore: 40,
			Target:   Vector{Debt: 0.4, EquityDomestic: 0.6},
			Holdings: []Holding{
				{ID: "A", Class: Debt, MarketValue: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)},
				{ID: "B", Class: EquityDomestic, MarketValue: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(p *Portfolio)
		wantErr error
	}{
		{name: "valid", mutate: func(p *Portfolio) {}},
		{name: "no target is fine", mutate: func(p *Portfolio) { p.Target = nil }},
		{name: "no holdings is fine", mutate: func(p *Portfolio) { p.Holdings = nil }},
		{name: "blank client", mutate: func(p *Portfolio) { p.ClientID = "  " }, wantErr: ErrInvalidClientID},
		{name: "unknown category", mutate: func(p *Portfolio) { p.Category = 0 }, wantErr: ErrInvalidCategory},
		{name: "subscore out of range", mutate: func(p *Portfolio) { p.Subscore = 101 }, wantErr: ErrInvalidSubscore},
		{name: "target not summing to one", mutate: func(p *Portfolio) { p.Target = Vector{Debt: 0.5} }, wantErr: ErrInvalidVector},
		{name: "holding without id", mutate: func(p *Portfolio) { p.Holdings[0].ID = "" }, wantErr: ErrInvalidHolding},
		{name: "duplicate holding", mutate: func(p *Portfolio) { p.Holdings[1].ID = "A" }, wantErr: ErrInvalidHolding},
		{name: "unknown class", mutate: func(p *Portfolio) { p.Holdings[0].Class = 0 }, wantErr: ErrInvalidHolding},
		{name: "negative value", mutate: func(p *Portfolio) { p.Holdings[0].MarketValue = decimal.NewFromInt(-1) }, wantErr: ErrInvalidHolding},
		{name: "negative quantity", mutate: func(p *Portfolio) { p.Holdings[0].Quantity = decimal.NewFromInt(-1) }, wantErr: ErrInvalidHolding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
