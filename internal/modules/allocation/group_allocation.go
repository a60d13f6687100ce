package allocation

import (
	"math"
	"sort"

	"github.com/aristath/advisor/internal/domain"
)

// ClassAllocation is one asset class's current position against its target
type ClassAllocation struct {
	Class        domain.AssetClass `json:"asset_class"`
	TargetPct    float64           `json:"target_pct"`
	CurrentPct   float64           `json:"current_pct"`
	CurrentValue float64           `json:"current_value"`
	Deviation    float64           `json:"deviation"`
}

// GroupAllocation is the value held in one sector
type GroupAllocation struct {
	Name         string  `json:"name"`
	CurrentPct   float64 `json:"current_pct"`
	CurrentValue float64 `json:"current_value"`
	Holdings     int     `json:"holdings"`
}

// BuildClassAllocations lists every class that is either held or targeted,
// in canonical class order. Percentages are fractions rounded for display.
func BuildClassAllocations(p domain.Portfolio) ([]ClassAllocation, error) {
	current, err := p.CurrentVector()
	if err != nil {
		return nil, err
	}
	values := p.ClassValues()

	var allocations []ClassAllocation
	for _, class := range domain.AssetClasses() {
		_, held := current[class]
		_, targeted := p.Target[class]
		if !held && !targeted {
			continue
		}
		allocations = append(allocations, ClassAllocation{
			Class:        class,
			TargetPct:    round(p.Target[class], 4),
			CurrentPct:   round(current[class], 4),
			CurrentValue: round(values[class].InexactFloat64(), 2),
			Deviation:    round(current[class]-p.Target[class], 4),
		})
	}
	return allocations, nil
}

// BuildSectorAllocations aggregates holdings by sector. Holdings without a
// sector are grouped under "OTHER".
func BuildSectorAllocations(p domain.Portfolio) []GroupAllocation {
	total := p.TotalValue().InexactFloat64()

	groups := make(map[string]*GroupAllocation)
	for _, h := range p.Holdings {
		name := h.Sector
		if name == "" {
			name = "OTHER"
		}
		g, ok := groups[name]
		if !ok {
			g = &GroupAllocation{Name: name}
			groups[name] = g
		}
		g.CurrentValue += h.MarketValue.InexactFloat64()
		g.Holdings++
	}

	allocations := make([]GroupAllocation, 0, len(groups))
	for _, g := range groups {
		if total > 0 {
			g.CurrentPct = round(g.CurrentValue/total, 4)
		}
		g.CurrentValue = round(g.CurrentValue, 2)
		allocations = append(allocations, *g)
	}

	// Sort by name for consistent output
	sort.Slice(allocations, func(i, j int) bool {
		return allocations[i].Name < allocations[j].Name
	})

	return allocations
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
