// Package domain provides the allocation engine's core data model: the closed
// enumerations the rest of the model is indexed by, allocation vectors,
// holdings and portfolios.
package domain

import (
	"fmt"
	"strings"
)

// AssetClass is the fixed vocabulary allocation vectors are indexed by
type AssetClass uint8

const (
	EquityDomestic AssetClass = iota + 1
	EquityInternational
	Debt
	Gold
	Cash
)

var assetClassNames = map[AssetClass]string{
	EquityDomestic:      "equity_domestic",
	EquityInternational: "equity_international",
	Debt:                "debt",
	Gold:                "gold",
	Cash:                "cash",
}

// AssetClasses returns every asset class in canonical order.
// All deterministic iteration over vectors goes through this order.
func AssetClasses() []AssetClass {
	return []AssetClass{EquityDomestic, EquityInternational, Debt, Gold, Cash}
}

func (c AssetClass) String() string { return enumString(assetClassNames, c) }
func (c AssetClass) Valid() bool { _, ok := assetClassNames[c]; return ok }
func (c AssetClass) IsEquity() bool { return c == EquityDomestic || c == EquityInternational }
func (c AssetClass) IsLiquid() bool { return c == Cash || c == Debt }
func (c AssetClass) MarshalText() ([]byte, error) { return enumMarshal(assetClassNames, c, "asset class") }

func (c *AssetClass) UnmarshalText(text []byte) error {
	v, err := ParseAssetClass(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseAssetClass parses a canonical asset class name (case-insensitive).
// "equity" and "international" are accepted as shorthands.
func ParseAssetClass(s string) (AssetClass, error) {
	switch normalizeName(s) {
	case "equity":
		return EquityDomestic, nil
	case "international":
		return EquityInternational, nil
	}
	return enumParse(assetClassNames, s, "asset class")
}

// CapSize classifies an equity holding by market capitalisation
type CapSize uint8

const (
	CapUnknown CapSize = iota
	LargeCap
	MidCap
	SmallCap
)

var capSizeNames = map[CapSize]string{
	CapUnknown: "unknown",
	LargeCap:   "large",
	MidCap:     "mid",
	SmallCap:   "small",
}

func (c CapSize) String() string { return enumString(capSizeNames, c) }
func (c CapSize) MarshalText() ([]byte, error) { return enumMarshal(capSizeNames, c, "cap size") }

func (c *CapSize) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = CapUnknown
		return nil
	}
	v, err := enumParse(capSizeNames, string(text), "cap size")
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// RiskCategory is the ordered risk classification assigned by the risk profiler
type RiskCategory uint8

const (
	Conservative RiskCategory = iota + 1
	Moderate
	Aggressive
)

var riskCategoryNames = map[RiskCategory]string{
	Conservative: "conservative",
	Moderate:     "moderate",
	Aggressive:   "aggressive",
}

// RiskCategories returns every category from least to most risk-seeking
func RiskCategories() []RiskCategory {
	return []RiskCategory{Conservative, Moderate, Aggressive}
}

func (r RiskCategory) String() string { return enumString(riskCategoryNames, r) }
func (r RiskCategory) Valid() bool { _, ok := riskCategoryNames[r]; return ok }
func (r RiskCategory) MarshalText() ([]byte, error) {
	return enumMarshal(riskCategoryNames, r, "risk category")
}

func (r *RiskCategory) UnmarshalText(text []byte) error {
	v, err := ParseRiskCategory(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseRiskCategory parses a category name. The profiler's appetite labels
// (low, medium, high) map onto the three categories.
func ParseRiskCategory(s string) (RiskCategory, error) {
	switch normalizeName(s) {
	case "low":
		return Conservative, nil
	case "medium":
		return Moderate, nil
	case "high":
		return Aggressive, nil
	}
	v, err := enumParse(riskCategoryNames, s, "risk category")
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return v, nil
}

// MarketSignal is the market-condition input to drift detection
type MarketSignal uint8

const (
	SignalNormal MarketSignal = iota
	SignalVolatilitySpike
	SignalCorrelationBreakdown
	SignalSectorRotation
)

var marketSignalNames = map[MarketSignal]string{
	SignalNormal:               "normal",
	SignalVolatilitySpike:      "volatility_spike",
	SignalCorrelationBreakdown: "correlation_breakdown",
	SignalSectorRotation:       "sector_rotation",
}

func (s MarketSignal) String() string { return enumString(marketSignalNames, s) }
func (s MarketSignal) Valid() bool { _, ok := marketSignalNames[s]; return ok }

// RequestsReview reports whether the signal asks for re-evaluation on its own
func (s MarketSignal) RequestsReview() bool { return s != SignalNormal }

func (s MarketSignal) MarshalText() ([]byte, error) {
	return enumMarshal(marketSignalNames, s, "market signal")
}

func (s *MarketSignal) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = SignalNormal
		return nil
	}
	v, err := enumParse(marketSignalNames, string(text), "market signal")
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Severity of a compliance rule
type Severity uint8

const (
	Soft Severity = iota + 1
	Hard
)

var severityNames = map[Severity]string{
	Soft: "soft",
	Hard: "hard",
}

func (s Severity) String() string { return enumString(severityNames, s) }
func (s Severity) MarshalText() ([]byte, error) {
	return enumMarshal(severityNames, s, "severity")
}

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := enumParse(severityNames, string(text), "severity")
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// TradeSide is the direction of a trade instruction
type TradeSide uint8

const (
	Buy TradeSide = iota + 1
	Sell
)

var tradeSideNames = map[TradeSide]string{
	Buy:  "BUY",
	Sell: "SELL",
}

func (s TradeSide) String() string { return enumString(tradeSideNames, s) }
func (s TradeSide) MarshalText() ([]byte, error) {
	return enumMarshal(tradeSideNames, s, "trade side")
}

func (s *TradeSide) UnmarshalText(text []byte) error {
	v, err := enumParse(tradeSideNames, string(text), "trade side")
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// GoalHorizon is the optional investment horizon attached to a goal
type GoalHorizon uint8

const (
	HorizonUnspecified GoalHorizon = iota
	HorizonShort
	HorizonMedium
	HorizonLong
)

var goalHorizonNames = map[GoalHorizon]string{
	HorizonUnspecified: "unspecified",
	HorizonShort:       "short",
	HorizonMedium:      "medium",
	HorizonLong:        "long",
}

func (h GoalHorizon) String() string { return enumString(goalHorizonNames, h) }
func (h GoalHorizon) MarshalText() ([]byte, error) {
	return enumMarshal(goalHorizonNames, h, "goal horizon")
}

func (h *GoalHorizon) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = HorizonUnspecified
		return nil
	}
	v, err := enumParse(goalHorizonNames, string(text), "goal horizon")
	if err != nil {
		return err
	}
	*h = v
	return nil
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

func enumString[T comparable](names map[T]string, v T) string {
	if name, ok := names[v]; ok {
		return name
	}
	return fmt.Sprintf("invalid(%v)", v)
}

func enumMarshal[T comparable](names map[T]string, v T, kind string) ([]byte, error) {
	name, ok := names[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s %v", ErrUnknownEnum, kind, v)
	}
	return []byte(name), nil
}

func enumParse[T comparable](names map[T]string, s, kind string) (T, error) {
	want := normalizeName(s)
	for v, name := range names {
		if strings.EqualFold(name, want) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: %s %q", ErrUnknownEnum, kind, s)
}
