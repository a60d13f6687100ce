package audit

// RuleEntry is one rule outcome inside a verdict payload
type RuleEntry struct {
	Rule      string   `json:"rule"`
	Severity  string   `json:"severity"`
	Passed    bool     `json:"passed"`
	Detail    string   `json:"detail,omitempty"`
	Offenders []string `json:"offenders,omitempty"`
}

// VerdictPayload documents a compliance verdict
type VerdictPayload struct {
	RiskCategory string             `json:"risk_category"`
	Subscore     float64            `json:"subscore"`
	Vector       map[string]float64 `json:"vector"`
	Passed       bool               `json:"passed"`
	Summary      string             `json:"summary"`
	Results      []RuleEntry        `json:"results"`
}

// TradeEntry is one trade inside a plan payload
type TradeEntry struct {
	AssetClass string  `json:"asset_class"`
	Side       string  `json:"side"`
	Weight     float64 `json:"weight"`
	Notional   string  `json:"notional"`
}

// PlanPayload documents a proposed or accepted rebalancing plan
type PlanPayload struct {
	PlanID        string             `json:"plan_id"`
	Trigger       string             `json:"trigger"`
	Magnitude     float64            `json:"magnitude"`
	Trades        []TradeEntry       `json:"trades"`
	EndState      map[string]float64 `json:"end_state"`
	Turnover      float64            `json:"turnover"`
	EstimatedCost string             `json:"estimated_cost"`
	Iterations    int                `json:"iterations"`
	Verdict       VerdictPayload     `json:"verdict"`
}
