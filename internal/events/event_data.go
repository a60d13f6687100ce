package events

import (
	"encoding/json"
)

// EventData is implemented by every typed event payload
type EventData interface {
	EventType() EventType
}

// ClientOnboardedData contains data for ClientOnboarded events
type ClientOnboardedData struct {
	ClientID     string             `json:"client_id"`
	RiskCategory string             `json:"risk_category"`
	Subscore     float64            `json:"subscore"`
	Target       map[string]float64 `json:"target"`
	Compliant    bool               `json:"compliant"`
}

// EventType returns the event type for ClientOnboardedData
func (d *ClientOnboardedData) EventType() EventType {
	return ClientOnboarded
}

// PortfolioUpdatedData contains data for PortfolioUpdated events
type PortfolioUpdatedData struct {
	ClientID   string `json:"client_id"`
	Holdings   int    `json:"holdings"`
	TotalValue string `json:"total_value"`
}

// EventType returns the event type for PortfolioUpdatedData
func (d *PortfolioUpdatedData) EventType() EventType {
	return PortfolioUpdated
}

// VerdictRecordedData contains data for VerdictRecorded events
type VerdictRecordedData struct {
	ClientID string   `json:"client_id"`
	Passed   bool     `json:"passed"`
	Summary  string   `json:"summary"`
	Failures []string `json:"failures,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// EventType returns the event type for VerdictRecordedData
func (d *VerdictRecordedData) EventType() EventType {
	return VerdictRecorded
}

// DriftDetectedData contains data for DriftDetected events
type DriftDetectedData struct {
	ClientID      string  `json:"client_id"`
	Magnitude     float64 `json:"magnitude"`
	MaxDriftClass string  `json:"max_drift_class"`
	Signal        string  `json:"signal"`
	Reason        string  `json:"reason"`
}

// EventType returns the event type for DriftDetectedData
func (d *DriftDetectedData) EventType() EventType {
	return DriftDetected
}

// PlanProposedData contains data for PlanProposed events
type PlanProposedData struct {
	ClientID      string  `json:"client_id"`
	PlanID        string  `json:"plan_id"`
	Trades        int     `json:"trades"`
	Turnover      float64 `json:"turnover"`
	EstimatedCost string  `json:"estimated_cost"`
	Iterations    int     `json:"iterations"`
}

// EventType returns the event type for PlanProposedData
func (d *PlanProposedData) EventType() EventType {
	return PlanProposed
}

// PlanAcceptedData contains data for PlanAccepted events
type PlanAcceptedData struct {
	ClientID string      `json:"client_id"`
	PlanID   string      `json:"plan_id"`
	Trades   []TradeData `json:"trades"`
}

// TradeData is one accepted trade handed to execution
type TradeData struct {
	AssetClass string  `json:"asset_class"`
	Side       string  `json:"side"`
	Weight     float64 `json:"weight"`
	Notional   string  `json:"notional"`
}

// EventType returns the event type for PlanAcceptedData
func (d *PlanAcceptedData) EventType() EventType {
	return PlanAccepted
}

// ReviewCompletedData contains data for ReviewCompleted events
type ReviewCompletedData struct {
	Clients   int    `json:"clients"`
	Triggered int    `json:"triggered"`
	Planned   int    `json:"planned"`
	Errors    int    `json:"errors"`
	Duration  string `json:"duration"`
}

// EventType returns the event type for ReviewCompletedData
func (d *ReviewCompletedData) EventType() EventType {
	return ReviewCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// GenericEventData is a fallback for events without a typed payload
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
