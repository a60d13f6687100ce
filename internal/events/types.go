// Package events carries advisory lifecycle events between components and
// out to connected presentation clients.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents different event types
type EventType string

const (
	ClientOnboarded  EventType = "CLIENT_ONBOARDED"
	PortfolioUpdated EventType = "PORTFOLIO_UPDATED"
	VerdictRecorded  EventType = "VERDICT_RECORDED"
	DriftDetected    EventType = "DRIFT_DETECTED"
	PlanProposed     EventType = "PLAN_PROPOSED"
	PlanAccepted     EventType = "PLAN_ACCEPTED"
	ReviewCompleted  EventType = "REVIEW_COMPLETED"
	ErrorOccurred    EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type in emission order of a typical review
func AllTypes() []EventType {
	return []EventType{
		ClientOnboarded,
		PortfolioUpdated,
		VerdictRecorded,
		DriftDetected,
		PlanProposed,
		PlanAccepted,
		ReviewCompleted,
		ErrorOccurred,
	}
}

// Event represents a system event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// UnmarshalJSON decodes Data into the typed struct for the event type
func (e *Event) UnmarshalJSON(b []byte) error {
	var aux struct {
		Type      EventType       `json:"type"`
		Timestamp time.Time       `json:"timestamp"`
		Module    string          `json:"module"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Type = aux.Type
	e.Timestamp = aux.Timestamp
	e.Module = aux.Module
	e.Data = nil

	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		return nil
	}

	var data EventData
	switch aux.Type {
	case ClientOnboarded:
		data = &ClientOnboardedData{}
	case PortfolioUpdated:
		data = &PortfolioUpdatedData{}
	case VerdictRecorded:
		data = &VerdictRecordedData{}
	case DriftDetected:
		data = &DriftDetectedData{}
	case PlanProposed:
		data = &PlanProposedData{}
	case PlanAccepted:
		data = &PlanAcceptedData{}
	case ReviewCompleted:
		data = &ReviewCompletedData{}
	case ErrorOccurred:
		data = &ErrorEventData{}
	default:
		data = &GenericEventData{Type: aux.Type}
	}
	if err := json.Unmarshal(aux.Data, data); err != nil {
		return err
	}
	e.Data = data
	return nil
}
