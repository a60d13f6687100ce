package domain

import "errors"

// Domain error kinds. Every one of them is recoverable by the caller
// (re-request input, skip the action, regenerate the plan); they are
// wrapped with context via fmt.Errorf("...: %w", err) and matched with errors.Is.
var (
	ErrInvalidCategory                = errors.New("invalid risk category")
	ErrInvalidSubscore                = errors.New("invalid risk subscore")
	ErrEmptyPortfolio                 = errors.New("portfolio has no positive value")
	ErrNoActionNeeded                 = errors.New("no rebalancing action needed")
	ErrUnresolvableComplianceConflict = errors.New("unresolvable compliance conflict")
	ErrStalePlan                      = errors.New("rebalancing plan is stale")

	// Out-of-band results are rejected with these instead of being clamped
	ErrInvalidVector  = errors.New("invalid allocation vector")
	ErrUnbalancedPlan = errors.New("rebalancing plan does not conserve capital")
	ErrInfeasibleBand = errors.New("allocation band cannot produce an in-band target")

	ErrUnknownEnum     = errors.New("unknown enumeration value")
	ErrInvalidHolding  = errors.New("invalid holding")
	ErrClientNotFound  = errors.New("client not found")
	ErrInvalidClientID = errors.New("invalid client id")
	ErrPlanNotFound    = errors.New("rebalancing plan not found")
)
