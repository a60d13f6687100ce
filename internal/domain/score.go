package domain

import (
	"fmt"
	"math"
)

// Profiler score boundaries between risk categories (inclusive upper bounds)
const (
	ConservativeCeiling = 35.0
	ModerateCeiling     = 65.0
)

// ValidateSubscore rejects subscores outside [0,100]
func ValidateSubscore(subscore float64) error {
	if math.IsNaN(subscore) || subscore < 0 || subscore > 100 {
		return fmt.Errorf("%w: %v outside [0,100]", ErrInvalidSubscore, subscore)
	}
	return nil
}

// ClassifyScore maps a finished 0-100 profiler score onto a category and the
// subscore within that category's band, rescaled to 0-100.
func ClassifyScore(score float64) (RiskCategory, float64, error) {
	if err := ValidateSubscore(score); err != nil {
		return 0, 0, err
	}
	switch {
	case score <= ConservativeCeiling:
		return Conservative, score / ConservativeCeiling * 100, nil
	case score <= ModerateCeiling:
		return Moderate, (score - ConservativeCeiling) / (ModerateCeiling - ConservativeCeiling) * 100, nil
	default:
		return Aggressive, (score - ModerateCeiling) / (100 - ModerateCeiling) * 100, nil
	}
}
