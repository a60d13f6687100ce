// Package compliance evaluates allocations against the regulatory rule set
// and renders pass/fail verdicts with rule-by-rule detail.
package compliance

import (
	"fmt"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/rs/zerolog"
)

// Engine runs an ordered rule set. Every rule is evaluated on every call;
// the verdict carries all results, not only the first failure.
type Engine struct {
	rules []Rule
	log   zerolog.Logger
}

// NewEngine creates an engine with the default rules for a policy
func NewEngine(policy config.Policy, log zerolog.Logger) *Engine {
	return NewEngineWithRules(DefaultRules(policy), log)
}

// NewEngineWithRules creates an engine with a custom rule set
func NewEngineWithRules(rules []Rule, log zerolog.Logger) *Engine {
	return &Engine{
		rules: rules,
		log:   log.With().Str("component", "compliance_engine").Logger(),
	}
}

// Rules returns the rule set in evaluation order
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate renders a verdict. A failing portfolio is a normal result;
// errors are returned only for malformed input.
func (e *Engine) Evaluate(s Subject) (Verdict, error) {
	if !s.Category.Valid() {
		return Verdict{}, fmt.Errorf("%w: %d", domain.ErrInvalidCategory, s.Category)
	}
	if err := s.Vector.Validate(); err != nil {
		return Verdict{}, fmt.Errorf("compliance subject for client %s: %w", s.ClientID, err)
	}

	verdict := Verdict{
		ClientID: s.ClientID,
		Category: s.Category,
		Passed:   true,
		Results:  make([]Result, 0, len(e.rules)),
	}
	for _, rule := range e.rules {
		result := rule.Check(s)
		if !result.Passed && result.Severity == domain.Hard {
			verdict.Passed = false
		}
		verdict.Results = append(verdict.Results, result)
	}

	e.log.Debug().
		Str("client_id", s.ClientID).
		Bool("passed", verdict.Passed).
		Int("failures", len(verdict.Failures())).
		Int("warnings", len(verdict.Warnings())).
		Msg("Compliance evaluated")

	return verdict, nil
}
