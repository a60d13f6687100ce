package drift

import (
	"fmt"

	"github.com/aristath/advisor/internal/domain"
)

// CheckFresh reports whether a drift computed from the portfolio now would
// still match this report. It returns ErrStalePlan when the target moved,
// when any current class weight moved by more than weightTol, or when the
// total value moved by more than valueTol (relative).
func (r Report) CheckFresh(p domain.Portfolio, weightTol, valueTol float64) error {
	if err := r.checkTarget(p, weightTol); err != nil {
		return err
	}

	current, err := p.CurrentVector()
	if err != nil {
		return err
	}

	class, moved := current.Delta(r.Current).MaxAbs()
	if moved > weightTol {
		return fmt.Errorf("%w: %s weight moved by %.4f since %s", domain.ErrStalePlan,
			class, moved, r.EvaluatedAt.Format("2006-01-02 15:04:05"))
	}

	if r.PortfolioValue.IsPositive() {
		change := p.TotalValue().Sub(r.PortfolioValue).Div(r.PortfolioValue).Abs().InexactFloat64()
		if change > valueTol {
			return fmt.Errorf("%w: portfolio value moved by %.2f%% (was %s, now %s)", domain.ErrStalePlan,
				change*100, r.PortfolioValue.StringFixed(2), p.TotalValue().StringFixed(2))
		}
	}
	return nil
}

// checkTarget compares the target side of the report. A stored target is
// compared weight by weight; a recomputed one is fresh only while the
// mandate it was derived from is unchanged.
func (r Report) checkTarget(p domain.Portfolio, weightTol float64) error {
	if p.Category != r.Category || p.Subscore != r.Subscore {
		return fmt.Errorf("%w: mandate changed from %s/%.1f to %s/%.1f", domain.ErrStalePlan,
			r.Category, r.Subscore, p.Category, p.Subscore)
	}

	if !p.HasTarget() {
		if !r.TargetRecomputed {
			return fmt.Errorf("%w: target was removed since %s", domain.ErrStalePlan,
				r.EvaluatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	class, moved := p.Target.Delta(r.Target).MaxAbs()
	if moved > weightTol {
		return fmt.Errorf("%w: %s target moved by %.4f since %s", domain.ErrStalePlan,
			class, moved, r.EvaluatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
