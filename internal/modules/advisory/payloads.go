package advisory

import (
	"github.com/aristath/advisor/internal/audit"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/compliance"
	"github.com/aristath/advisor/internal/modules/rebalancing"
	"github.com/aristath/advisor/internal/modules/simulation"
)

func vectorMap(v domain.Vector) map[string]float64 {
	out := make(map[string]float64, len(v))
	for class, w := range v {
		out[class.String()] = w
	}
	return out
}

func verdictPayload(v compliance.Verdict, subscore float64, vector domain.Vector) audit.VerdictPayload {
	payload := audit.VerdictPayload{
		RiskCategory: v.Category.String(),
		Subscore:     subscore,
		Vector:       vectorMap(vector),
		Passed:       v.Passed,
		Summary:      v.Summary(),
		Results:      make([]audit.RuleEntry, 0, len(v.Results)),
	}
	for _, r := range v.Results {
		entry := audit.RuleEntry{
			Rule:     r.Rule,
			Severity: r.Severity.String(),
			Passed:   r.Passed,
			Detail:   r.Detail,
		}
		for _, o := range r.Offenders {
			switch {
			case o.HoldingID != "":
				entry.Offenders = append(entry.Offenders, o.HoldingID)
			case o.Sector != "":
				entry.Offenders = append(entry.Offenders, o.Sector)
			default:
				entry.Offenders = append(entry.Offenders, o.Class.String())
			}
		}
		payload.Results = append(payload.Results, entry)
	}
	return payload
}

func planPayload(plan rebalancing.Plan, sim simulation.Result, subscore float64) audit.PlanPayload {
	payload := audit.PlanPayload{
		PlanID:        plan.ID,
		Trigger:       string(plan.Report.Reason),
		Magnitude:     plan.Report.Magnitude,
		Trades:        make([]audit.TradeEntry, 0, len(plan.Trades)),
		EndState:      vectorMap(plan.EndState),
		Turnover:      plan.Turnover(),
		EstimatedCost: sim.EstimatedCostImpact.StringFixed(2),
		Iterations:    plan.Iterations,
		Verdict:       verdictPayload(sim.Verdict, subscore, sim.ResultingVector),
	}
	for _, t := range plan.Trades {
		payload.Trades = append(payload.Trades, audit.TradeEntry{
			AssetClass: t.Class.String(),
			Side:       t.Side.String(),
			Weight:     t.Weight,
			Notional:   t.Notional.StringFixed(2),
		})
	}
	return payload
}
