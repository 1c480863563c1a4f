// Package plan holds the plan catalogue and the pro-rata pricing engine.
//
// The catalogue is fixed: FREE, PLUS, PRO, PLUS_ANUAL and PRO_ANUAL. Any other
// identifier is rejected with ErrUnknownPlan rather than priced with a default.
//
// # Pricing
//
// Calculate is a pure function of the current plan, the target plan, the end
// of the current billing cycle and the observation time:
//
//	q, err := plan.Calculate(plan.Plus, plan.Pro, cycleEnd, time.Now())
//	if err != nil {
//		return err
//	}
//	if q.IsDowngrade {
//		// stage the change for the next renewal, nothing to charge
//	}
//
// Cycle arithmetic uses calendar months and years (see AddCycle), so the
// length of a monthly cycle depends on the month it spans.
package plan
