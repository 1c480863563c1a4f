package plan

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReasonSamePlan is returned in Quote.Reason when the target equals the current plan.
const ReasonSamePlan = "same plan"

// Quote is the priced outcome of a plan change request.
type Quote struct {
	ChangePrice   decimal.Decimal `json:"change_price"`
	DaysRemaining int             `json:"days_remaining"`
	CanChange     bool            `json:"can_change"`
	IsDowngrade   bool            `json:"is_downgrade"`
	Expired       bool            `json:"expired"`
	Reason        string          `json:"reason,omitempty"`
}

// Calculate prices a change from current to target for a cycle ending at
// cycleEnd, observed at now. It performs no I/O.
//
// Downgrades are free and deferred to the next cycle. Upgrades inside the same
// cycle length pay the daily rate difference for the remaining days. Moving
// from a monthly to an annual plan buys a fresh annual cycle, minus the unused
// part of the monthly cycle. Amounts are rounded to cents only at the end.
func Calculate(current, target Plan, cycleEnd, now time.Time) (Quote, error) {
	currentPrice, err := current.Price()
	if err != nil {
		return Quote{}, err
	}
	targetPrice, err := target.Price()
	if err != nil {
		return Quote{}, err
	}

	if current == target {
		return Quote{ChangePrice: decimal.Zero, Reason: ReasonSamePlan}, nil
	}

	if !cycleEnd.After(now) {
		return Quote{
			ChangePrice: targetPrice.Round(2),
			CanChange:   true,
			Expired:     true,
		}, nil
	}

	days := DaysBetween(now, cycleEnd)
	annualUpsell := !current.IsAnnual() && target.IsAnnual()

	if targetPrice.LessThan(currentPrice) && !annualUpsell {
		return Quote{
			ChangePrice:   decimal.Zero,
			DaysRemaining: days,
			CanChange:     true,
			IsDowngrade:   true,
		}, nil
	}

	cycleStart := AddCycle(cycleEnd, current.Cycle(), -1)
	cycleLen := decimal.NewFromInt(int64(max(DaysBetween(cycleStart, cycleEnd), 1)))
	remaining := decimal.NewFromInt(int64(days))

	if annualUpsell {
		credit := currentPrice.Mul(remaining).Div(cycleLen)
		return Quote{
			ChangePrice:   nonNegative(targetPrice.Sub(credit)).Round(2),
			DaysRemaining: DaysBetween(now, AddCycle(now, Yearly, 1)),
			CanChange:     true,
		}, nil
	}

	diff := targetPrice.Sub(currentPrice).Mul(remaining).Div(cycleLen)
	return Quote{
		ChangePrice:   nonNegative(diff).Round(2),
		DaysRemaining: days,
		CanChange:     true,
	}, nil
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
