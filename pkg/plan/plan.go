package plan

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Plan identifies a subscription tier. Values match the identifiers exchanged
// with the payment gateway and stored in external references.
type Plan string

const (
	Free       Plan = "FREE"
	Plus       Plan = "PLUS"
	Pro        Plan = "PRO"
	PlusAnnual Plan = "PLUS_ANUAL"
	ProAnnual  Plan = "PRO_ANUAL"
)

const annualSuffix = "_ANUAL"

var prices = map[Plan]decimal.Decimal{
	Free:       decimal.Zero,
	Plus:       decimal.RequireFromString("29.90"),
	Pro:        decimal.RequireFromString("49.90"),
	PlusAnnual: decimal.RequireFromString("287.00"),
	ProAnnual:  decimal.RequireFromString("479.00"),
}

// All returns every known plan ordered from cheapest to most expensive.
func All() []Plan {
	return []Plan{Free, Plus, Pro, PlusAnnual, ProAnnual}
}

// Parse converts a raw token into a Plan. Matching is case-insensitive and
// ignores surrounding whitespace. Unknown tokens return ErrUnknownPlan.
func Parse(s string) (Plan, error) {
	p := Plan(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, s)
	}
	return p, nil
}

func (p Plan) String() string { return string(p) }

// Valid reports whether p is present in the price table.
func (p Plan) Valid() bool {
	_, ok := prices[p]
	return ok
}

// Payable reports whether p can be billed. FREE is a non-payable sentinel.
func (p Plan) Payable() bool {
	return p.Valid() && p != Free
}

// Price returns the full cycle price of p.
func (p Plan) Price() (decimal.Decimal, error) {
	price, ok := prices[p]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownPlan, string(p))
	}
	return price, nil
}

// IsAnnual reports whether p bills yearly.
func (p Plan) IsAnnual() bool {
	return strings.HasSuffix(string(p), annualSuffix)
}

// Cycle returns the billing cycle of p.
func (p Plan) Cycle() Cycle {
	if p.IsAnnual() {
		return Yearly
	}
	return Monthly
}
