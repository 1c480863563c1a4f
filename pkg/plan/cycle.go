package plan

import (
	"fmt"
	"time"
)

// Cycle is the recurring billing period of a plan.
type Cycle string

const (
	Monthly Cycle = "MONTHLY"
	Yearly  Cycle = "YEARLY"
)

// ParseCycle validates a gateway cycle identifier.
func ParseCycle(s string) (Cycle, error) {
	switch c := Cycle(s); c {
	case Monthly, Yearly:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCycle, s)
	}
}

// AddCycle moves t by n billing cycles using calendar arithmetic. The day of
// month is clamped to the last day of the target month, so Jan 31 plus one
// month is the last day of February and Feb 29 minus one year is Feb 28.
func AddCycle(t time.Time, c Cycle, n int) time.Time {
	months := n
	if c == Yearly {
		months = n * 12
	}
	return addMonths(t, months)
}

func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	total := int(m) - 1 + months
	y += total / 12
	total %= 12
	if total < 0 {
		total += 12
		y--
	}
	target := time.Month(total + 1)

	if last := daysIn(y, target, t.Location()); d > last {
		d = last
	}
	return time.Date(y, target, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// DaysBetween returns the number of whole or partial days from start to end,
// rounded up. Non-positive spans return 0.
func DaysBetween(start, end time.Time) int {
	diff := end.Sub(start)
	if diff <= 0 {
		return 0
	}
	days := diff / (24 * time.Hour)
	if diff%(24*time.Hour) != 0 {
		days++
	}
	return int(days)
}
