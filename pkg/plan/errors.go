package plan

import "errors"

var (
	ErrUnknownPlan  = errors.New("unknown plan")
	ErrUnknownCycle = errors.New("unknown billing cycle")
)
