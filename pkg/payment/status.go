package payment

import (
	"strings"

	"github.com/samber/lo"
)

// Status is an upper-cased gateway payment status.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusOverdue        Status = "OVERDUE"
	StatusConfirmed      Status = "CONFIRMED"
	StatusReceived       Status = "RECEIVED"
	StatusReceivedInCash Status = "RECEIVED_IN_CASH"
	StatusCancelled      Status = "CANCELLED"
	StatusRefunded       Status = "REFUNDED"
)

// ParseStatus normalises a raw gateway status string.
func ParseStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// ConfirmedStatuses are the statuses that mean the money arrived.
var ConfirmedStatuses = []Status{StatusConfirmed, StatusReceived, StatusReceivedInCash}

// OpenStatuses are the statuses of a payment still waiting for the customer.
var OpenStatuses = []Status{StatusPending, StatusOverdue}

func (s Status) IsConfirmed() bool { return lo.Contains(ConfirmedStatuses, s) }

func (s Status) IsOpen() bool { return lo.Contains(OpenStatuses, s) }

// IsTerminal reports whether no further transition is accepted from s.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// transitions lists the statuses reachable from each known status. Statuses
// the gateway may add later are accepted from open states only.
var transitions = map[Status][]Status{
	StatusPending:        {StatusOverdue, StatusConfirmed, StatusReceived, StatusReceivedInCash, StatusCancelled},
	StatusOverdue:        {StatusPending, StatusConfirmed, StatusReceived, StatusReceivedInCash, StatusCancelled},
	StatusConfirmed:      {StatusReceived, StatusReceivedInCash, StatusRefunded},
	StatusReceived:       {StatusRefunded},
	StatusReceivedInCash: {StatusRefunded},
}

// CanTransition reports whether a record in status s may move to next.
// Repeating the current status is always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next || s == "" {
		return true
	}
	allowed, known := transitions[s]
	if !known {
		return !s.IsTerminal()
	}
	if lo.Contains(allowed, next) {
		return true
	}
	_, nextKnown := transitions[next]
	return s.IsOpen() && !nextKnown && !next.IsTerminal()
}

// Method is the gateway billing type.
type Method string

const (
	MethodPIX        Method = "PIX"
	MethodBoleto     Method = "BOLETO"
	MethodCreditCard Method = "CREDIT_CARD"
	MethodUndefined  Method = "UNDEFINED"
)

// ParseMethod normalises a raw billing type, defaulting to UNDEFINED.
func ParseMethod(s string) Method {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MethodPIX, MethodBoleto, MethodCreditCard:
		return m
	default:
		return MethodUndefined
	}
}
