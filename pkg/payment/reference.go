package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// Kind classifies why a payment was issued.
type Kind string

const (
	KindStandard     Kind = "STANDARD"
	KindUpgrade      Kind = "UPGRADE"
	KindSubscription Kind = "SUB"
)

const referenceSeparator = ":"

// Reference is the correlation data round-tripped through the gateway's
// free-text externalReference field.
type Reference struct {
	Kind     Kind
	Plan     plan.Plan
	ChatID   string
	IssuedAt time.Time
	// PlanDefaulted is set by ParseReference when the plan token did not match
	// any known plan and PLUS was assumed.
	PlanDefaulted bool
}

// NewReference builds a reference stamped with issuedAt.
func NewReference(kind Kind, p plan.Plan, chatID string, issuedAt time.Time) Reference {
	return Reference{Kind: kind, Plan: p, ChatID: chatID, IssuedAt: issuedAt}
}

// String encodes r as "<PLAN>:<chat>:<ms>", prefixed with "UPGRADE:" or
// "SUB:" for upgrade and subscription payments.
func (r Reference) String() string {
	parts := []string{string(r.Plan), r.ChatID, strconv.FormatInt(r.IssuedAt.UnixMilli(), 10)}
	switch r.Kind {
	case KindUpgrade, KindSubscription:
		parts = append([]string{string(r.Kind)}, parts...)
	}
	return strings.Join(parts, referenceSeparator)
}

// IsUpgrade reports whether the reference tags an upgrade payment.
func (r Reference) IsUpgrade() bool { return r.Kind == KindUpgrade }

// ParseReference decodes an external reference. The plan token is trimmed
// and upper-cased before matching; unmatched tokens fall back to PLUS with
// PlanDefaulted set. A missing chat id or plan token is an error.
func ParseReference(raw string) (Reference, error) {
	parts := strings.Split(strings.TrimSpace(raw), referenceSeparator)

	ref := Reference{Kind: KindStandard}
	offset := 0
	if len(parts) > 0 {
		switch Kind(strings.ToUpper(strings.TrimSpace(parts[0]))) {
		case KindUpgrade:
			ref.Kind, offset = KindUpgrade, 1
		case KindSubscription:
			ref.Kind, offset = KindSubscription, 1
		}
	}

	if len(parts) < offset+2 {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}

	token := strings.TrimSpace(parts[offset])
	chatID := strings.TrimSpace(parts[offset+1])
	if token == "" || chatID == "" {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}
	ref.ChatID = chatID

	if p, err := plan.Parse(token); err == nil {
		ref.Plan = p
	} else {
		ref.Plan = plan.Plus
		ref.PlanDefaulted = true
	}

	if len(parts) > offset+2 {
		if ms, err := strconv.ParseInt(strings.TrimSpace(parts[offset+2]), 10, 64); err == nil {
			ref.IssuedAt = time.UnixMilli(ms).UTC()
		}
	}

	return ref, nil
}
