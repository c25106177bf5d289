package enums

import "fmt"

// ConsolidatedPaymentStatus tracks the lifecycle of a consolidated payment.
type ConsolidatedPaymentStatus string

const (
	ConsolidatedPaymentStatusPending   ConsolidatedPaymentStatus = "pending"
	ConsolidatedPaymentStatusCompleted ConsolidatedPaymentStatus = "completed"
	ConsolidatedPaymentStatusFailed    ConsolidatedPaymentStatus = "failed"
	ConsolidatedPaymentStatusExpired   ConsolidatedPaymentStatus = "expired"
	ConsolidatedPaymentStatusCancelled ConsolidatedPaymentStatus = "cancelled"
)

var validConsolidatedPaymentStatuses = []ConsolidatedPaymentStatus{
	ConsolidatedPaymentStatusPending,
	ConsolidatedPaymentStatusCompleted,
	ConsolidatedPaymentStatusFailed,
	ConsolidatedPaymentStatusExpired,
	ConsolidatedPaymentStatusCancelled,
}

// String implements fmt.Stringer.
func (c ConsolidatedPaymentStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ConsolidatedPaymentStatus.
func (c ConsolidatedPaymentStatus) IsValid() bool {
	for _, candidate := range validConsolidatedPaymentStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (c ConsolidatedPaymentStatus) IsTerminal() bool {
	switch c {
	case ConsolidatedPaymentStatusCompleted,
		ConsolidatedPaymentStatusFailed,
		ConsolidatedPaymentStatusExpired,
		ConsolidatedPaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseConsolidatedPaymentStatus converts raw input into a ConsolidatedPaymentStatus.
func ParseConsolidatedPaymentStatus(value string) (ConsolidatedPaymentStatus, error) {
	for _, candidate := range validConsolidatedPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid consolidated payment status %q", value)
}
