package enums

import "fmt"

// PaymentLinkage tracks whether a delivery order is attached to a
// consolidated payment and how that payment ended.
type PaymentLinkage string

const (
	PaymentLinkageNone    PaymentLinkage = "none"
	PaymentLinkagePending PaymentLinkage = "pending"
	PaymentLinkagePaid    PaymentLinkage = "paid"
	PaymentLinkageFailed  PaymentLinkage = "failed"
	PaymentLinkageExpired PaymentLinkage = "expired"
)

var validPaymentLinkages = []PaymentLinkage{
	PaymentLinkageNone,
	PaymentLinkagePending,
	PaymentLinkagePaid,
	PaymentLinkageFailed,
	PaymentLinkageExpired,
}

// EligibleLinkages are the linkage states a delivery may be claimed from.
var EligibleLinkages = []PaymentLinkage{
	PaymentLinkageNone,
	PaymentLinkageFailed,
	PaymentLinkageExpired,
}

// String implements fmt.Stringer.
func (p PaymentLinkage) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentLinkage.
func (p PaymentLinkage) IsValid() bool {
	for _, candidate := range validPaymentLinkages {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsEligible reports whether a delivery in this linkage state may join a
// new consolidation.
func (p PaymentLinkage) IsEligible() bool {
	for _, candidate := range EligibleLinkages {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentLinkage converts raw input into a PaymentLinkage.
func ParsePaymentLinkage(value string) (PaymentLinkage, error) {
	for _, candidate := range validPaymentLinkages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment linkage %q", value)
}
