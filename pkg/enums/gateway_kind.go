package enums

import "fmt"

// GatewayKind is the closed set of payment providers the platform knows.
// Adding a provider means adding a constant here and a client under
// internal/gateway, so the selector stays exhaustively checkable.
type GatewayKind string

const (
	GatewayKindIugu    GatewayKind = "iugu"
	GatewayKindPagarme GatewayKind = "pagarme"
	GatewayKindDryRun  GatewayKind = "dry_run"
)

var validGatewayKinds = []GatewayKind{
	GatewayKindIugu,
	GatewayKindPagarme,
	GatewayKindDryRun,
}

// String implements fmt.Stringer.
func (g GatewayKind) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GatewayKind.
func (g GatewayKind) IsValid() bool {
	for _, candidate := range validGatewayKinds {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGatewayKind converts raw input into a GatewayKind.
func ParseGatewayKind(value string) (GatewayKind, error) {
	for _, candidate := range validGatewayKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway kind %q", value)
}
