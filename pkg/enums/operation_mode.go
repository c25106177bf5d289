package enums

import "fmt"

// OperationMode selects how the platform talks to payment providers.
// Dry-run swaps the provider clients for fabricating stubs at wiring time;
// it never branches inside business logic.
type OperationMode string

const (
	OperationModeDryRun     OperationMode = "dry_run"
	OperationModeSandbox    OperationMode = "sandbox"
	OperationModeProduction OperationMode = "production"
)

var validOperationModes = []OperationMode{
	OperationModeDryRun,
	OperationModeSandbox,
	OperationModeProduction,
}

// String implements fmt.Stringer.
func (o OperationMode) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OperationMode.
func (o OperationMode) IsValid() bool {
	for _, candidate := range validOperationModes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOperationMode converts raw input into an OperationMode.
func ParseOperationMode(value string) (OperationMode, error) {
	for _, candidate := range validOperationModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operation mode %q", value)
}
