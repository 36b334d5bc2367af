package domain

import "fmt"

// ValidationMode controls whether schema failures block a request.
type ValidationMode string

const (
	// ValidationEnforced blocks the request on failure. Platform default for
	// request bodies.
	ValidationEnforced ValidationMode = "enforced"

	// ValidationMonitorOnly records the failure and lets the request proceed.
	ValidationMonitorOnly ValidationMode = "monitor"

	// ValidationDisabled skips validation entirely. Requires explicit opt-in;
	// never the default for request bodies. Default for response bodies.
	ValidationDisabled ValidationMode = "disabled"
)

// ParseValidationMode parses a configuration string into a mode.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch ValidationMode(s) {
	case ValidationEnforced, ValidationMonitorOnly, ValidationDisabled:
		return ValidationMode(s), nil
	case "":
		return ValidationEnforced, nil
	default:
		return "", fmt.Errorf("unknown validation mode %q (want enforced, monitor, or disabled)", s)
	}
}

// ValidationError locates a single schema violation.
type ValidationError struct {
	// Pointer is the JSON-pointer-like location of the offending value,
	// e.g. "/email".
	Pointer string `json:"pointer"`

	// Message describes the violation.
	Message string `json:"message"`
}

// ValidationOutcome is the result of validating one body against one schema.
// Validation is a pure function of (operation, body): equal inputs yield
// equal outcomes with no side effects.
type ValidationOutcome struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidOutcome is the success value.
func ValidOutcome() ValidationOutcome {
	return ValidationOutcome{Valid: true}
}

// InvalidOutcome builds a failed outcome from an ordered error list.
func InvalidOutcome(errs []ValidationError) ValidationOutcome {
	return ValidationOutcome{Valid: false, Errors: errs}
}
