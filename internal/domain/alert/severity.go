package alert

import (
	"errors"
	"strings"
)

// Severity is the normalized three-level ordering used by the engine.
// External sources speak several dialects (info/warning/critical,
// minor/moderate/severe); ParseSeverity folds them into one scale.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

var ErrInvalidSeverity = errors.New("invalid severity")

// ParseSeverity normalizes a severity string, accepting common source aliases.
func ParseSeverity(in string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(in)) {
	case "LOW", "INFO", "MINOR":
		return SeverityLow, nil
	case "MEDIUM", "WARNING", "MODERATE":
		return SeverityMedium, nil
	case "HIGH", "CRITICAL", "SEVERE":
		return SeverityHigh, nil
	default:
		return "", ErrInvalidSeverity
	}
}

// Valid reports whether severity is one of the allowed constants.
func (severity Severity) Valid() bool {
	switch severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Severity.
func (severity Severity) String() string {
	return string(severity)
}

// Rank returns the ordering weight (LOW=1 .. HIGH=3, unknown=0).
func (severity Severity) Rank() int {
	switch severity {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether severity is equal to or above other.
func (severity Severity) AtLeast(other Severity) bool {
	return severity.Rank() >= other.Rank()
}
