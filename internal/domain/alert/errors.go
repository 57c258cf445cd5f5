package alert

import "errors"

// Sentinel errors shared across the alerting core. Handlers translate these
// to structured events at the connection boundary; everything else is wrapped
// with %w and checked via errors.Is.
var (
	ErrEmptyID        = errors.New("alert id cannot be empty")
	ErrNotFound       = errors.New("alert not found")
	ErrValidation     = errors.New("invalid payload")
	ErrAuth           = errors.New("unauthorized")
	ErrTransientStore = errors.New("alert store temporarily unavailable")
	ErrExternalFetch  = errors.New("external source unavailable")
)
