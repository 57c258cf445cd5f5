package alert

import (
	"strings"
	"time"

	"safetrip/internal/domain/geo"
)

// HazardAlert is the domain entity corresponding to the `alerts` table.
// The triggered flag is monotonic: the engine only ever flips it false->true,
// and only an external administrative reset clears it.
type HazardAlert struct {
	ID            string
	Kind          Kind
	Region        string
	Point         geo.Point
	Severity      Severity
	Description   string
	TriggerRadius float64   // meters
	ValidUntil    time.Time // zero value = never expires
	Triggered     bool
	CreatedAt     time.Time
	ReportedBy    string // user id for self-reports, empty for ingested readings
	RideID        string // weak reference, id only
	TripID        string // weak reference, id only
	Segment       string // road/segment association for ingested traffic readings
}

// New constructs a validated HazardAlert with kind defaults applied.
func New(id string, kind Kind, region string, point geo.Point, severity Severity, description string) (*HazardAlert, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyID
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	if !severity.Valid() {
		return nil, ErrInvalidSeverity
	}
	if err := point.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &HazardAlert{
		ID:            id,
		Kind:          kind,
		Region:        strings.TrimSpace(region),
		Point:         point,
		Severity:      severity,
		Description:   strings.TrimSpace(description),
		TriggerRadius: kind.DefaultTriggerRadius(),
		CreatedAt:     now,
	}, nil
}

// Expired reports whether the validity window has passed at the given instant.
// A zero ValidUntil never expires.
func (a *HazardAlert) Expired(now time.Time) bool {
	return !a.ValidUntil.IsZero() && a.ValidUntil.Before(now)
}

// Matchable reports whether the alert can still trigger: not expired and not
// already triggered.
func (a *HazardAlert) Matchable(now time.Time) bool {
	return !a.Triggered && !a.Expired(now)
}

// MarkTriggered flips the monotonic triggered flag. Returns false if the
// alert was already triggered.
func (a *HazardAlert) MarkTriggered() bool {
	if a.Triggered {
		return false
	}
	a.Triggered = true
	return true
}

// Escalate raises severity, never lowers it. Returns true when the severity
// actually changed.
func (a *HazardAlert) Escalate(next Severity) bool {
	if !next.Valid() || a.Severity.AtLeast(next) {
		return false
	}
	a.Severity = next
	return true
}
