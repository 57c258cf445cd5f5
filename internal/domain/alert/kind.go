package alert

import (
	"errors"
	"strings"
)

// Kind classifies the source condition behind an alert.
type Kind string

const (
	KindTraffic Kind = "TRAFFIC"
	KindFlood   Kind = "FLOOD"
	KindWeather Kind = "WEATHER"
	KindRoute   Kind = "ROUTE"
	KindSearch  Kind = "SEARCH"
)

var ErrInvalidKind = errors.New("invalid alert kind")

// ParseKind normalizes (uppercases+trims) and validates a kind string.
func ParseKind(in string) (Kind, error) {
	kind := Kind(strings.ToUpper(strings.TrimSpace(in)))
	if kind.Valid() {
		return kind, nil
	}
	return "", ErrInvalidKind
}

// Valid reports whether kind is one of the allowed kind constants.
func (kind Kind) Valid() bool {
	switch kind {
	case KindTraffic, KindFlood, KindWeather, KindRoute, KindSearch:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Kind.
func (kind Kind) String() string {
	return string(kind)
}

// DefaultTriggerRadius returns the kind-specific trigger radius in meters.
// Road-scale conditions (traffic, route advisories) affect a wider area than
// point hazards like flooding.
func (kind Kind) DefaultTriggerRadius() float64 {
	switch kind {
	case KindTraffic, KindRoute:
		return 5000
	case KindFlood, KindWeather, KindSearch:
		return 1000
	default:
		return 100
	}
}
