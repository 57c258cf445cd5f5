package contracts

import "time"

// TrafficReadingMessage is the normalized traffic reading consumed from the
// hazard intake queue. Producers (edge collectors, partner feeds) publish to
// ExchangeHazardIntake with RouteTrafficReading.
type TrafficReadingMessage struct {
	Segment         string    `json:"segment"`
	Region          string    `json:"region"`
	Location        GeoPoint  `json:"location"`
	CongestionLevel string    `json:"congestion_level"` // low | moderate | severe
	DelayMinutes    int       `json:"delay_minutes"`
	ObservedAt      time.Time `json:"observed_at"`
	Envelope
}

// AlertEventMessage mirrors alert lifecycle events to the topic exchange for
// out-of-process consumers.
type AlertEventMessage struct {
	Event string    `json:"event"` // created | updated | triggered
	Alert AlertView `json:"alert"`
	Envelope
}
