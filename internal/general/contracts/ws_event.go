package contracts

import "time"

// ----- Inbound payloads (client -> server) -----

// UpdateLocationPayload carries a position report.
type UpdateLocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Region    string  `json:"region,omitempty"`
}

// FloodReportPayload is a user-submitted flood sighting.
type FloodReportPayload struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Region      string  `json:"region"`
}

// HotspotQueryPayload asks for hazard clusters around a point.
type HotspotQueryPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusM   float64 `json:"radius,omitempty"`
	Region    string  `json:"region,omitempty"`
}

// AdminBroadcastPayload pushes a region-wide advisory. Requires ADMIN role.
type AdminBroadcastPayload struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Region   string `json:"region"`
}

// ----- Outbound events (server -> client) -----

// AlertView is the wire shape of a hazard alert.
type AlertView struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Region        string    `json:"region,omitempty"`
	Location      GeoPoint  `json:"location"`
	Severity      string    `json:"severity"`
	Description   string    `json:"description,omitempty"`
	TriggerRadius float64   `json:"trigger_radius_m"`
	ValidUntil    time.Time `json:"valid_until,omitempty"`
	Triggered     bool      `json:"triggered"`
	CreatedAt     time.Time `json:"created_at"`
	RideID        string    `json:"ride_id,omitempty"`
	TripID        string    `json:"trip_id,omitempty"`
}

// WSProximityAlert is the "you are near a hazard" notification.
type WSProximityAlert struct {
	Type           string    `json:"type"` // "proximityFloodAlert"
	Alert          AlertView `json:"alert"`
	DistanceMeters float64   `json:"distance_meters"`
	Message        string    `json:"message"`
	Envelope
}

// WSAlertEvent wraps alertCreated / alertUpdated notifications.
type WSAlertEvent struct {
	Type  string    `json:"type"` // "alertCreated" | "alertUpdated"
	Alert AlertView `json:"alert"`
	Envelope
}

// Hotspot is one cluster entry in a nearbyHotspots response.
type Hotspot struct {
	AlertID        string   `json:"alert_id"`
	Kind           string   `json:"kind"`
	Location       GeoPoint `json:"location"`
	DistanceMeters float64  `json:"distance_meters"`
	Severity       string   `json:"severity,omitempty"`
}

// WSNearbyHotspots answers a get-nearby-hotspots query.
type WSNearbyHotspots struct {
	Type     string    `json:"type"` // "nearbyHotspots"
	Hotspots []Hotspot `json:"hotspots"`
	Envelope
}

// WSRainAlert is the per-connection forecast notification.
type WSRainAlert struct {
	Type      string    `json:"type"` // "rainAlertUpdate"
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}

// WSAdvisory is a region-wide admin broadcast. It carries no coordinates;
// delivery scope is the region channel.
type WSAdvisory struct {
	Type      string    `json:"type"` // "advisory"
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Region    string    `json:"region"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}

// WSError is the structured error event; the connection stays open.
type WSError struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
