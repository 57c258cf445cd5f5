package contracts

// Exchanges
const (
	ExchangeAlertTopic   = "alert_topic"
	ExchangeHazardIntake = "hazard_intake"
)

// Queues
const (
	QueueTrafficReadings = "traffic_readings"
	QueueAlertEvents     = "alert_events"
)

// Routing patterns
const (
	RouteAlertCreatedPrefix   = "alert.created."   // {kind}
	RouteAlertTriggeredPrefix = "alert.triggered." // {alert_id}
	RouteAlertUpdatedPrefix   = "alert.updated."   // {alert_id}
	RouteTrafficReading       = "hazard.traffic"
)

// Inbound WS message types
const (
	MsgUpdateLocation    = "update-location"
	MsgSubmitFloodReport = "submit-flood-report"
	MsgGetNearbyHotspots = "get-nearby-hotspots"
	MsgAdminBroadcast    = "admin-broadcast"
)

// Outbound WS event types
const (
	EventProximityFloodAlert = "proximityFloodAlert"
	EventAlertCreated        = "alertCreated"
	EventAlertUpdated        = "alertUpdated"
	EventNearbyHotspots      = "nearbyHotspots"
	EventRainAlertUpdate     = "rainAlertUpdate"
	EventAdvisory            = "advisory"
	EventError               = "error"
)
