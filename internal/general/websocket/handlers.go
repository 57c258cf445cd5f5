package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/domain/geo"
	"safetrip/internal/domain/user"
	"safetrip/internal/engine"
	"safetrip/internal/general/contracts"
	"safetrip/internal/observability"

	"github.com/gorilla/websocket"
)

const defaultHotspotRadiusM = 5000

// handleUpdateLocation records the user's position, re-homes their region and
// grid channels, runs proximity evaluation, and delivers any fresh matches.
// A bad payload answers with an error event; the connection stays up.
func (g *Gateway) handleUpdateLocation(ctx context.Context, conn *websocket.Conn, userID string, data json.RawMessage, state *connState) {
	var p contracts.UpdateLocationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendError(conn, "invalid location payload", err.Error())
		return
	}

	point, err := geo.NewPoint(p.Latitude, p.Longitude)
	if err != nil {
		g.sendError(conn, "invalid coordinates", err.Error())
		return
	}

	region := strings.TrimSpace(p.Region)
	g.registry.Upsert(userID, point, region)
	g.rehome(userID, region, geo.CellOf(point).Key(), state)

	for _, match := range g.engine.EvaluateProximity(ctx, userID, point, region) {
		event := proximityEvent(match)

		if err := g.writeJSON(conn, event); err != nil {
			g.logger.Error(ctx, "proximity_send_failed", "Failed to deliver proximity alert", err, map[string]any{
				"user_id":  userID,
				"alert_id": match.Alert.ID,
			})
			continue
		}
		observability.EventsPublished.WithLabelValues(contracts.EventProximityFloodAlert).Inc()

		g.fanOutTriggered(userID, region, match, state)
	}
}

// fanOutTriggered spreads a fresh trigger beyond the moving user: the alert's
// region, every other present user inside the trigger radius, and the user's
// own ride/trip channels.
func (g *Gateway) fanOutTriggered(userID, region string, match engine.Triggered, state *connState) {
	event := proximityEvent(match)

	alertRegion := match.Alert.Region
	if alertRegion == "" {
		alertRegion = region
	}
	if alertRegion != "" {
		g.router.PublishExcept(contracts.RegionChannel(alertRegion), userID, event)
	}

	// other present users inside the radius get a direct notification even if
	// they have not joined the region channel
	for _, rec := range g.registry.SnapshotAll() {
		if rec.UserID == userID {
			continue
		}
		if geo.Distance(match.Alert.Point, rec.Point) <= match.Alert.TriggerRadius {
			g.router.Publish(contracts.UserChannel(rec.UserID), event)
		}
	}

	for _, rideID := range state.rides {
		g.router.PublishExcept(contracts.RideChannel(rideID), userID, event)
	}
	for _, tripID := range state.trips {
		g.router.PublishExcept(contracts.TripChannel(tripID), userID, event)
	}
}

// rehome moves the connection between region and grid channels as the user
// crosses boundaries. No-ops while they stay put.
func (g *Gateway) rehome(userID, region, grid string, state *connState) {
	if region != state.region {
		if state.region != "" {
			g.router.Leave(userID, contracts.RegionChannel(state.region))
		}
		if region != "" {
			g.router.Join(userID, contracts.RegionChannel(region))
		}
		state.region = region
	}
	if grid != state.grid {
		if state.grid != "" {
			g.router.Leave(userID, contracts.GridChannel(state.grid))
		}
		g.router.Join(userID, contracts.GridChannel(grid))
		state.grid = grid
	}
}

// handleFloodReport ingests a user-submitted flood sighting and acks it. The
// engine handles persistence, region announcement, and proximity fan-out.
func (g *Gateway) handleFloodReport(ctx context.Context, conn *websocket.Conn, userID string, data json.RawMessage, state *connState) {
	var p contracts.FloodReportPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendError(conn, "invalid flood report", err.Error())
		return
	}

	point, err := geo.NewPoint(p.Latitude, p.Longitude)
	if err != nil {
		g.sendError(conn, "invalid coordinates", err.Error())
		return
	}

	severity := alert.SeverityMedium
	if strings.TrimSpace(p.Severity) != "" {
		severity, err = alert.ParseSeverity(p.Severity)
		if err != nil {
			g.sendError(conn, "invalid severity", p.Severity)
			return
		}
	}

	region := strings.TrimSpace(p.Region)
	if region == "" {
		region = state.region
	}

	a, err := g.engine.IngestHazard(ctx, engine.Reading{
		Kind:        alert.KindFlood,
		Region:      region,
		Point:       point,
		Severity:    severity,
		Description: p.Description,
		ReportedBy:  userID,
	})
	if err != nil {
		g.logger.Error(ctx, "flood_report_failed", "Flood report not ingested", err, map[string]any{
			"user_id": userID,
		})
		g.sendError(conn, "failed to submit flood report", "")
		return
	}

	// direct ack so the reporter sees their alert even without a region channel
	_ = g.writeJSON(conn, contracts.WSAlertEvent{
		Type:     contracts.EventAlertCreated,
		Alert:    engine.View(*a),
		Envelope: contracts.Envelope{SentAt: time.Now().UTC()},
	})
}

// handleNearbyHotspots answers a radius query, preferring the external
// hotspot index and falling back to the in-memory one when it is down.
func (g *Gateway) handleNearbyHotspots(ctx context.Context, conn *websocket.Conn, userID string, data json.RawMessage) {
	var p contracts.HotspotQueryPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendError(conn, "invalid hotspot query", err.Error())
		return
	}

	point, err := geo.NewPoint(p.Latitude, p.Longitude)
	if err != nil {
		g.sendError(conn, "invalid coordinates", err.Error())
		return
	}
	radius := p.RadiusM
	if radius <= 0 {
		radius = defaultHotspotRadiusM
	}

	var hotspots []contracts.Hotspot
	if g.hotspots != nil {
		hotspots, err = g.hotspots(ctx, point.Latitude, point.Longitude, radius, 50)
		if err != nil {
			g.logger.Error(ctx, "hotspot_query_failed", "External hotspot index unavailable, using in-memory index", err, nil)
			hotspots = nil
		}
	}
	if hotspots == nil {
		now := time.Now().UTC()
		for _, m := range g.index.Query(point, radius) {
			if m.Alert.Expired(now) {
				continue
			}
			hotspots = append(hotspots, contracts.Hotspot{
				AlertID:        m.Alert.ID,
				Kind:           m.Alert.Kind.String(),
				Location:       contracts.GeoPoint{Lat: m.Alert.Point.Latitude, Lng: m.Alert.Point.Longitude},
				DistanceMeters: m.DistanceM,
				Severity:       m.Alert.Severity.String(),
			})
		}
	}

	_ = g.writeJSON(conn, contracts.WSNearbyHotspots{
		Type:     contracts.EventNearbyHotspots,
		Hotspots: hotspots,
		Envelope: contracts.Envelope{SentAt: time.Now().UTC()},
	})
	observability.EventsPublished.WithLabelValues(contracts.EventNearbyHotspots).Inc()
}

// handleAdminBroadcast pushes a region-wide advisory. ADMIN role only.
func (g *Gateway) handleAdminBroadcast(ctx context.Context, conn *websocket.Conn, userID string, role user.Role, data json.RawMessage) {
	if !role.IsAdmin() {
		g.sendError(conn, "unauthorized", "admin role required")
		return
	}

	var p contracts.AdminBroadcastPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendError(conn, "invalid broadcast payload", err.Error())
		return
	}
	if strings.TrimSpace(p.Message) == "" || strings.TrimSpace(p.Region) == "" {
		g.sendError(conn, "invalid broadcast payload", "message and region are required")
		return
	}

	severity := alert.SeverityMedium
	if strings.TrimSpace(p.Severity) != "" {
		var err error
		severity, err = alert.ParseSeverity(p.Severity)
		if err != nil {
			g.sendError(conn, "invalid severity", p.Severity)
			return
		}
	}

	region := strings.TrimSpace(p.Region)
	advisory := contracts.WSAdvisory{
		Type:      contracts.EventAdvisory,
		Message:   strings.TrimSpace(p.Message),
		Severity:  severity.String(),
		Region:    region,
		Timestamp: time.Now().UTC(),
		Envelope:  contracts.Envelope{Producer: userID, SentAt: time.Now().UTC()},
	}

	delivered := g.router.Publish(contracts.RegionChannel(region), advisory)
	observability.EventsPublished.WithLabelValues(contracts.EventAdvisory).Inc()

	g.logger.Info(ctx, "advisory_broadcast", "Admin advisory broadcast to region", map[string]any{
		"admin_id":  userID,
		"region":    region,
		"delivered": delivered,
	})
}

// proximityEvent builds the wire event for a triggered match.
func proximityEvent(match engine.Triggered) contracts.WSProximityAlert {
	return contracts.WSProximityAlert{
		Type:           contracts.EventProximityFloodAlert,
		Alert:          engine.View(match.Alert),
		DistanceMeters: match.DistanceM,
		Message:        proximityMessage(match),
		Envelope:       contracts.Envelope{SentAt: time.Now().UTC()},
	}
}

func proximityMessage(match engine.Triggered) string {
	return fmt.Sprintf("%s hazard reported %.0fm from your location", match.Alert.Kind.String(), match.DistanceM)
}
