package websocket

import (
	"context"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/domain/geo"
	"safetrip/internal/engine"
	"safetrip/internal/general/contracts"
	"safetrip/internal/observability"
	"safetrip/internal/presence"
)

// the gateway is the engine's fan-out edge
var _ engine.Notifier = (*Gateway)(nil)

// NotifyProximity delivers a "hazard near you" event to one present user.
func (g *Gateway) NotifyProximity(ctx context.Context, rec presence.Record, match engine.Triggered) {
	if g.router.Publish(contracts.UserChannel(rec.UserID), proximityEvent(match)) > 0 {
		observability.EventsPublished.WithLabelValues(contracts.EventProximityFloodAlert).Inc()
	}
}

// NotifyAlertCreated announces a new alert to its region, ride and trip
// channels. A self-reporting user is skipped on the region channel; they get
// a direct ack from their handler.
func (g *Gateway) NotifyAlertCreated(ctx context.Context, a alert.HazardAlert) {
	g.publishAlertEvent(contracts.EventAlertCreated, a)
}

// NotifyAlertUpdated announces an escalation or collapse-refresh.
func (g *Gateway) NotifyAlertUpdated(ctx context.Context, a alert.HazardAlert) {
	g.publishAlertEvent(contracts.EventAlertUpdated, a)
}

func (g *Gateway) publishAlertEvent(event string, a alert.HazardAlert) {
	msg := contracts.WSAlertEvent{
		Type:     event,
		Alert:    engine.View(a),
		Envelope: contracts.Envelope{SentAt: time.Now().UTC()},
	}

	delivered := 0
	if a.Region != "" {
		if a.ReportedBy != "" {
			delivered += g.router.PublishExcept(contracts.RegionChannel(a.Region), a.ReportedBy, msg)
		} else {
			delivered += g.router.Publish(contracts.RegionChannel(a.Region), msg)
		}
	}
	// users in the same grid cell hear about it even without a region
	grid := contracts.GridChannel(geo.CellOf(a.Point).Key())
	if a.ReportedBy != "" {
		delivered += g.router.PublishExcept(grid, a.ReportedBy, msg)
	} else {
		delivered += g.router.Publish(grid, msg)
	}
	if a.RideID != "" {
		delivered += g.router.Publish(contracts.RideChannel(a.RideID), msg)
	}
	if a.TripID != "" {
		delivered += g.router.Publish(contracts.TripChannel(a.TripID), msg)
	}
	if delivered > 0 {
		observability.EventsPublished.WithLabelValues(event).Inc()
	}
}
