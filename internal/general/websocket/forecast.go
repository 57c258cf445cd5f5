package websocket

import (
	"context"
	"fmt"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/engine"
	"safetrip/internal/general/contracts"
	"safetrip/internal/observability"

	"github.com/gorilla/websocket"
)

// forecastLoop periodically checks rainfall at the user's last known position
// and pushes a rain alert when it crosses the threshold. The loop exits when
// the connection's task context is cancelled; it never outlives the socket.
func (g *Gateway) forecastLoop(ctx context.Context, conn *websocket.Conn, userID string) {
	ticker := time.NewTicker(g.forecastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.forecastOnce(ctx, conn, userID)
		}
	}
}

func (g *Gateway) forecastOnce(ctx context.Context, conn *websocket.Conn, userID string) {
	rec, ok := g.registry.Get(userID)
	if !ok {
		// no position reported yet this session
		return
	}

	obs, err := g.forecast.Current(ctx, rec.Point)
	if err != nil {
		observability.FetchFailures.WithLabelValues("forecast").Inc()
		g.logger.Error(ctx, "forecast_fetch_failed", "Forecast check failed, will retry next cycle", err, map[string]any{
			"user_id": userID,
		})
		return
	}

	if obs.RainMM < g.rainThresholdMM {
		return
	}

	severity := alert.SeverityMedium
	if obs.RainMM >= g.rainThresholdMM*2 {
		severity = alert.SeverityHigh
	}

	// a threshold crossing is a real hazard, not just a courtesy message; the
	// engine persists it and announces it to the region
	if _, ierr := g.engine.IngestHazard(ctx, engine.Reading{
		Kind:        alert.KindWeather,
		Region:      rec.Region,
		Point:       rec.Point,
		Severity:    severity,
		Description: fmt.Sprintf("Heavy rainfall: %.1fmm in the last hour", obs.RainMM),
		Segment:     "forecast:" + rec.Region, // collapses repeated per-user checks
	}); ierr != nil {
		g.logger.Error(ctx, "forecast_ingest_failed", "Forecast hazard not ingested", ierr, map[string]any{
			"user_id": userID,
		})
	}

	err = g.writeJSON(conn, contracts.WSRainAlert{
		Type:      contracts.EventRainAlertUpdate,
		Message:   "Heavy rainfall expected near your location, drive carefully",
		Severity:  severity.String(),
		Timestamp: time.Now().UTC(),
		Envelope:  contracts.Envelope{SentAt: time.Now().UTC()},
	})
	if err != nil {
		g.logger.Error(ctx, "rain_alert_send_failed", "Failed to deliver rain alert", err, map[string]any{
			"user_id": userID,
		})
		return
	}
	observability.EventsPublished.WithLabelValues(contracts.EventRainAlertUpdate).Inc()
}
