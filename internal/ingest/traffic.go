package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/domain/geo"
	"safetrip/internal/engine"
	"safetrip/internal/general/contracts"
	"safetrip/internal/general/logger"
	"safetrip/internal/general/rabbitmq"
	"safetrip/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TrafficConsumer drains the traffic readings queue and feeds congested
// segments into the engine. Low congestion readings are acked and dropped.
type TrafficConsumer struct {
	logger   *logger.Logger
	client   *rabbitmq.Client
	engine   *engine.Engine
	prefetch int
}

func NewTrafficConsumer(log *logger.Logger, client *rabbitmq.Client, eng *engine.Engine, prefetch int) *TrafficConsumer {
	return &TrafficConsumer{logger: log, client: client, engine: eng, prefetch: prefetch}
}

// Run consumes until ctx is cancelled. Consume returns when the channel dies;
// the loop backs off and reattaches, riding on the client's own reconnect.
func (c *TrafficConsumer) Run(ctx context.Context) {
	for {
		err := c.client.Consume(ctx, contracts.QueueTrafficReadings, "traffic-ingestor", c.prefetch, c.handle)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Error(ctx, "traffic_consume_interrupted", "Traffic consumer detached, retrying", err, nil)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (c *TrafficConsumer) handle(ctx context.Context, d amqp.Delivery) error {
	var msg contracts.TrafficReadingMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		observability.FetchFailures.WithLabelValues("traffic").Inc()
		return fmt.Errorf("malformed traffic reading: %w", err)
	}

	severity, hazardous := congestionSeverity(msg.CongestionLevel)
	if !hazardous {
		return nil // free-flowing traffic, nothing to alert on
	}

	point, err := geo.NewPoint(msg.Location.Lat, msg.Location.Lng)
	if err != nil {
		observability.FetchFailures.WithLabelValues("traffic").Inc()
		return fmt.Errorf("traffic reading for %q: %w", msg.Segment, err)
	}

	reading := engine.Reading{
		Kind:        alert.KindTraffic,
		Region:      msg.Region,
		Point:       point,
		Severity:    severity,
		Description: describeTraffic(msg),
		Segment:     msg.Segment,
	}

	rctx := ctx
	if msg.CorrelationID != "" {
		rctx = c.logger.WithRequestID(ctx, msg.CorrelationID)
	}
	if _, err := c.engine.IngestHazard(rctx, reading); err != nil {
		// store outages should requeue via nack upstream, everything else drops
		return err
	}
	return nil
}

func congestionSeverity(level string) (alert.Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "severe":
		return alert.SeverityHigh, true
	case "moderate":
		return alert.SeverityMedium, true
	default:
		return "", false
	}
}

func describeTraffic(msg contracts.TrafficReadingMessage) string {
	level := strings.ToLower(strings.TrimSpace(msg.CongestionLevel))
	if msg.DelayMinutes > 0 {
		return fmt.Sprintf("Traffic congestion (%s) on %s, expect %d min delay", level, msg.Segment, msg.DelayMinutes)
	}
	return fmt.Sprintf("Traffic congestion (%s) on %s", level, msg.Segment)
}
