package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/domain/geo"
	"safetrip/internal/general/contracts"
	"safetrip/internal/general/logger"
	"safetrip/internal/geoindex"
	"safetrip/internal/observability"
	"safetrip/internal/presence"

	"github.com/google/uuid"
)

// AlertStore is the durable persistence collaborator. Save must complete
// before any downstream effect of an ingestion becomes visible.
type AlertStore interface {
	Save(ctx context.Context, a *alert.HazardAlert) error
	UpdateTriggered(ctx context.Context, id string) error
	UpdateSeverity(ctx context.Context, id string, severity alert.Severity) error
	FindActive(ctx context.Context, now time.Time) ([]*alert.HazardAlert, error)
}

// EventPublisher mirrors alert lifecycle events to the message broker.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// HotspotSink receives hazard locations for the hotspot query index.
type HotspotSink interface {
	Add(ctx context.Context, a *alert.HazardAlert) error
}

// Notifier is the engine's outbound edge: the gateway implements it and fans
// events out over subscriber channels. All methods must be non-blocking or
// cheap; the engine calls them inline.
type Notifier interface {
	// NotifyProximity tells one present user they are within an alert's
	// trigger radius.
	NotifyProximity(ctx context.Context, rec presence.Record, match Triggered)
	// NotifyAlertCreated announces a newly ingested alert to its region.
	NotifyAlertCreated(ctx context.Context, a alert.HazardAlert)
	// NotifyAlertUpdated announces an escalation or collapse-refresh.
	NotifyAlertUpdated(ctx context.Context, a alert.HazardAlert)
}

// Triggered pairs a triggered alert snapshot with the distance that tripped it.
type Triggered struct {
	Alert     alert.HazardAlert
	DistanceM float64
}

// Reading is a normalized external hazard observation handed to IngestHazard.
// Fetch-and-parse of any concrete source happens upstream.
type Reading struct {
	Kind        alert.Kind
	Region      string
	Point       geo.Point
	Severity    alert.Severity
	Description string
	Segment     string // road/segment association, drives collapse
	ReportedBy  string // user id for self-reports
	RideID      string
	TripID      string
	RadiusM     float64       // 0 = kind default
	TTL         time.Duration // 0 = kind default
}

// Engine is the alerting state machine. Per-alert transitions (trigger,
// escalate) are linearized through the geoindex's per-record atomic update
// path; the engine itself holds no locks across store or broker calls.
type Engine struct {
	logger   *logger.Logger
	index    *geoindex.Index
	registry *presence.Registry
	store    AlertStore
	events   EventPublisher // optional
	hotspots HotspotSink    // optional
	notifier Notifier       // optional, set after gateway construction

	collapseWindow time.Duration
	producer       string
}

// New wires an engine. events and hotspots may be nil.
func New(log *logger.Logger, index *geoindex.Index, registry *presence.Registry, store AlertStore, events EventPublisher, hotspots HotspotSink, collapseWindow time.Duration) *Engine {
	return &Engine{
		logger:         log,
		index:          index,
		registry:       registry,
		store:          store,
		events:         events,
		hotspots:       hotspots,
		collapseWindow: collapseWindow,
		producer:       "alert-service",
	}
}

// SetNotifier installs the fan-out edge. Called once during wiring, before
// any traffic; the gateway needs the engine first, hence the late bind.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// WarmStart loads non-expired alerts from the store into the index.
func (e *Engine) WarmStart(ctx context.Context) error {
	alerts, err := e.store.FindActive(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("warm start: %w", err)
	}
	for _, a := range alerts {
		e.index.Upsert(a)
	}
	e.logger.Info(ctx, "index_warmed", "Loaded active alerts into the spatial index", map[string]any{
		"alerts": len(alerts),
	})
	return nil
}

// IngestHazard normalizes a reading into a HazardAlert, persists it, indexes
// it, announces it, and symmetrically evaluates it against every present
// user. A store failure surfaces as a retryable error with no state advanced.
//
// Near-identical readings are collapsed: a reading whose (kind, region,
// segment) matches a live alert created within the collapse window refreshes
// that alert instead of creating a new one.
func (e *Engine) IngestHazard(ctx context.Context, r Reading) (*alert.HazardAlert, error) {
	now := time.Now().UTC()

	if !r.Kind.Valid() {
		return nil, fmt.Errorf("%w: %s", alert.ErrInvalidKind, r.Kind)
	}
	if !r.Severity.Valid() {
		return nil, fmt.Errorf("%w: %s", alert.ErrInvalidSeverity, r.Severity)
	}
	if err := r.Point.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", alert.ErrValidation, err)
	}

	if existing, ok := e.index.FindCollapsible(r.Kind, strings.TrimSpace(r.Region), r.Segment, now, e.collapseWindow); ok {
		return e.collapseOnto(ctx, existing.ID, r, now)
	}

	a, err := alert.New(uuid.NewString(), r.Kind, r.Region, r.Point, r.Severity, r.Description)
	if err != nil {
		return nil, err
	}
	if r.RadiusM > 0 {
		a.TriggerRadius = r.RadiusM
	}
	ttl := r.TTL
	if ttl == 0 {
		ttl = defaultTTL(r.Kind)
	}
	a.ValidUntil = now.Add(ttl)
	a.Segment = r.Segment
	a.ReportedBy = r.ReportedBy
	a.RideID = r.RideID
	a.TripID = r.TripID

	// durable first: never announce state that could vanish on crash
	if err := e.store.Save(ctx, a); err != nil {
		e.logger.Error(ctx, "alert_save_failed", "Hazard ingestion aborted, store unavailable", err, map[string]any{
			"kind": a.Kind.String(),
		})
		return nil, err
	}

	e.index.Upsert(a)
	observability.AlertsIngested.WithLabelValues(a.Kind.String()).Inc()

	if e.hotspots != nil {
		if err := e.hotspots.Add(ctx, a); err != nil {
			// hotspot mirror is best-effort; the in-memory index still serves
			e.logger.Error(ctx, "hotspot_mirror_failed", "Failed to mirror alert to hotspot index", err, map[string]any{
				"alert_id": a.ID,
			})
		}
	}

	actx := e.logger.WithAlertID(ctx, a.ID)
	e.logger.Info(actx, "alert_ingested", "Hazard alert created", map[string]any{
		"kind":     a.Kind.String(),
		"severity": a.Severity.String(),
		"region":   a.Region,
		"radius_m": a.TriggerRadius,
	})

	if e.notifier != nil {
		e.notifier.NotifyAlertCreated(actx, *a)
	}
	e.publishEvent("created", contracts.RouteAlertCreatedPrefix+strings.ToLower(a.Kind.String()), *a)

	// symmetric direction: a new hazard must reach users already in range
	e.evaluateAgainstPresence(actx, a.ID)

	return a, nil
}

// collapseOnto folds a repeated reading into an existing live alert:
// severity may escalate, the description refreshes, and the validity window
// extends. No new alert is created.
func (e *Engine) collapseOnto(ctx context.Context, id string, r Reading, now time.Time) (*alert.HazardAlert, error) {
	ttl := r.TTL
	if ttl == 0 {
		ttl = defaultTTL(r.Kind)
	}

	snapshot, ok := e.index.Refresh(id, r.Description, now.Add(ttl))
	if !ok {
		return nil, alert.ErrNotFound
	}
	if escalated, changed := e.index.Escalate(id, r.Severity); changed {
		snapshot = escalated
	}

	if err := e.store.Save(ctx, &snapshot); err != nil {
		e.logger.Error(ctx, "alert_save_failed", "Collapse refresh not persisted", err, map[string]any{
			"alert_id": id,
		})
		return nil, err
	}

	observability.AlertsCollapsed.Inc()
	actx := e.logger.WithAlertID(ctx, id)
	e.logger.Info(actx, "alert_collapsed", "Repeated reading collapsed onto existing alert", map[string]any{
		"kind":    snapshot.Kind.String(),
		"segment": snapshot.Segment,
	})

	if e.notifier != nil {
		e.notifier.NotifyAlertUpdated(actx, snapshot)
	}
	e.publishEvent("updated", contracts.RouteAlertUpdatedPrefix+id, snapshot)

	return &snapshot, nil
}

// EvaluateProximity checks a user position against every active alert whose
// trigger radius contains it, marks fresh matches triggered, and returns them
// nearest first. An empty index yields an empty list, never an error;
// position tracking must not be blocked by alert-subsystem failure.
func (e *Engine) EvaluateProximity(ctx context.Context, userID string, p geo.Point, region string) []Triggered {
	start := time.Now()
	defer func() {
		observability.EvaluationLatency.Observe(time.Since(start).Seconds())
	}()

	maxRadius := e.index.MaxTriggerRadius()
	if maxRadius <= 0 {
		return nil
	}

	now := time.Now().UTC()
	var out []Triggered
	for _, m := range e.index.Query(p, maxRadius) {
		// each alert defines its own threshold; the query radius is only the
		// candidate envelope
		if m.DistanceM > m.Alert.TriggerRadius {
			continue
		}
		if !m.Alert.Matchable(now) {
			continue
		}

		snapshot, changed := e.index.Trigger(m.Alert.ID)
		if !changed {
			// lost the race to a concurrent evaluation; exactly-once stands
			continue
		}
		e.persistTriggered(ctx, snapshot.ID)
		observability.AlertsTriggered.Inc()
		e.publishEvent("triggered", contracts.RouteAlertTriggeredPrefix+snapshot.ID, snapshot)

		e.logger.Info(e.logger.WithAlertID(ctx, snapshot.ID), "alert_triggered", "User entered alert trigger radius", map[string]any{
			"user_id":    userID,
			"distance_m": m.DistanceM,
			"region":     region,
		})

		out = append(out, Triggered{Alert: snapshot, DistanceM: m.DistanceM})
	}
	return out
}

// evaluateAgainstPresence is the hazard-side half of the symmetry: find all
// present users inside the new alert's radius, trigger once, notify each.
func (e *Engine) evaluateAgainstPresence(ctx context.Context, alertID string) {
	a, ok := e.index.Get(alertID)
	if !ok {
		return
	}
	now := time.Now().UTC()
	if !a.Matchable(now) {
		return
	}

	type hit struct {
		rec presence.Record
		d   float64
	}
	var hits []hit
	for _, rec := range e.registry.SnapshotAll() {
		if d := geo.Distance(a.Point, rec.Point); d <= a.TriggerRadius {
			hits = append(hits, hit{rec: rec, d: d})
		}
	}
	if len(hits) == 0 {
		return
	}

	snapshot, changed := e.index.Trigger(alertID)
	if !changed {
		return
	}
	e.persistTriggered(ctx, alertID)
	observability.AlertsTriggered.Inc()
	e.publishEvent("triggered", contracts.RouteAlertTriggeredPrefix+alertID, snapshot)

	if e.notifier == nil {
		return
	}
	for _, h := range hits {
		e.notifier.NotifyProximity(ctx, h.rec, Triggered{Alert: snapshot, DistanceM: h.d})
	}
}

// Escalate raises an alert's severity. Downgrades and same-level repeats are
// silent no-ops.
func (e *Engine) Escalate(ctx context.Context, id string, next alert.Severity) error {
	if !next.Valid() {
		return alert.ErrInvalidSeverity
	}

	snapshot, changed := e.index.Escalate(id, next)
	if !changed {
		if _, ok := e.index.Get(id); !ok {
			return alert.ErrNotFound
		}
		return nil
	}

	if err := e.store.UpdateSeverity(ctx, id, snapshot.Severity); err != nil {
		e.logger.Error(ctx, "severity_persist_failed", "Escalated severity not persisted", err, map[string]any{
			"alert_id": id,
		})
	}

	actx := e.logger.WithAlertID(ctx, id)
	e.logger.Info(actx, "alert_escalated", "Alert severity escalated", map[string]any{
		"severity": snapshot.Severity.String(),
	})
	if e.notifier != nil {
		e.notifier.NotifyAlertUpdated(actx, snapshot)
	}
	e.publishEvent("updated", contracts.RouteAlertUpdatedPrefix+id, snapshot)

	return nil
}

// persistTriggered records the monotonic flag; failures log and move on so a
// store blip cannot un-trigger or re-trigger an alert.
func (e *Engine) persistTriggered(ctx context.Context, id string) {
	if err := e.store.UpdateTriggered(ctx, id); err != nil {
		e.logger.Error(ctx, "trigger_persist_failed", "Triggered flag not persisted", err, map[string]any{
			"alert_id": id,
		})
	}
}

// publishEvent mirrors a lifecycle event to the broker; best-effort.
func (e *Engine) publishEvent(event, routingKey string, a alert.HazardAlert) {
	if e.events == nil {
		return
	}
	msg := contracts.AlertEventMessage{
		Event: event,
		Alert: View(a),
		Envelope: contracts.Envelope{
			Producer: e.producer,
			SentAt:   time.Now().UTC(),
		},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := e.events.Publish(contracts.ExchangeAlertTopic, routingKey, body); err != nil {
		e.logger.Error(context.Background(), "event_publish_failed", "Alert event not mirrored to broker", err, map[string]any{
			"routing_key": routingKey,
		})
	}
}

// View converts a domain alert to its wire shape.
func View(a alert.HazardAlert) contracts.AlertView {
	return contracts.AlertView{
		ID:            a.ID,
		Kind:          a.Kind.String(),
		Region:        a.Region,
		Location:      contracts.GeoPoint{Lat: a.Point.Latitude, Lng: a.Point.Longitude},
		Severity:      a.Severity.String(),
		Description:   a.Description,
		TriggerRadius: a.TriggerRadius,
		ValidUntil:    a.ValidUntil,
		Triggered:     a.Triggered,
		CreatedAt:     a.CreatedAt,
		RideID:        a.RideID,
		TripID:        a.TripID,
	}
}

// defaultTTL is the kind-specific validity window: weather readings go stale
// fast, road conditions linger.
func defaultTTL(kind alert.Kind) time.Duration {
	if kind == alert.KindWeather {
		return 3 * time.Hour
	}
	return 24 * time.Hour
}
