package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/domain/geo"
	"safetrip/internal/general/logger"
	"safetrip/internal/geoindex"
	"safetrip/internal/presence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----- fakes -----

type fakeStore struct {
	mu        sync.Mutex
	saved     map[string]alert.HazardAlert
	triggered map[string]int
	failSave  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved:     make(map[string]alert.HazardAlert),
		triggered: make(map[string]int),
	}
}

func (s *fakeStore) Save(_ context.Context, a *alert.HazardAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return alert.ErrTransientStore
	}
	s.saved[a.ID] = *a
	return nil
}

func (s *fakeStore) UpdateTriggered(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.saved[id]; !ok {
		return alert.ErrNotFound
	}
	s.triggered[id]++
	return nil
}

func (s *fakeStore) UpdateSeverity(_ context.Context, id string, sev alert.Severity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.saved[id]
	if !ok {
		return alert.ErrNotFound
	}
	a.Severity = sev
	s.saved[id] = a
	return nil
}

func (s *fakeStore) FindActive(context.Context, time.Time) ([]*alert.HazardAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*alert.HazardAlert, 0, len(s.saved))
	for _, a := range s.saved {
		cp := a
		out = append(out, &cp)
	}
	return out, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	proximity map[string][]Triggered // user id -> matches
	created   []alert.HazardAlert
	updated   []alert.HazardAlert
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{proximity: make(map[string][]Triggered)}
}

func (n *fakeNotifier) NotifyProximity(_ context.Context, rec presence.Record, match Triggered) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.proximity[rec.UserID] = append(n.proximity[rec.UserID], match)
}

func (n *fakeNotifier) NotifyAlertCreated(_ context.Context, a alert.HazardAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, a)
}

func (n *fakeNotifier) NotifyAlertUpdated(_ context.Context, a alert.HazardAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, a)
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *fakePublisher) Publish(_, routingKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

// ----- harness -----

type harness struct {
	engine   *Engine
	index    *geoindex.Index
	registry *presence.Registry
	store    *fakeStore
	notifier *fakeNotifier
	events   *fakePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		index:    geoindex.New(),
		registry: presence.NewRegistry(),
		store:    newFakeStore(),
		notifier: newFakeNotifier(),
		events:   &fakePublisher{},
	}
	h.engine = New(logger.New("engine-test"), h.index, h.registry, h.store, h.events, nil, 15*time.Minute)
	h.engine.SetNotifier(h.notifier)
	return h
}

func floodReading(lat, lng float64) Reading {
	return Reading{
		Kind:        alert.KindFlood,
		Region:      "lagos-island",
		Point:       geo.Point{Latitude: lat, Longitude: lng},
		Severity:    alert.SeverityMedium,
		Description: "street flooding",
	}
}

// ----- tests -----

func TestIngestHazardPersistsAndIndexes(t *testing.T) {
	h := newHarness(t)

	a, err := h.engine.IngestHazard(context.Background(), floodReading(6.5244, 3.3792))
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)

	assert.Equal(t, 1000.0, a.TriggerRadius, "flood kind default radius")
	assert.False(t, a.ValidUntil.IsZero(), "kind default TTL applied")

	stored, ok := h.store.saved[a.ID]
	require.True(t, ok, "persisted before any fan-out")
	assert.Equal(t, alert.KindFlood, stored.Kind)

	_, ok = h.index.Get(a.ID)
	assert.True(t, ok, "indexed for proximity queries")

	require.Len(t, h.notifier.created, 1)
	assert.Equal(t, a.ID, h.notifier.created[0].ID)
	assert.NotEmpty(t, h.events.keys, "lifecycle event mirrored to the broker")
}

func TestIngestHazardStoreFailureAdvancesNothing(t *testing.T) {
	h := newHarness(t)
	h.store.failSave = true

	_, err := h.engine.IngestHazard(context.Background(), floodReading(6.5244, 3.3792))
	require.ErrorIs(t, err, alert.ErrTransientStore)

	assert.Zero(t, h.index.Count(), "no index entry without durable state")
	assert.Empty(t, h.notifier.created)
	assert.Empty(t, h.events.keys)
}

func TestIngestHazardValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := floodReading(6.5244, 3.3792)
	r.Kind = "EARTHQUAKE"
	_, err := h.engine.IngestHazard(ctx, r)
	assert.ErrorIs(t, err, alert.ErrInvalidKind)

	r = floodReading(6.5244, 3.3792)
	r.Severity = "PANIC"
	_, err = h.engine.IngestHazard(ctx, r)
	assert.ErrorIs(t, err, alert.ErrInvalidSeverity)

	r = floodReading(95, 3.3792)
	_, err = h.engine.IngestHazard(ctx, r)
	assert.ErrorIs(t, err, alert.ErrValidation)
}

func TestEvaluateProximityTriggersOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.engine.IngestHazard(ctx, floodReading(6.52476, 3.3792))
	require.NoError(t, err)

	user := geo.Point{Latitude: 6.5244, Longitude: 3.3792} // ~40m away

	matches := h.engine.EvaluateProximity(ctx, "u1", user, "lagos-island")
	require.Len(t, matches, 1)
	assert.Equal(t, a.ID, matches[0].Alert.ID)
	assert.InDelta(t, 40, matches[0].DistanceM, 1)
	assert.True(t, matches[0].Alert.Triggered)

	// repeated and concurrent-style evaluations see the flag and stay silent
	assert.Empty(t, h.engine.EvaluateProximity(ctx, "u1", user, "lagos-island"))
	assert.Empty(t, h.engine.EvaluateProximity(ctx, "u2", user, "lagos-island"))

	assert.Equal(t, 1, h.store.triggered[a.ID], "flag persisted exactly once")
}

func TestEvaluateProximityOutOfRange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.IngestHazard(ctx, floodReading(6.70, 3.3792)) // ~20km north
	require.NoError(t, err)

	matches := h.engine.EvaluateProximity(ctx, "u1", geo.Point{Latitude: 6.5244, Longitude: 3.3792}, "")
	assert.Empty(t, matches)
}

func TestEvaluateProximityHonorsPerAlertRadius(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// traffic carries a 5000m radius, flood only 1000m
	traffic := floodReading(6.5244, 3.3792)
	traffic.Kind = alert.KindTraffic
	traffic.Segment = "third-mainland-bridge"
	big, err := h.engine.IngestHazard(ctx, traffic)
	require.NoError(t, err)

	flood, err := h.engine.IngestHazard(ctx, floodReading(6.5244, 3.3792))
	require.NoError(t, err)

	// ~3km away: inside the traffic radius, outside the flood radius, even
	// though the candidate query runs at the 5000m high-water mark
	user := geo.Point{Latitude: 6.5514, Longitude: 3.3792}
	matches := h.engine.EvaluateProximity(ctx, "u1", user, "")
	require.Len(t, matches, 1)
	assert.Equal(t, big.ID, matches[0].Alert.ID)

	got, _ := h.index.Get(flood.ID)
	assert.False(t, got.Triggered)
}

func TestExpiredAlertsNeverTrigger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := floodReading(6.52476, 3.3792)
	r.TTL = time.Nanosecond
	a, err := h.engine.IngestHazard(ctx, r)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	matches := h.engine.EvaluateProximity(ctx, "u1", geo.Point{Latitude: 6.5244, Longitude: 3.3792}, "")
	assert.Empty(t, matches)

	got, _ := h.index.Get(a.ID)
	assert.False(t, got.Triggered)
}

func TestIngestTriggersAgainstPresentUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.registry.Upsert("near", geo.Point{Latitude: 6.5244, Longitude: 3.3792}, "lagos-island")
	h.registry.Upsert("far", geo.Point{Latitude: 6.70, Longitude: 3.3792}, "ikeja")

	a, err := h.engine.IngestHazard(ctx, floodReading(6.52476, 3.3792))
	require.NoError(t, err)

	got, _ := h.index.Get(a.ID)
	assert.True(t, got.Triggered, "hazard arriving on top of a present user triggers")

	require.Len(t, h.notifier.proximity["near"], 1)
	assert.InDelta(t, 40, h.notifier.proximity["near"][0].DistanceM, 1)
	assert.Empty(t, h.notifier.proximity["far"])
	assert.Equal(t, 1, h.store.triggered[a.ID])
}

func TestCollapseRefreshesExistingAlert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := floodReading(6.5244, 3.3792)
	r.Kind = alert.KindTraffic
	r.Segment = "third-mainland-bridge"
	first, err := h.engine.IngestHazard(ctx, r)
	require.NoError(t, err)

	// same segment, higher severity, shortly after
	r.Severity = alert.SeverityHigh
	r.Description = "gridlock"
	second, err := h.engine.IngestHazard(ctx, r)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "repeated reading folds onto the live alert")
	assert.Equal(t, alert.SeverityHigh, second.Severity)
	assert.Equal(t, "gridlock", second.Description)
	assert.Equal(t, 1, h.index.Count())

	require.Len(t, h.notifier.created, 1)
	require.Len(t, h.notifier.updated, 1)
	assert.True(t, second.ValidUntil.After(first.ValidUntil) || second.ValidUntil.Equal(first.ValidUntil))
}

func TestEscalateUpgradeOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.engine.IngestHazard(ctx, floodReading(6.5244, 3.3792))
	require.NoError(t, err)

	require.NoError(t, h.engine.Escalate(ctx, a.ID, alert.SeverityHigh))
	got, _ := h.index.Get(a.ID)
	assert.Equal(t, alert.SeverityHigh, got.Severity)
	assert.Equal(t, alert.SeverityHigh, h.store.saved[a.ID].Severity)
	require.Len(t, h.notifier.updated, 1)

	// downgrade is a silent no-op
	require.NoError(t, h.engine.Escalate(ctx, a.ID, alert.SeverityLow))
	got, _ = h.index.Get(a.ID)
	assert.Equal(t, alert.SeverityHigh, got.Severity)
	assert.Len(t, h.notifier.updated, 1, "no notification for a no-op")

	assert.ErrorIs(t, h.engine.Escalate(ctx, "missing", alert.SeverityHigh), alert.ErrNotFound)
	assert.ErrorIs(t, h.engine.Escalate(ctx, a.ID, "PANIC"), alert.ErrInvalidSeverity)
}

func TestWarmStartLoadsActiveAlerts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.IngestHazard(ctx, floodReading(6.5244, 3.3792))
	require.NoError(t, err)

	// a fresh process sharing the same store rebuilds its index
	cold := &harness{
		index:    geoindex.New(),
		registry: presence.NewRegistry(),
		store:    h.store,
	}
	cold.engine = New(logger.New("engine-test"), cold.index, cold.registry, cold.store, nil, nil, 15*time.Minute)

	require.NoError(t, cold.engine.WarmStart(ctx))
	assert.Equal(t, 1, cold.index.Count())
}
