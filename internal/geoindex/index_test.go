package geoindex

import (
	"testing"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/domain/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkAlert(t *testing.T, id string, kind alert.Kind, lat, lng float64, sev alert.Severity) *alert.HazardAlert {
	t.Helper()
	p, err := geo.NewPoint(lat, lng)
	require.NoError(t, err)
	a, err := alert.New(id, kind, "lagos-island", p, sev, "")
	require.NoError(t, err)
	return a
}

func TestQueryFiltersByRadius(t *testing.T) {
	idx := New()
	idx.Upsert(mkAlert(t, "near", alert.KindFlood, 6.52476, 3.3792, alert.SeverityMedium)) // ~40m
	idx.Upsert(mkAlert(t, "far", alert.KindFlood, 6.70, 3.3792, alert.SeverityMedium))     // ~20km

	user := geo.Point{Latitude: 6.5244, Longitude: 3.3792}

	matches := idx.Query(user, 1000)
	require.Len(t, matches, 1)
	assert.Equal(t, "near", matches[0].Alert.ID)
	assert.InDelta(t, 40, matches[0].DistanceM, 1)

	matches = idx.Query(user, 25000)
	assert.Len(t, matches, 2)
}

func TestQueryFindsAlertsAcrossNarrowHighLatitudeCells(t *testing.T) {
	idx := New()

	// ~4.8km apart at 78N, four grid columns away because longitude cells
	// shrink with latitude
	idx.Upsert(mkAlert(t, "arctic", alert.KindTraffic, 78.01, 0.001, alert.SeverityMedium))

	user := geo.Point{Latitude: 78.01, Longitude: 0.21}
	matches := idx.Query(user, 5000)
	require.Len(t, matches, 1)
	assert.Equal(t, "arctic", matches[0].Alert.ID)
	assert.InDelta(t, 4828, matches[0].DistanceM, 30)
}

func TestQueryOrdering(t *testing.T) {
	idx := New()
	idx.Upsert(mkAlert(t, "close", alert.KindFlood, 6.5248, 3.3792, alert.SeverityLow))
	idx.Upsert(mkAlert(t, "mid", alert.KindFlood, 6.5260, 3.3792, alert.SeverityHigh))
	idx.Upsert(mkAlert(t, "edge", alert.KindFlood, 6.5300, 3.3792, alert.SeverityHigh))

	user := geo.Point{Latitude: 6.5244, Longitude: 3.3792}
	matches := idx.Query(user, 5000)
	require.Len(t, matches, 3)

	// nearest first regardless of severity
	assert.Equal(t, "close", matches[0].Alert.ID)
	assert.Equal(t, "mid", matches[1].Alert.ID)
	assert.Equal(t, "edge", matches[2].Alert.ID)
	assert.True(t, matches[0].DistanceM < matches[1].DistanceM)
}

func TestQueryTieBreaksBySeverityThenRecency(t *testing.T) {
	idx := New()

	// identical coordinates, differing severity
	low := mkAlert(t, "low", alert.KindFlood, 6.5250, 3.3792, alert.SeverityLow)
	high := mkAlert(t, "high", alert.KindFlood, 6.5250, 3.3792, alert.SeverityHigh)
	idx.Upsert(low)
	idx.Upsert(high)

	matches := idx.Query(geo.Point{Latitude: 6.5244, Longitude: 3.3792}, 5000)
	require.Len(t, matches, 2)
	assert.Equal(t, "high", matches[0].Alert.ID)

	// same severity too: most recent first
	older := mkAlert(t, "older", alert.KindFlood, 6.5250, 3.3792, alert.SeverityHigh)
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	idx.Upsert(older)

	matches = idx.Query(geo.Point{Latitude: 6.5244, Longitude: 3.3792}, 5000)
	require.Len(t, matches, 3)
	assert.Equal(t, "high", matches[0].Alert.ID)
	assert.Equal(t, "older", matches[1].Alert.ID)
}

func TestTriggerIsAtomicAndOnce(t *testing.T) {
	idx := New()
	idx.Upsert(mkAlert(t, "a1", alert.KindFlood, 6.5244, 3.3792, alert.SeverityMedium))

	snap, changed := idx.Trigger("a1")
	assert.True(t, changed)
	assert.True(t, snap.Triggered)

	_, changed = idx.Trigger("a1")
	assert.False(t, changed, "second trigger must lose")

	_, changed = idx.Trigger("missing")
	assert.False(t, changed)

	// the stored copy reflects the transition
	stored, ok := idx.Get("a1")
	require.True(t, ok)
	assert.True(t, stored.Triggered)
}

func TestEscalateUpgradeOnly(t *testing.T) {
	idx := New()
	idx.Upsert(mkAlert(t, "a1", alert.KindFlood, 6.5244, 3.3792, alert.SeverityMedium))

	snap, changed := idx.Escalate("a1", alert.SeverityHigh)
	assert.True(t, changed)
	assert.Equal(t, alert.SeverityHigh, snap.Severity)

	_, changed = idx.Escalate("a1", alert.SeverityLow)
	assert.False(t, changed)

	stored, _ := idx.Get("a1")
	assert.Equal(t, alert.SeverityHigh, stored.Severity)
}

func TestRefreshExtendsValidity(t *testing.T) {
	idx := New()
	a := mkAlert(t, "a1", alert.KindTraffic, 6.5244, 3.3792, alert.SeverityMedium)
	a.ValidUntil = time.Now().UTC().Add(time.Hour)
	idx.Upsert(a)

	later := time.Now().UTC().Add(3 * time.Hour)
	snap, ok := idx.Refresh("a1", "still congested", later)
	require.True(t, ok)
	assert.Equal(t, "still congested", snap.Description)
	assert.Equal(t, later, snap.ValidUntil)

	// a shorter window never shrinks validity
	snap, ok = idx.Refresh("a1", "", later.Add(-2*time.Hour))
	require.True(t, ok)
	assert.Equal(t, later, snap.ValidUntil)
	assert.Equal(t, "still congested", snap.Description, "empty description keeps the old one")

	_, ok = idx.Refresh("missing", "x", later)
	assert.False(t, ok)
}

func TestFindCollapsible(t *testing.T) {
	idx := New()
	now := time.Now().UTC()

	a := mkAlert(t, "a1", alert.KindTraffic, 6.5244, 3.3792, alert.SeverityMedium)
	a.Segment = "third-mainland-bridge"
	idx.Upsert(a)

	got, ok := idx.FindCollapsible(alert.KindTraffic, "lagos-island", "third-mainland-bridge", now, 15*time.Minute)
	require.True(t, ok)
	assert.Equal(t, "a1", got.ID)

	// different segment never collapses
	_, ok = idx.FindCollapsible(alert.KindTraffic, "lagos-island", "carter-bridge", now, 15*time.Minute)
	assert.False(t, ok)

	// outside the window never collapses
	_, ok = idx.FindCollapsible(alert.KindTraffic, "lagos-island", "third-mainland-bridge", now.Add(time.Hour), 15*time.Minute)
	assert.False(t, ok)

	// triggered alerts stop absorbing readings
	idx.Trigger("a1")
	_, ok = idx.FindCollapsible(alert.KindTraffic, "lagos-island", "third-mainland-bridge", now, 15*time.Minute)
	assert.False(t, ok)
}

func TestRemoveRecomputesMaxRadius(t *testing.T) {
	idx := New()

	big := mkAlert(t, "big", alert.KindTraffic, 6.5244, 3.3792, alert.SeverityMedium) // 5000m
	small := mkAlert(t, "small", alert.KindFlood, 6.5244, 3.3792, alert.SeverityMedium)
	idx.Upsert(big)
	idx.Upsert(small)
	assert.Equal(t, 5000.0, idx.MaxTriggerRadius())

	idx.Remove("big")
	assert.Equal(t, 1000.0, idx.MaxTriggerRadius())
	assert.Equal(t, 1, idx.Count())

	idx.Remove("small")
	assert.Zero(t, idx.MaxTriggerRadius())

	// removing an unknown id is a no-op
	idx.Remove("missing")
	assert.Zero(t, idx.Count())
}

func TestUpsertStoresACopy(t *testing.T) {
	idx := New()
	a := mkAlert(t, "a1", alert.KindFlood, 6.5244, 3.3792, alert.SeverityMedium)
	idx.Upsert(a)

	a.Severity = alert.SeverityHigh
	stored, ok := idx.Get("a1")
	require.True(t, ok)
	assert.Equal(t, alert.SeverityMedium, stored.Severity, "caller mutation must not leak into the index")
}
