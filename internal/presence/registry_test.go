package presence

import (
	"testing"
	"time"

	"safetrip/internal/domain/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertLastWriteWins(t *testing.T) {
	r := NewRegistry()

	r.Upsert("u1", geo.Point{Latitude: 6.5244, Longitude: 3.3792}, "lagos-island")
	rec := r.Upsert("u1", geo.Point{Latitude: 6.6018, Longitude: 3.3515}, "ikeja")

	got, ok := r.Get("u1")
	require.True(t, ok)
	assert.Equal(t, rec.Point, got.Point)
	assert.Equal(t, "ikeja", got.Region)
	assert.Equal(t, 1, r.Count())
	assert.False(t, got.LastUpdate.IsZero(), "server assigns the timestamp")
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	r.Upsert("u1", geo.Point{}, "")

	r.Remove("u1")
	_, ok := r.Get("u1")
	assert.False(t, ok)

	// removing again is harmless
	r.Remove("u1")
	assert.Zero(t, r.Count())
}

func TestSnapshotAllIsDetached(t *testing.T) {
	r := NewRegistry()
	r.Upsert("u1", geo.Point{Latitude: 1}, "a")
	r.Upsert("u2", geo.Point{Latitude: 2}, "b")

	snap := r.SnapshotAll()
	assert.Len(t, snap, 2)

	r.Remove("u1")
	assert.Len(t, snap, 2, "snapshot survives later mutation")
}

func TestSweepStaleEvictsOnlyOldRecords(t *testing.T) {
	r := NewRegistry()
	r.Upsert("fresh", geo.Point{}, "")
	r.Upsert("stale", geo.Point{}, "")

	// backdate one record past the threshold
	r.mu.Lock()
	rec := r.records["stale"]
	rec.LastUpdate = time.Now().UTC().Add(-time.Hour)
	r.records["stale"] = rec
	r.mu.Unlock()

	removed := r.SweepStale(time.Now().UTC(), 30*time.Minute)
	assert.Equal(t, []string{"stale"}, removed)

	_, ok := r.Get("stale")
	assert.False(t, ok)
	_, ok = r.Get("fresh")
	assert.True(t, ok, "fresh records survive the sweep")
}

func TestSweepLosesToConcurrentWrite(t *testing.T) {
	r := NewRegistry()
	r.Upsert("u1", geo.Point{}, "")

	// a write that lands just before the sweep keeps the record
	removed := r.SweepStale(time.Now().UTC(), 30*time.Minute)
	assert.Empty(t, removed)
	_, ok := r.Get("u1")
	assert.True(t, ok)
}
