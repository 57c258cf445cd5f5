package presence

import (
	"sync"
	"time"

	"safetrip/internal/domain/geo"
)

// Record is a user's last known position while connected. Records are owned
// exclusively by the Registry; readers get value copies.
type Record struct {
	UserID     string
	Point      geo.Point
	Region     string
	LastUpdate time.Time
}

// Registry is the process-wide table of currently connected users. Mutations
// are single-key (the gateway is the only writer for a given user), so one
// map under a mutex with per-key replace semantics is enough; sweeps compare
// timestamps before evicting so a concurrent fresher write always survives.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]Record)}
}

// Upsert replaces the user's record with the given position. Last write wins
// by arrival order; client timestamps are not trusted.
func (r *Registry) Upsert(userID string, p geo.Point, region string) Record {
	rec := Record{
		UserID:     userID,
		Point:      p,
		Region:     region,
		LastUpdate: time.Now().UTC(),
	}

	r.mu.Lock()
	r.records[userID] = rec
	r.mu.Unlock()

	return rec
}

// Remove deletes the user's record. Removing an unknown user is a no-op.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	delete(r.records, userID)
	r.mu.Unlock()
}

// Get returns a copy of the user's record.
func (r *Registry) Get(userID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[userID]
	return rec, ok
}

// SnapshotAll returns copies of every record. The snapshot is immediately
// stale but safe to iterate without holding any lock.
func (r *Registry) SnapshotAll() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

// Count returns the number of tracked users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// SweepStale removes records unseen for longer than threshold and returns the
// evicted user ids. The LastUpdate re-check under the write lock means an
// upsert racing the sweep keeps its record.
func (r *Registry) SweepStale(now time.Time, threshold time.Duration) []string {
	cutoff := now.Add(-threshold)

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, rec := range r.records {
		if rec.LastUpdate.Before(cutoff) {
			delete(r.records, id)
			removed = append(removed, id)
		}
	}
	return removed
}
