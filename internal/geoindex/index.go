package geoindex

import (
	"sort"
	"sync"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/domain/geo"
)

// Match pairs an alert snapshot with its distance from the query point.
type Match struct {
	Alert     alert.HazardAlert
	DistanceM float64
}

// Index is the in-memory spatial lookup for active hazard alerts. Alerts are
// bucketed into fixed grid cells so a radius query only scans the cells the
// radius can reach; the exact haversine check decides membership. All state
// transitions on a stored alert (trigger, escalate) go through Index methods
// under the same lock, which linearizes mutations per alert id.
type Index struct {
	mu     sync.RWMutex
	cells  map[geo.Cell]map[string]*alert.HazardAlert
	byID   map[string]geo.Cell
	maxRad float64
}

// New creates an empty index.
func New() *Index {
	return &Index{
		cells: make(map[geo.Cell]map[string]*alert.HazardAlert),
		byID:  make(map[string]geo.Cell),
	}
}

// Upsert inserts or replaces an alert. The index stores its own copy so
// callers cannot mutate indexed state from outside the lock.
func (idx *Index) Upsert(a *alert.HazardAlert) {
	cp := *a

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.byID[cp.ID]; ok {
		idx.dropLocked(cp.ID, old)
	}

	cell := geo.CellOf(cp.Point)
	bucket, ok := idx.cells[cell]
	if !ok {
		bucket = make(map[string]*alert.HazardAlert)
		idx.cells[cell] = bucket
	}
	bucket[cp.ID] = &cp
	idx.byID[cp.ID] = cell

	if cp.TriggerRadius > idx.maxRad {
		idx.maxRad = cp.TriggerRadius
	}
}

// Remove deletes an alert by id. Removing an unknown id is a no-op.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cell, ok := idx.byID[id]
	if !ok {
		return
	}
	removed := idx.cells[cell][id]
	idx.dropLocked(id, cell)

	// recompute the radius high-water mark only when the removed alert held it
	if removed != nil && removed.TriggerRadius >= idx.maxRad {
		idx.maxRad = 0
		for _, bucket := range idx.cells {
			for _, a := range bucket {
				if a.TriggerRadius > idx.maxRad {
					idx.maxRad = a.TriggerRadius
				}
			}
		}
	}
}

func (idx *Index) dropLocked(id string, cell geo.Cell) {
	bucket := idx.cells[cell]
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(idx.cells, cell)
	}
	delete(idx.byID, id)
}

// Get returns a snapshot of the alert with the given id.
func (idx *Index) Get(id string) (alert.HazardAlert, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	cell, ok := idx.byID[id]
	if !ok {
		return alert.HazardAlert{}, false
	}
	a := idx.cells[cell][id]
	return *a, true
}

// MaxTriggerRadius returns the largest trigger radius among indexed alerts.
// The engine uses it as the candidate query radius before per-alert re-checks.
func (idx *Index) MaxTriggerRadius() float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.maxRad
}

// Count returns the number of indexed alerts.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// Query returns all alerts within radiusMeters of p, sorted by ascending
// distance. Equidistant alerts order by descending severity, then by most
// recent creation time. Expired or triggered alerts are included; filtering
// matchability is the engine's call.
func (idx *Index) Query(p geo.Point, radiusMeters float64) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Match
	for _, cell := range geo.CellOf(p).Neighborhood(radiusMeters) {
		bucket, ok := idx.cells[cell]
		if !ok {
			continue
		}
		for _, a := range bucket {
			d := geo.Distance(p, a.Point)
			if d <= radiusMeters {
				out = append(out, Match{Alert: *a, DistanceM: d})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceM != out[j].DistanceM {
			return out[i].DistanceM < out[j].DistanceM
		}
		ri, rj := out[i].Alert.Severity.Rank(), out[j].Alert.Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].Alert.CreatedAt.After(out[j].Alert.CreatedAt)
	})

	return out
}

// Trigger atomically flips the triggered flag. It returns the post-transition
// snapshot and whether this call performed the false->true transition; an
// already-triggered or unknown alert reports false.
func (idx *Index) Trigger(id string) (alert.HazardAlert, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cell, ok := idx.byID[id]
	if !ok {
		return alert.HazardAlert{}, false
	}
	a := idx.cells[cell][id]
	changed := a.MarkTriggered()
	return *a, changed
}

// Escalate atomically raises severity (never lowers). Returns the snapshot
// and whether the severity changed.
func (idx *Index) Escalate(id string, next alert.Severity) (alert.HazardAlert, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cell, ok := idx.byID[id]
	if !ok {
		return alert.HazardAlert{}, false
	}
	a := idx.cells[cell][id]
	changed := a.Escalate(next)
	return *a, changed
}

// Refresh atomically updates description and validity window on an existing
// alert, used when a repeated reading collapses onto it.
func (idx *Index) Refresh(id, description string, validUntil time.Time) (alert.HazardAlert, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cell, ok := idx.byID[id]
	if !ok {
		return alert.HazardAlert{}, false
	}
	a := idx.cells[cell][id]
	if description != "" {
		a.Description = description
	}
	if !validUntil.IsZero() && validUntil.After(a.ValidUntil) {
		a.ValidUntil = validUntil
	}
	return *a, true
}

// FindCollapsible returns the newest non-expired, non-triggered alert with the
// same kind, region and segment created within the window, if any. Supports
// collapsing near-identical readings across polling cycles.
func (idx *Index) FindCollapsible(kind alert.Kind, region, segment string, now time.Time, window time.Duration) (alert.HazardAlert, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var best *alert.HazardAlert
	for _, bucket := range idx.cells {
		for _, a := range bucket {
			if a.Kind != kind || a.Region != region || a.Segment != segment {
				continue
			}
			if !a.Matchable(now) || now.Sub(a.CreatedAt) > window {
				continue
			}
			if best == nil || a.CreatedAt.After(best.CreatedAt) {
				best = a
			}
		}
	}
	if best == nil {
		return alert.HazardAlert{}, false
	}
	return *best, true
}
