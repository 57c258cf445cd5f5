package redisgeo

import (
	"context"
	"fmt"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/domain/geo"
	"safetrip/internal/general/contracts"
	"safetrip/internal/general/logger"

	"github.com/redis/go-redis/v9"
)

// HotspotIndex mirrors active hazard locations into a Redis GEO set so
// get-nearby-hotspots queries can be served without walking the in-memory
// index, and survive a process restart. Metadata rides in a hash per alert.
type HotspotIndex struct {
	client *redis.Client
	key    string
	logger *logger.Logger
}

// New connects a hotspot index to Redis. Key is the GEO set name.
func New(addr, password, key string, log *logger.Logger) *HotspotIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &HotspotIndex{client: c, key: key, logger: log}
}

// Ping verifies connectivity.
func (h *HotspotIndex) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (h *HotspotIndex) Close() error {
	return h.client.Close()
}

// Add records the alert's location and metadata. Metadata expires with the
// alert's validity window so Redis does not accumulate dead hazards.
func (h *HotspotIndex) Add(ctx context.Context, a *alert.HazardAlert) error {
	if err := h.client.GeoAdd(ctx, h.key, &redis.GeoLocation{
		Longitude: a.Point.Longitude,
		Latitude:  a.Point.Latitude,
		Name:      a.ID,
	}).Err(); err != nil {
		return fmt.Errorf("geoadd: %w", err)
	}

	meta := map[string]any{
		"kind":     a.Kind.String(),
		"severity": a.Severity.String(),
		"region":   a.Region,
	}
	if err := h.client.HSet(ctx, metaKey(a.ID), meta).Err(); err != nil {
		return fmt.Errorf("hset meta: %w", err)
	}
	if !a.ValidUntil.IsZero() {
		ttl := time.Until(a.ValidUntil)
		if ttl > 0 {
			_ = h.client.Expire(ctx, metaKey(a.ID), ttl).Err()
		}
	}
	return nil
}

// Remove drops the alert from the GEO set and deletes its metadata.
func (h *HotspotIndex) Remove(ctx context.Context, alertID string) error {
	if err := h.client.ZRem(ctx, h.key, alertID).Err(); err != nil {
		return fmt.Errorf("zrem: %w", err)
	}
	_ = h.client.Del(ctx, metaKey(alertID)).Err()
	return nil
}

// Nearby returns hazard hotspots within radiusMeters of the point, nearest
// first. A Redis error is returned so the caller can fall back to the
// in-memory index.
func (h *HotspotIndex) Nearby(ctx context.Context, p geo.Point, radiusMeters float64, limit int) ([]contracts.Hotspot, error) {
	if limit <= 0 {
		limit = 20
	}

	res, err := h.client.GeoSearchLocation(ctx, h.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Longitude,
			Latitude:   p.Latitude,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}

	out := make([]contracts.Hotspot, 0, len(res))
	for _, loc := range res {
		hs := contracts.Hotspot{
			AlertID:        loc.Name,
			Location:       contracts.GeoPoint{Lat: loc.Latitude, Lng: loc.Longitude},
			DistanceMeters: loc.Dist,
		}
		// metadata is best-effort; a missing hash still yields a usable entry
		if m, err := h.client.HGetAll(ctx, metaKey(loc.Name)).Result(); err == nil {
			hs.Kind = m["kind"]
			hs.Severity = m["severity"]
		}
		out = append(out, hs)
	}
	return out, nil
}

func metaKey(id string) string { return "hazard:meta:" + id }
