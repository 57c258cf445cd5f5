package postgres

import (
	"context"
	"fmt"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/domain/geo"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AlertRepo persists hazard alerts in the `alerts` table.
type AlertRepo struct {
	db *pgxpool.Pool
}

func NewAlertRepo(db *pgxpool.Pool) *AlertRepo {
	return &AlertRepo{db: db}
}

const alertColumns = `
	id, kind, region, latitude, longitude, severity, description,
	trigger_radius_m, valid_until, triggered, created_at,
	reported_by, ride_id, trip_id, segment`

// Save inserts the alert, or updates the mutable fields when the id exists.
func (r *AlertRepo) Save(ctx context.Context, a *alert.HazardAlert) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			severity = EXCLUDED.severity,
			description = EXCLUDED.description,
			valid_until = EXCLUDED.valid_until,
			triggered = EXCLUDED.triggered
	`,
		a.ID, a.Kind.String(), nullable(a.Region), a.Point.Latitude, a.Point.Longitude,
		a.Severity.String(), nullable(a.Description), a.TriggerRadius,
		nullableTime(a.ValidUntil), a.Triggered, a.CreatedAt,
		nullable(a.ReportedBy), nullable(a.RideID), nullable(a.TripID), nullable(a.Segment),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w: %w", alert.ErrTransientStore, err)
	}
	return nil
}

// UpdateTriggered persists the monotonic triggered flag.
func (r *AlertRepo) UpdateTriggered(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE alerts SET triggered = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update triggered: %w: %w", alert.ErrTransientStore, err)
	}
	if tag.RowsAffected() == 0 {
		return alert.ErrNotFound
	}
	return nil
}

// UpdateSeverity persists an escalated severity.
func (r *AlertRepo) UpdateSeverity(ctx context.Context, id string, severity alert.Severity) error {
	tag, err := r.db.Exec(ctx, `UPDATE alerts SET severity = $2 WHERE id = $1`, id, severity.String())
	if err != nil {
		return fmt.Errorf("update severity: %w: %w", alert.ErrTransientStore, err)
	}
	if tag.RowsAffected() == 0 {
		return alert.ErrNotFound
	}
	return nil
}

// FindActive returns all non-expired alerts, used to warm the in-memory index
// at startup.
func (r *AlertRepo) FindActive(ctx context.Context, now time.Time) ([]*alert.HazardAlert, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE valid_until IS NULL OR valid_until > $1
		ORDER BY created_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("find active alerts: %w", err)
	}
	defer rows.Close()

	var out []*alert.HazardAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

// FindNear returns non-expired alerts within radiusMeters of the point,
// nearest first, using the haversine formula in SQL.
func (r *AlertRepo) FindNear(ctx context.Context, p geo.Point, radiusMeters float64, limit int) ([]*alert.HazardAlert, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE (valid_until IS NULL OR valid_until > now())
		  AND 2 * 6371000 * asin(sqrt(
				power(sin(radians(latitude - $1) / 2), 2) +
				cos(radians($1)) * cos(radians(latitude)) *
				power(sin(radians(longitude - $2) / 2), 2)
			)) <= $3
		ORDER BY 2 * 6371000 * asin(sqrt(
				power(sin(radians(latitude - $1) / 2), 2) +
				cos(radians($1)) * cos(radians(latitude)) *
				power(sin(radians(longitude - $2) / 2), 2)
			))
		LIMIT $4
	`, p.Latitude, p.Longitude, radiusMeters, limit)
	if err != nil {
		return nil, fmt.Errorf("find near alerts: %w", err)
	}
	defer rows.Close()

	var out []*alert.HazardAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

// scanAlert reads one alert row from either QueryRow or Rows.
func scanAlert(row pgx.Row) (*alert.HazardAlert, error) {
	var (
		a          alert.HazardAlert
		kind, sev  string
		region     *string
		desc       *string
		validUntil *time.Time
		reportedBy *string
		rideID     *string
		tripID     *string
		segment    *string
	)
	if err := row.Scan(
		&a.ID, &kind, &region, &a.Point.Latitude, &a.Point.Longitude, &sev, &desc,
		&a.TriggerRadius, &validUntil, &a.Triggered, &a.CreatedAt,
		&reportedBy, &rideID, &tripID, &segment,
	); err != nil {
		return nil, err
	}

	a.Kind = alert.Kind(kind)
	a.Severity = alert.Severity(sev)
	a.Region = deref(region)
	a.Description = deref(desc)
	a.ReportedBy = deref(reportedBy)
	a.RideID = deref(rideID)
	a.TripID = deref(tripID)
	a.Segment = deref(segment)
	if validUntil != nil {
		a.ValidUntil = *validUntil
	}
	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
