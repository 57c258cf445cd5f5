package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RideRepo answers ride membership questions. The alerting core only needs
// to know which active rides a user belongs to for fan-out channel selection;
// ride CRUD lives elsewhere.
type RideRepo struct {
	db *pgxpool.Pool
}

func NewRideRepo(db *pgxpool.Pool) *RideRepo {
	return &RideRepo{db: db}
}

// ActiveFor returns the ids of active rides the user participates in.
func (r *RideRepo) ActiveFor(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.id
		FROM rides r
		JOIN ride_participants p ON p.ride_id = r.id
		WHERE p.user_id = $1 AND r.status = 'ACTIVE'
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("active rides: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ride id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rides: %w", err)
	}
	return ids, nil
}

// TripRepo answers trip membership questions, mirror of RideRepo.
type TripRepo struct {
	db *pgxpool.Pool
}

func NewTripRepo(db *pgxpool.Pool) *TripRepo {
	return &TripRepo{db: db}
}

// ActiveFor returns the ids of active trips the user participates in.
func (r *TripRepo) ActiveFor(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id
		FROM trips t
		JOIN trip_participants p ON p.trip_id = t.id
		WHERE p.user_id = $1 AND t.status = 'ACTIVE'
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("active trips: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan trip id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trips: %w", err)
	}
	return ids, nil
}
