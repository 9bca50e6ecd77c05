// README: Booking result ledger backed by PostgreSQL.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nuber/internal/modules/dispatch"
)

var ErrNotFound = errors.New("booking result not found")

// Store archives finished bookings of one dispatch run. Booking ids restart with
// every run, so rows are keyed by (run_id, booking_id).
type Store struct {
	db    *pgxpool.Pool
	runID uuid.UUID
}

func NewStore(db *pgxpool.Pool, runID uuid.UUID) *Store {
	return &Store{db: db, runID: runID}
}

func (s *Store) Record(ctx context.Context, r dispatch.BookingResult) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO booking_results (
            run_id, booking_id, region, status, passenger_name, driver_name,
            pickup_delay_ms, travel_time_ms, error, created_at, completed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (run_id, booking_id) DO NOTHING`,
		s.runID.String(),
		r.BookingID,
		r.Region,
		string(r.Status),
		r.PassengerName,
		r.DriverName,
		r.PickupDelay.Milliseconds(),
		r.TravelTime.Milliseconds(),
		r.Error,
		r.CreatedAt,
		r.CompletedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, bookingID int64) (*dispatch.BookingResult, error) {
	row := s.db.QueryRow(ctx, `
        SELECT booking_id, region, status, passenger_name, driver_name,
               pickup_delay_ms, travel_time_ms, error, created_at, completed_at
        FROM booking_results
        WHERE run_id = $1 AND booking_id = $2`, s.runID.String(), bookingID,
	)
	r, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Recent returns the latest finished bookings of this run, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]dispatch.BookingResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
        SELECT booking_id, region, status, passenger_name, driver_name,
               pickup_delay_ms, travel_time_ms, error, created_at, completed_at
        FROM booking_results
        WHERE run_id = $1
        ORDER BY completed_at DESC, booking_id DESC
        LIMIT $2`, s.runID.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dispatch.BookingResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanResult(row pgx.Row) (*dispatch.BookingResult, error) {
	var r dispatch.BookingResult
	var status string
	var pickupMs, travelMs int64
	err := row.Scan(
		&r.BookingID, &r.Region, &status, &r.PassengerName, &r.DriverName,
		&pickupMs, &travelMs, &r.Error, &r.CreatedAt, &r.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = dispatch.Status(status)
	r.PickupDelay = time.Duration(pickupMs) * time.Millisecond
	r.TravelTime = time.Duration(travelMs) * time.Millisecond
	return &r, nil
}
