package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/25x8/carrental/internal/carrental/models"
)

const selectBooking = `
	SELECT id, renter_id, car_id, start_date, end_date, total_days, total_amount,
		status, payment_status, pickup_location, dropoff_location, contact_number,
		special_requests, paid_at, refunded_at, created_at, updated_at
	FROM bookings`

// CreateBooking locks the car row, builds the booking from its current holds and inserts it
func (r *PostgresRepository) CreateBooking(ctx context.Context, carID int64, build func(car *models.Car, holds []models.Booking) (*models.Booking, error)) (*models.Booking, error) {
	var booking *models.Booking
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		var car models.Car
		if err := tx.GetContext(ctx, &car, selectCar+" WHERE id = $1 FOR UPDATE", carID); err != nil {
			return rowErr(err, "car", carID)
		}

		var holds []models.Booking
		err := tx.SelectContext(ctx, &holds,
			selectBooking+" WHERE car_id = $1 AND status IN ('pending', 'confirmed', 'active')", carID)
		if err != nil {
			return fmt.Errorf("load bookings of car %d: %w", carID, err)
		}

		b, err := build(&car, holds)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO bookings (renter_id, car_id, start_date, end_date, total_days, total_amount,
				status, payment_status, pickup_location, dropoff_location, contact_number,
				special_requests, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
			RETURNING id`,
			b.RenterID, b.CarID, b.StartDate, b.EndDate, b.TotalDays, b.TotalAmount,
			b.Status, b.PaymentStatus, b.PickupLocation, b.DropoffLocation, b.ContactNumber,
			b.SpecialRequests, now,
		).Scan(&b.ID)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		b.CreatedAt, b.UpdatedAt = now, now
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// GetBooking returns a booking by id
func (r *PostgresRepository) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.GetContext(ctx, &b, selectBooking+" WHERE id = $1", id); err != nil {
		return nil, rowErr(err, "booking", id)
	}
	return &b, nil
}

// ListBookings returns bookings matching filter
func (r *PostgresRepository) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", filter.PaymentStatus)
	}
	if filter.CarID != 0 {
		add("car_id = $%d", filter.CarID)
	}
	if filter.RenterID != 0 {
		add("renter_id = $%d", filter.RenterID)
	}

	query := selectBooking
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// UpdateBooking locks a booking row, applies fn and writes it back
func (r *PostgresRepository) UpdateBooking(ctx context.Context, id int64, fn func(*models.Booking) error) (*models.Booking, error) {
	var b models.Booking
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &b, selectBooking+" WHERE id = $1 FOR UPDATE", id); err != nil {
			return rowErr(err, "booking", id)
		}
		if err := fn(&b); err != nil {
			return err
		}
		b.UpdatedAt = time.Now().UTC()
		_, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = $1, payment_status = $2, paid_at = $3, refunded_at = $4, updated_at = $5
			WHERE id = $6`,
			b.Status, b.PaymentStatus, b.PaidAt, b.RefundedAt, b.UpdatedAt, id,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBooking removes a booking once check allows it
func (r *PostgresRepository) DeleteBooking(ctx context.Context, id int64, check func(*models.Booking) error) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		var b models.Booking
		if err := tx.GetContext(ctx, &b, selectBooking+" WHERE id = $1 FOR UPDATE", id); err != nil {
			return rowErr(err, "booking", id)
		}
		if err := check(&b); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM bookings WHERE id = $1", id)
		return err
	})
}
