package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/utils"
)

// Repository defines the interface for data access operations.
//
// Update* methods are atomic read-modify-write: the record is locked, passed
// to fn, and written back only if fn returns nil.
type Repository interface {
	// User directory
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	SetUserPartnerFlag(ctx context.Context, userID int64, isPartner bool) error

	// Catalog
	CreateCar(ctx context.Context, car *models.Car) error
	GetCar(ctx context.Context, id int64) (*models.Car, error)
	ListCars(ctx context.Context, onlyAvailable bool) ([]models.Car, error)
	UpdateCar(ctx context.Context, id int64, fn func(*models.Car) error) (*models.Car, error)

	// Bookings. CreateBooking locks the car, hands build the car and the
	// bookings still holding it, and inserts what build returns.
	CreateBooking(ctx context.Context, carID int64, build func(car *models.Car, holds []models.Booking) (*models.Booking, error)) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	UpdateBooking(ctx context.Context, id int64, fn func(*models.Booking) error) (*models.Booking, error)
	DeleteBooking(ctx context.Context, id int64, check func(*models.Booking) error) error

	// Partners
	CreatePartner(ctx context.Context, partner *models.Partner) error
	GetPartner(ctx context.Context, id int64) (*models.Partner, error)
	GetPartnerByUserID(ctx context.Context, userID int64) (*models.Partner, error)
	ListPartners(ctx context.Context) ([]models.Partner, error)
	UpdatePartner(ctx context.Context, id int64, fn func(*models.Partner) error) (*models.Partner, error)

	// Ledger reads. partnerID 0 means all partners.
	ListEarningEntries(ctx context.Context, partnerID int64) ([]models.EarningEntry, error)
	ListPaymentRequests(ctx context.Context, partnerID int64, status models.RedemptionStatus) ([]models.PaymentRequest, error)
	GetPaymentRequest(ctx context.Context, id int64) (*models.PaymentRequest, error)

	// WithPartnerLedger serializes ledger writes of one partner. fn sees the
	// partner's earnings and payment requests and may write payment requests;
	// everything commits or rolls back together.
	WithPartnerLedger(ctx context.Context, partnerID int64, fn func(LedgerTx) error) error

	// Initialize and close
	InitDB(databaseURI string) error
	Close() error
}

// LedgerTx is the view of one partner's ledger under WithPartnerLedger.
type LedgerTx interface {
	EarningEntries(ctx context.Context) ([]models.EarningEntry, error)
	PaymentRequests(ctx context.Context) ([]models.PaymentRequest, error)
	InsertPaymentRequest(ctx context.Context, req *models.PaymentRequest) error
	SavePaymentRequest(ctx context.Context, req *models.PaymentRequest) error
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db     *sqlx.DB
	sealer *utils.Sealer
}

// NewPostgresRepository creates a new PostgreSQL repository. Payout details
// are sealed with sealer before they reach the database.
func NewPostgresRepository(sealer *utils.Sealer) *PostgresRepository {
	return &PostgresRepository{
		sealer: sealer,
	}
}

// newPostgresRepositoryWithDB wraps an open handle, skipping InitDB.
func newPostgresRepositoryWithDB(db *sqlx.DB, sealer *utils.Sealer) *PostgresRepository {
	return &PostgresRepository{db: db, sealer: sealer}
}

// InitDB initializes the database connection and schema
func (r *PostgresRepository) InitDB(databaseURI string) error {
	db, err := sqlx.Open("pgx", databaseURI)
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	r.db = db

	if err := r.createTables(); err != nil {
		db.Close()
		return err
	}

	return nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		is_partner BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS partners (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE REFERENCES users(id),
		status VARCHAR(20) NOT NULL,
		commission_rate NUMERIC(5, 2) NOT NULL DEFAULT 10,
		registration_fee NUMERIC(12, 2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cars (
		id BIGSERIAL PRIMARY KEY,
		owner_id BIGINT REFERENCES partners(id),
		model VARCHAR(255) NOT NULL,
		location VARCHAR(255) NOT NULL DEFAULT '',
		price_per_day NUMERIC(12, 2) NOT NULL CHECK (price_per_day > 0),
		available BOOLEAN NOT NULL DEFAULT TRUE,
		admin_deactivated BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (NOT (admin_deactivated AND available))
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGSERIAL PRIMARY KEY,
		renter_id BIGINT NOT NULL REFERENCES users(id),
		car_id BIGINT NOT NULL REFERENCES cars(id),
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		total_days INTEGER NOT NULL CHECK (total_days >= 1),
		total_amount NUMERIC(12, 2) NOT NULL,
		status VARCHAR(20) NOT NULL,
		payment_status VARCHAR(20) NOT NULL,
		pickup_location TEXT NOT NULL DEFAULT '',
		dropoff_location TEXT NOT NULL DEFAULT '',
		contact_number VARCHAR(32) NOT NULL DEFAULT '',
		special_requests TEXT NOT NULL DEFAULT '',
		paid_at TIMESTAMPTZ,
		refunded_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (end_date > start_date)
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_car_id_idx ON bookings (car_id)`,
	`CREATE INDEX IF NOT EXISTS bookings_renter_id_idx ON bookings (renter_id)`,
	`CREATE TABLE IF NOT EXISTS payment_requests (
		id BIGSERIAL PRIMARY KEY,
		partner_id BIGINT NOT NULL REFERENCES partners(id),
		amount NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
		payment_method VARCHAR(20) NOT NULL,
		payout_details BYTEA NOT NULL,
		status VARCHAR(20) NOT NULL,
		requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		transaction_id VARCHAR(255),
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS payment_requests_partner_id_idx ON payment_requests (partner_id)`,
}

// createTables creates the necessary tables if they don't exist
func (r *PostgresRepository) createTables() error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// inTx runs fn in a transaction, rolling back when fn fails.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// rowErr turns sql.ErrNoRows into a NotFound error.
func rowErr(err error, entity string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return fmt.Errorf("load %s %d: %w", entity, id, err)
}

// User directory

// UpsertUser inserts or updates a user by id
func (r *PostgresRepository) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	var out models.User
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO users (id, name, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role
		RETURNING id, name, email, role, is_partner, created_at`,
		user.ID, user.Name, user.Email, user.Role,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user %d: %w", user.ID, err)
	}
	return &out, nil
}

// GetUserByID returns a user by id
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		"SELECT id, name, email, role, is_partner, created_at FROM users WHERE id = $1", id)
	if err != nil {
		return nil, rowErr(err, "user", id)
	}
	return &user, nil
}

// SetUserPartnerFlag marks a user as a partner or not
func (r *PostgresRepository) SetUserPartnerFlag(ctx context.Context, userID int64, isPartner bool) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET is_partner = $1 WHERE id = $2", isPartner, userID)
	if err != nil {
		return fmt.Errorf("set partner flag for user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("user", userID)
	}
	return nil
}

// Catalog

const selectCar = `
	SELECT id, owner_id, model, location, price_per_day, available, admin_deactivated, created_at, updated_at
	FROM cars`

// CreateCar inserts a car and sets its id
func (r *PostgresRepository) CreateCar(ctx context.Context, car *models.Car) error {
	now := time.Now().UTC()
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO cars (owner_id, model, location, price_per_day, available, admin_deactivated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id`,
		car.OwnerID, car.Model, car.Location, car.PricePerDay, car.Available, car.AdminDeactivated, now,
	).Scan(&car.ID)
	if err != nil {
		return fmt.Errorf("insert car: %w", err)
	}
	car.CreatedAt, car.UpdatedAt = now, now
	return nil
}

// GetCar returns a car by id
func (r *PostgresRepository) GetCar(ctx context.Context, id int64) (*models.Car, error) {
	var car models.Car
	if err := r.db.GetContext(ctx, &car, selectCar+" WHERE id = $1", id); err != nil {
		return nil, rowErr(err, "car", id)
	}
	return &car, nil
}

// ListCars returns cars ordered by id
func (r *PostgresRepository) ListCars(ctx context.Context, onlyAvailable bool) ([]models.Car, error) {
	query := selectCar
	if onlyAvailable {
		query += " WHERE available"
	}
	query += " ORDER BY id"

	var cars []models.Car
	if err := r.db.SelectContext(ctx, &cars, query); err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	return cars, nil
}

// UpdateCar locks a car row, applies fn and writes it back
func (r *PostgresRepository) UpdateCar(ctx context.Context, id int64, fn func(*models.Car) error) (*models.Car, error) {
	var car models.Car
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &car, selectCar+" WHERE id = $1 FOR UPDATE", id); err != nil {
			return rowErr(err, "car", id)
		}
		if err := fn(&car); err != nil {
			return err
		}
		car.UpdatedAt = time.Now().UTC()
		_, err := tx.ExecContext(ctx, `
			UPDATE cars
			SET price_per_day = $1, available = $2, admin_deactivated = $3, updated_at = $4
			WHERE id = $5`,
			car.PricePerDay, car.Available, car.AdminDeactivated, car.UpdatedAt, id,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &car, nil
}
