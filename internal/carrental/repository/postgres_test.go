package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/utils"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *utils.Sealer) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sealer, err := utils.NewEphemeralSealer()
	require.NoError(t, err)
	return newPostgresRepositoryWithDB(sqlx.NewDb(db, "pgx"), sealer), mock, sealer
}

// sealedUPI matches a sealed payout blob carrying the given UPI id.
type sealedUPI struct {
	sealer *utils.Sealer
	upiID  string
}

func (m sealedUPI) Match(v driver.Value) bool {
	blob, ok := v.([]byte)
	if !ok {
		return false
	}
	raw, err := m.sealer.Open(blob)
	if err != nil {
		return false
	}
	var d models.PayoutDetails
	return json.Unmarshal(raw, &d) == nil && d.UPIID == m.upiID
}

func TestPostgresGetCarNotFound(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectQuery(`SELECT (.+) FROM cars WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetCar(context.Background(), 9)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateBookingCommits(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "car_id", "total_amount", "status", "payment_status"}).
			AddRow(int64(1), int64(2), "150.00", "pending", "pending"))
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("confirmed", "pending", nil, nil, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b, err := repo.UpdateBooking(context.Background(), 1, func(b *models.Booking) error {
		b.Status = models.BookingConfirmed
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.True(t, decimal.NewFromInt(150).Equal(b.TotalAmount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateBookingRollsBack(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "payment_status"}).
			AddRow(int64(1), "completed", "paid"))
	mock.ExpectRollback()

	_, err := repo.UpdateBooking(context.Background(), 1, func(b *models.Booking) error {
		return apperr.Conflict("booking %d is %s", b.ID, b.Status)
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreatePartnerDuplicate(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO partners (.+) ON CONFLICT \(user_id\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := repo.CreatePartner(context.Background(), &models.Partner{UserID: 5, Status: models.PartnerPending})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerSealsPayoutDetails(t *testing.T) {
	repo, mock, sealer := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM partners WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO payment_requests`).
		WithArgs(int64(1), sqlmock.AnyArg(), "upi", sealedUPI{sealer: sealer, upiID: "asha@okbank"}, "pending", sqlmock.AnyArg(), "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectCommit()

	req := &models.PaymentRequest{
		PartnerID: 1,
		Amount:    decimal.NewFromInt(100),
		Method:    models.MethodUPI,
		Details:   models.PayoutDetails{UPIID: "asha@okbank"},
		Status:    models.RedemptionPending,
	}
	err := repo.WithPartnerLedger(ctx, 1, func(tx LedgerTx) error {
		return tx.InsertPaymentRequest(ctx, req)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), req.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerRollsBackOnError(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM partners WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := repo.WithPartnerLedger(context.Background(), 1, func(LedgerTx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListPaymentRequestsOpensDetails(t *testing.T) {
	repo, mock, sealer := newMockRepo(t)

	raw, err := json.Marshal(models.PayoutDetails{AccountNumber: "123456789012", IFSC: "HDFC0001234"})
	require.NoError(t, err)
	blob, err := sealer.Seal(raw)
	require.NoError(t, err)

	requested := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT (.+) FROM payment_requests WHERE partner_id = \$1 AND status = \$2`).
		WithArgs(int64(1), "pending").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "partner_id", "amount", "payment_method", "payout_details", "status", "requested_at", "notes",
		}).AddRow(int64(3), int64(1), "100.00", "bank_transfer", blob, "pending", requested, ""))

	reqs, err := repo.ListPaymentRequests(context.Background(), 1, models.RedemptionPending)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "HDFC0001234", reqs[0].Details.IFSC)
	assert.Equal(t, "123456789012", reqs[0].Details.AccountNumber)
	assert.True(t, decimal.NewFromInt(100).Equal(reqs[0].Amount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListPaymentRequestsRejectsForeignKey(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	other, err := utils.NewEphemeralSealer()
	require.NoError(t, err)
	blob, err := other.Seal([]byte(`{}`))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT (.+) FROM payment_requests`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payout_details"}).AddRow(int64(3), blob))

	_, err = repo.ListPaymentRequests(context.Background(), 0, "")
	assert.Error(t, err)
}
