package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/models"
)

// Partners

const selectPartner = `
	SELECT id, user_id, status, commission_rate, registration_fee, created_at, updated_at
	FROM partners`

// CreatePartner inserts a partner with sealed payout details
func (r *PostgresRepository) CreatePartner(ctx context.Context, partner *models.Partner) error {
	now := time.Now().UTC()
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO partners (user_id, status, commission_rate, registration_fee, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING id`,
		partner.UserID, partner.Status, partner.CommissionRate, partner.RegistrationFee, now,
	).Scan(&partner.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Conflict("user %d already has a partner record", partner.UserID)
	}
	if err != nil {
		return fmt.Errorf("insert partner: %w", err)
	}
	partner.CreatedAt, partner.UpdatedAt = now, now
	return nil
}

// GetPartner returns a partner by id
func (r *PostgresRepository) GetPartner(ctx context.Context, id int64) (*models.Partner, error) {
	var p models.Partner
	if err := r.db.GetContext(ctx, &p, selectPartner+" WHERE id = $1", id); err != nil {
		return nil, rowErr(err, "partner", id)
	}
	return &p, nil
}

// GetPartnerByUserID returns the partner owned by a user
func (r *PostgresRepository) GetPartnerByUserID(ctx context.Context, userID int64) (*models.Partner, error) {
	var p models.Partner
	if err := r.db.GetContext(ctx, &p, selectPartner+" WHERE user_id = $1", userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("partner for user", userID)
		}
		return nil, fmt.Errorf("load partner of user %d: %w", userID, err)
	}
	return &p, nil
}

// ListPartners returns all partners
func (r *PostgresRepository) ListPartners(ctx context.Context) ([]models.Partner, error) {
	var partners []models.Partner
	if err := r.db.SelectContext(ctx, &partners, selectPartner+" ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	return partners, nil
}

// UpdatePartner locks a partner row, applies fn and writes it back
func (r *PostgresRepository) UpdatePartner(ctx context.Context, id int64, fn func(*models.Partner) error) (*models.Partner, error) {
	var p models.Partner
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &p, selectPartner+" WHERE id = $1 FOR UPDATE", id); err != nil {
			return rowErr(err, "partner", id)
		}
		if err := fn(&p); err != nil {
			return err
		}
		p.UpdatedAt = time.Now().UTC()
		_, err := tx.ExecContext(ctx, `
			UPDATE partners SET status = $1, commission_rate = $2, updated_at = $3 WHERE id = $4`,
			p.Status, p.CommissionRate, p.UpdatedAt, id,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Earnings

const selectEarnings = `
	SELECT b.id AS booking_id, b.car_id, c.owner_id AS partner_id, b.total_amount, b.paid_at
	FROM bookings b
	JOIN cars c ON c.id = b.car_id
	WHERE b.payment_status = 'paid'`

func listEarnings(ctx context.Context, q sqlx.QueryerContext, partnerID int64) ([]models.EarningEntry, error) {
	var (
		entries []models.EarningEntry
		err     error
	)
	if partnerID == 0 {
		err = sqlx.SelectContext(ctx, q, &entries, selectEarnings+" AND c.owner_id IS NOT NULL ORDER BY b.id")
	} else {
		err = sqlx.SelectContext(ctx, q, &entries, selectEarnings+" AND c.owner_id = $1 ORDER BY b.id", partnerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list earnings: %w", err)
	}
	return entries, nil
}

// ListEarningEntries derives earning entries from paid bookings of the partner's cars
func (r *PostgresRepository) ListEarningEntries(ctx context.Context, partnerID int64) ([]models.EarningEntry, error) {
	return listEarnings(ctx, r.db, partnerID)
}

// Payment requests

const selectPaymentRequest = `
	SELECT id, partner_id, amount, payment_method, payout_details, status,
		requested_at, processed_at, transaction_id, notes
	FROM payment_requests`

// paymentRequestRow is the storage shape of a PaymentRequest; payout details
// are sealed.
type paymentRequestRow struct {
	ID            int64                   `db:"id"`
	PartnerID     int64                   `db:"partner_id"`
	Amount        decimal.Decimal         `db:"amount"`
	Method        models.PaymentMethod    `db:"payment_method"`
	Details       []byte                  `db:"payout_details"`
	Status        models.RedemptionStatus `db:"status"`
	RequestedAt   time.Time               `db:"requested_at"`
	ProcessedAt   *time.Time              `db:"processed_at"`
	TransactionID *string                 `db:"transaction_id"`
	Notes         string                  `db:"notes"`
}

func (r *PostgresRepository) sealDetails(d models.PayoutDetails) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return r.sealer.Seal(raw)
}

func (r *PostgresRepository) fromRow(row paymentRequestRow) (models.PaymentRequest, error) {
	req := models.PaymentRequest{
		ID:            row.ID,
		PartnerID:     row.PartnerID,
		Amount:        row.Amount,
		Method:        row.Method,
		Status:        row.Status,
		RequestedAt:   row.RequestedAt,
		ProcessedAt:   row.ProcessedAt,
		TransactionID: row.TransactionID,
		Notes:         row.Notes,
	}
	raw, err := r.sealer.Open(row.Details)
	if err != nil {
		return req, fmt.Errorf("payment request %d: %w", row.ID, err)
	}
	if err := json.Unmarshal(raw, &req.Details); err != nil {
		return req, fmt.Errorf("payment request %d: decode payout details: %w", row.ID, err)
	}
	return req, nil
}

func (r *PostgresRepository) fromRows(rows []paymentRequestRow) ([]models.PaymentRequest, error) {
	out := make([]models.PaymentRequest, 0, len(rows))
	for _, row := range rows {
		req, err := r.fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// ListPaymentRequests returns payment requests of a partner, filtered by status when set
func (r *PostgresRepository) ListPaymentRequests(ctx context.Context, partnerID int64, status models.RedemptionStatus) ([]models.PaymentRequest, error) {
	var (
		conds []string
		args  []any
	)
	if partnerID != 0 {
		args = append(args, partnerID)
		conds = append(conds, fmt.Sprintf("partner_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	query := selectPaymentRequest
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY requested_at DESC, id DESC"

	var rows []paymentRequestRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list payment requests: %w", err)
	}
	return r.fromRows(rows)
}

// GetPaymentRequest returns a payment request by id
func (r *PostgresRepository) GetPaymentRequest(ctx context.Context, id int64) (*models.PaymentRequest, error) {
	var row paymentRequestRow
	if err := r.db.GetContext(ctx, &row, selectPaymentRequest+" WHERE id = $1", id); err != nil {
		return nil, rowErr(err, "payment request", id)
	}
	req, err := r.fromRow(row)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// WithPartnerLedger runs fn in a transaction holding the partner row lock
func (r *PostgresRepository) WithPartnerLedger(ctx context.Context, partnerID int64, fn func(LedgerTx) error) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		var id int64
		if err := tx.GetContext(ctx, &id, "SELECT id FROM partners WHERE id = $1 FOR UPDATE", partnerID); err != nil {
			return rowErr(err, "partner", partnerID)
		}
		return fn(&pgLedger{repo: r, tx: tx, partnerID: partnerID})
	})
}

// pgLedger is a LedgerTx bound to a transaction holding the partner row lock.
type pgLedger struct {
	repo      *PostgresRepository
	tx        *sqlx.Tx
	partnerID int64
}

// EarningEntries returns the partner's earning entries
func (l *pgLedger) EarningEntries(ctx context.Context) ([]models.EarningEntry, error) {
	return listEarnings(ctx, l.tx, l.partnerID)
}

// PaymentRequests returns the partner's payment requests
func (l *pgLedger) PaymentRequests(ctx context.Context) ([]models.PaymentRequest, error) {
	var rows []paymentRequestRow
	err := l.tx.SelectContext(ctx, &rows, selectPaymentRequest+" WHERE partner_id = $1 ORDER BY id", l.partnerID)
	if err != nil {
		return nil, fmt.Errorf("load payment requests of partner %d: %w", l.partnerID, err)
	}
	return l.repo.fromRows(rows)
}

// InsertPaymentRequest inserts a payment request and sets its id
func (l *pgLedger) InsertPaymentRequest(ctx context.Context, req *models.PaymentRequest) error {
	if req.PartnerID != l.partnerID {
		return fmt.Errorf("payment request for partner %d inserted under ledger of partner %d", req.PartnerID, l.partnerID)
	}
	details, err := l.repo.sealDetails(req.Details)
	if err != nil {
		return fmt.Errorf("seal payout details: %w", err)
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	err = l.tx.QueryRowxContext(ctx, `
		INSERT INTO payment_requests (partner_id, amount, payment_method, payout_details, status, requested_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		req.PartnerID, req.Amount, req.Method, details, req.Status, req.RequestedAt, req.Notes,
	).Scan(&req.ID)
	if err != nil {
		return fmt.Errorf("insert payment request: %w", err)
	}
	return nil
}

// SavePaymentRequest updates a payment request
func (l *pgLedger) SavePaymentRequest(ctx context.Context, req *models.PaymentRequest) error {
	res, err := l.tx.ExecContext(ctx, `
		UPDATE payment_requests
		SET status = $1, processed_at = $2, transaction_id = $3, notes = $4
		WHERE id = $5 AND partner_id = $6`,
		req.Status, req.ProcessedAt, req.TransactionID, req.Notes, req.ID, l.partnerID,
	)
	if err != nil {
		return fmt.Errorf("update payment request %d: %w", req.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("payment request", req.ID)
	}
	return nil
}
