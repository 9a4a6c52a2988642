package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/report"
	"github.com/25x8/carrental/internal/carrental/repository"
	"github.com/25x8/carrental/internal/carrental/utils"
)

// RedemptionInput is a partner's payout request.
type RedemptionInput struct {
	Amount  decimal.Decimal
	Method  models.PaymentMethod
	Details models.PayoutDetails
	Notes   string
}

// RedemptionService moves money out of a partner's available balance under
// admin control. Every write runs under the partner ledger lock.
type RedemptionService struct {
	repo     repository.Repository
	notifier Notifier
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewRedemptionService creates a new redemption service
func NewRedemptionService(repo repository.Repository, notifier Notifier, log logrus.FieldLogger) *RedemptionService {
	return &RedemptionService{repo: repo, notifier: notifier, log: log, now: utcNow}
}

func validatePayout(method models.PaymentMethod, d models.PayoutDetails) (models.PayoutDetails, error) {
	switch method {
	case models.MethodBankTransfer:
		d.AccountName = strings.TrimSpace(d.AccountName)
		d.BankName = strings.TrimSpace(d.BankName)
		d.AccountNumber = strings.TrimSpace(d.AccountNumber)
		d.IFSC = strings.ToUpper(strings.TrimSpace(d.IFSC))
		d.UPIID = ""
		if d.AccountName == "" {
			return d, apperr.Validation("payout_details.account_name", "is required for bank_transfer")
		}
		if !utils.ValidateAccountNumber(d.AccountNumber) {
			return d, apperr.Validation("payout_details.account_number", "must be 9 to 18 digits")
		}
		if d.BankName == "" {
			return d, apperr.Validation("payout_details.bank_name", "is required for bank_transfer")
		}
		if !utils.ValidateIFSC(d.IFSC) {
			return d, apperr.Validation("payout_details.ifsc", "is not a valid IFSC code")
		}
	case models.MethodUPI:
		d = models.PayoutDetails{
			AccountName: strings.TrimSpace(d.AccountName),
			UPIID:       strings.TrimSpace(d.UPIID),
		}
		if !utils.ValidateUPIID(d.UPIID) {
			return d, apperr.Validation("payout_details.upi_id", "is not a valid UPI id")
		}
	default:
		return d, apperr.Validation("payment_method", "must be bank_transfer or upi")
	}
	return d, nil
}

// Request files a pending payout against the partner's available balance.
func (s *RedemptionService) Request(ctx context.Context, actor models.Actor, partnerID int64, in RedemptionInput) (*models.PaymentRequest, error) {
	if err := validMoney("amount", in.Amount); err != nil {
		return nil, err
	}
	details, err := validatePayout(in.Method, in.Details)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.GetPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if p.UserID != actor.UserID {
		return nil, apperr.Forbidden("only the partner can request its payout")
	}
	if p.Status != models.PartnerApproved {
		return nil, apperr.Conflict("partner %d is %s", p.ID, p.Status)
	}

	req := &models.PaymentRequest{
		PartnerID: p.ID,
		Amount:    in.Amount,
		Method:    in.Method,
		Details:   details,
		Status:    models.RedemptionPending,
		Notes:     strings.TrimSpace(in.Notes),
	}
	err = s.repo.WithPartnerLedger(ctx, p.ID, func(tx repository.LedgerTx) error {
		bal, err := ledgerBalance(ctx, tx, p, 0)
		if err != nil {
			return err
		}
		if in.Amount.GreaterThan(bal.AvailableBalance) {
			return apperr.Validation("amount", "exceeds available balance "+bal.AvailableBalance.StringFixed(2))
		}
		req.RequestedAt = s.now()
		return tx.InsertPaymentRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"partner_id": p.ID,
		"request_id": req.ID,
		"amount":     req.Amount.String(),
	}).Info("redemption requested")
	s.notifier.RedemptionChanged(ctx, models.NewRedemptionEvent(models.RedemptionRequested, req))
	return req, nil
}

// ledgerBalance computes the partner's balance inside the ledger, leaving
// request excludeID out of the pending total.
func ledgerBalance(ctx context.Context, tx repository.LedgerTx, p *models.Partner, excludeID int64) (models.PartnerBalance, error) {
	entries, err := tx.EarningEntries(ctx)
	if err != nil {
		return models.PartnerBalance{}, err
	}
	requests, err := tx.PaymentRequests(ctx)
	if err != nil {
		return models.PartnerBalance{}, err
	}
	if excludeID != 0 {
		kept := requests[:0]
		for _, r := range requests {
			if r.ID != excludeID {
				kept = append(kept, r)
			}
		}
		requests = kept
	}
	return ComputeBalance(p.ID, p.CommissionRate, entries, requests), nil
}

// transition applies an admin status change to a request under its
// partner's ledger lock.
func (s *RedemptionService) transition(ctx context.Context, actor models.Actor, id int64, event models.RedemptionEventType,
	fn func(tx repository.LedgerTx, p *models.Partner, req *models.PaymentRequest) error) (*models.PaymentRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	current, err := s.repo.GetPaymentRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetPartner(ctx, current.PartnerID)
	if err != nil {
		return nil, err
	}

	var req *models.PaymentRequest
	err = s.repo.WithPartnerLedger(ctx, p.ID, func(tx repository.LedgerTx) error {
		requests, err := tx.PaymentRequests(ctx)
		if err != nil {
			return err
		}
		for i := range requests {
			if requests[i].ID == id {
				req = &requests[i]
				break
			}
		}
		if req == nil {
			return apperr.NotFound("payment request", id)
		}
		if err := fn(tx, p, req); err != nil {
			return err
		}
		return tx.SavePaymentRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"partner_id": p.ID,
		"request_id": id,
		"status":     req.Status,
		"actor_id":   actor.UserID,
	}).Info("redemption status changed")
	s.notifier.RedemptionChanged(ctx, models.NewRedemptionEvent(event, req))
	return req, nil
}

func checkTransition(req *models.PaymentRequest, next models.RedemptionStatus) error {
	if !req.Status.CanTransitionTo(next) {
		return apperr.Conflict("payment request %d is %s and cannot become %s", req.ID, req.Status, next)
	}
	return nil
}

// MarkProcessing moves a pending request to processing.
func (s *RedemptionService) MarkProcessing(ctx context.Context, actor models.Actor, id int64) (*models.PaymentRequest, error) {
	return s.transition(ctx, actor, id, models.RedemptionMarkedProcessing,
		func(_ repository.LedgerTx, _ *models.Partner, req *models.PaymentRequest) error {
			if req.Status != models.RedemptionPending {
				return apperr.Conflict("payment request %d is %s, only pending requests can be marked processing", req.ID, req.Status)
			}
			req.Status = models.RedemptionProcessing
			return nil
		})
}

// Approve pays out an open request. The balance is recomputed under the
// ledger lock and the request must still fit in it.
func (s *RedemptionService) Approve(ctx context.Context, actor models.Actor, id int64, transactionID string) (*models.PaymentRequest, error) {
	transactionID = strings.TrimSpace(transactionID)
	return s.transition(ctx, actor, id, models.RedemptionApproved,
		func(tx repository.LedgerTx, p *models.Partner, req *models.PaymentRequest) error {
			if err := checkTransition(req, models.RedemptionPaid); err != nil {
				return err
			}
			bal, err := ledgerBalance(ctx, tx, p, req.ID)
			if err != nil {
				return err
			}
			if req.Amount.GreaterThan(bal.AvailableBalance) {
				return apperr.Conflict("payment request %d of %s exceeds available balance %s",
					req.ID, req.Amount.StringFixed(2), bal.AvailableBalance.StringFixed(2))
			}
			now := s.now()
			req.Status = models.RedemptionPaid
			req.ProcessedAt = &now
			if transactionID != "" {
				req.TransactionID = &transactionID
			}
			return nil
		})
}

// Reject fails an open request; its amount returns to the available balance.
func (s *RedemptionService) Reject(ctx context.Context, actor models.Actor, id int64, reason string) (*models.PaymentRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason", "is required")
	}
	return s.transition(ctx, actor, id, models.RedemptionRejected,
		func(_ repository.LedgerTx, _ *models.Partner, req *models.PaymentRequest) error {
			if err := checkTransition(req, models.RedemptionFailed); err != nil {
				return err
			}
			now := s.now()
			req.Status = models.RedemptionFailed
			req.ProcessedAt = &now
			req.Notes = reason
			return nil
		})
}

// Cancel withdraws an open request.
func (s *RedemptionService) Cancel(ctx context.Context, actor models.Actor, id int64, note string) (*models.PaymentRequest, error) {
	note = strings.TrimSpace(note)
	return s.transition(ctx, actor, id, models.RedemptionCancelledEvent,
		func(_ repository.LedgerTx, _ *models.Partner, req *models.PaymentRequest) error {
			if err := checkTransition(req, models.RedemptionCancelled); err != nil {
				return err
			}
			now := s.now()
			req.Status = models.RedemptionCancelled
			req.ProcessedAt = &now
			if note != "" {
				req.Notes = note
			}
			return nil
		})
}

func maskAll(reqs []models.PaymentRequest) []models.PaymentRequest {
	for i := range reqs {
		reqs[i].Details = reqs[i].Details.Masked()
	}
	return reqs
}

// List returns a partner's requests to the partner or an admin, with
// account numbers masked.
func (s *RedemptionService) List(ctx context.Context, actor models.Actor, partnerID int64) ([]models.PaymentRequest, error) {
	if _, err := authorizePartner(ctx, s.repo, actor, partnerID); err != nil {
		return nil, err
	}
	reqs, err := s.repo.ListPaymentRequests(ctx, partnerID, "")
	if err != nil {
		return nil, err
	}
	return maskAll(reqs), nil
}

// ListAll is the admin queue, optionally narrowed to one status.
func (s *RedemptionService) ListAll(ctx context.Context, actor models.Actor, status models.RedemptionStatus) ([]models.PaymentRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("status", "unknown redemption status")
	}
	reqs, err := s.repo.ListPaymentRequests(ctx, 0, status)
	if err != nil {
		return nil, err
	}
	return maskAll(reqs), nil
}

// Get returns full payout details to admins and masked ones to the partner.
func (s *RedemptionService) Get(ctx context.Context, actor models.Actor, id int64) (*models.PaymentRequest, error) {
	req, err := s.repo.GetPaymentRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return req, nil
	}
	if _, err := authorizePartner(ctx, s.repo, actor, req.PartnerID); err != nil {
		return nil, err
	}
	req.Details = req.Details.Masked()
	return req, nil
}

// PayoutQRCode renders a UPI pay QR code for an open upi request.
func (s *RedemptionService) PayoutQRCode(ctx context.Context, actor models.Actor, id int64) ([]byte, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	req, err := s.repo.GetPaymentRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Method != models.MethodUPI {
		return nil, apperr.Conflict("payment request %d is paid by %s", req.ID, req.Method)
	}
	if !req.Status.IsOpen() {
		return nil, apperr.Conflict("payment request %d is %s", req.ID, req.Status)
	}
	png, err := report.UPIQRCode(req.Details.UPIID, req.Details.AccountName, req.Amount, fmt.Sprintf("Payout %d", req.ID))
	if err != nil {
		return nil, fmt.Errorf("render payout qr for request %d: %w", req.ID, err)
	}
	return png, nil
}
