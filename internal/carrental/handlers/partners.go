package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/service"
)

type payoutDetailsRequest struct {
	AccountName   string `json:"account_name" validate:"max=255"`
	AccountNumber string `json:"account_number" validate:"omitempty,numeric,min=9,max=18"`
	BankName      string `json:"bank_name" validate:"max=255"`
	IFSC          string `json:"ifsc" validate:"omitempty,ifsc"`
	UPIID         string `json:"upi_id" validate:"omitempty,upi"`
}

type redemptionRequest struct {
	Amount  decimal.Decimal      `json:"amount" validate:"gt=0"`
	Method  models.PaymentMethod `json:"payment_method" validate:"required,oneof=bank_transfer upi"`
	Details payoutDetailsRequest `json:"payout_details"`
	Notes   string               `json:"notes" validate:"max=1000"`
}

// ApplyPartner files a partner application for the caller
func (h *Handler) ApplyPartner(w http.ResponseWriter, r *http.Request) {
	p, err := h.Partners.Apply(r.Context(), actorOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// GetMyPartner returns the caller's partner profile
func (h *Handler) GetMyPartner(w http.ResponseWriter, r *http.Request) {
	p, err := h.Partners.GetMine(r.Context(), actorOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// GetPartner handles GET /api/partners/{id}
func (h *Handler) GetPartner(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Partners.Get(r.Context(), actorOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// GetBalance returns the partner balance, recomputed on every call
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bal, err := h.Earnings.Balance(r.Context(), actorOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bal)
}

// ListRedemptions lists the caller's payment requests
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reqs, err := h.Redemptions.List(r.Context(), actorOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reqs)
}

// RequestRedemption files a payout request against the available balance
func (h *Handler) RequestRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req redemptionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pr, err := h.Redemptions.Request(r.Context(), actorOf(r), id, service.RedemptionInput{
		Amount: req.Amount,
		Method: req.Method,
		Details: models.PayoutDetails{
			AccountName:   req.Details.AccountName,
			AccountNumber: req.Details.AccountNumber,
			BankName:      req.Details.BankName,
			IFSC:          req.Details.IFSC,
			UPIID:         req.Details.UPIID,
		},
		Notes: req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// the response never echoes the full account number
	pr.Details = pr.Details.Masked()
	h.writeJSON(w, http.StatusCreated, pr)
}

// GetRedemption returns one payment request
func (h *Handler) GetRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pr, err := h.Redemptions.Get(r.Context(), actorOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pr)
}
