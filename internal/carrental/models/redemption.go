package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is the payout rail of a redemption.
type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodUPI          PaymentMethod = "upi"
)

// Valid reports whether m is a supported payout method.
func (m PaymentMethod) Valid() bool {
	return m == MethodBankTransfer || m == MethodUPI
}

// RedemptionStatus is the state of a partner payout request.
type RedemptionStatus string

const (
	RedemptionPending    RedemptionStatus = "pending"
	RedemptionProcessing RedemptionStatus = "processing"
	RedemptionPaid       RedemptionStatus = "paid"
	RedemptionFailed     RedemptionStatus = "failed"
	RedemptionCancelled  RedemptionStatus = "cancelled"
)

var redemptionTransitions = map[RedemptionStatus][]RedemptionStatus{
	RedemptionPending:    {RedemptionProcessing, RedemptionPaid, RedemptionFailed, RedemptionCancelled},
	RedemptionProcessing: {RedemptionPaid, RedemptionFailed, RedemptionCancelled},
}

// Valid reports whether s is a known redemption status.
func (s RedemptionStatus) Valid() bool {
	switch s {
	case RedemptionPending, RedemptionProcessing, RedemptionPaid, RedemptionFailed, RedemptionCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s is paid, failed or cancelled.
func (s RedemptionStatus) IsTerminal() bool {
	return len(redemptionTransitions[s]) == 0
}

// IsOpen reports whether the amount still counts toward the pending balance.
func (s RedemptionStatus) IsOpen() bool {
	return s == RedemptionPending || s == RedemptionProcessing
}

// CanTransitionTo reports whether s -> next is allowed.
func (s RedemptionStatus) CanTransitionTo(next RedemptionStatus) bool {
	for _, allowed := range redemptionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PayoutDetails holds the destination of a payout. Bank fields apply to
// bank_transfer, UPIID to upi.
type PayoutDetails struct {
	AccountName   string `json:"account_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	UPIID         string `json:"upi_id,omitempty"`
}

// Masked returns a copy safe for listings: all but the last four digits of
// the account number are hidden.
func (d PayoutDetails) Masked() PayoutDetails {
	if n := len(d.AccountNumber); n > 4 {
		d.AccountNumber = strings.Repeat("*", n-4) + d.AccountNumber[n-4:]
	}
	return d
}

// PaymentRequest is a partner's request to redeem available earnings.
type PaymentRequest struct {
	ID            int64            `json:"id"`
	PartnerID     int64            `json:"partner_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Method        PaymentMethod    `json:"payment_method"`
	Details       PayoutDetails    `json:"payout_details"`
	Status        RedemptionStatus `json:"status"`
	RequestedAt   time.Time        `json:"requested_at"`
	ProcessedAt   *time.Time       `json:"processed_at,omitempty"`
	TransactionID *string          `json:"transaction_id,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}
