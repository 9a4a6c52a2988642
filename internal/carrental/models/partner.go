package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartnerStatus is the review state of a partner application.
type PartnerStatus string

const (
	PartnerPending  PartnerStatus = "pending"
	PartnerApproved PartnerStatus = "approved"
	PartnerRejected PartnerStatus = "rejected"
)

// Valid reports whether s is a known partner status.
func (s PartnerStatus) Valid() bool {
	return s == PartnerPending || s == PartnerApproved || s == PartnerRejected
}

// Partner is a user's application to list cars. CommissionRate is the
// platform's percentage of each paid booking.
type Partner struct {
	ID              int64           `json:"id" db:"id"`
	UserID          int64           `json:"user_id" db:"user_id"`
	Status          PartnerStatus   `json:"status" db:"status"`
	CommissionRate  decimal.Decimal `json:"commission_rate" db:"commission_rate"`
	RegistrationFee decimal.Decimal `json:"registration_fee" db:"registration_fee"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// EarningEntry is one paid booking on a partner's car, as read from the ledger.
type EarningEntry struct {
	BookingID   int64           `json:"booking_id" db:"booking_id"`
	CarID       int64           `json:"car_id" db:"car_id"`
	PartnerID   int64           `json:"partner_id" db:"partner_id"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaidAt      *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
}

// EarningLine is an EarningEntry with its commission split applied.
type EarningLine struct {
	EarningEntry
	CommissionRate decimal.Decimal `json:"commission_rate"`
	PartnerShare   decimal.Decimal `json:"partner_share"`
	PlatformShare  decimal.Decimal `json:"platform_share"`
}

// PartnerBalance is derived on every read and never stored.
type PartnerBalance struct {
	PartnerID        int64           `json:"partner_id"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	PartnerEarnings  decimal.Decimal `json:"partner_earnings"`
	PlatformEarnings decimal.Decimal `json:"platform_earnings"`
	TotalRedeemed    decimal.Decimal `json:"total_redeemed"`
	PendingBalance   decimal.Decimal `json:"pending_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
}
