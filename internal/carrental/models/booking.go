package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingActive, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further status change may leave s.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// CanTransitionTo is the admin transition table: any target from a
// non-terminal source.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return next.Valid() && !s.IsTerminal()
}

// PaymentStatus is the payment sub-state of a booking.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentCancelled  PaymentStatus = "cancelled"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing, PaymentPaid, PaymentFailed, PaymentCancelled},
	PaymentProcessing: {PaymentPaid, PaymentFailed, PaymentCancelled},
	PaymentFailed:     {PaymentPending, PaymentProcessing, PaymentPaid, PaymentCancelled},
	PaymentPaid:       {PaymentRefunded},
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentPaid, PaymentFailed, PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s admits no outgoing transition.
func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is an allowed payment transition.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking is a reservation of a car by a renter. Status and PaymentStatus
// move independently.
type Booking struct {
	ID              int64           `json:"id" db:"id"`
	RenterID        int64           `json:"renter_id" db:"renter_id"`
	CarID           int64           `json:"car_id" db:"car_id"`
	StartDate       time.Time       `json:"start_date" db:"start_date"`
	EndDate         time.Time       `json:"end_date" db:"end_date"`
	TotalDays       int             `json:"total_days" db:"total_days"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status          BookingStatus   `json:"status" db:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status" db:"payment_status"`
	PickupLocation  string          `json:"pickup_location" db:"pickup_location"`
	DropoffLocation string          `json:"dropoff_location" db:"dropoff_location"`
	ContactNumber   string          `json:"contact_number" db:"contact_number"`
	SpecialRequests string          `json:"special_requests,omitempty" db:"special_requests"`
	PaidAt          *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	RefundedAt      *time.Time      `json:"refunded_at,omitempty" db:"refunded_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Overlaps reports whether the booking holds the car during [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartDate.Before(end) && start.Before(b.EndDate)
}

// HoldsCar reports whether the booking still blocks its car's calendar.
func (b *Booking) HoldsCar() bool {
	return b.Status == BookingPending || b.Status == BookingConfirmed || b.Status == BookingActive
}

// BookingFilter narrows admin booking listings. Zero values match everything.
type BookingFilter struct {
	Status        BookingStatus
	PaymentStatus PaymentStatus
	CarID         int64
	RenterID      int64
}
