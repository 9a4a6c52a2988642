package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is anything published on the event bus. The id becomes the message key.
type Event interface {
	GetId() string
}

type BookingEventType string

const (
	BookingCreated        BookingEventType = "created"
	BookingStatusChanged  BookingEventType = "status_changed"
	BookingPaymentChanged BookingEventType = "payment_changed"
	BookingCancelledEvent BookingEventType = "cancelled"
	BookingDeleted        BookingEventType = "deleted"
	BookingRefundDue      BookingEventType = "refund_due"
)

// BookingEvent describes a committed change to a booking.
type BookingEvent struct {
	ID            string           `json:"id"`
	Type          BookingEventType `json:"type"`
	BookingID     int64            `json:"booking_id"`
	CarID         int64            `json:"car_id"`
	RenterID      int64            `json:"renter_id"`
	Status        BookingStatus    `json:"status"`
	PaymentStatus PaymentStatus    `json:"payment_status"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	ActorID       int64            `json:"actor_id"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// GetId returns the event id used as the message key
func (e *BookingEvent) GetId() string {
	return e.ID
}

// NewBookingEvent snapshots b for an event of type t.
func NewBookingEvent(t BookingEventType, b *Booking, actorID int64) *BookingEvent {
	return &BookingEvent{
		Type:          t,
		BookingID:     b.ID,
		CarID:         b.CarID,
		RenterID:      b.RenterID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		TotalAmount:   b.TotalAmount,
		ActorID:       actorID,
	}
}

type RedemptionEventType string

const (
	RedemptionRequested        RedemptionEventType = "requested"
	RedemptionMarkedProcessing RedemptionEventType = "processing"
	RedemptionApproved         RedemptionEventType = "approved"
	RedemptionRejected         RedemptionEventType = "rejected"
	RedemptionCancelledEvent   RedemptionEventType = "cancelled"
)

// RedemptionEvent describes a committed change to a payment request.
type RedemptionEvent struct {
	ID         string              `json:"id"`
	Type       RedemptionEventType `json:"type"`
	RequestID  int64               `json:"request_id"`
	PartnerID  int64               `json:"partner_id"`
	Amount     decimal.Decimal     `json:"amount"`
	Method     PaymentMethod       `json:"payment_method"`
	Status     RedemptionStatus    `json:"status"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// GetId returns the event id used as the message key
func (e *RedemptionEvent) GetId() string {
	return e.ID
}

// NewRedemptionEvent snapshots r for an event of type t.
func NewRedemptionEvent(t RedemptionEventType, r *PaymentRequest) *RedemptionEvent {
	return &RedemptionEvent{
		Type:      t,
		RequestID: r.ID,
		PartnerID: r.PartnerID,
		Amount:    r.Amount,
		Method:    r.Method,
		Status:    r.Status,
	}
}
