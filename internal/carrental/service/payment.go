package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/gateway"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/repository"
)

// PaymentService runs the two-phase renter payment: an intent, then a
// confirmation carrying the intent id.
type PaymentService struct {
	repo     repository.Repository
	gateway  gateway.Gateway
	notifier Notifier
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(repo repository.Repository, gw gateway.Gateway, notifier Notifier, log logrus.FieldLogger) *PaymentService {
	return &PaymentService{repo: repo, gateway: gw, notifier: notifier, log: log, now: utcNow}
}

func (s *PaymentService) loadOwned(ctx context.Context, actor models.Actor, bookingID int64) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && b.RenterID != actor.UserID {
		return nil, apperr.Forbidden("booking belongs to another user")
	}
	return b, nil
}

// payable rejects bookings that can no longer take a payment.
func payable(b *models.Booking) error {
	if b.PaymentStatus == models.PaymentPaid {
		return apperr.Conflict("booking %d is already paid", b.ID)
	}
	if b.Status.IsTerminal() {
		return apperr.Conflict("booking %d is %s", b.ID, b.Status)
	}
	if !b.PaymentStatus.CanTransitionTo(models.PaymentPaid) {
		return apperr.Conflict("booking %d payment is %s", b.ID, b.PaymentStatus)
	}
	return nil
}

// CreatePaymentIntent opens a payment for the booking total. A zero amount
// means the booking total; any other amount must match it.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, actor models.Actor, bookingID int64, amount decimal.Decimal) (*gateway.Intent, error) {
	b, err := s.loadOwned(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		amount = b.TotalAmount
	} else if !amount.Equal(b.TotalAmount) {
		return nil, apperr.Validation("amount", "must equal the booking total "+b.TotalAmount.StringFixed(2))
	}

	if err := payable(b); err != nil {
		return nil, err
	}

	// the booking only moves to processing once the gateway holds an intent;
	// an intent orphaned by a failed update below expires unused
	intent, err := s.gateway.CreateIntent(ctx, bookingID, amount)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	b, changed, err := updateBooking(ctx, s.repo, bookingID, func(b *models.Booking) error {
		if err := payable(b); err != nil {
			return err
		}
		if b.PaymentStatus == models.PaymentProcessing {
			return errUnchanged
		}
		b.PaymentStatus = models.PaymentProcessing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"booking_id": bookingID, "intent_id": intent.ID}).Info("payment intent created")
	if changed {
		s.notifier.BookingChanged(ctx, models.NewBookingEvent(models.BookingPaymentChanged, b, actor.UserID))
	}
	return intent, nil
}

// ConfirmPayment marks the booking paid and confirms a pending booking.
// Confirming a paid booking again returns it unchanged.
func (s *PaymentService) ConfirmPayment(ctx context.Context, actor models.Actor, bookingID int64, intentID string) (*models.Booking, error) {
	b, err := s.loadOwned(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus == models.PaymentPaid {
		return b, nil
	}
	if err := payable(b); err != nil {
		return nil, err
	}

	if _, err := s.gateway.ConsumeIntent(ctx, bookingID, intentID); err != nil {
		// a concurrent confirm may have consumed the intent first
		if current, gerr := s.repo.GetBooking(ctx, bookingID); gerr == nil && current.PaymentStatus == models.PaymentPaid {
			return current, nil
		}
		return nil, err
	}

	b, changed, err := updateBooking(ctx, s.repo, bookingID, func(b *models.Booking) error {
		if b.PaymentStatus == models.PaymentPaid {
			return errUnchanged
		}
		if err := payable(b); err != nil {
			return err
		}
		now := s.now()
		b.PaymentStatus = models.PaymentPaid
		b.PaidAt = &now
		if b.Status == models.BookingPending {
			b.Status = models.BookingConfirmed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.log.WithFields(logrus.Fields{"booking_id": bookingID, "actor_id": actor.UserID, "amount": b.TotalAmount.String()}).Info("payment confirmed")
		s.notifier.BookingChanged(ctx, models.NewBookingEvent(models.BookingPaymentChanged, b, actor.UserID))
	}
	return b, nil
}

// CancelPayment is the renter backing out before paying: both the payment
// and the booking become cancelled.
func (s *PaymentService) CancelPayment(ctx context.Context, actor models.Actor, bookingID int64) (*models.Booking, error) {
	if _, err := s.loadOwned(ctx, actor, bookingID); err != nil {
		return nil, err
	}

	b, _, err := updateBooking(ctx, s.repo, bookingID, func(b *models.Booking) error {
		if !b.PaymentStatus.CanTransitionTo(models.PaymentCancelled) {
			return apperr.Conflict("booking %d payment is %s and cannot be cancelled", b.ID, b.PaymentStatus)
		}
		if b.Status.IsTerminal() {
			return apperr.Conflict("booking %d is already %s", b.ID, b.Status)
		}
		b.PaymentStatus = models.PaymentCancelled
		b.Status = models.BookingCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"booking_id": bookingID, "actor_id": actor.UserID}).Info("payment cancelled")
	s.notifier.BookingChanged(ctx, models.NewBookingEvent(models.BookingCancelledEvent, b, actor.UserID))
	return b, nil
}
