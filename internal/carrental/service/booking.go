package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/repository"
	"github.com/25x8/carrental/internal/carrental/utils"
)

const (
	day           = 24 * time.Hour
	secondsPerDay = int64(day / time.Second)
)

// NewBooking is the input of BookingService.Create.
type NewBooking struct {
	CarID           int64
	StartDate       time.Time
	EndDate         time.Time
	PickupLocation  string
	DropoffLocation string
	ContactNumber   string
	SpecialRequests string
}

// BookingService owns the booking status machine and the admin payment
// override.
type BookingService struct {
	repo     repository.Repository
	notifier Notifier
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(repo repository.Repository, notifier Notifier, log logrus.FieldLogger) *BookingService {
	return &BookingService{repo: repo, notifier: notifier, log: log, now: utcNow}
}

// TotalDays counts started days between start and end. It works on whole
// seconds so ranges beyond time.Duration's 292 years still count right.
func TotalDays(start, end time.Time) int {
	secs := end.Unix() - start.Unix()
	days := secs / secondsPerDay
	rem := (secs%secondsPerDay)*int64(time.Second) + int64(end.Nanosecond()-start.Nanosecond())
	if rem > 0 {
		days++
	}
	return int(days)
}

// Create books a car for [StartDate, EndDate) at the car's current price.
func (s *BookingService) Create(ctx context.Context, actor models.Actor, in NewBooking) (*models.Booking, error) {
	if in.CarID <= 0 {
		return nil, apperr.Validation("car_id", "is required")
	}
	if in.StartDate.IsZero() {
		return nil, apperr.Validation("start_date", "is required")
	}
	if in.EndDate.IsZero() {
		return nil, apperr.Validation("end_date", "is required")
	}
	if !in.EndDate.After(in.StartDate) {
		return nil, apperr.Validation("end_date", "must be after start_date")
	}
	contact, ok := utils.NormalizePhone(in.ContactNumber)
	if !ok {
		return nil, apperr.Validation("contact_number", "is not a valid phone number")
	}
	pickup := strings.TrimSpace(in.PickupLocation)
	if pickup == "" {
		return nil, apperr.Validation("pickup_location", "is required")
	}
	dropoff := strings.TrimSpace(in.DropoffLocation)
	if dropoff == "" {
		dropoff = pickup
	}

	start, end := in.StartDate.UTC(), in.EndDate.UTC()
	days := TotalDays(start, end)

	b, err := s.repo.CreateBooking(ctx, in.CarID, func(car *models.Car, holds []models.Booking) (*models.Booking, error) {
		if !car.Available || car.AdminDeactivated {
			return nil, apperr.Validation("car_id", "car is not available")
		}
		for _, h := range holds {
			if h.Overlaps(start, end) {
				return nil, apperr.Conflict("car %d is already booked from %s to %s",
					car.ID, h.StartDate.Format(time.DateOnly), h.EndDate.Format(time.DateOnly))
			}
		}
		return &models.Booking{
			RenterID:        actor.UserID,
			CarID:           car.ID,
			StartDate:       start,
			EndDate:         end,
			TotalDays:       days,
			TotalAmount:     car.PricePerDay.Mul(decimal.NewFromInt(int64(days))).Round(2),
			Status:          models.BookingPending,
			PaymentStatus:   models.PaymentPending,
			PickupLocation:  pickup,
			DropoffLocation: dropoff,
			ContactNumber:   contact,
			SpecialRequests: strings.TrimSpace(in.SpecialRequests),
		}, nil
	})
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Validation("car_id", "car does not exist")
	}
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"car_id":     b.CarID,
		"actor_id":   actor.UserID,
		"total":      b.TotalAmount.String(),
	}).Info("booking created")
	s.notifier.BookingChanged(ctx, models.NewBookingEvent(models.BookingCreated, b, actor.UserID))
	return b, nil
}

// canView reports whether actor may read b: its renter, an admin, or the
// partner owning the car.
func (s *BookingService) canView(ctx context.Context, actor models.Actor, b *models.Booking) (bool, error) {
	if actor.IsAdmin() || b.RenterID == actor.UserID {
		return true, nil
	}
	p, err := s.repo.GetPartnerByUserID(ctx, actor.UserID)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	car, err := s.repo.GetCar(ctx, b.CarID)
	if err != nil {
		return false, err
	}
	return car.OwnedBy(p.ID), nil
}

// Get returns a booking visible to actor
func (s *BookingService) Get(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.canView(ctx, actor, b)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("booking belongs to another user")
	}
	return b, nil
}

// ListMine returns the actor's own bookings, newest first.
func (s *BookingService) ListMine(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	return s.repo.ListBookings(ctx, models.BookingFilter{RenterID: actor.UserID})
}

// List is the admin listing.
func (s *BookingService) List(ctx context.Context, actor models.Actor, filter models.BookingFilter) ([]models.Booking, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation("status", "unknown booking status")
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, apperr.Validation("payment_status", "unknown payment status")
	}
	return s.repo.ListBookings(ctx, filter)
}

// SetStatus is the admin override of the booking status. Any target is
// accepted from a non-terminal status.
func (s *BookingService) SetStatus(ctx context.Context, actor models.Actor, id int64, status models.BookingStatus) (*models.Booking, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.Validation("status", "unknown booking status")
	}

	b, changed, err := updateBooking(ctx, s.repo, id, func(b *models.Booking) error {
		if b.Status == status {
			return errUnchanged
		}
		if !b.Status.CanTransitionTo(status) {
			return apperr.Conflict("booking %d is %s and can no longer change status", b.ID, b.Status)
		}
		b.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.WithFields(logrus.Fields{"booking_id": id, "status": status, "actor_id": actor.UserID}).Info("booking status set")
		s.notifier.BookingChanged(ctx, models.NewBookingEvent(models.BookingStatusChanged, b, actor.UserID))
	}
	return b, nil
}

// UpdatePaymentStatus is the admin override of the payment status. It follows
// the payment transition table and stamps paidAt and refundedAt.
func (s *BookingService) UpdatePaymentStatus(ctx context.Context, actor models.Actor, id int64, status models.PaymentStatus) (*models.Booking, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.Validation("payment_status", "unknown payment status")
	}

	b, changed, err := updateBooking(ctx, s.repo, id, func(b *models.Booking) error {
		if b.PaymentStatus == status {
			return errUnchanged
		}
		if !b.PaymentStatus.CanTransitionTo(status) {
			return apperr.Conflict("booking %d payment cannot move from %s to %s", b.ID, b.PaymentStatus, status)
		}
		now := s.now()
		switch status {
		case models.PaymentPaid:
			if b.PaidAt == nil {
				b.PaidAt = &now
			}
		case models.PaymentRefunded:
			b.RefundedAt = &now
		}
		b.PaymentStatus = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.WithFields(logrus.Fields{"booking_id": id, "payment_status": status, "actor_id": actor.UserID}).Info("booking payment status set")
		s.notifier.BookingChanged(ctx, models.NewBookingEvent(models.BookingPaymentChanged, b, actor.UserID))
	}
	return b, nil
}

// authorizeRenter loads the booking and allows its renter or an admin.
func (s *BookingService) authorizeRenter(ctx context.Context, actor models.Actor, id int64) error {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && b.RenterID != actor.UserID {
		return apperr.Forbidden("booking belongs to another user")
	}
	return nil
}

// Cancel moves a non-terminal booking to cancelled. An unpaid payment is
// cancelled with it; a paid one stays paid and a refund_due event is emitted.
func (s *BookingService) Cancel(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error) {
	if err := s.authorizeRenter(ctx, actor, id); err != nil {
		return nil, err
	}

	b, _, err := updateBooking(ctx, s.repo, id, func(b *models.Booking) error {
		if b.Status.IsTerminal() {
			return apperr.Conflict("booking %d is already %s", b.ID, b.Status)
		}
		b.Status = models.BookingCancelled
		if b.PaymentStatus.CanTransitionTo(models.PaymentCancelled) {
			b.PaymentStatus = models.PaymentCancelled
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"booking_id": id, "actor_id": actor.UserID}).Info("booking cancelled")
	s.notifier.BookingChanged(ctx, models.NewBookingEvent(models.BookingCancelledEvent, b, actor.UserID))
	if b.PaymentStatus == models.PaymentPaid {
		s.log.WithField("booking_id", id).Warn("cancelled booking was paid, refund due")
		s.notifier.BookingChanged(ctx, models.NewBookingEvent(models.BookingRefundDue, b, actor.UserID))
	}
	return b, nil
}

// Delete hard-deletes a booking. Paid bookings are kept as earnings history.
func (s *BookingService) Delete(ctx context.Context, actor models.Actor, id int64) error {
	if err := s.authorizeRenter(ctx, actor, id); err != nil {
		return err
	}

	var deleted models.Booking
	err := s.repo.DeleteBooking(ctx, id, func(b *models.Booking) error {
		if b.PaymentStatus == models.PaymentPaid {
			return apperr.Conflict("booking %d is paid and cannot be deleted", b.ID)
		}
		deleted = *b
		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"booking_id": id, "actor_id": actor.UserID}).Info("booking deleted")
	s.notifier.BookingChanged(ctx, models.NewBookingEvent(models.BookingDeleted, &deleted, actor.UserID))
	return nil
}
