// Package service implements the booking lifecycle and the partner earnings
// ledger on top of a repository.Repository.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/repository"
)

// Notifier receives committed changes. Implementations must not block the
// caller for long and must not fail the operation.
type Notifier interface {
	BookingChanged(ctx context.Context, event *models.BookingEvent)
	RedemptionChanged(ctx context.Context, event *models.RedemptionEvent)
}

// NopNotifier drops every event.
type NopNotifier struct{}

// BookingChanged discards the event.
func (NopNotifier) BookingChanged(context.Context, *models.BookingEvent) {}

// RedemptionChanged discards the event.
func (NopNotifier) RedemptionChanged(context.Context, *models.RedemptionEvent) {}

// errUnchanged aborts an update whose record is already in the wanted state.
var errUnchanged = errors.New("unchanged")

var hundred = decimal.NewFromInt(100)

func utcNow() time.Time { return time.Now().UTC() }

func requireAdmin(actor models.Actor) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden("admin capability required")
	}
	return nil
}

// actorPartner resolves the partner record of a non-admin actor. A missing
// record is reported as an authorization failure.
func actorPartner(ctx context.Context, repo repository.Repository, actor models.Actor) (*models.Partner, error) {
	p, err := repo.GetPartnerByUserID(ctx, actor.UserID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Forbidden("caller is not a partner")
	}
	return p, err
}

// authorizePartner allows admins and the partner's own user.
func authorizePartner(ctx context.Context, repo repository.Repository, actor models.Actor, partnerID int64) (*models.Partner, error) {
	p, err := repo.GetPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && p.UserID != actor.UserID {
		return nil, apperr.Forbidden("partner belongs to another user")
	}
	return p, nil
}

// validMoney rejects non-positive amounts and sub-cent precision.
func validMoney(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation(field, "must be greater than zero")
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return apperr.Validation(field, "must have at most two decimal places")
	}
	return nil
}

// updateBooking runs fn under the booking lock. fn returning errUnchanged
// makes the call a no-op that returns the current record.
func updateBooking(ctx context.Context, repo repository.Repository, id int64, fn func(*models.Booking) error) (b *models.Booking, changed bool, err error) {
	b, err = repo.UpdateBooking(ctx, id, fn)
	if errors.Is(err, errUnchanged) {
		b, err = repo.GetBooking(ctx, id)
		return b, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}
