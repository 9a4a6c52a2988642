package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/25x8/carrental/internal/carrental/gateway"
	"github.com/25x8/carrental/internal/carrental/logger"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/repository"
)

var (
	admin    = models.Actor{UserID: 1, Role: models.RoleAdmin}
	owner    = models.Actor{UserID: 2, Role: models.RoleUser}
	renter   = models.Actor{UserID: 3, Role: models.RoleUser}
	stranger = models.Actor{UserID: 4, Role: models.RoleUser}

	jan1 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recorder struct {
	mu          sync.Mutex
	bookings    []*models.BookingEvent
	redemptions []*models.RedemptionEvent
}

func (r *recorder) BookingChanged(_ context.Context, e *models.BookingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings = append(r.bookings, e)
}

func (r *recorder) RedemptionChanged(_ context.Context, e *models.RedemptionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redemptions = append(r.redemptions, e)
}

func (r *recorder) bookingTypes() []models.BookingEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.BookingEventType, 0, len(r.bookings))
	for _, e := range r.bookings {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) redemptionTypes() []models.RedemptionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.RedemptionEventType, 0, len(r.redemptions))
	for _, e := range r.redemptions {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	ctx         context.Context
	repo        *repository.MemoryRepository
	events      *recorder
	catalog     *CatalogService
	bookings    *BookingService
	payments    *PaymentService
	earnings    *EarningsService
	redemptions *RedemptionService
	partners    *PartnerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	for _, a := range []models.Actor{admin, owner, renter, stranger} {
		_, err := repo.UpsertUser(ctx, &models.User{ID: a.UserID, Role: a.Role})
		require.NoError(t, err)
	}

	log := logger.Discard()
	events := &recorder{}
	gw := gateway.NewSimulated(gateway.NewMemoryIntentStore(), 15*time.Minute)

	return &fixture{
		ctx:         ctx,
		repo:        repo,
		events:      events,
		catalog:     NewCatalogService(repo, log),
		bookings:    NewBookingService(repo, events, log),
		payments:    NewPaymentService(repo, gw, events, log),
		earnings:    NewEarningsService(repo, log),
		redemptions: NewRedemptionService(repo, events, log),
		partners: NewPartnerService(repo, PartnerOptions{
			DefaultCommissionRate: decimal.NewFromInt(10),
			RegistrationFee:       decimal.Zero,
		}, log),
	}
}

// approvedPartner makes owner an approved partner with synced privileges.
func (f *fixture) approvedPartner(t *testing.T) *models.Partner {
	t.Helper()
	p, err := f.partners.Apply(f.ctx, owner)
	require.NoError(t, err)
	p, err = f.partners.Review(f.ctx, admin, p.ID, models.PartnerApproved)
	require.NoError(t, err)
	_, err = f.partners.SyncPrivileges(f.ctx, admin, p.ID)
	require.NoError(t, err)
	return p
}

func (f *fixture) partnerCar(t *testing.T, price string) *models.Car {
	t.Helper()
	car, err := f.catalog.AddCar(f.ctx, owner, NewCar{Model: "Swift", Location: "Pune", PricePerDay: dec(price)})
	require.NoError(t, err)
	return car
}

func (f *fixture) book(t *testing.T, carID int64, start time.Time, days int) *models.Booking {
	t.Helper()
	b, err := f.bookings.Create(f.ctx, renter, NewBooking{
		CarID:          carID,
		StartDate:      start,
		EndDate:        start.AddDate(0, 0, days),
		PickupLocation: "Pune station",
		ContactNumber:  "+91 98765 43210",
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) pay(t *testing.T, bookingID int64) *models.Booking {
	t.Helper()
	intent, err := f.payments.CreatePaymentIntent(f.ctx, renter, bookingID, decimal.Zero)
	require.NoError(t, err)
	b, err := f.payments.ConfirmPayment(f.ctx, renter, bookingID, intent.ID)
	require.NoError(t, err)
	return b
}

// paidBooking books and pays carID for days starting at start.
func (f *fixture) paidBooking(t *testing.T, carID int64, start time.Time, days int) *models.Booking {
	t.Helper()
	return f.pay(t, f.book(t, carID, start, days).ID)
}

func (f *fixture) balance(t *testing.T, partnerID int64) *models.PartnerBalance {
	t.Helper()
	bal, err := f.earnings.Balance(f.ctx, admin, partnerID)
	require.NoError(t, err)
	return bal
}

func upi(amount string) RedemptionInput {
	return RedemptionInput{
		Amount:  dec(amount),
		Method:  models.MethodUPI,
		Details: models.PayoutDetails{UPIID: "owner@okbank", AccountName: "Owner"},
	}
}
