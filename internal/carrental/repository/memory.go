package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/models"
)

// MemoryRepository is an in-process Repository. A single mutex serializes
// every write, which gives Update* and WithPartnerLedger the same atomicity
// as row locks in PostgresRepository.
type MemoryRepository struct {
	mu sync.Mutex

	users    map[int64]models.User
	partners map[int64]models.Partner
	cars     map[int64]models.Car
	bookings map[int64]models.Booking
	requests map[int64]models.PaymentRequest

	nextPartnerID int64
	nextCarID     int64
	nextBookingID int64
	nextRequestID int64
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[int64]models.User),
		partners: make(map[int64]models.Partner),
		cars:     make(map[int64]models.Car),
		bookings: make(map[int64]models.Booking),
		requests: make(map[int64]models.PaymentRequest),
	}
}

// InitDB is a no-op for the in-memory repository
func (m *MemoryRepository) InitDB(string) error { return nil }

// Close is a no-op for the in-memory repository
func (m *MemoryRepository) Close() error { return nil }

func nowUTC() time.Time { return time.Now().UTC() }

// User directory

// UpsertUser inserts or updates a user by id
func (m *MemoryRepository) UpsertUser(_ context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.users[user.ID]
	if !ok {
		existing = models.User{ID: user.ID, CreatedAt: nowUTC()}
	}
	existing.Name = user.Name
	existing.Email = user.Email
	existing.Role = user.Role
	m.users[user.ID] = existing
	return &existing, nil
}

// GetUserByID returns a user by id
func (m *MemoryRepository) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	return &u, nil
}

// SetUserPartnerFlag marks a user as a partner or not
func (m *MemoryRepository) SetUserPartnerFlag(_ context.Context, userID int64, isPartner bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return apperr.NotFound("user", userID)
	}
	u.IsPartner = isPartner
	m.users[userID] = u
	return nil
}

// Catalog

// CreateCar stores a new car and assigns its id
func (m *MemoryRepository) CreateCar(_ context.Context, car *models.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextCarID++
	car.ID = m.nextCarID
	car.CreatedAt, car.UpdatedAt = nowUTC(), nowUTC()
	m.cars[car.ID] = cloneCar(*car)
	return nil
}

// GetCar returns a car by id
func (m *MemoryRepository) GetCar(_ context.Context, id int64) (*models.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cars[id]
	if !ok {
		return nil, apperr.NotFound("car", id)
	}
	c = cloneCar(c)
	return &c, nil
}

// ListCars returns cars ordered by id
func (m *MemoryRepository) ListCars(_ context.Context, onlyAvailable bool) ([]models.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cars := make([]models.Car, 0, len(m.cars))
	for _, c := range m.cars {
		if onlyAvailable && !c.Available {
			continue
		}
		cars = append(cars, cloneCar(c))
	}
	sort.Slice(cars, func(i, j int) bool { return cars[i].ID < cars[j].ID })
	return cars, nil
}

// UpdateCar applies fn to a car and saves the result
func (m *MemoryRepository) UpdateCar(_ context.Context, id int64, fn func(*models.Car) error) (*models.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cars[id]
	if !ok {
		return nil, apperr.NotFound("car", id)
	}
	c = cloneCar(c)
	if err := fn(&c); err != nil {
		return nil, err
	}
	c.UpdatedAt = nowUTC()
	m.cars[id] = cloneCar(c)
	return &c, nil
}

// Bookings

// CreateBooking builds and stores a booking while holding the car
func (m *MemoryRepository) CreateBooking(_ context.Context, carID int64, build func(car *models.Car, holds []models.Booking) (*models.Booking, error)) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cars[carID]
	if !ok {
		return nil, apperr.NotFound("car", carID)
	}
	c = cloneCar(c)

	var holds []models.Booking
	for _, b := range m.bookings {
		if b.CarID == carID && b.HoldsCar() {
			holds = append(holds, b)
		}
	}

	b, err := build(&c, holds)
	if err != nil {
		return nil, err
	}
	m.nextBookingID++
	b.ID = m.nextBookingID
	b.CreatedAt, b.UpdatedAt = nowUTC(), nowUTC()
	m.bookings[b.ID] = cloneBooking(*b)
	return b, nil
}

// GetBooking returns a booking by id
func (m *MemoryRepository) GetBooking(_ context.Context, id int64) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking", id)
	}
	b = cloneBooking(b)
	return &b, nil
}

// ListBookings returns bookings matching filter
func (m *MemoryRepository) ListBookings(_ context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Booking
	for _, b := range m.bookings {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && b.PaymentStatus != filter.PaymentStatus {
			continue
		}
		if filter.CarID != 0 && b.CarID != filter.CarID {
			continue
		}
		if filter.RenterID != 0 && b.RenterID != filter.RenterID {
			continue
		}
		out = append(out, cloneBooking(b))
	}
	// newest first, like the SQL ORDER BY
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// UpdateBooking applies fn to a booking and saves the result
func (m *MemoryRepository) UpdateBooking(_ context.Context, id int64, fn func(*models.Booking) error) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking", id)
	}
	b = cloneBooking(b)
	if err := fn(&b); err != nil {
		return nil, err
	}
	b.UpdatedAt = nowUTC()
	m.bookings[id] = cloneBooking(b)
	return &b, nil
}

// DeleteBooking removes a booking once check allows it
func (m *MemoryRepository) DeleteBooking(_ context.Context, id int64, check func(*models.Booking) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return apperr.NotFound("booking", id)
	}
	b = cloneBooking(b)
	if err := check(&b); err != nil {
		return err
	}
	delete(m.bookings, id)
	return nil
}

// Partners

// CreatePartner stores a new partner and assigns its id
func (m *MemoryRepository) CreatePartner(_ context.Context, partner *models.Partner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.partners {
		if p.UserID == partner.UserID {
			return apperr.Conflict("user %d already has a partner record", partner.UserID)
		}
	}
	m.nextPartnerID++
	partner.ID = m.nextPartnerID
	partner.CreatedAt, partner.UpdatedAt = nowUTC(), nowUTC()
	m.partners[partner.ID] = *partner
	return nil
}

// GetPartner returns a partner by id
func (m *MemoryRepository) GetPartner(_ context.Context, id int64) (*models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partners[id]
	if !ok {
		return nil, apperr.NotFound("partner", id)
	}
	return &p, nil
}

// GetPartnerByUserID returns the partner owned by a user
func (m *MemoryRepository) GetPartnerByUserID(_ context.Context, userID int64) (*models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.partners {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("partner for user", userID)
}

// ListPartners returns all partners
func (m *MemoryRepository) ListPartners(_ context.Context) ([]models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Partner, 0, len(m.partners))
	for _, p := range m.partners {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdatePartner applies fn to a partner and saves the result
func (m *MemoryRepository) UpdatePartner(_ context.Context, id int64, fn func(*models.Partner) error) (*models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partners[id]
	if !ok {
		return nil, apperr.NotFound("partner", id)
	}
	if err := fn(&p); err != nil {
		return nil, err
	}
	p.UpdatedAt = nowUTC()
	m.partners[id] = p
	return &p, nil
}

// Ledger

func (m *MemoryRepository) earningsLocked(partnerID int64) []models.EarningEntry {
	var out []models.EarningEntry
	for _, b := range m.bookings {
		if b.PaymentStatus != models.PaymentPaid {
			continue
		}
		car, ok := m.cars[b.CarID]
		if !ok || car.OwnerID == nil {
			continue
		}
		if partnerID != 0 && *car.OwnerID != partnerID {
			continue
		}
		out = append(out, models.EarningEntry{
			BookingID:   b.ID,
			CarID:       b.CarID,
			PartnerID:   *car.OwnerID,
			TotalAmount: b.TotalAmount,
			PaidAt:      cloneTime(b.PaidAt),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingID < out[j].BookingID })
	return out
}

func (m *MemoryRepository) requestsLocked(partnerID int64, status models.RedemptionStatus) []models.PaymentRequest {
	var out []models.PaymentRequest
	for _, r := range m.requests {
		if partnerID != 0 && r.PartnerID != partnerID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListEarningEntries returns the earning entries of a partner
func (m *MemoryRepository) ListEarningEntries(_ context.Context, partnerID int64) ([]models.EarningEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.earningsLocked(partnerID), nil
}

// ListPaymentRequests returns payment requests of a partner, filtered by status when set
func (m *MemoryRepository) ListPaymentRequests(_ context.Context, partnerID int64, status models.RedemptionStatus) ([]models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.requestsLocked(partnerID, status)
	// newest first, like the SQL ORDER BY
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// GetPaymentRequest returns a payment request by id
func (m *MemoryRepository) GetPaymentRequest(_ context.Context, id int64) (*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, apperr.NotFound("payment request", id)
	}
	r = cloneRequest(r)
	return &r, nil
}

// WithPartnerLedger holds the repository lock for the whole of fn. Writes are
// staged and applied only when fn succeeds.
func (m *MemoryRepository) WithPartnerLedger(_ context.Context, partnerID int64, fn func(LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.partners[partnerID]; !ok {
		return apperr.NotFound("partner", partnerID)
	}

	l := &memLedger{repo: m, partnerID: partnerID, staged: make(map[int64]models.PaymentRequest)}
	if err := fn(l); err != nil {
		return err
	}
	for id, r := range l.staged {
		m.requests[id] = r
	}
	m.nextRequestID = l.nextID(m.nextRequestID)
	return nil
}

type memLedger struct {
	repo      *MemoryRepository
	partnerID int64
	staged    map[int64]models.PaymentRequest
	inserted  int64
}

func (l *memLedger) nextID(base int64) int64 { return base + l.inserted }

// EarningEntries returns the partner's earning entries
func (l *memLedger) EarningEntries(context.Context) ([]models.EarningEntry, error) {
	return l.repo.earningsLocked(l.partnerID), nil
}

// PaymentRequests returns the partner's payment requests, staged writes included
func (l *memLedger) PaymentRequests(context.Context) ([]models.PaymentRequest, error) {
	out := l.repo.requestsLocked(l.partnerID, "")
	for i, r := range out {
		if s, ok := l.staged[r.ID]; ok {
			out[i] = cloneRequest(s)
		}
	}
	for id, s := range l.staged {
		if _, ok := l.repo.requests[id]; !ok {
			out = append(out, cloneRequest(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertPaymentRequest stages a new payment request
func (l *memLedger) InsertPaymentRequest(_ context.Context, req *models.PaymentRequest) error {
	if req.PartnerID != l.partnerID {
		return fmt.Errorf("payment request for partner %d inserted under ledger of partner %d", req.PartnerID, l.partnerID)
	}
	l.inserted++
	req.ID = l.nextID(l.repo.nextRequestID)
	if req.RequestedAt.IsZero() {
		req.RequestedAt = nowUTC()
	}
	l.staged[req.ID] = cloneRequest(*req)
	return nil
}

// SavePaymentRequest stages an update to a payment request
func (l *memLedger) SavePaymentRequest(_ context.Context, req *models.PaymentRequest) error {
	existing, ok := l.staged[req.ID]
	if !ok {
		existing, ok = l.repo.requests[req.ID]
	}
	if !ok || existing.PartnerID != l.partnerID {
		return apperr.NotFound("payment request", req.ID)
	}
	existing.Status = req.Status
	existing.ProcessedAt = cloneTime(req.ProcessedAt)
	existing.Notes = req.Notes
	if req.TransactionID != nil {
		tx := *req.TransactionID
		existing.TransactionID = &tx
	} else {
		existing.TransactionID = nil
	}
	l.staged[req.ID] = existing
	return nil
}

// Copies keep callers from mutating stored records through shared pointers.

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneCar(c models.Car) models.Car {
	if c.OwnerID != nil {
		id := *c.OwnerID
		c.OwnerID = &id
	}
	return c
}

func cloneBooking(b models.Booking) models.Booking {
	b.PaidAt = cloneTime(b.PaidAt)
	b.RefundedAt = cloneTime(b.RefundedAt)
	return b
}

func cloneRequest(r models.PaymentRequest) models.PaymentRequest {
	r.ProcessedAt = cloneTime(r.ProcessedAt)
	if r.TransactionID != nil {
		tx := *r.TransactionID
		r.TransactionID = &tx
	}
	return r
}
