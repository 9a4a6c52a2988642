package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/gateway"
	"github.com/25x8/carrental/internal/carrental/logger"
	"github.com/25x8/carrental/internal/carrental/middleware"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/repository"
	"github.com/25x8/carrental/internal/carrental/service"
)

const secret = "handlers-test-secret"

type testAPI struct {
	t      *testing.T
	srv    *httptest.Server
	tokens map[string]string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	repo := repository.NewMemoryRepository()
	log := logger.Discard()
	notifier := service.NopNotifier{}
	gw := gateway.NewSimulated(gateway.NewMemoryIntentStore(), 15*time.Minute)

	h := NewHandler(Services{
		Catalog:  service.NewCatalogService(repo, log),
		Bookings: service.NewBookingService(repo, notifier, log),
		Payments: service.NewPaymentService(repo, gw, notifier, log),
		Partners: service.NewPartnerService(repo, service.PartnerOptions{
			DefaultCommissionRate: decimal.NewFromInt(10),
		}, log),
		Earnings:    service.NewEarningsService(repo, log),
		Redemptions: service.NewRedemptionService(repo, notifier, log),
	}, log)

	r := chi.NewRouter()
	h.Register(r, middleware.AuthMiddleware(&middleware.JWTConfig{SecretKey: secret, Users: repo, Log: log}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	api := &testAPI{t: t, srv: srv, tokens: map[string]string{}}
	for name, u := range map[string]models.User{
		"admin":  {ID: 1, Name: "Admin", Role: models.RoleAdmin},
		"owner":  {ID: 2, Name: "Owner", Role: models.RoleUser},
		"renter": {ID: 3, Name: "Renter", Role: models.RoleUser},
	} {
		tok, err := middleware.GenerateToken(u, secret)
		require.NoError(t, err)
		api.tokens[name] = tok
	}
	return api
}

func (a *testAPI) do(who, method, path string, body any) *http.Response {
	a.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rdr)
	require.NoError(a.t, err)
	if tok, ok := a.tokens[who]; ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// call expects status and decodes the JSON body into out when it is not nil.
func (a *testAPI) call(who, method, path string, body any, status int, out any) {
	a.t.Helper()
	resp := a.do(who, method, path, body)
	if !assert.Equal(a.t, status, resp.StatusCode, "%s %s", method, path) {
		raw, _ := io.ReadAll(resp.Body)
		a.t.Logf("body: %s", raw)
		a.t.FailNow()
	}
	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (a *testAPI) fails(who, method, path string, body any, status int) errorBody {
	a.t.Helper()
	var e errorResponse
	a.call(who, method, path, body, status, &e)
	return e.Error
}

// setupPartnerCar makes owner an approved partner with one car at 50/day.
func (a *testAPI) setupPartnerCar() (models.Partner, models.Car) {
	var p models.Partner
	a.call("owner", http.MethodPost, "/api/partners", nil, http.StatusCreated, &p)
	a.call("admin", http.MethodPatch, fmt.Sprintf("/api/admin/partners/%d/status", p.ID),
		map[string]string{"status": "approved"}, http.StatusOK, &p)
	a.call("admin", http.MethodPost, fmt.Sprintf("/api/admin/partners/%d/sync", p.ID), nil, http.StatusOK, nil)

	var car models.Car
	a.call("owner", http.MethodPost, "/api/cars",
		map[string]any{"model": "Swift", "location": "Pune", "price_per_day": "50"}, http.StatusCreated, &car)
	return p, car
}

func (a *testAPI) paidBooking(carID int64, start string) models.Booking {
	var b models.Booking
	a.call("renter", http.MethodPost, "/api/bookings", map[string]any{
		"car_id":          carID,
		"start_date":      start,
		"end_date":        mustAddDays(a.t, start, 3),
		"pickup_location": "Pune station",
		"contact_number":  "+91 98765 43210",
	}, http.StatusCreated, &b)

	var intent gateway.Intent
	a.call("renter", http.MethodPost, fmt.Sprintf("/api/bookings/%d/payment-intents", b.ID), nil, http.StatusCreated, &intent)
	a.call("renter", http.MethodPost, fmt.Sprintf("/api/bookings/%d/payment/confirm", b.ID),
		map[string]string{"intent_id": intent.ID}, http.StatusOK, &b)
	return b
}

func mustAddDays(t *testing.T, day string, n int) string {
	d, err := time.Parse(time.DateOnly, day)
	require.NoError(t, err)
	return d.AddDate(0, 0, n).Format(time.DateOnly)
}

func TestHealthIsPublic(t *testing.T) {
	api := newTestAPI(t)
	api.call("", http.MethodGet, "/health", nil, http.StatusOK, nil)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)
	e := api.fails("", http.MethodGet, "/api/cars", nil, http.StatusUnauthorized)
	assert.Equal(t, apperr.Kind("unauthenticated"), e.Kind)

	e = api.fails("renter", http.MethodGet, "/api/admin/partners", nil, http.StatusForbidden)
	assert.Equal(t, apperr.KindAuthorization, e.Kind)
}

func TestBookingAndPaymentFlow(t *testing.T) {
	api := newTestAPI(t)
	p, car := api.setupPartnerCar()

	b := api.paidBooking(car.ID, "2026-01-01")
	assert.Equal(t, models.PaymentPaid, b.PaymentStatus)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.True(t, decimal.NewFromInt(150).Equal(b.TotalAmount))
	assert.Equal(t, 3, b.TotalDays)

	var mine []models.Booking
	api.call("renter", http.MethodGet, "/api/bookings", nil, http.StatusOK, &mine)
	assert.Len(t, mine, 1)

	e := api.fails("renter", http.MethodPost, "/api/bookings", map[string]any{
		"car_id":          car.ID,
		"start_date":      "2026-01-02T00:00:00Z",
		"end_date":        "2026-01-03",
		"pickup_location": "Pune",
		"contact_number":  "9876543210",
	}, http.StatusConflict)
	assert.Equal(t, apperr.KindConflict, e.Kind)

	e = api.fails("renter", http.MethodDelete, fmt.Sprintf("/api/bookings/%d", b.ID), nil, http.StatusConflict)
	assert.Contains(t, e.Message, "paid")

	var bal models.PartnerBalance
	api.call("owner", http.MethodGet, fmt.Sprintf("/api/partners/%d/balance", p.ID), nil, http.StatusOK, &bal)
	assert.True(t, decimal.NewFromInt(135).Equal(bal.AvailableBalance))
	assert.True(t, decimal.NewFromInt(15).Equal(bal.PlatformEarnings))
}

func TestCreateBookingValidation(t *testing.T) {
	api := newTestAPI(t)
	_, car := api.setupPartnerCar()

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"malformed", "not an object", "body"},
		{"missing car", map[string]any{"pickup_location": "Pune", "contact_number": "9876543210"}, "car_id"},
		{"wrong type", map[string]any{"car_id": "one"}, "car_id"},
		{"bad date", map[string]any{
			"car_id": car.ID, "start_date": "01/02/2026", "pickup_location": "Pune", "contact_number": "9876543210",
		}, "body"},
		{"reversed dates", map[string]any{
			"car_id": car.ID, "start_date": "2026-01-05", "end_date": "2026-01-01",
			"pickup_location": "Pune", "contact_number": "9876543210",
		}, "end_date"},
		{"no pickup", map[string]any{
			"car_id": car.ID, "start_date": "2026-01-01", "end_date": "2026-01-02", "contact_number": "9876543210",
		}, "pickup_location"},
	}
	for _, tt := range tests {
		e := api.fails("renter", http.MethodPost, "/api/bookings", tt.body, http.StatusBadRequest)
		assert.Equal(t, apperr.KindValidation, e.Kind, tt.name)
		assert.Equal(t, tt.field, e.Field, tt.name)
	}

	e := api.fails("renter", http.MethodGet, "/api/bookings/abc", nil, http.StatusBadRequest)
	assert.Equal(t, "id", e.Field)
	api.fails("renter", http.MethodGet, "/api/bookings/999", nil, http.StatusNotFound)
}

func TestRedemptionFlow(t *testing.T) {
	api := newTestAPI(t)
	p, car := api.setupPartnerCar()
	api.paidBooking(car.ID, "2026-01-01")
	redemptions := fmt.Sprintf("/api/partners/%d/redemptions", p.ID)

	e := api.fails("owner", http.MethodPost, redemptions, map[string]any{
		"amount":         "100",
		"payment_method": "bank_transfer",
		"payout_details": map[string]string{"account_name": "Owner", "ifsc": "BAD"},
	}, http.StatusBadRequest)
	assert.Equal(t, "payout_details.ifsc", e.Field)

	e = api.fails("owner", http.MethodPost, redemptions, map[string]any{
		"amount":         "200",
		"payment_method": "upi",
		"payout_details": map[string]string{"upi_id": "owner@okbank"},
	}, http.StatusBadRequest)
	assert.Equal(t, "amount", e.Field)

	var bankReq models.PaymentRequest
	api.call("owner", http.MethodPost, redemptions, map[string]any{
		"amount":         "60",
		"payment_method": "bank_transfer",
		"payout_details": map[string]string{
			"account_name": "Owner", "account_number": "123456789012", "bank_name": "SBI", "ifsc": "SBIN0001234",
		},
	}, http.StatusCreated, &bankReq)
	assert.Equal(t, "********9012", bankReq.Details.AccountNumber)

	var upiReq models.PaymentRequest
	api.call("owner", http.MethodPost, redemptions, map[string]any{
		"amount":         "40",
		"payment_method": "upi",
		"payout_details": map[string]string{"upi_id": "owner@okbank", "account_name": "Owner"},
	}, http.StatusCreated, &upiReq)

	var full models.PaymentRequest
	api.call("admin", http.MethodGet, fmt.Sprintf("/api/redemptions/%d", bankReq.ID), nil, http.StatusOK, &full)
	assert.Equal(t, "123456789012", full.Details.AccountNumber)

	var queue []models.PaymentRequest
	api.call("admin", http.MethodGet, "/api/admin/redemptions?status=pending", nil, http.StatusOK, &queue)
	assert.Len(t, queue, 2)

	resp := api.do("admin", http.MethodGet, fmt.Sprintf("/api/admin/redemptions/%d/upi-qr", upiReq.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	api.fails("admin", http.MethodPost, fmt.Sprintf("/api/admin/redemptions/%d/reject", upiReq.ID),
		map[string]string{}, http.StatusBadRequest)
	api.call("admin", http.MethodPost, fmt.Sprintf("/api/admin/redemptions/%d/reject", upiReq.ID),
		map[string]string{"reason": "wrong handle"}, http.StatusOK, nil)
	api.call("admin", http.MethodPost, fmt.Sprintf("/api/admin/redemptions/%d/processing", bankReq.ID), nil, http.StatusOK, nil)

	var paid models.PaymentRequest
	api.call("admin", http.MethodPost, fmt.Sprintf("/api/admin/redemptions/%d/approve", bankReq.ID),
		map[string]string{"transaction_id": "UTR42"}, http.StatusOK, &paid)
	assert.Equal(t, models.RedemptionPaid, paid.Status)

	api.fails("admin", http.MethodPost, fmt.Sprintf("/api/admin/redemptions/%d/cancel", bankReq.ID), nil, http.StatusConflict)

	var bal models.PartnerBalance
	api.call("owner", http.MethodGet, fmt.Sprintf("/api/partners/%d/balance", p.ID), nil, http.StatusOK, &bal)
	assert.True(t, decimal.NewFromInt(60).Equal(bal.TotalRedeemed))
	assert.True(t, decimal.NewFromInt(75).Equal(bal.AvailableBalance))
}

func TestAdminEndpoints(t *testing.T) {
	api := newTestAPI(t)
	p, car := api.setupPartnerCar()
	b := api.paidBooking(car.ID, "2026-01-01")

	var filtered []models.Booking
	api.call("admin", http.MethodGet, "/api/admin/bookings?payment_status=paid&car_id="+fmt.Sprint(car.ID), nil, http.StatusOK, &filtered)
	assert.Len(t, filtered, 1)
	e := api.fails("admin", http.MethodGet, "/api/admin/bookings?renter_id=x", nil, http.StatusBadRequest)
	assert.Equal(t, "renter_id", e.Field)

	e = api.fails("admin", http.MethodPatch, fmt.Sprintf("/api/admin/bookings/%d/status", b.ID),
		map[string]string{"status": "parked"}, http.StatusBadRequest)
	assert.Equal(t, "status", e.Field)
	api.call("admin", http.MethodPatch, fmt.Sprintf("/api/admin/bookings/%d/status", b.ID),
		map[string]string{"status": "active"}, http.StatusOK, nil)

	api.call("admin", http.MethodPatch, fmt.Sprintf("/api/admin/partners/%d/commission", p.ID),
		map[string]string{"commission_rate": "20"}, http.StatusOK, nil)
	e = api.fails("admin", http.MethodPatch, fmt.Sprintf("/api/admin/partners/%d/commission", p.ID),
		map[string]string{"commission_rate": "120"}, http.StatusBadRequest)
	assert.Equal(t, "commission_rate", e.Field)
	e = api.fails("admin", http.MethodPatch, fmt.Sprintf("/api/admin/partners/%d/commission", p.ID),
		map[string]string{}, http.StatusBadRequest)
	assert.Equal(t, "commission_rate", e.Field)
	var unchanged models.Partner
	api.call("admin", http.MethodGet, fmt.Sprintf("/api/partners/%d", p.ID), nil, http.StatusOK, &unchanged)
	assert.True(t, decimal.NewFromInt(20).Equal(unchanged.CommissionRate))

	var rep service.Report
	api.call("admin", http.MethodGet, "/api/admin/earnings", nil, http.StatusOK, &rep)
	require.Len(t, rep.Lines, 1)
	assert.True(t, decimal.NewFromInt(120).Equal(rep.Lines[0].PartnerShare))

	resp := api.do("admin", http.MethodGet, "/api/admin/earnings/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	wb, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer wb.Close()
	total, err := wb.GetCellValue("Earnings", "F2")
	require.NoError(t, err)
	assert.Equal(t, "120", total)

	var deactivated models.Car
	api.call("admin", http.MethodPatch, fmt.Sprintf("/api/admin/cars/%d/deactivation", car.ID),
		map[string]bool{"deactivated": true}, http.StatusOK, &deactivated)
	assert.False(t, deactivated.Available)
	api.fails("owner", http.MethodPatch, fmt.Sprintf("/api/cars/%d/availability", car.ID),
		map[string]bool{"available": true}, http.StatusConflict)
	api.fails("owner", http.MethodPatch, fmt.Sprintf("/api/cars/%d/availability", car.ID),
		map[string]string{}, http.StatusBadRequest)

	var cars []models.Car
	api.call("renter", http.MethodGet, "/api/cars?available=true", nil, http.StatusOK, &cars)
	assert.Empty(t, cars)
}
