package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/25x8/carrental/internal/carrental/service"
)

type bookingRequest struct {
	CarID           int64  `json:"car_id" validate:"required,gt=0"`
	StartDate       date   `json:"start_date"`
	EndDate         date   `json:"end_date"`
	PickupLocation  string `json:"pickup_location" validate:"required,max=255"`
	DropoffLocation string `json:"dropoff_location" validate:"max=255"`
	ContactNumber   string `json:"contact_number" validate:"required,max=32"`
	SpecialRequests string `json:"special_requests" validate:"max=1000"`
}

type intentRequest struct {
	// Amount is optional; when set it must equal the booking total.
	Amount decimal.Decimal `json:"amount" validate:"gte=0"`
}

type confirmRequest struct {
	IntentID string `json:"intent_id" validate:"required"`
}

// CreateBooking books a car for the caller
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Bookings.Create(r.Context(), actorOf(r), service.NewBooking{
		CarID:           req.CarID,
		StartDate:       req.StartDate.Time,
		EndDate:         req.EndDate.Time,
		PickupLocation:  req.PickupLocation,
		DropoffLocation: req.DropoffLocation,
		ContactNumber:   req.ContactNumber,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, b)
}

// ListMyBookings returns the caller's bookings, newest first
func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Bookings.ListMine(r.Context(), actorOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bookings)
}

// GetBooking handles GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Bookings.Get(r.Context(), actorOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// CancelBooking handles POST /api/bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Bookings.Cancel(r.Context(), actorOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// DeleteBooking handles DELETE /api/bookings/{id}
func (h *Handler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Bookings.Delete(r.Context(), actorOf(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreatePaymentIntent opens the first phase of a payment
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req intentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	intent, err := h.Payments.CreatePaymentIntent(r.Context(), actorOf(r), id, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, intent)
}

// ConfirmPayment completes a payment with the intent id from the first phase
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req confirmRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Payments.ConfirmPayment(r.Context(), actorOf(r), id, req.IntentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// CancelPayment handles POST /api/bookings/{id}/payment/cancel
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Payments.CancelPayment(r.Context(), actorOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}
