package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/25x8/carrental/internal/carrental/service"
)

type carRequest struct {
	Model       string          `json:"model" validate:"required,max=255"`
	Location    string          `json:"location" validate:"max=255"`
	PricePerDay decimal.Decimal `json:"price_per_day" validate:"gt=0"`
}

type priceRequest struct {
	PricePerDay decimal.Decimal `json:"price_per_day" validate:"gt=0"`
}

type availabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

// ListCars lists the catalog; ?available=true hides cars that cannot be booked
func (h *Handler) ListCars(w http.ResponseWriter, r *http.Request) {
	onlyAvailable := r.URL.Query().Get("available") == "true"
	cars, err := h.Catalog.ListCars(r.Context(), onlyAvailable)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cars)
}

// GetCar handles GET /api/cars/{id}
func (h *Handler) GetCar(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	car, err := h.Catalog.GetCar(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, car)
}

// AddCar lists a platform car (admin) or a partner car
func (h *Handler) AddCar(w http.ResponseWriter, r *http.Request) {
	var req carRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	car, err := h.Catalog.AddCar(r.Context(), actorOf(r), service.NewCar{
		Model:       req.Model,
		Location:    req.Location,
		PricePerDay: req.PricePerDay,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, car)
}

// SetPrice changes a car's daily rate
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req priceRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	car, err := h.Catalog.SetPrice(r.Context(), actorOf(r), id, req.PricePerDay)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, car)
}

// SetAvailability toggles whether a car can be booked
func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req availabilityRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	car, err := h.Catalog.SetAvailability(r.Context(), actorOf(r), id, *req.Available)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, car)
}
