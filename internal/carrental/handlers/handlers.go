package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/middleware"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/service"
)

// Services bundles the use cases the HTTP layer exposes.
type Services struct {
	Catalog     *service.CatalogService
	Bookings    *service.BookingService
	Payments    *service.PaymentService
	Partners    *service.PartnerService
	Earnings    *service.EarningsService
	Redemptions *service.RedemptionService
}

// Handler handles all HTTP requests
type Handler struct {
	Services
	Validate *validator.Validate
	Log      logrus.FieldLogger
}

// NewHandler creates a new handler
func NewHandler(svc Services, log logrus.FieldLogger) *Handler {
	return &Handler{
		Services: svc,
		Validate: NewValidator(),
		Log:      log,
	}
}

// Register mounts every route on r. auth guards everything under /api.
func (h *Handler) Register(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth)

		r.Route("/cars", func(r chi.Router) {
			r.Get("/", h.ListCars)
			r.Post("/", h.AddCar)
			r.Get("/{id}", h.GetCar)
			r.Patch("/{id}/price", h.SetPrice)
			r.Patch("/{id}/availability", h.SetAvailability)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.ListMyBookings)
			r.Post("/", h.CreateBooking)
			r.Get("/{id}", h.GetBooking)
			r.Delete("/{id}", h.DeleteBooking)
			r.Post("/{id}/cancel", h.CancelBooking)
			r.Post("/{id}/payment-intents", h.CreatePaymentIntent)
			r.Post("/{id}/payment/confirm", h.ConfirmPayment)
			r.Post("/{id}/payment/cancel", h.CancelPayment)
		})

		r.Route("/partners", func(r chi.Router) {
			r.Post("/", h.ApplyPartner)
			r.Get("/me", h.GetMyPartner)
			r.Get("/{id}", h.GetPartner)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/redemptions", h.ListRedemptions)
			r.Post("/{id}/redemptions", h.RequestRedemption)
		})
		r.Get("/redemptions/{id}", h.GetRedemption)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Get("/bookings", h.AdminListBookings)
			r.Patch("/bookings/{id}/status", h.SetBookingStatus)
			r.Patch("/bookings/{id}/payment-status", h.SetPaymentStatus)
			r.Patch("/cars/{id}/deactivation", h.SetCarDeactivation)

			r.Get("/partners", h.ListPartners)
			r.Patch("/partners/{id}/status", h.ReviewPartner)
			r.Post("/partners/{id}/sync", h.SyncPartner)
			r.Patch("/partners/{id}/commission", h.SetCommission)

			r.Get("/earnings", h.EarningsReport)
			r.Get("/earnings/export", h.ExportEarnings)

			r.Get("/redemptions", h.ListAllRedemptions)
			r.Post("/redemptions/{id}/processing", h.MarkProcessing)
			r.Post("/redemptions/{id}/approve", h.ApproveRedemption)
			r.Post("/redemptions/{id}/reject", h.RejectRedemption)
			r.Post("/redemptions/{id}/cancel", h.CancelRedemption)
			r.Get("/redemptions/{id}/upi-qr", h.PayoutQRCode)
		})
	})
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func actorOf(r *http.Request) models.Actor {
	actor, _ := middleware.ActorFromContext(r.Context())
	return actor
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("id", "must be a positive integer")
	}
	return id, nil
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted for requests whose fields are all optional.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperr.Validation(typeErr.Field, "has the wrong type")
		}
		var dateErr *dateError
		if errors.As(err, &dateErr) {
			return apperr.Validation("body", dateErr.Error())
		}
		return apperr.Validation("body", "malformed JSON")
	}
	if err := h.Validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.WithError(err).Error("write response")
	}
}

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Field   string      `json:"field,omitempty"`
	Message string      `json:"message"`
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to its status code. Internal details are logged and
// never sent to the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	body := errorBody{Kind: kind, Field: apperr.FieldOf(err), Message: "internal error"}

	entry := h.Log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	}).WithError(err)
	if kind == apperr.KindInternal {
		entry.Error("request failed")
	} else {
		var e *apperr.Error
		if errors.As(err, &e) {
			body.Message = e.Message
		}
		entry.Warn("request rejected")
	}
	h.writeJSON(w, status, map[string]errorBody{"error": body})
}

// date accepts "2006-01-02" or RFC 3339 timestamps.
type date struct{ time.Time }

type dateError struct{ value string }

// Error quotes the rejected value.
func (e *dateError) Error() string {
	return fmt.Sprintf("date %q must be YYYY-MM-DD or RFC 3339", e.value)
}

// UnmarshalJSON parses a JSON string as a date
func (d *date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return &dateError{value: s}
	}
	d.Time = t
	return nil
}
