package handlers

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type bookingStatusRequest struct {
	Status models.BookingStatus `json:"status" validate:"required,oneof=pending confirmed active completed cancelled"`
}

type paymentStatusRequest struct {
	PaymentStatus models.PaymentStatus `json:"payment_status" validate:"required,oneof=pending processing paid failed refunded cancelled"`
}

type deactivationRequest struct {
	Deactivated *bool `json:"deactivated" validate:"required"`
}

type reviewRequest struct {
	Status models.PartnerStatus `json:"status" validate:"required,oneof=approved rejected"`
}

type commissionRequest struct {
	CommissionRate *decimal.Decimal `json:"commission_rate" validate:"required,gte=0,lte=100"`
}

type approveRequest struct {
	TransactionID string `json:"transaction_id" validate:"max=128"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type cancelRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

// AdminListBookings lists all bookings, filtered by status, payment_status,
// car_id and renter_id query parameters
func (h *Handler) AdminListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.BookingFilter{
		Status:        models.BookingStatus(q.Get("status")),
		PaymentStatus: models.PaymentStatus(q.Get("payment_status")),
	}
	for _, p := range []struct {
		name string
		dst  *int64
	}{{"car_id", &filter.CarID}, {"renter_id", &filter.RenterID}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			h.writeError(w, r, apperr.Validation(p.name, "must be a positive integer"))
			return
		}
		*p.dst = v
	}

	bookings, err := h.Bookings.List(r.Context(), actorOf(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bookings)
}

// SetBookingStatus lets an admin override a booking status
func (h *Handler) SetBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req bookingStatusRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Bookings.SetStatus(r.Context(), actorOf(r), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// SetPaymentStatus lets an admin override a payment status
func (h *Handler) SetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req paymentStatusRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Bookings.UpdatePaymentStatus(r.Context(), actorOf(r), id, req.PaymentStatus)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// SetCarDeactivation deactivates or reactivates a car
func (h *Handler) SetCarDeactivation(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req deactivationRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	car, err := h.Catalog.SetAdminDeactivated(r.Context(), actorOf(r), id, *req.Deactivated)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, car)
}

// ListPartners handles GET /api/admin/partners
func (h *Handler) ListPartners(w http.ResponseWriter, r *http.Request) {
	partners, err := h.Partners.List(r.Context(), actorOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, partners)
}

// ReviewPartner approves or rejects an application
func (h *Handler) ReviewPartner(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req reviewRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Partners.Review(r.Context(), actorOf(r), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// SyncPartner copies the partner status onto the user's is_partner flag
func (h *Handler) SyncPartner(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.Partners.SyncPrivileges(r.Context(), actorOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// SetCommission changes a partner's commission rate
func (h *Handler) SetCommission(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req commissionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Partners.SetCommissionRate(r.Context(), actorOf(r), id, *req.CommissionRate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// EarningsReport returns the per-booking split and every partner's balance
func (h *Handler) EarningsReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Earnings.Breakdown(r.Context(), actorOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// ExportEarnings streams the earnings breakdown as an XLSX workbook
func (h *Handler) ExportEarnings(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Earnings.Breakdown(r.Context(), actorOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f, err := report.EarningsWorkbook(rep.Lines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			h.Log.WithError(err).Warn("close earnings workbook")
		}
	}()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="earnings.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		h.Log.WithError(err).Error("write earnings workbook")
	}
}

// ListAllRedemptions lists payment requests across partners
func (h *Handler) ListAllRedemptions(w http.ResponseWriter, r *http.Request) {
	status := models.RedemptionStatus(r.URL.Query().Get("status"))
	reqs, err := h.Redemptions.ListAll(r.Context(), actorOf(r), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reqs)
}

// MarkProcessing moves a payment request to processing
func (h *Handler) MarkProcessing(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pr, err := h.Redemptions.MarkProcessing(r.Context(), actorOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pr)
}

// ApproveRedemption pays out a request if it still fits the balance
func (h *Handler) ApproveRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req approveRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pr, err := h.Redemptions.Approve(r.Context(), actorOf(r), id, req.TransactionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pr)
}

// RejectRedemption rejects a payment request
func (h *Handler) RejectRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req rejectRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pr, err := h.Redemptions.Reject(r.Context(), actorOf(r), id, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pr)
}

// CancelRedemption cancels a payment request
func (h *Handler) CancelRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req cancelRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pr, err := h.Redemptions.Cancel(r.Context(), actorOf(r), id, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pr)
}

// PayoutQRCode renders a UPI pay QR code the admin can scan to pay out
func (h *Handler) PayoutQRCode(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	png, err := h.Redemptions.PayoutQRCode(r.Context(), actorOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Log.WithError(err).Warn("write payout qr")
	}
}
