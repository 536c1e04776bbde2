package handlers

import (
	"net/http"
	"strconv"

	"github.com/diagnosis/parkspot/internal/domain"
	mw "github.com/diagnosis/parkspot/internal/http/middleware"
	"github.com/diagnosis/parkspot/internal/http/response"
	"github.com/diagnosis/parkspot/internal/service"
	"github.com/diagnosis/parkspot/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type BookingHandler struct {
	Bookings service.BookingService
	// Idempotency wraps POST /; nil disables replay.
	Idempotency func(http.Handler) http.Handler
}

func NewBookingHandler(bookings service.BookingService, idempotency func(http.Handler) http.Handler) *BookingHandler {
	return &BookingHandler{Bookings: bookings, Idempotency: idempotency}
}

func (h *BookingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if h.Idempotency != nil {
			r.Use(h.Idempotency)
		}
		r.Post("/", h.create)
	})
	r.Put("/checkinout", h.checkInOut)
	r.Get("/", h.list)
	r.Get("/{id}", h.getByID)
	r.Get("/{id}/qr", h.qr)
	return r
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := mw.RequireCaller(w, r)
	if !ok {
		return
	}
	var in domain.CreateBookingRequest
	if err := decodeJSON(w, r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	booking, err := h.Bookings.CreateBooking(r.Context(), caller, &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, booking)
}

func (h *BookingHandler) checkInOut(w http.ResponseWriter, r *http.Request) {
	caller, ok := mw.RequireCaller(w, r)
	if !ok {
		return
	}
	var in domain.CheckInOutRequest
	if err := decodeJSON(w, r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	booking, err := h.Bookings.CheckInOut(r.Context(), caller, &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, booking)
}

func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := mw.RequireCaller(w, r)
	if !ok {
		return
	}
	bookings, err := h.Bookings.ListMine(r.Context(), caller)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, bookings)
}

func (h *BookingHandler) getByID(w http.ResponseWriter, r *http.Request) {
	caller, ok := mw.RequireCaller(w, r)
	if !ok {
		return
	}
	booking, err := h.Bookings.GetBooking(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, booking)
}

func (h *BookingHandler) qr(w http.ResponseWriter, r *http.Request) {
	caller, ok := mw.RequireCaller(w, r)
	if !ok {
		return
	}
	png, err := h.Bookings.ConfirmationQR(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	if _, err := w.Write(png); err != nil {
		logger.WarnContext(r.Context(), "Failed to write QR image", "error", err)
	}
}
