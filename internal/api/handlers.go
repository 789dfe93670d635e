package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/solobook/booking-engine/internal/booking"
	"github.com/solobook/booking-engine/internal/phone"
)

type handlers struct {
	svc      *booking.Service
	validate *validator.Validate
}

func newHandlers(svc *booking.Service) *handlers {
	return &handlers{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *handlers) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *handlers) getSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
		return
	}

	slots, err := h.svc.AvailableSlots(r.Context(), date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SlotsResponse{Date: date, Slots: slots})
}

func (h *handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	b, err := h.svc.CreateBooking(r.Context(), booking.CreateInput{
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		ClientEmail: req.ClientEmail,
		Telegram:    req.Telegram,
		Date:        req.Date,
		TimeSlot:    req.TimeSlot,
		Notes:       req.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(*b))
}

func (h *handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	var req CancelBookingRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	err := h.svc.CancelBooking(r.Context(), id, phone.IdentityKey(req.ClientPhone))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Success: true})
}

func (h *handlers) currentBooking(w http.ResponseWriter, r *http.Request) {
	rawPhone := r.URL.Query().Get("phone")
	if phone.Normalize(rawPhone) == "" {
		writeError(w, http.StatusBadRequest, "missing_phone", "phone query parameter is required")
		return
	}

	b, err := h.svc.ActiveBooking(r.Context(), phone.IdentityKey(rawPhone))
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			writeJSON(w, http.StatusOK, struct {
				Booking *BookingResponse `json:"booking"`
			}{nil})
			return
		}
		writeServiceError(w, err)
		return
	}
	resp := toBookingResponse(*b)
	writeJSON(w, http.StatusOK, struct {
		Booking *BookingResponse `json:"booking"`
	}{&resp})
}

func (h *handlers) bookingHistory(w http.ResponseWriter, r *http.Request) {
	rawPhone := r.URL.Query().Get("phone")
	if phone.Normalize(rawPhone) == "" {
		writeError(w, http.StatusBadRequest, "missing_phone", "phone query parameter is required")
		return
	}

	history, err := h.svc.History(r.Context(), phone.IdentityKey(rawPhone))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponses(history))
}
