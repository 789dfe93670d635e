package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/solobook/booking-engine/internal/booking"
	redisclient "github.com/solobook/booking-engine/internal/redis"
	"github.com/solobook/booking-engine/internal/schedule"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details, Success: false})
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses:
// validation rejections to 400, conflicts to 409, missing entities to 404,
// everything else to a generic 500 so infrastructure detail never leaks.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidDate),
		errors.Is(err, schedule.ErrInvalidTime),
		errors.Is(err, schedule.ErrInvalidWorkWindow):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, schedule.ErrSlotInPast):
		writeError(w, http.StatusBadRequest, "slot_in_past", err.Error())
	case errors.Is(err, schedule.ErrTooSoon):
		writeError(w, http.StatusBadRequest, "slot_too_soon", err.Error())
	case errors.Is(err, schedule.ErrBeyondHorizon):
		writeError(w, http.StatusBadRequest, "beyond_horizon", err.Error())
	case errors.Is(err, schedule.ErrCancelWindowOver):
		writeError(w, http.StatusBadRequest, "cancel_window_closed", err.Error())
	case errors.Is(err, booking.ErrAlreadyActive):
		writeError(w, http.StatusConflict, "already_active", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, booking.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrNotConfirmed),
		errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrBlockNotFound):
		writeError(w, http.StatusNotFound, "block_not_found", err.Error())
	case errors.Is(err, booking.ErrDuplicateBlock):
		writeError(w, http.StatusConflict, "duplicate_block", err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "operation failed")
	}
}
