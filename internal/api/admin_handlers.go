package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/solobook/booking-engine/internal/booking"
	"github.com/solobook/booking-engine/internal/schedule"
)

func (h *handlers) adminCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	b, err := h.svc.CreateBookingByAdmin(r.Context(), booking.CreateInput{
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

func (h *handlers) adminListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bookings, err := h.svc.ListBookings(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponses(bookings))
}

func (h *handlers) adminReschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	b, err := h.svc.RescheduleBooking(r.Context(), id, req.Date, req.TimeSlot)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(*b))
}

func (h *handlers) adminSetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	var req SetStatusRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	if err := h.svc.SetStatus(r.Context(), id, booking.Status(req.Status)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Success: true})
}

func (h *handlers) adminUpdateNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateNotesRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	if err := h.svc.UpdateNotes(r.Context(), id, req.Notes); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Success: true})
}

func (h *handlers) adminDeleteBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteBooking(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Success: true})
}

func (h *handlers) adminListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.Clients(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]ClientResponse, 0, len(clients))
	for _, c := range clients {
		out = append(out, ClientResponse{
			IdentityKey: c.IdentityKey,
			Name:        c.Name,
			Phone:       c.Phone,
			Email:       c.Email,
			Telegram:    c.Telegram,
			Total:       c.Total,
			Upcoming:    c.Upcoming,
			Completed:   c.Completed,
			Cancelled:   c.Cancelled,
			FirstDate:   c.FirstDate,
			LastDate:    c.LastDate,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) adminClientHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing_identity_key", "identity key is required")
		return
	}
	history, err := h.svc.History(r.Context(), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponses(history))
}

func (h *handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Total:     stats.Total,
		Upcoming:  stats.Upcoming,
		ThisMonth: stats.ThisMonth,
		ThisWeek:  stats.ThisWeek,
	})
}

func (h *handlers) adminGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Settings(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(settings))
}

func (h *handlers) adminUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	err := h.svc.UpdateSettings(r.Context(), schedule.Settings{
		WorkStart:       req.WorkStart,
		WorkEnd:         req.WorkEnd,
		SessionDuration: req.SessionDuration,
		BreakDuration:   req.BreakDuration,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Success: true})
}

func (h *handlers) adminBlockDay(w http.ResponseWriter, r *http.Request) {
	var req BlockDayRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	ok, err := h.svc.BlockDay(r.Context(), req.Date, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusConflict, MutationResponse{Success: false, Reason: "day is already blocked"})
		return
	}
	writeJSON(w, http.StatusCreated, MutationResponse{Success: true})
}

func (h *handlers) adminUnblockDay(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if err := h.svc.UnblockDay(r.Context(), date); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Success: true})
}

func (h *handlers) adminBlockSlot(w http.ResponseWriter, r *http.Request) {
	var req BlockSlotRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	ok, err := h.svc.BlockSlot(r.Context(), req.Date, req.TimeSlot, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusConflict, MutationResponse{Success: false, Reason: "slot is already blocked"})
		return
	}
	writeJSON(w, http.StatusCreated, MutationResponse{Success: true})
}

func (h *handlers) adminUnblockSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.UnblockSlot(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Success: true})
}

func (h *handlers) adminListBlockedDays(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListBlockedDays(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBlockResponses(entries))
}

func (h *handlers) adminListBlockedSlots(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListBlockedSlots(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBlockResponses(entries))
}
