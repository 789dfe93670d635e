package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/solobook/booking-engine/internal/booking"
	"github.com/solobook/booking-engine/internal/schedule"
)

type CreateBookingRequest struct {
	ClientName  string `json:"client_name" validate:"required,min=2,max=120"`
	ClientPhone string `json:"client_phone" validate:"required,min=5,max=32"`
	ClientEmail string `json:"client_email" validate:"omitempty,email"`
	Telegram    string `json:"client_telegram" validate:"omitempty,max=64"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot    string `json:"time" validate:"required,datetime=15:04"`
	Notes       string `json:"notes" validate:"max=1000"`
}

type CancelBookingRequest struct {
	ClientPhone string `json:"client_phone" validate:"required,min=5,max=32"`
}

type RescheduleRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot string `json:"time" validate:"required,datetime=15:04"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=cancelled completed"`
}

type UpdateNotesRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type BlockDayRequest struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Reason string `json:"reason" validate:"max=200"`
}

type BlockSlotRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot string `json:"time" validate:"required,datetime=15:04"`
	Reason   string `json:"reason" validate:"max=200"`
}

type SettingsRequest struct {
	WorkStart       string `json:"work_start" validate:"required,datetime=15:04"`
	WorkEnd         string `json:"work_end" validate:"required,datetime=15:04"`
	SessionDuration int    `json:"session_duration" validate:"required,min=5,max=480"`
	BreakDuration   int    `json:"break_duration" validate:"min=0,max=240"`
}

type BookingResponse struct {
	ID          uuid.UUID `json:"id"`
	ClientName  string    `json:"client_name"`
	ClientPhone string    `json:"client_phone"`
	ClientEmail string    `json:"client_email,omitempty"`
	Telegram    string    `json:"client_telegram,omitempty"`
	Date        string    `json:"date"`
	TimeSlot    string    `json:"time"`
	Notes       string    `json:"notes,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func toBookingResponse(b booking.Booking) BookingResponse {
	return BookingResponse{
		ID:          b.ID,
		ClientName:  b.ClientName,
		ClientPhone: b.ClientPhone,
		ClientEmail: b.ClientEmail,
		Telegram:    b.Telegram,
		Date:        b.Date,
		TimeSlot:    b.TimeSlot,
		Notes:       b.Notes,
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt,
	}
}

func toBookingResponses(bs []booking.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingResponse(b))
	}
	return out
}

type BlockResponse struct {
	ID     uuid.UUID `json:"id"`
	Date   string    `json:"date"`
	Time   *string   `json:"time,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

func toBlockResponses(entries []booking.BlockEntry) []BlockResponse {
	out := make([]BlockResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, BlockResponse{ID: e.ID, Date: e.Date, Time: e.Time, Reason: e.Reason})
	}
	return out
}

type ClientResponse struct {
	IdentityKey string `json:"identity_key"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email,omitempty"`
	Telegram    string `json:"telegram,omitempty"`
	Total       int    `json:"total_bookings"`
	Upcoming    int    `json:"upcoming_bookings"`
	Completed   int    `json:"completed_bookings"`
	Cancelled   int    `json:"cancelled_bookings"`
	FirstDate   string `json:"first_booking"`
	LastDate    string `json:"last_booking"`
}

type StatsResponse struct {
	Total     int `json:"total"`
	Upcoming  int `json:"upcoming"`
	ThisMonth int `json:"this_month"`
	ThisWeek  int `json:"this_week"`
}

type SettingsResponse struct {
	WorkStart       string `json:"work_start"`
	WorkEnd         string `json:"work_end"`
	SessionDuration int    `json:"session_duration"`
	BreakDuration   int    `json:"break_duration"`
}

func toSettingsResponse(s schedule.Settings) SettingsResponse {
	return SettingsResponse{
		WorkStart:       s.WorkStart,
		WorkEnd:         s.WorkEnd,
		SessionDuration: s.SessionDuration,
		BreakDuration:   s.BreakDuration,
	}
}

type SlotsResponse struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// MutationResponse is the (success, reason) pair every mutating operation
// yields; Reason is non-empty on failure and presentation-only.
type MutationResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Success bool   `json:"success"`
}
