package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/solobook/booking-engine/internal/schedule"
)

var (
	ErrBookingNotFound  = errors.New("booking not found")
	ErrSlotTaken        = errors.New("slot already has a non-cancelled booking")
	ErrDuplicateBlock   = errors.New("block entry already exists")
	ErrBlockNotFound    = errors.New("block entry not found")
	ErrSettingsNotFound = errors.New("settings row not found")
)

// Repository contains all storage interactions needed by the service.
//
// CreateBooking and UpdateBookingSchedule must enforce the uniqueness of
// (date, time) among non-cancelled bookings atomically and return
// ErrSlotTaken when a second writer loses the race; pre-checks in the
// service are advisory only.
type Repository interface {
	CreateBooking(ctx context.Context, b Booking) (*Booking, error)
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error)
	UpdateBookingSchedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Booking, error)
	UpdateBookingNotes(ctx context.Context, id uuid.UUID, notes string) error
	DeleteBooking(ctx context.Context, id uuid.UUID) error

	// ActiveBooking returns the earliest-dated confirmed booking with
	// date >= today for the identity, or ErrBookingNotFound.
	ActiveBooking(ctx context.Context, identityKey, today string) (*Booking, error)
	ListByIdentity(ctx context.Context, identityKey string) ([]Booking, error)
	ListRange(ctx context.Context, from, to string) ([]Booking, error)
	BookedTimes(ctx context.Context, date string) ([]string, error)

	InsertBlock(ctx context.Context, b BlockEntry) error
	DeleteDayBlock(ctx context.Context, date string) error
	DeleteSlotBlock(ctx context.Context, id uuid.UUID) error
	DayBlocked(ctx context.Context, date string) (bool, error)
	BlockedTimes(ctx context.Context, date string) ([]string, error)
	ListDayBlocks(ctx context.Context) ([]BlockEntry, error)
	ListSlotBlocks(ctx context.Context) ([]BlockEntry, error)

	GetSettings(ctx context.Context) (*schedule.Settings, error)
	SaveSettings(ctx context.Context, s schedule.Settings) error

	ListClients(ctx context.Context, today string) ([]ClientSummary, error)
	Stats(ctx context.Context, today, monthStart, monthEnd, weekAgo string) (Stats, error)

	InsertReminder(ctx context.Context, r Reminder) error
	CancelRemindersForBooking(ctx context.Context, bookingID uuid.UUID) error
	DueReminders(ctx context.Context, now time.Time) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}
