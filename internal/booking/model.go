package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no further status transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Booking is one appointment row. Date is "2006-01-02", TimeSlot is "15:04"
// aligned to the session grid. IdentityKey groups rows belonging to the same
// client across visits; ClientPhone keeps the display form.
type Booking struct {
	ID          uuid.UUID
	ClientName  string
	ClientPhone string
	ClientEmail string
	Telegram    string
	IdentityKey string
	Date        string
	TimeSlot    string
	Notes       string
	Status      Status
	CreatedAt   time.Time
}

// BlockEntry is an admin-declared unavailability window. A nil Time means the
// whole day is blocked; day-blocks and slot-blocks are the same entity
// distinguished only by that nullability.
type BlockEntry struct {
	ID     uuid.UUID
	Date   string
	Time   *string
	Reason string
}

// ClientSummary is the per-client aggregate derived from the booking set.
// Display fields come from the client's most recently created booking row.
type ClientSummary struct {
	IdentityKey string
	Name        string
	Phone       string
	Email       string
	Telegram    string
	Total       int
	Upcoming    int // confirmed with date >= today
	Completed   int
	Cancelled   int
	FirstDate   string
	LastDate    string
}

// Stats are the admin dashboard counters.
type Stats struct {
	Total     int
	Upcoming  int
	ThisMonth int
	ThisWeek  int
}

// Reminder is a durable scheduled notification keyed by booking. The worker
// re-checks the booking status before firing, so cancelling or deleting a
// booking suppresses its reminder instead of leaving a stale timer behind.
type Reminder struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	FireAt    time.Time
	Cancelled bool
	SentAt    *time.Time
}
