package notify

import (
	"context"

	"github.com/solobook/booking-engine/internal/booking"
)

// Noop satisfies booking.Notifier and discards every event. Used when no bot
// token is configured.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) BookingCreated(ctx context.Context, b booking.Booking) error   { return nil }
func (n *Noop) BookingCancelled(ctx context.Context, b booking.Booking) error { return nil }
func (n *Noop) BookingCompleted(ctx context.Context, b booking.Booking) error { return nil }
func (n *Noop) BookingReminder(ctx context.Context, b booking.Booking) error  { return nil }
