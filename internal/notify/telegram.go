package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/solobook/booking-engine/internal/booking"
	"github.com/solobook/booking-engine/internal/schedule"
)

// Telegram delivers booking events to the practitioner's chat via the Bot
// API. Each send carries its own timeout so a slow Telegram backend can never
// stall a caller past the deadline.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) BookingCreated(ctx context.Context, b booking.Booking) error {
	msg := fmt.Sprintf(
		"New booking\n\nDate: %s\nTime: %s\nName: %s\nPhone: %s",
		displayDate(b.Date), b.TimeSlot, b.ClientName, b.ClientPhone,
	)
	if b.Notes != "" {
		msg += "\nNotes: " + b.Notes
	}
	return t.send(ctx, msg)
}

func (t *Telegram) BookingCancelled(ctx context.Context, b booking.Booking) error {
	msg := fmt.Sprintf(
		"Booking cancelled\n\nDate: %s\nTime: %s\nName: %s",
		displayDate(b.Date), b.TimeSlot, b.ClientName,
	)
	return t.send(ctx, msg)
}

func (t *Telegram) BookingCompleted(ctx context.Context, b booking.Booking) error {
	msg := fmt.Sprintf(
		"Session completed\n\nDate: %s\nTime: %s\nName: %s",
		displayDate(b.Date), b.TimeSlot, b.ClientName,
	)
	return t.send(ctx, msg)
}

func (t *Telegram) BookingReminder(ctx context.Context, b booking.Booking) error {
	msg := fmt.Sprintf(
		"Upcoming session in one hour\n\nTime: %s\nName: %s\nPhone: %s",
		b.TimeSlot, b.ClientName, b.ClientPhone,
	)
	return t.send(ctx, msg)
}

func (t *Telegram) send(ctx context.Context, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text))
		done <- err
	}()

	select {
	case <-sendCtx.Done():
		return fmt.Errorf("telegram send: %w", sendCtx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	}
}

func displayDate(date string) string {
	d, err := time.Parse(schedule.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("02.01.2006")
}
