package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/solobook/booking-engine/internal/phone"
	redisclient "github.com/solobook/booking-engine/internal/redis"
	"github.com/solobook/booking-engine/internal/schedule"
)

var (
	ErrAlreadyActive     = errors.New("client already has an active booking")
	ErrSlotBeingBooked   = errors.New("slot is currently being booked, please retry")
	ErrNotConfirmed      = errors.New("booking is not confirmed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Notifier is the notification port the ledger fires into on lifecycle
// events. Dispatch is asynchronous and best-effort: a failing notifier never
// rolls back or rejects the mutation that triggered it.
type Notifier interface {
	BookingCreated(ctx context.Context, b Booking) error
	BookingCancelled(ctx context.Context, b Booking) error
	BookingCompleted(ctx context.Context, b Booking) error
	BookingReminder(ctx context.Context, b Booking) error
}

const (
	settingsCacheKey = "settings"
	slotsVersionKey  = "slots:ver"
	notifyTimeout    = 10 * time.Second
)

// Options carries the timing policy the service applies.
type Options struct {
	Loc          *time.Location
	Rules        schedule.Rules
	CacheTTL     time.Duration
	ReminderLead time.Duration
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	cache    redisclient.Cache
	notifier Notifier
	opts     Options

	now func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cache redisclient.Cache, notifier Notifier, opts Options) *Service {
	if opts.Loc == nil {
		opts.Loc = time.Local
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.ReminderLead <= 0 {
		opts.ReminderLead = time.Hour
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		cache:    cache,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *Service) today() string {
	return s.now().In(s.opts.Loc).Format(schedule.DateLayout)
}

// CreateInput carries the identity fields and the requested slot of a
// client-initiated booking.
type CreateInput struct {
	ClientName  string
	ClientPhone string
	ClientEmail string
	Telegram    string
	Date        string
	TimeSlot    string
	Notes       string
}

// CreateBooking validates and persists a client-initiated booking. The
// validation order is load-bearing: the active-booking gate runs before any
// slot or timing check, so a client with an active booking always sees that
// rejection first. The slot uniqueness itself is enforced by the storage
// layer inside the per-slot lock; the lock only narrows the race window.
func (s *Service) CreateBooking(ctx context.Context, in CreateInput) (*Booking, error) {
	key := phone.IdentityKey(in.ClientPhone)

	_, err := s.repo.ActiveBooking(ctx, key, s.today())
	if err == nil {
		return nil, ErrAlreadyActive
	}
	if !errors.Is(err, ErrBookingNotFound) {
		return nil, fmt.Errorf("check active booking: %w", err)
	}

	if err := schedule.CheckBookable(in.Date, in.TimeSlot, s.opts.Loc, s.now(), s.opts.Rules); err != nil {
		return nil, err
	}

	return s.insertBooking(ctx, in, key)
}

// CreateBookingByAdmin skips the active-booking gate and the timing rules:
// the admin may force-book a past-minimum slot or a second active booking
// for the same client. Slot uniqueness still applies.
func (s *Service) CreateBookingByAdmin(ctx context.Context, in CreateInput) (*Booking, error) {
	if _, err := schedule.ParseDateTime(in.Date, in.TimeSlot, s.opts.Loc); err != nil {
		return nil, err
	}
	return s.insertBooking(ctx, in, phone.IdentityKey(in.ClientPhone))
}

func (s *Service) insertBooking(ctx context.Context, in CreateInput, identityKey string) (*Booking, error) {
	var created *Booking

	err := s.locker.WithSlotLock(ctx, in.Date, in.TimeSlot, func(lockCtx context.Context) error {
		b, err := s.repo.CreateBooking(lockCtx, Booking{
			ClientName:  in.ClientName,
			ClientPhone: in.ClientPhone,
			ClientEmail: in.ClientEmail,
			Telegram:    in.Telegram,
			IdentityKey: identityKey,
			Date:        in.Date,
			TimeSlot:    in.TimeSlot,
			Notes:       in.Notes,
			Status:      StatusConfirmed,
		})
		if err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.invalidateDate(ctx, created.Date)
	s.scheduleReminder(ctx, *created)
	s.notifyAsync("created", *created, s.notifier.BookingCreated)

	return created, nil
}

// CancelBooking is the client-side cancellation. The requester must own the
// booking; a foreign or unknown id is reported as not found rather than
// revealing whose booking it is.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, requesterKey string) error {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return err
	}
	if b.IdentityKey != requesterKey {
		return ErrBookingNotFound
	}
	if b.Status != StatusConfirmed {
		return ErrNotConfirmed
	}
	if err := schedule.CheckCancellable(b.Date, b.TimeSlot, s.opts.Loc, s.now(), s.opts.Rules); err != nil {
		return err
	}

	cancelled, err := s.repo.UpdateBookingStatus(ctx, id, StatusConfirmed, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// Lost a race with another status write.
			return ErrNotConfirmed
		}
		return err
	}

	s.suppressReminders(ctx, id)
	s.invalidateDate(ctx, cancelled.Date)
	s.notifyAsync("cancelled", *cancelled, s.notifier.BookingCancelled)
	return nil
}

// SetStatus is the admin status mutator. Only confirmed bookings move, and
// only to cancelled or completed; both targets are terminal. Cancellation
// and completion are distinct notification events.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, to Status) error {
	if to != StatusCancelled && to != StatusCompleted {
		return ErrInvalidTransition
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, id, StatusConfirmed, to)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			if _, getErr := s.repo.GetBookingByID(ctx, id); getErr == nil {
				return ErrInvalidTransition
			}
			return ErrBookingNotFound
		}
		return err
	}

	s.invalidateDate(ctx, updated.Date)
	switch to {
	case StatusCancelled:
		s.suppressReminders(ctx, id)
		s.notifyAsync("cancelled", *updated, s.notifier.BookingCancelled)
	case StatusCompleted:
		s.notifyAsync("completed", *updated, s.notifier.BookingCompleted)
	}
	return nil
}

// RescheduleBooking moves a confirmed booking to a new slot. Admin-only: the
// minimum-advance rule is deliberately not re-checked, only the uniqueness
// of the target slot.
func (s *Service) RescheduleBooking(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Booking, error) {
	if _, err := schedule.ParseDateTime(newDate, newTime, s.opts.Loc); err != nil {
		return nil, err
	}

	current, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusConfirmed {
		return nil, ErrNotConfirmed
	}

	var moved *Booking
	err = s.locker.WithSlotLock(ctx, newDate, newTime, func(lockCtx context.Context) error {
		b, err := s.repo.UpdateBookingSchedule(lockCtx, id, newDate, newTime)
		if err != nil {
			return err
		}
		moved = b
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.suppressReminders(ctx, id)
	s.scheduleReminder(ctx, *moved)
	s.invalidateDate(ctx, current.Date)
	s.invalidateDate(ctx, moved.Date)
	return moved, nil
}

// UpdateNotes changes the admin comment on a booking.
func (s *Service) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error {
	return s.repo.UpdateBookingNotes(ctx, id, notes)
}

// DeleteBooking hard-deletes a booking. Irreversible, admin-only, and
// deliberately silent: no notification fires for a delete.
func (s *Service) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBooking(ctx, id); err != nil {
		return err
	}
	s.suppressReminders(ctx, id)
	s.invalidateDate(ctx, b.Date)
	return nil
}

// ActiveBooking returns the client's earliest confirmed booking with
// date >= today, or ErrBookingNotFound.
func (s *Service) ActiveBooking(ctx context.Context, identityKey string) (*Booking, error) {
	return s.repo.ActiveBooking(ctx, identityKey, s.today())
}

// History lists every booking of the identity, newest first.
func (s *Service) History(ctx context.Context, identityKey string) ([]Booking, error) {
	return s.repo.ListByIdentity(ctx, identityKey)
}

// ListBookings is the admin range listing. Empty bounds list everything,
// newest first; bounded queries come back in chronological order.
func (s *Service) ListBookings(ctx context.Context, from, to string) ([]Booking, error) {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := schedule.ParseDate(d, s.opts.Loc); err != nil {
			return nil, err
		}
	}
	return s.repo.ListRange(ctx, from, to)
}

// AvailableSlots computes the offerable start times for one date, serving
// from the short-TTL cache when possible. Cache trouble degrades to a direct
// read; storage trouble is surfaced.
func (s *Service) AvailableSlots(ctx context.Context, date string) ([]string, error) {
	if _, err := schedule.ParseDate(date, s.opts.Loc); err != nil {
		return nil, err
	}

	cacheKey := s.slotsKey(ctx, date)
	if raw, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
		var cached []string
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	} else if err != nil {
		log.Printf("slots cache read for %s: %v", date, err)
	}

	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	dayBlocked, err := s.repo.DayBlocked(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("check day block: %w", err)
	}
	booked, err := s.repo.BookedTimes(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}
	blocked, err := s.repo.BlockedTimes(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load blocked times: %w", err)
	}

	slots, err := schedule.AvailableSlots(schedule.AvailabilityInput{
		Date:       date,
		Now:        s.now(),
		Loc:        s.opts.Loc,
		Settings:   settings,
		Rules:      s.opts.Rules,
		DayBlocked: dayBlocked,
		Booked:     booked,
		Blocked:    blocked,
	})
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(slots); err == nil {
		if err := s.cache.Set(ctx, cacheKey, raw, s.opts.CacheTTL); err != nil {
			log.Printf("slots cache write for %s: %v", date, err)
		}
	}
	return slots, nil
}

// Settings resolves the schedule settings, falling back to (and persisting)
// the defaults when the singleton row does not exist yet. This is the single
// place defaults are applied.
func (s *Service) Settings(ctx context.Context) (schedule.Settings, error) {
	if raw, ok, err := s.cache.Get(ctx, settingsCacheKey); err == nil && ok {
		var cached schedule.Settings
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	stored, err := s.repo.GetSettings(ctx)
	if err != nil {
		if !errors.Is(err, ErrSettingsNotFound) {
			return schedule.Settings{}, fmt.Errorf("load settings: %w", err)
		}
		defaults := schedule.DefaultSettings()
		if saveErr := s.repo.SaveSettings(ctx, defaults); saveErr != nil {
			return schedule.Settings{}, fmt.Errorf("persist default settings: %w", saveErr)
		}
		stored = &defaults
	}

	if raw, err := json.Marshal(*stored); err == nil {
		if err := s.cache.Set(ctx, settingsCacheKey, raw, s.opts.CacheTTL); err != nil {
			log.Printf("settings cache write: %v", err)
		}
	}
	return *stored, nil
}

// UpdateSettings persists the new working-hours configuration and drops all
// cached slot lists immediately.
func (s *Service) UpdateSettings(ctx context.Context, settings schedule.Settings) error {
	if _, err := schedule.GenerateSlots(settings.WorkStart, settings.WorkEnd, settings.SessionDuration); err != nil {
		return err
	}
	if settings.BreakDuration < 0 {
		return schedule.ErrInvalidWorkWindow
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.invalidateAllSlots(ctx)
	if err := s.cache.Delete(ctx, settingsCacheKey); err != nil {
		log.Printf("settings cache invalidate: %v", err)
	}
	return nil
}

// BlockDay blacklists a whole date. Returns false when the day is already
// blocked; existing bookings on the date are left untouched.
func (s *Service) BlockDay(ctx context.Context, date, reason string) (bool, error) {
	if _, err := schedule.ParseDate(date, s.opts.Loc); err != nil {
		return false, err
	}
	err := s.repo.InsertBlock(ctx, BlockEntry{Date: date, Reason: reason})
	if err != nil {
		if errors.Is(err, ErrDuplicateBlock) {
			return false, nil
		}
		return false, err
	}
	s.invalidateDate(ctx, date)
	return true, nil
}

// UnblockDay removes the whole-day block only; slot-level blocks on the same
// date stay in place.
func (s *Service) UnblockDay(ctx context.Context, date string) error {
	if err := s.repo.DeleteDayBlock(ctx, date); err != nil {
		return err
	}
	s.invalidateDate(ctx, date)
	return nil
}

// BlockSlot blacklists a single start time. Returns false on duplicate.
func (s *Service) BlockSlot(ctx context.Context, date, timeSlot, reason string) (bool, error) {
	if _, err := schedule.ParseDateTime(date, timeSlot, s.opts.Loc); err != nil {
		return false, err
	}
	t := timeSlot
	err := s.repo.InsertBlock(ctx, BlockEntry{Date: date, Time: &t, Reason: reason})
	if err != nil {
		if errors.Is(err, ErrDuplicateBlock) {
			return false, nil
		}
		return false, err
	}
	s.invalidateDate(ctx, date)
	return true, nil
}

// UnblockSlot removes a slot-level block by id. The block's date is not
// known here, so the whole slot cache generation is rolled instead of one
// key.
func (s *Service) UnblockSlot(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteSlotBlock(ctx, id); err != nil {
		return err
	}
	s.invalidateAllSlots(ctx)
	return nil
}

func (s *Service) ListBlockedDays(ctx context.Context) ([]BlockEntry, error) {
	return s.repo.ListDayBlocks(ctx)
}

func (s *Service) ListBlockedSlots(ctx context.Context) ([]BlockEntry, error) {
	return s.repo.ListSlotBlocks(ctx)
}

// Clients returns the per-identity aggregates over the full booking set.
func (s *Service) Clients(ctx context.Context) ([]ClientSummary, error) {
	return s.repo.ListClients(ctx, s.today())
}

// Stats returns the dashboard counters: total, upcoming, current calendar
// month, and trailing seven days.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	n := s.now().In(s.opts.Loc)
	today := n.Format(schedule.DateLayout)
	monthStart := time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, s.opts.Loc).Format(schedule.DateLayout)
	monthEnd := time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, s.opts.Loc).AddDate(0, 1, -1).Format(schedule.DateLayout)
	weekAgo := n.AddDate(0, 0, -7).Format(schedule.DateLayout)
	return s.repo.Stats(ctx, today, monthStart, monthEnd, weekAgo)
}

// DispatchDueReminders is the worker entry point. Every due reminder is
// re-checked against the live booking before firing, so reminders for
// bookings that were cancelled, completed, rescheduled away, or deleted in
// the meantime are suppressed instead of sent.
func (s *Service) DispatchDueReminders(ctx context.Context) error {
	due, err := s.repo.DueReminders(ctx, s.now())
	if err != nil {
		return fmt.Errorf("find due reminders: %w", err)
	}

	for _, rem := range due {
		b, err := s.repo.GetBookingByID(ctx, rem.BookingID)
		if err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				s.suppressReminders(ctx, rem.BookingID)
				continue
			}
			log.Printf("load booking %s for reminder: %v", rem.BookingID, err)
			continue
		}
		if b.Status != StatusConfirmed {
			s.suppressReminders(ctx, rem.BookingID)
			continue
		}

		notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		err = s.notifier.BookingReminder(notifyCtx, *b)
		cancel()
		if err != nil {
			log.Printf("send reminder for booking %s: %v", b.ID, err)
			continue
		}
		if err := s.repo.MarkReminderSent(ctx, rem.ID, s.now()); err != nil {
			log.Printf("mark reminder %s sent: %v", rem.ID, err)
		}
	}
	return nil
}

func (s *Service) scheduleReminder(ctx context.Context, b Booking) {
	start, err := schedule.ParseDateTime(b.Date, b.TimeSlot, s.opts.Loc)
	if err != nil {
		return
	}
	fireAt := start.Add(-s.opts.ReminderLead)
	if !fireAt.After(s.now().In(s.opts.Loc)) {
		return
	}
	if err := s.repo.InsertReminder(ctx, Reminder{BookingID: b.ID, FireAt: fireAt}); err != nil {
		log.Printf("schedule reminder for booking %s: %v", b.ID, err)
	}
}

func (s *Service) suppressReminders(ctx context.Context, bookingID uuid.UUID) {
	if err := s.repo.CancelRemindersForBooking(ctx, bookingID); err != nil {
		log.Printf("cancel reminders for booking %s: %v", bookingID, err)
	}
}

func (s *Service) notifyAsync(kind string, b Booking, fn func(context.Context, Booking) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := fn(ctx, b); err != nil {
			log.Printf("notify %s for booking %s: %v", kind, b.ID, err)
		}
	}()
}

// Slot cache keys carry a generation suffix; rolling the generation orphans
// every cached list at once (settings change, slot unblock) without having
// to enumerate dates.
func (s *Service) slotsKey(ctx context.Context, date string) string {
	gen := "0"
	if raw, ok, err := s.cache.Get(ctx, slotsVersionKey); err == nil && ok {
		gen = string(raw)
	}
	return "slots:" + gen + ":" + date
}

func (s *Service) invalidateDate(ctx context.Context, date string) {
	if err := s.cache.Delete(ctx, s.slotsKey(ctx, date)); err != nil {
		log.Printf("slots cache invalidate for %s: %v", date, err)
	}
}

func (s *Service) invalidateAllSlots(ctx context.Context) {
	gen := fmt.Sprintf("%d", s.now().UnixNano())
	if err := s.cache.Set(ctx, slotsVersionKey, []byte(gen), 0); err != nil {
		log.Printf("slots cache generation roll: %v", err)
	}
}
