package schedule

import (
	"errors"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var (
	ErrInvalidDate = errors.New("invalid date format")
	ErrInvalidTime = errors.New("invalid time format")

	ErrSlotInPast        = errors.New("slot is already in the past")
	ErrTooSoon           = errors.New("slot starts inside the minimum advance window")
	ErrBeyondHorizon     = errors.New("slot date is beyond the booking horizon")
	ErrCancelWindowOver  = errors.New("cancellation window has closed")
	ErrInvalidWorkWindow = errors.New("invalid work hours window")
)

// Rules holds the timing constraints applied to client-initiated actions.
type Rules struct {
	MinAdvance      time.Duration // booking must start at least this far from now
	MinCancelWindow time.Duration // cancellation allowed only while this much time remains
	MaxDaysAhead    int           // booking date must be within this many days from today
}

func DefaultRules() Rules {
	return Rules{
		MinAdvance:      time.Hour,
		MinCancelWindow: 30 * time.Minute,
		MaxDaysAhead:    30,
	}
}

// Settings is the practitioner's working-hours configuration. BreakMinutes is
// stored and editable but deliberately not part of the slot step; see
// GenerateSlots.
type Settings struct {
	WorkStart       string
	WorkEnd         string
	SessionDuration int // minutes
	BreakDuration   int // minutes
}

func DefaultSettings() Settings {
	return Settings{
		WorkStart:       "09:00",
		WorkEnd:         "18:00",
		SessionDuration: 60,
		BreakDuration:   15,
	}
}

func ParseDate(dateStr string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, dateStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

func ParseDateTime(dateStr, clockStr string, loc *time.Location) (time.Time, error) {
	if _, err := time.Parse(ClockLayout, clockStr); err != nil {
		return time.Time{}, ErrInvalidTime
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, dateStr+" "+clockStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// TimeUntil returns the signed duration from now until the slot start.
// Negative means the slot is already past.
func TimeUntil(dateStr, clockStr string, loc *time.Location, now time.Time) (time.Duration, error) {
	start, err := ParseDateTime(dateStr, clockStr, loc)
	if err != nil {
		return 0, err
	}
	return start.Sub(now.In(loc)), nil
}

// CheckBookable applies the client-side timing rules to a candidate slot.
// Unparseable input is treated as not bookable, never as available.
func CheckBookable(dateStr, clockStr string, loc *time.Location, now time.Time, rules Rules) error {
	until, err := TimeUntil(dateStr, clockStr, loc, now)
	if err != nil {
		return err
	}
	if until < 0 {
		return ErrSlotInPast
	}
	if until < rules.MinAdvance {
		return ErrTooSoon
	}
	if rules.MaxDaysAhead > 0 {
		date, err := ParseDate(dateStr, loc)
		if err != nil {
			return err
		}
		n := now.In(loc)
		horizon := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, rules.MaxDaysAhead)
		if date.After(horizon) {
			return ErrBeyondHorizon
		}
	}
	return nil
}

// CheckCancellable verifies that enough time remains before the slot start
// for a client-initiated cancellation. Exactly MinCancelWindow remaining is
// still cancellable.
func CheckCancellable(dateStr, clockStr string, loc *time.Location, now time.Time, rules Rules) error {
	until, err := TimeUntil(dateStr, clockStr, loc, now)
	if err != nil {
		return err
	}
	if until < rules.MinCancelWindow {
		return ErrCancelWindowOver
	}
	return nil
}

// GenerateSlots walks from workStart to workEnd in sessionMinutes steps and
// returns the candidate start times in ascending order. The walk is
// half-open: a slot is generated while its start is strictly before workEnd,
// so when the window does not divide evenly the final slot's end may run past
// workEnd. The break duration is not added to the step.
func GenerateSlots(workStart, workEnd string, sessionMinutes int) ([]string, error) {
	if sessionMinutes <= 0 {
		return nil, ErrInvalidWorkWindow
	}
	start, err := time.Parse(ClockLayout, workStart)
	if err != nil {
		return nil, ErrInvalidTime
	}
	end, err := time.Parse(ClockLayout, workEnd)
	if err != nil {
		return nil, ErrInvalidTime
	}
	if !end.After(start) {
		return nil, ErrInvalidWorkWindow
	}

	slots := make([]string, 0, 16)
	for cur := start; cur.Before(end); cur = cur.Add(time.Duration(sessionMinutes) * time.Minute) {
		slots = append(slots, cur.Format(ClockLayout))
	}
	return slots, nil
}

// AvailabilityInput carries everything AvailableSlots needs. The function is
// pure with respect to it and safe to call concurrently.
type AvailabilityInput struct {
	Date       string
	Now        time.Time
	Loc        *time.Location
	Settings   Settings
	Rules      Rules
	DayBlocked bool
	Booked     []string // start times of non-cancelled bookings on Date
	Blocked    []string // start times of slot-level blocks on Date
}

// AvailableSlots computes the ordered list of offerable start times for one
// calendar date. A whole-day block empties the list outright; otherwise each
// generated candidate is dropped when it coincides with a booking or a
// slot-level block, or when the advance rule rejects it.
func AvailableSlots(in AvailabilityInput) ([]string, error) {
	if in.DayBlocked {
		return []string{}, nil
	}

	candidates, err := GenerateSlots(in.Settings.WorkStart, in.Settings.WorkEnd, in.Settings.SessionDuration)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]bool, len(in.Booked)+len(in.Blocked))
	for _, t := range in.Booked {
		taken[t] = true
	}
	for _, t := range in.Blocked {
		taken[t] = true
	}

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if taken[c] {
			continue
		}
		if err := CheckBookable(in.Date, c, in.Loc, in.Now, in.Rules); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
