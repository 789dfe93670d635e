package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solobook/booking-engine/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var email, telegram, notes *string

	err := row.Scan(
		&b.ID,
		&b.ClientName,
		&b.ClientPhone,
		&email,
		&telegram,
		&b.IdentityKey,
		&b.Date,
		&b.TimeSlot,
		&notes,
		&b.Status,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if email != nil {
		b.ClientEmail = *email
	}
	if telegram != nil {
		b.Telegram = *telegram
	}
	if notes != nil {
		b.Notes = *notes
	}
	return &b, nil
}

func scanBlock(row pgx.Row) (*BlockEntry, error) {
	var e BlockEntry
	err := row.Scan(&e.ID, &e.Date, &e.Time, &e.Reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const bookingColumns = `id, client_name, client_phone, client_email, client_telegram,
		       identity_key, booking_date, booking_time, notes, status, created_at`

// Interface methods

func (r *PgRepository) CreateBooking(ctx context.Context, b Booking) (*Booking, error) {
	id := b.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, client_name, client_phone, client_email, client_telegram,
		                      identity_key, booking_date, booking_time, notes, status, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), $10, now())
		RETURNING `+bookingColumns+`
	`, id, b.ClientName, b.ClientPhone, b.ClientEmail, b.Telegram,
		b.IdentityKey, b.Date, b.TimeSlot, b.Notes, StatusConfirmed)

	created, err := scanBooking(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns+`
	`, id, to, from)
	return scanBooking(row)
}

func (r *PgRepository) UpdateBookingSchedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET booking_date = $2,
		    booking_time = $3
		WHERE id = $1
		RETURNING `+bookingColumns+`
	`, id, newDate, newTime)

	b, err := scanBooking(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return b, nil
}

func (r *PgRepository) UpdateBookingNotes(ctx context.Context, id uuid.UUID, notes string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings SET notes = NULLIF($2, '') WHERE id = $1
	`, id, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (r *PgRepository) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (r *PgRepository) ActiveBooking(ctx context.Context, identityKey, today string) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE identity_key = $1
		  AND status = 'confirmed'
		  AND booking_date >= $2
		ORDER BY booking_date, booking_time
		LIMIT 1
	`, identityKey, today)
	return scanBooking(row)
}

func (r *PgRepository) ListByIdentity(ctx context.Context, identityKey string) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE identity_key = $1
		ORDER BY booking_date DESC, booking_time DESC
	`, identityKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (r *PgRepository) ListRange(ctx context.Context, from, to string) ([]Booking, error) {
	var (
		rows pgx.Rows
		err  error
	)
	switch {
	case from != "" && to != "":
		rows, err = r.pool.Query(ctx, `
			SELECT `+bookingColumns+`
			FROM bookings
			WHERE booking_date >= $1 AND booking_date <= $2
			ORDER BY booking_date, booking_time
		`, from, to)
	case from != "":
		rows, err = r.pool.Query(ctx, `
			SELECT `+bookingColumns+`
			FROM bookings
			WHERE booking_date >= $1
			ORDER BY booking_date, booking_time
		`, from)
	default:
		rows, err = r.pool.Query(ctx, `
			SELECT `+bookingColumns+`
			FROM bookings
			ORDER BY booking_date DESC, booking_time DESC
		`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) BookedTimes(ctx context.Context, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT booking_time
		FROM bookings
		WHERE booking_date = $1
		  AND status <> 'cancelled'
		ORDER BY booking_time
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStrings(rows)
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Blocks

func (r *PgRepository) InsertBlock(ctx context.Context, b BlockEntry) error {
	id := b.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO blocked_slots (id, block_date, block_time, reason)
		VALUES ($1, $2, $3, $4)
	`, id, b.Date, b.Time, b.Reason)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBlock
		}
		return err
	}
	return nil
}

func (r *PgRepository) DeleteDayBlock(ctx context.Context, date string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM blocked_slots
		WHERE block_date = $1
		  AND block_time IS NULL
	`, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (r *PgRepository) DeleteSlotBlock(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM blocked_slots
		WHERE id = $1
		  AND block_time IS NOT NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (r *PgRepository) DayBlocked(ctx context.Context, date string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocked_slots
			WHERE block_date = $1 AND block_time IS NULL
		)
	`, date).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) BlockedTimes(ctx context.Context, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT block_time
		FROM blocked_slots
		WHERE block_date = $1
		  AND block_time IS NOT NULL
		ORDER BY block_time
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStrings(rows)
}

func (r *PgRepository) ListDayBlocks(ctx context.Context) ([]BlockEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, block_date, block_time, reason
		FROM blocked_slots
		WHERE block_time IS NULL
		ORDER BY block_date
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBlocks(rows)
}

func (r *PgRepository) ListSlotBlocks(ctx context.Context) ([]BlockEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, block_date, block_time, reason
		FROM blocked_slots
		WHERE block_time IS NOT NULL
		ORDER BY block_date, block_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBlocks(rows)
}

func collectBlocks(rows pgx.Rows) ([]BlockEntry, error) {
	var out []BlockEntry
	for rows.Next() {
		e, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Settings singleton (id fixed at 1)

func (r *PgRepository) GetSettings(ctx context.Context) (*schedule.Settings, error) {
	var s schedule.Settings
	err := r.pool.QueryRow(ctx, `
		SELECT work_start, work_end, session_duration, break_duration
		FROM settings
		WHERE id = 1
	`).Scan(&s.WorkStart, &s.WorkEnd, &s.SessionDuration, &s.BreakDuration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) SaveSettings(ctx context.Context, s schedule.Settings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (id, work_start, work_end, session_duration, break_duration)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET work_start = EXCLUDED.work_start,
		    work_end = EXCLUDED.work_end,
		    session_duration = EXCLUDED.session_duration,
		    break_duration = EXCLUDED.break_duration
	`, s.WorkStart, s.WorkEnd, s.SessionDuration, s.BreakDuration)
	return err
}

// Client directory and stats

func (r *PgRepository) ListClients(ctx context.Context, today string) ([]ClientSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.identity_key,
		       latest.client_name,
		       latest.client_phone,
		       COALESCE(latest.client_email, ''),
		       COALESCE(latest.client_telegram, ''),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE b.status = 'confirmed' AND b.booking_date >= $1),
		       COUNT(*) FILTER (WHERE b.status = 'completed'),
		       COUNT(*) FILTER (WHERE b.status = 'cancelled'),
		       MIN(b.booking_date),
		       MAX(b.booking_date)
		FROM bookings b
		JOIN LATERAL (
			SELECT client_name, client_phone, client_email, client_telegram
			FROM bookings
			WHERE identity_key = b.identity_key
			ORDER BY created_at DESC
			LIMIT 1
		) latest ON true
		GROUP BY b.identity_key, latest.client_name, latest.client_phone,
		         latest.client_email, latest.client_telegram
		ORDER BY MAX(b.booking_date) DESC
	`, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClientSummary
	for rows.Next() {
		var c ClientSummary
		err := rows.Scan(
			&c.IdentityKey, &c.Name, &c.Phone, &c.Email, &c.Telegram,
			&c.Total, &c.Upcoming, &c.Completed, &c.Cancelled,
			&c.FirstDate, &c.LastDate,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgRepository) Stats(ctx context.Context, today, monthStart, monthEnd, weekAgo string) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'confirmed' AND booking_date >= $1),
		       COUNT(*) FILTER (WHERE booking_date >= $2 AND booking_date <= $3),
		       COUNT(*) FILTER (WHERE booking_date >= $4)
		FROM bookings
	`, today, monthStart, monthEnd, weekAgo).Scan(&s.Total, &s.Upcoming, &s.ThisMonth, &s.ThisWeek)
	if err != nil {
		return Stats{}, err
	}
	return s, nil
}

// Reminders

func (r *PgRepository) InsertReminder(ctx context.Context, rem Reminder) error {
	id := rem.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reminders (id, booking_id, fire_at, cancelled)
		VALUES ($1, $2, $3, false)
	`, id, rem.BookingID, rem.FireAt)
	return err
}

func (r *PgRepository) CancelRemindersForBooking(ctx context.Context, bookingID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET cancelled = true
		WHERE booking_id = $1
		  AND sent_at IS NULL
	`, bookingID)
	return err
}

func (r *PgRepository) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, fire_at, cancelled, sent_at
		FROM reminders
		WHERE cancelled = false
		  AND sent_at IS NULL
		  AND fire_at <= $1
		ORDER BY fire_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var rem Reminder
		if err := rows.Scan(&rem.ID, &rem.BookingID, &rem.FireAt, &rem.Cancelled, &rem.SentAt); err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET sent_at = $2
		WHERE id = $1
	`, id, at)
	return err
}
