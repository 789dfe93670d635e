package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solobook/booking-engine/internal/booking"
	redisclient "github.com/solobook/booking-engine/internal/redis"
	"github.com/solobook/booking-engine/internal/schedule"
)

// sha256 of "admin123"
const testAdminKeyHash = "240be518fabd2724ddb6f04eeb1da5967448d7e831c08c8fa822809f74c720a9"

// stubRepo is an in-memory booking.Repository, just enough of one for the
// endpoints under test.
type stubRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]booking.Booking
	blocks   []booking.BlockEntry
	settings *schedule.Settings
}

func newStubRepo() *stubRepo {
	return &stubRepo{bookings: make(map[uuid.UUID]booking.Booking)}
}

func (s *stubRepo) CreateBooking(ctx context.Context, b booking.Booking) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.bookings {
		if existing.Date == b.Date && existing.TimeSlot == b.TimeSlot && existing.Status != booking.StatusCancelled {
			return nil, booking.ErrSlotTaken
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Status = booking.StatusConfirmed
	b.CreatedAt = time.Now()
	s.bookings[b.ID] = b
	return &b, nil
}

func (s *stubRepo) GetBookingByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return &b, nil
}

func (s *stubRepo) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to booking.Status) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != from {
		return nil, booking.ErrBookingNotFound
	}
	b.Status = to
	s.bookings[id] = b
	return &b, nil
}

func (s *stubRepo) UpdateBookingSchedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	b.Date = newDate
	b.TimeSlot = newTime
	s.bookings[id] = b
	return &b, nil
}

func (s *stubRepo) UpdateBookingNotes(ctx context.Context, id uuid.UUID, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return booking.ErrBookingNotFound
	}
	b.Notes = notes
	s.bookings[id] = b
	return nil
}

func (s *stubRepo) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[id]; !ok {
		return booking.ErrBookingNotFound
	}
	delete(s.bookings, id)
	return nil
}

func (s *stubRepo) ActiveBooking(ctx context.Context, identityKey, today string) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.IdentityKey == identityKey && b.Status == booking.StatusConfirmed && b.Date >= today {
			b := b
			return &b, nil
		}
	}
	return nil, booking.ErrBookingNotFound
}

func (s *stubRepo) ListByIdentity(ctx context.Context, identityKey string) ([]booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.Booking
	for _, b := range s.bookings {
		if b.IdentityKey == identityKey {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubRepo) ListRange(ctx context.Context, from, to string) ([]booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.Booking
	for _, b := range s.bookings {
		out = append(out, b)
	}
	return out, nil
}

func (s *stubRepo) BookedTimes(ctx context.Context, date string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, b := range s.bookings {
		if b.Date == date && b.Status != booking.StatusCancelled {
			out = append(out, b.TimeSlot)
		}
	}
	return out, nil
}

func (s *stubRepo) InsertBlock(ctx context.Context, e booking.BlockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.blocks {
		if existing.Date != e.Date {
			continue
		}
		if existing.Time == nil && e.Time == nil {
			return booking.ErrDuplicateBlock
		}
		if existing.Time != nil && e.Time != nil && *existing.Time == *e.Time {
			return booking.ErrDuplicateBlock
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.blocks = append(s.blocks, e)
	return nil
}

func (s *stubRepo) DeleteDayBlock(ctx context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.blocks {
		if e.Date == date && e.Time == nil {
			s.blocks = append(s.blocks[:i], s.blocks[i+1:]...)
			return nil
		}
	}
	return booking.ErrBlockNotFound
}

func (s *stubRepo) DeleteSlotBlock(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.blocks {
		if e.ID == id && e.Time != nil {
			s.blocks = append(s.blocks[:i], s.blocks[i+1:]...)
			return nil
		}
	}
	return booking.ErrBlockNotFound
}

func (s *stubRepo) DayBlocked(ctx context.Context, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.blocks {
		if e.Date == date && e.Time == nil {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) BlockedTimes(ctx context.Context, date string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.blocks {
		if e.Date == date && e.Time != nil {
			out = append(out, *e.Time)
		}
	}
	return out, nil
}

func (s *stubRepo) ListDayBlocks(ctx context.Context) ([]booking.BlockEntry, error) {
	return nil, nil
}

func (s *stubRepo) ListSlotBlocks(ctx context.Context) ([]booking.BlockEntry, error) {
	return nil, nil
}

func (s *stubRepo) GetSettings(ctx context.Context) (*schedule.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return nil, booking.ErrSettingsNotFound
	}
	out := *s.settings
	return &out, nil
}

func (s *stubRepo) SaveSettings(ctx context.Context, settings schedule.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	return nil
}

func (s *stubRepo) ListClients(ctx context.Context, today string) ([]booking.ClientSummary, error) {
	return nil, nil
}

func (s *stubRepo) Stats(ctx context.Context, today, monthStart, monthEnd, weekAgo string) (booking.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return booking.Stats{Total: len(s.bookings)}, nil
}

func (s *stubRepo) InsertReminder(ctx context.Context, r booking.Reminder) error { return nil }
func (s *stubRepo) CancelRemindersForBooking(ctx context.Context, bookingID uuid.UUID) error {
	return nil
}
func (s *stubRepo) DueReminders(ctx context.Context, now time.Time) ([]booking.Reminder, error) {
	return nil, nil
}
func (s *stubRepo) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

type noopNotifier struct{}

func (noopNotifier) BookingCreated(ctx context.Context, b booking.Booking) error   { return nil }
func (noopNotifier) BookingCancelled(ctx context.Context, b booking.Booking) error { return nil }
func (noopNotifier) BookingCompleted(ctx context.Context, b booking.Booking) error { return nil }
func (noopNotifier) BookingReminder(ctx context.Context, b booking.Booking) error  { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *stubRepo) {
	t.Helper()
	repo := newStubRepo()
	svc := booking.NewService(repo, redisclient.NoopLocker{}, redisclient.NewNoopCache(), noopNotifier{}, booking.Options{
		Loc:   time.UTC,
		Rules: schedule.DefaultRules(),
	})
	router := NewRouter(RouterConfig{
		Service:      svc,
		AdminKeyHash: testAdminKeyHash,
		Env:          "test",
		Version:      "test",
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, repo
}

// bookableDate is safely inside the advance window and the horizon
// regardless of when the test runs.
func bookableDate() string {
	return time.Now().UTC().AddDate(0, 0, 2).Format(schedule.DateLayout)
}

func postJSON(t *testing.T, client *http.Client, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCreateBookingEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("created", func(t *testing.T) {
		resp := postJSON(t, srv.Client(), srv.URL+"/bookings", map[string]string{
			"client_name":  "Anna Petrova",
			"client_phone": "+7 (912) 345-67-89",
			"date":         bookableDate(),
			"time":         "10:00",
		}, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
		var body BookingResponse
		decodeBody(t, resp, &body)
		if body.ID == uuid.Nil || body.Status != "confirmed" {
			t.Fatalf("unexpected body: %+v", body)
		}
	})

	t.Run("slot taken", func(t *testing.T) {
		resp := postJSON(t, srv.Client(), srv.URL+"/bookings", map[string]string{
			"client_name":  "Boris Ivanov",
			"client_phone": "+7 (999) 111-22-33",
			"date":         bookableDate(),
			"time":         "10:00",
		}, nil)
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", resp.StatusCode)
		}
		var body ErrorResponse
		decodeBody(t, resp, &body)
		if body.Error != "slot_taken" {
			t.Fatalf("expected slot_taken, got %s", body.Error)
		}
	})

	t.Run("second active booking", func(t *testing.T) {
		resp := postJSON(t, srv.Client(), srv.URL+"/bookings", map[string]string{
			"client_name":  "Anna Petrova",
			"client_phone": "+7 (912) 345-67-89",
			"date":         bookableDate(),
			"time":         "12:00",
		}, nil)
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", resp.StatusCode)
		}
		var body ErrorResponse
		decodeBody(t, resp, &body)
		if body.Error != "already_active" {
			t.Fatalf("expected already_active, got %s", body.Error)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		resp := postJSON(t, srv.Client(), srv.URL+"/bookings", map[string]string{
			"client_name":  "A",
			"client_phone": "123",
			"date":         "12.06.2025",
			"time":         "10:00",
		}, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		var body ErrorResponse
		decodeBody(t, resp, &body)
		if body.Error != "validation_failed" {
			t.Fatalf("expected validation_failed, got %s", body.Error)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		resp, err := srv.Client().Post(srv.URL+"/bookings", "application/json", strings.NewReader("{"))
		if err != nil {
			t.Fatalf("do request: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestCancelBookingEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var created BookingResponse
	resp := postJSON(t, srv.Client(), srv.URL+"/bookings", map[string]string{
		"client_name":  "Anna Petrova",
		"client_phone": "+7 (912) 345-67-89",
		"date":         bookableDate(),
		"time":         "10:00",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("setup create failed: %d", resp.StatusCode)
	}
	decodeBody(t, resp, &created)

	t.Run("foreign phone reads as not found", func(t *testing.T) {
		resp := postJSON(t, srv.Client(), srv.URL+"/bookings/"+created.ID.String()+"/cancel", map[string]string{
			"client_phone": "+7 (999) 111-22-33",
		}, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("owner cancels", func(t *testing.T) {
		resp := postJSON(t, srv.Client(), srv.URL+"/bookings/"+created.ID.String()+"/cancel", map[string]string{
			"client_phone": "+7 (912) 345-67-89",
		}, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var body MutationResponse
		decodeBody(t, resp, &body)
		if !body.Success {
			t.Fatalf("expected success, got %+v", body)
		}
	})

	t.Run("second cancel conflicts", func(t *testing.T) {
		resp := postJSON(t, srv.Client(), srv.URL+"/bookings/"+created.ID.String()+"/cancel", map[string]string{
			"client_phone": "+7 (912) 345-67-89",
		}, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", resp.StatusCode)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		resp := postJSON(t, srv.Client(), srv.URL+"/bookings/not-a-uuid/cancel", map[string]string{
			"client_phone": "+7 (912) 345-67-89",
		}, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestSlotsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	date := bookableDate()

	t.Run("missing date", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/slots")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("booked slot disappears", func(t *testing.T) {
		resp := postJSON(t, srv.Client(), srv.URL+"/bookings", map[string]string{
			"client_name":  "Anna Petrova",
			"client_phone": "+7 (912) 345-67-89",
			"date":         date,
			"time":         "11:00",
		}, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("setup create failed: %d", resp.StatusCode)
		}

		got, err := srv.Client().Get(srv.URL + "/slots?date=" + date)
		if err != nil {
			t.Fatalf("get slots: %v", err)
		}
		if got.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", got.StatusCode)
		}
		var body SlotsResponse
		decodeBody(t, got, &body)
		if len(body.Slots) == 0 {
			t.Fatalf("expected offerable slots on %s", date)
		}
		for _, s := range body.Slots {
			if s == "11:00" {
				t.Fatalf("booked slot still offered: %v", body.Slots)
			}
		}
	})
}

func TestCurrentBookingEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("no active booking is a null payload", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/bookings/current?phone=%2B79123456789")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var body struct {
			Booking *BookingResponse `json:"booking"`
		}
		decodeBody(t, resp, &body)
		if body.Booking != nil {
			t.Fatalf("expected null booking, got %+v", body.Booking)
		}
	})

	t.Run("missing phone", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/bookings/current")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("active booking found by any formatting", func(t *testing.T) {
		resp := postJSON(t, srv.Client(), srv.URL+"/bookings", map[string]string{
			"client_name":  "Anna Petrova",
			"client_phone": "+7 (912) 345-67-89",
			"date":         bookableDate(),
			"time":         "10:00",
		}, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("setup create failed: %d", resp.StatusCode)
		}

		got, err := srv.Client().Get(srv.URL + "/bookings/current?phone=79123456789")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		var body struct {
			Booking *BookingResponse `json:"booking"`
		}
		decodeBody(t, got, &body)
		if body.Booking == nil || body.Booking.TimeSlot != "10:00" {
			t.Fatalf("expected the active booking, got %+v", body.Booking)
		}
	})
}

func TestAdminAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("missing key", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/admin/stats")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/stats", nil)
		req.Header.Set("X-Admin-Key", "wrong")
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("valid key", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/stats", nil)
		req.Header.Set("X-Admin-Key", "admin123")
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var body StatsResponse
		decodeBody(t, resp, &body)
	})
}

func TestAdminBlockEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	auth := map[string]string{"X-Admin-Key": "admin123"}
	date := bookableDate()

	resp := postJSON(t, srv.Client(), srv.URL+"/admin/blocks/days", map[string]string{
		"date": date, "reason": "day off",
	}, auth)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("block day: expected 201, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.Client(), srv.URL+"/admin/blocks/days", map[string]string{
		"date": date, "reason": "again",
	}, auth)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate block day: expected 409, got %d", resp.StatusCode)
	}
	var body MutationResponse
	decodeBody(t, resp, &body)
	if body.Success || body.Reason == "" {
		t.Fatalf("expected soft failure with reason, got %+v", body)
	}

	// Blocked day offers nothing.
	got, err := srv.Client().Get(srv.URL + "/slots?date=" + date)
	if err != nil {
		t.Fatalf("get slots: %v", err)
	}
	var slots SlotsResponse
	decodeBody(t, got, &slots)
	if len(slots.Slots) != 0 {
		t.Fatalf("expected no slots on blocked day, got %v", slots.Slots)
	}
}

func TestAdminStatusAndScheduleEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	auth := map[string]string{"X-Admin-Key": "admin123"}

	var created BookingResponse
	resp := postJSON(t, srv.Client(), srv.URL+"/admin/bookings", map[string]string{
		"client_name":  "Anna Petrova",
		"client_phone": "+7 (912) 345-67-89",
		"date":         bookableDate(),
		"time":         "10:00",
	}, auth)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin create: expected 201, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &created)

	t.Run("invalid status value", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPatch,
			srv.URL+"/admin/bookings/"+created.ID.String()+"/status",
			strings.NewReader(`{"status":"confirmed"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Admin-Key", "admin123")
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("complete then re-complete", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPatch,
			srv.URL+"/admin/bookings/"+created.ID.String()+"/status",
			strings.NewReader(`{"status":"completed"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Admin-Key", "admin123")
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		req, _ = http.NewRequest(http.MethodPatch,
			srv.URL+"/admin/bookings/"+created.ID.String()+"/status",
			strings.NewReader(`{"status":"completed"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Admin-Key", "admin123")
		resp, err = srv.Client().Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", resp.StatusCode)
		}
	})
}
