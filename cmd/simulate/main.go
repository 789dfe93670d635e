// Load simulator for the booking API.
//
// Spawns a pool of workers that hammer the HTTP API with a configurable
// mix of operations: clients booking slots (racing each other for the
// same dates), cancelling, and browsing availability and history.
// Reports per-operation throughput, conflict rates and latency
// percentiles at the end of the run.
//
// Configuration via environment:
//
//	SIM_API_BASE_URL  - base URL of the api-server (default http://localhost:8080)
//	SIM_DURATION      - how long to run (default 30s)
//	SIM_WORKERS       - concurrent workers (default 20)
//	SIM_BOOK_RATIO    - fraction of booking attempts (default 0.4)
//	SIM_CANCEL_RATIO  - fraction of cancel attempts (default 0.2)
//	SIM_DAYS_AHEAD    - date range workers book into (default 14)
//
// The remainder of the ratio budget goes to read operations.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/solobook/booking-engine/internal/schedule"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	BookRatio   float64
	CancelRatio float64
	DaysAhead   int
}

// bookingRef is what a worker needs to act on a booking it created
// earlier: cancellation is gated on presenting the same phone number.
type bookingRef struct {
	ID    uuid.UUID
	Phone string
}

// DataPool holds the shared state workers draw targets from. Slots and
// dates are fixed for the whole run; bookings accumulate as workers
// create them.
type DataPool struct {
	mu       sync.RWMutex
	Slots    []string
	Dates    []string
	Bookings []bookingRef
}

func (p *DataPool) AddBooking(ref bookingRef) {
	p.mu.Lock()
	p.Bookings = append(p.Bookings, ref)
	p.mu.Unlock()
}

func (p *DataPool) GetRandomBooking(rng *rand.Rand) (bookingRef, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.Bookings) == 0 {
		return bookingRef{}, false
	}
	return p.Bookings[rng.Intn(len(p.Bookings))], true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	sorted := make([]time.Duration, len(om.latencies))
	copy(sorted, om.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, l := range sorted {
		total += l
	}

	avg = total / time.Duration(len(sorted))
	min = sorted[0]
	max = sorted[len(sorted)-1]
	p50 = sorted[len(sorted)*50/100]
	p95 = sorted[len(sorted)*95/100]
	return
}

type Metrics struct {
	Booking OperationMetrics
	Cancel  OperationMetrics
	Slots   OperationMetrics
	Current OperationMetrics
	History OperationMetrics
}

type Simulator struct {
	config  SimConfig
	client  *http.Client
	pool    *DataPool
	metrics *Metrics
}

func main() {
	config := loadConfig()
	if err := validateConfig(config); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting simulation against %s\n", config.APIBaseURL)
	fmt.Printf("Duration: %s, Workers: %d\n", config.Duration, config.Workers)
	fmt.Printf("Mix: book=%.0f%% cancel=%.0f%% reads=%.0f%%\n",
		config.BookRatio*100, config.CancelRatio*100,
		(1-config.BookRatio-config.CancelRatio)*100)

	sim := &Simulator{
		config:  config,
		client:  &http.Client{Timeout: 10 * time.Second},
		pool:    buildDataPool(config),
		metrics: &Metrics{},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()

	sim.Run(runCtx)
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 20),
		BookRatio:   getFloat("SIM_BOOK_RATIO", 0.4),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.2),
		DaysAhead:   getInt("SIM_DAYS_AHEAD", 14),
	}

	// Normalize ratios if they overflow the budget
	if cfg.BookRatio+cfg.CancelRatio > 1.0 {
		sum := cfg.BookRatio + cfg.CancelRatio
		cfg.BookRatio /= sum
		cfg.CancelRatio /= sum
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if _, err := url.Parse(cfg.APIBaseURL); err != nil {
		return fmt.Errorf("invalid SIM_API_BASE_URL: %w", err)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("SIM_WORKERS must be at least 1")
	}
	if cfg.Duration < time.Second {
		return fmt.Errorf("SIM_DURATION must be at least 1s")
	}
	if cfg.DaysAhead < 2 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be at least 2")
	}
	return nil
}

// buildDataPool precomputes the slot grid and bookable dates. Workers
// booking from a small shared pool of (date, slot) pairs is what makes
// them collide, which is the interesting part of the run.
func buildDataPool(cfg SimConfig) *DataPool {
	settings := schedule.DefaultSettings()
	slots, err := schedule.GenerateSlots(settings.WorkStart, settings.WorkEnd, settings.SessionDuration)
	if err != nil {
		// defaults are static and known-valid
		panic(err)
	}

	dates := make([]string, 0, cfg.DaysAhead)
	for d := 1; d <= cfg.DaysAhead; d++ {
		dates = append(dates, time.Now().AddDate(0, 0, d).Format(schedule.DateLayout))
	}

	return &DataPool{Slots: slots, Dates: dates}
}

func (s *Simulator) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookRatio+s.config.CancelRatio {
				s.doCancel(ctx, rng)
			} else {
				// Read operations - distribute evenly
				readOp := rng.Intn(3)
				switch readOp {
				case 0:
					s.doSlots(ctx, rng)
				case 1:
					s.doCurrent(ctx, rng)
				case 2:
					s.doHistory(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	phone := fmt.Sprintf("+7 (9%02d) %03d-%02d-%02d",
		rng.Intn(100), 100+rng.Intn(900), 10+rng.Intn(90), 10+rng.Intn(90))

	start := time.Now()

	reqBody := map[string]string{
		"client_name":  gofakeit.Name(),
		"client_phone": phone,
		"date":         date,
		"time":         slot,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/bookings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			var created struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &created)
				if created.ID != uuid.Nil {
					s.pool.AddBooking(bookingRef{ID: created.ID, Phone: phone})
				}
			}
		} else if resp.StatusCode == http.StatusConflict {
			// Slot races and one-active-booking rejections both land here
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.GetRandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()

	body, _ := json.Marshal(map[string]string{"client_phone": ref.Phone})
	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/bookings/%s/cancel", s.config.APIBaseURL, ref.ID.String()), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusNotFound {
			// Double-cancels of the same pooled booking are expected
			conflict = true
		}
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/slots?date=%s", s.config.APIBaseURL, date), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Slots.Record(latency, success, false)
}

func (s *Simulator) doCurrent(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.GetRandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/bookings/current?phone=%s", s.config.APIBaseURL, url.QueryEscape(ref.Phone)), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Current.Record(latency, success, false)
}

func (s *Simulator) doHistory(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.GetRandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/bookings/history?phone=%s", s.config.APIBaseURL, url.QueryEscape(ref.Phone)), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.History.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Slot Availability", &s.metrics.Slots)
	printOperationReport("Current Booking", &s.metrics.Current)
	printOperationReport("History", &s.metrics.History)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
