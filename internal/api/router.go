package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/solobook/booking-engine/internal/booking"
)

type RouterConfig struct {
	Service      *booking.Service
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	AdminKeyHash string
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	h := newHandlers(cfg.Service)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Client endpoints
	r.Get("/slots", h.getSlots)
	r.Post("/bookings", h.createBooking)
	r.Post("/bookings/{id}/cancel", h.cancelBooking)
	r.Get("/bookings/current", h.currentBooking)
	r.Get("/bookings/history", h.bookingHistory)

	// Admin endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuthMiddleware(cfg.AdminKeyHash))

		r.Post("/bookings", h.adminCreateBooking)
		r.Get("/bookings", h.adminListBookings)
		r.Patch("/bookings/{id}/schedule", h.adminReschedule)
		r.Patch("/bookings/{id}/status", h.adminSetStatus)
		r.Patch("/bookings/{id}/notes", h.adminUpdateNotes)
		r.Delete("/bookings/{id}", h.adminDeleteBooking)

		r.Get("/clients", h.adminListClients)
		r.Get("/clients/{key}/history", h.adminClientHistory)
		r.Get("/stats", h.adminStats)

		r.Get("/settings", h.adminGetSettings)
		r.Put("/settings", h.adminUpdateSettings)

		r.Post("/blocks/days", h.adminBlockDay)
		r.Delete("/blocks/days/{date}", h.adminUnblockDay)
		r.Get("/blocks/days", h.adminListBlockedDays)
		r.Post("/blocks/slots", h.adminBlockSlot)
		r.Delete("/blocks/slots/{id}", h.adminUnblockSlot)
		r.Get("/blocks/slots", h.adminListBlockedSlots)
	})

	return r
}
