package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/solobook/booking-engine/internal/api"
	"github.com/solobook/booking-engine/internal/booking"
	"github.com/solobook/booking-engine/internal/config"
	"github.com/solobook/booking-engine/internal/db"
	"github.com/solobook/booking-engine/internal/notify"
	redisclient "github.com/solobook/booking-engine/internal/redis"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s tz=%s", cfg.Env, cfg.HTTPPort, cfg.Timezone)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Redis is optional: without it creates race straight to the unique
	// index and slot reads skip the cache.
	var (
		locker redisclient.Locker = redisclient.NoopLocker{}
		cache  redisclient.Cache  = redisclient.NewNoopCache()
	)
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Printf("redis unavailable, running without lock and cache: %v", err)
		rdb = nil
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Printf("error closing redis: %v", err)
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		cache = redisclient.NewCache(rdb)
		log.Println("connected to Redis")
	}

	var notifier booking.Notifier = notify.NewNoop()
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("telegram init failed, notifications disabled: %v", err)
		} else {
			notifier = tg
			log.Println("telegram notifications enabled")
		}
	}

	repo := booking.NewPgRepository(pgPool)
	svc := booking.NewService(repo, locker, cache, notifier, booking.Options{
		Loc:          cfg.Timezone,
		Rules:        cfg.Rules,
		CacheTTL:     cfg.CacheTTL,
		ReminderLead: cfg.ReminderLead,
	})

	router := api.NewRouter(api.RouterConfig{
		Service:      svc,
		PgPool:       pgPool,
		Redis:        rdb,
		AdminKeyHash: cfg.AdminKeyHash,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
