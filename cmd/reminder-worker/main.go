package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/solobook/booking-engine/internal/booking"
	"github.com/solobook/booking-engine/internal/config"
	"github.com/solobook/booking-engine/internal/db"
	"github.com/solobook/booking-engine/internal/notify"
	redisclient "github.com/solobook/booking-engine/internal/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running reminder worker in env=%s interval=%s lead=%s", cfg.Env, cfg.WorkerInterval, cfg.ReminderLead)

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

	var notifier booking.Notifier = notify.NewNoop()
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatalf("telegram init error: %v", err)
		}
		notifier = tg
		log.Println("telegram notifications enabled")
	} else {
		log.Println("no telegram token configured, reminders will be dropped")
	}

	repo := booking.NewPgRepository(pgPool)
	svc := booking.NewService(repo, redisclient.NoopLocker{}, redisclient.NewNoopCache(), notifier, booking.Options{
		Loc:          cfg.Timezone,
		Rules:        cfg.Rules,
		CacheTTL:     cfg.CacheTTL,
		ReminderLead: cfg.ReminderLead,
	})

	// Run once at startup
	runOnce(rootCtx, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.DispatchDueReminders(runCtx); err != nil {
		log.Printf("reminder run error: %v", err)
		return
	}
	log.Printf("reminder run complete in %s", time.Since(start))
}
