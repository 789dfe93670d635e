package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/solobook/booking-engine/internal/booking"
	"github.com/solobook/booking-engine/internal/db"
	"github.com/solobook/booking-engine/internal/phone"
	"github.com/solobook/booking-engine/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	repo := booking.NewPgRepository(pool)

	if err := seedSettings(context.Background(), repo); err != nil {
		log.Fatalf("seed settings: %v", err)
	}
	if err := seedBookings(context.Background(), repo, 60); err != nil {
		log.Fatalf("seed bookings: %v", err)
	}
	if err := seedBlocks(context.Background(), repo); err != nil {
		log.Fatalf("seed blocks: %v", err)
	}

	log.Println("seed complete")
}

func seedSettings(ctx context.Context, repo *booking.PgRepository) error {
	log.Println("seeding settings singleton")
	return repo.SaveSettings(ctx, schedule.DefaultSettings())
}

// seedBookings fills the next two weeks with fake clients. Collisions with
// already-seeded slots are skipped, so re-running the seeder is harmless.
func seedBookings(ctx context.Context, repo *booking.PgRepository, count int) error {
	log.Printf("seeding up to %d bookings", count)

	settings := schedule.DefaultSettings()
	slots, err := schedule.GenerateSlots(settings.WorkStart, settings.WorkEnd, settings.SessionDuration)
	if err != nil {
		return err
	}

	created := 0
	for i := 0; i < count; i++ {
		rawPhone := fmt.Sprintf("+7 (9%02d) %03d-%02d-%02d",
			gofakeit.Number(0, 99), gofakeit.Number(100, 999),
			gofakeit.Number(10, 99), gofakeit.Number(10, 99))
		date := time.Now().AddDate(0, 0, gofakeit.Number(1, 14)).Format(schedule.DateLayout)
		slot := slots[gofakeit.Number(0, len(slots)-1)]

		var status booking.Status
		switch gofakeit.Number(0, 9) {
		case 0:
			status = booking.StatusCancelled
		case 1:
			status = booking.StatusCompleted
		default:
			status = booking.StatusConfirmed
		}

		b, err := repo.CreateBooking(ctx, booking.Booking{
			ClientName:  gofakeit.Name(),
			ClientPhone: rawPhone,
			ClientEmail: gofakeit.Email(),
			Telegram:    "@" + gofakeit.Username(),
			IdentityKey: phone.IdentityKey(rawPhone),
			Date:        date,
			TimeSlot:    slot,
			Notes:       gofakeit.Sentence(6),
		})
		if err != nil {
			if errors.Is(err, booking.ErrSlotTaken) {
				continue
			}
			return err
		}
		created++

		if status != booking.StatusConfirmed {
			if _, err := repo.UpdateBookingStatus(ctx, b.ID, booking.StatusConfirmed, status); err != nil {
				return err
			}
		}
	}

	log.Printf("seeded %d bookings", created)
	return nil
}

func seedBlocks(ctx context.Context, repo *booking.PgRepository) error {
	log.Println("seeding blocks")

	dayOff := time.Now().AddDate(0, 0, 20).Format(schedule.DateLayout)
	if err := repo.InsertBlock(ctx, booking.BlockEntry{Date: dayOff, Reason: "Day off"}); err != nil &&
		!errors.Is(err, booking.ErrDuplicateBlock) {
		return err
	}

	maintenance := time.Now().AddDate(0, 0, 5).Format(schedule.DateLayout)
	slot := "13:00"
	if err := repo.InsertBlock(ctx, booking.BlockEntry{Date: maintenance, Time: &slot, Reason: "Lunch meeting"}); err != nil &&
		!errors.Is(err, booking.ErrDuplicateBlock) {
		return err
	}

	return nil
}
