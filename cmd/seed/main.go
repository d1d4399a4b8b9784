package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/practiceflow/clinic-agenda/internal/agenda"
	"github.com/practiceflow/clinic-agenda/internal/db"
)

const (
	roomCount      = 6
	therapistCount = 12
	patientCount   = 400
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

	rooms, err := seedRooms(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed rooms: %v", err)
	}
	therapists, err := seedTherapists(context.Background(), pool, therapistCount)
	if err != nil {
		log.Fatalf("seed therapists: %v", err)
	}
	patients, err := seedPatients(context.Background(), pool, patientCount)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, rooms, therapists, patients); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedRooms(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	log.Printf("seeding %d consulting rooms", roomCount)

	equipment := []string{
		"desk, two chairs",
		"desk, sofa, sand tray",
		"family circle, whiteboard",
		"group circle, projector",
		"play therapy kit",
		"desk, observation mirror",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, roomCount)
	for i := 0; i < roomCount; i++ {
		ids[i] = uuid.New()
		floor := "ground floor"
		if i >= roomCount/2 {
			floor = "first floor"
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO consulting_rooms (id, name, capacity, equipment, status, location, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'available', $5, now(), now())
		`, ids[i], gofakeit.Numerify("Sala #"), gofakeit.Number(2, 8), equipment[i%len(equipment)], floor)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("consulting rooms seeded")
	return ids, nil
}

func seedTherapists(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d therapists", count)

	specialties := []string{
		"Clinical Psychology",
		"Child Psychology",
		"Couples Therapy",
		"Family Therapy",
		"Cognitive Behavioral Therapy",
		"Neuropsychology",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, count)
	for i := 0; i < count; i++ {
		ids[i] = uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO therapists (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, ids[i], gofakeit.Name(), spec)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("therapists seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 100

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return ids, nil
}

// seedAppointments fills the current and next week with non-overlapping
// sessions per room, aligned to the 30-minute grid.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, rooms, therapists, patients []uuid.UUID) error {
	log.Println("seeding appointments")

	sessionTypes := []agenda.SessionType{
		agenda.TypeIndividual,
		agenda.TypeIndividual,
		agenda.TypeFamily,
		agenda.TypeGroup,
		agenda.TypeCouple,
	}
	durations := []int{30, 60, 60, 90}

	week, err := agenda.CalendarWindow(time.Now(), agenda.ViewWeek)
	if err != nil {
		return err
	}
	nextWeek, err := agenda.CalendarWindow(time.Now().AddDate(0, 0, 7), agenda.ViewWeek)
	if err != nil {
		return err
	}
	days := append(week, nextWeek...)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	total := 0
	for _, room := range rooms {
		for _, day := range days {
			cursor := day.Add(8 * time.Hour)
			dayEnd := day.Add(20 * time.Hour)

			for cursor.Before(dayEnd) {
				// leave roughly a third of the grid free
				if gofakeit.Number(0, 2) == 0 {
					cursor = cursor.Add(agenda.SlotMinutes * time.Minute)
					continue
				}

				minutes := durations[gofakeit.Number(0, len(durations)-1)]
				if cursor.Add(time.Duration(minutes) * time.Minute).After(dayEnd) {
					break
				}

				status := agenda.StatusScheduled
				if cursor.Before(time.Now()) {
					status = agenda.StatusCompleted
				} else if gofakeit.Number(0, 9) == 0 {
					status = agenda.StatusConfirmed
				}

				_, err := tx.Exec(ctx, `
					INSERT INTO appointments
						(id, patient_id, therapist_id, room_id, start_time, duration_minutes,
						 session_type, status, cost, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
				`,
					uuid.New(),
					patients[gofakeit.Number(0, len(patients)-1)],
					therapists[gofakeit.Number(0, len(therapists)-1)],
					room,
					cursor,
					minutes,
					sessionTypes[gofakeit.Number(0, len(sessionTypes)-1)],
					status,
					gofakeit.Price(50, 180),
				)
				if err != nil {
					return err
				}

				total++
				cursor = cursor.Add(time.Duration(minutes) * time.Minute)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("appointments seeded: %d", total)
	return nil
}
