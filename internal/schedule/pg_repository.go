package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/practiceflow/clinic-agenda/internal/agenda"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, therapist_id, room_id, start_time, duration_minutes, session_type, status, cost, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*agenda.Appointment, error) {
	var a agenda.Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.TherapistID,
		&a.RoomID,
		&a.StartTime,
		&a.DurationMinutes,
		&a.Type,
		&a.Status,
		&a.Cost,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanRoom(row pgx.Row) (*agenda.ConsultingRoom, error) {
	var r agenda.ConsultingRoom

	err := row.Scan(
		&r.ID,
		&r.Name,
		&r.Capacity,
		&r.Equipment,
		&r.Status,
		&r.Location,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return &r, nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*agenda.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsBetween(ctx context.Context, from, to time.Time, f agenda.Filter) ([]agenda.Appointment, error) {
	q := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE start_time >= $1 AND start_time < $2`
	args := []any{from, to}

	if f.RoomID != nil {
		args = append(args, *f.RoomID)
		q += fmt.Sprintf(" AND room_id = $%d", len(args))
	}
	if f.TherapistID != nil {
		args = append(args, *f.TherapistID)
		q += fmt.Sprintf(" AND therapist_id = $%d", len(args))
	}
	q += " ORDER BY start_time, id"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []agenda.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) FindOccupying(ctx context.Context, roomID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (*agenda.Appointment, error) {
	// Half-open overlap: [start_time, start_time+duration) intersects
	// [start, end). Cancelled appointments free their cell.
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE room_id = $1
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND start_time + make_interval(mins => duration_minutes) > $2
		  AND id <> $4
		ORDER BY start_time, id
		LIMIT 1
	`, roomID, start, end, excludeID)
	return scanAppointment(row)
}

func (r *PgRepository) MoveAppointment(ctx context.Context, id uuid.UUID, fromStart time.Time, fromRoom uuid.UUID, toStart time.Time, toRoom uuid.UUID) (*agenda.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $4,
		    room_id = $5,
		    updated_at = now()
		WHERE id = $1
		  AND start_time = $2
		  AND room_id = $3
		RETURNING `+appointmentColumns+`
	`, id, fromStart, fromRoom, toStart, toRoom)

	appt, err := scanAppointment(row)
	if err != nil {
		// The row exists (the caller just loaded it) but no longer
		// matches its previous placement: someone moved it first.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to agenda.AppointmentStatus) (*agenda.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) FindElapsedScheduled(ctx context.Context, now time.Time) ([]agenda.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND start_time + make_interval(mins => duration_minutes) < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []agenda.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetRoomByID(ctx context.Context, id uuid.UUID) (*agenda.ConsultingRoom, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, capacity, equipment, status, location, created_at, updated_at
		FROM consulting_rooms
		WHERE id = $1
	`, id)
	return scanRoom(row)
}

func (r *PgRepository) ListRooms(ctx context.Context) ([]agenda.ConsultingRoom, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, capacity, equipment, status, location, created_at, updated_at
		FROM consulting_rooms
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []agenda.ConsultingRoom
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetTherapistByID(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	var t Therapist
	var specialty *string

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM therapists
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &specialty, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTherapistNotFound
		}
		return nil, err
	}

	t.Specialty = specialty
	return &t, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	var email *string

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
