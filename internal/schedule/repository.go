package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/practiceflow/clinic-agenda/internal/agenda"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrTherapistNotFound   = errors.New("therapist not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrConcurrentUpdate    = errors.New("appointment was modified concurrently")
)

type Therapist struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*agenda.Appointment, error)

	// ListAppointmentsBetween returns appointments starting in [from, to),
	// narrowed by the filter, for building one agenda grid window.
	ListAppointmentsBetween(ctx context.Context, from, to time.Time, f agenda.Filter) ([]agenda.Appointment, error)

	// FindOccupying is the conflict check: the blocking appointment whose
	// occupancy window overlaps [start, end) in the room, excluding
	// excludeID (the appointment being moved). ErrAppointmentNotFound
	// means the cell is free.
	FindOccupying(ctx context.Context, roomID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (*agenda.Appointment, error)

	// MoveAppointment commits a reschedule guarded by the appointment's
	// previous placement: the update applies only while (fromStart,
	// fromRoom) still match, otherwise ErrConcurrentUpdate.
	MoveAppointment(ctx context.Context, id uuid.UUID, fromStart time.Time, fromRoom uuid.UUID, toStart time.Time, toRoom uuid.UUID) (*agenda.Appointment, error)

	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to agenda.AppointmentStatus) (*agenda.Appointment, error)

	// No-show worker
	FindElapsedScheduled(ctx context.Context, now time.Time) ([]agenda.Appointment, error)

	GetRoomByID(ctx context.Context, id uuid.UUID) (*agenda.ConsultingRoom, error)
	ListRooms(ctx context.Context) ([]agenda.ConsultingRoom, error)
	GetTherapistByID(ctx context.Context, id uuid.UUID) (*Therapist, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
