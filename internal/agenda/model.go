package agenda

import (
	"time"

	"github.com/google/uuid"
)

type SessionType string

const (
	TypeIndividual SessionType = "individual"
	TypeFamily     SessionType = "family"
	TypeGroup      SessionType = "group"
	TypeCouple     SessionType = "couple"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no-show"
)

type RoomStatus string

const (
	RoomAvailable   RoomStatus = "available"
	RoomOccupied    RoomStatus = "occupied"
	RoomMaintenance RoomStatus = "maintenance"
)

// Appointment is a booked session. StartTime plus DurationMinutes defines
// the half-open occupancy window [StartTime, StartTime+duration): an
// appointment starting exactly on a slot boundary occupies that slot, one
// ending exactly on a boundary does not occupy the slot that starts there.
type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	TherapistID     uuid.UUID
	RoomID          uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	Type            SessionType
	Status          AppointmentStatus
	Cost            float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Occupies reports whether t falls inside the occupancy window.
func (a Appointment) Occupies(t time.Time) bool {
	return !t.Before(a.StartTime) && t.Before(a.EndTime())
}

// BlocksCell reports whether the appointment counts for collision and
// grid-rendering purposes. Cancelled appointments free their cell;
// completed and no-show ones describe real past room usage and still block.
func (a Appointment) BlocksCell() bool {
	return a.Status != StatusCancelled
}

// ConsultingRoom is reference data owned by the rooms module; this package
// only reads it.
type ConsultingRoom struct {
	ID        uuid.UUID
	Name      string
	Capacity  int
	Equipment string
	Status    RoomStatus
	Location  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
