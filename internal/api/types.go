package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/practiceflow/clinic-agenda/internal/agenda"
)

type RescheduleRequest struct {
	Date   string  `json:"date"`
	Slot   string  `json:"slot"`
	RoomID *string `json:"room_id,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	TherapistID     uuid.UUID `json:"therapist_id"`
	RoomID          uuid.UUID `json:"room_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Type            string    `json:"session_type"`
	Status          string    `json:"status"`
	Cost            float64   `json:"cost"`
}

func toAppointmentResponse(a agenda.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		TherapistID:     a.TherapistID,
		RoomID:          a.RoomID,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime(),
		DurationMinutes: a.DurationMinutes,
		Type:            string(a.Type),
		Status:          string(a.Status),
		Cost:            a.Cost,
	}
}

type RoomResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"`
	Equipment string    `json:"equipment,omitempty"`
	Status    string    `json:"status"`
	Location  string    `json:"location,omitempty"`
}

type GridCellResponse struct {
	Day         string              `json:"day"`
	Slot        string              `json:"slot"`
	Appointment AppointmentResponse `json:"appointment"`
}

type GridResponse struct {
	View  string             `json:"view"`
	Days  []string           `json:"days"`
	Slots []string           `json:"slots"`
	Cells []GridCellResponse `json:"cells"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
