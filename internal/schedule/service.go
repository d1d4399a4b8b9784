package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practiceflow/clinic-agenda/internal/agenda"
	"github.com/practiceflow/clinic-agenda/internal/config"
	redisclient "github.com/practiceflow/clinic-agenda/internal/redis"
)

const (
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
)

var (
	ErrSlotConflict        = errors.New("destination cell already has an appointment")
	ErrCellBeingMoved      = errors.New("destination cell is being modified, please retry")
	ErrImmovableStatus     = errors.New("appointment status does not allow rescheduling")
	ErrOutsideOpeningHours = errors.New("slot is outside the agenda grid")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log,
	}
}

// GridCell is one occupied cell of the agenda grid. Free cells are not
// materialized.
type GridCell struct {
	Day         time.Time
	Slot        string
	Appointment agenda.Appointment
}

type Grid struct {
	Days  []time.Time
	Slots []string
	Cells []GridCell
}

// AgendaGrid assembles the day or week grid around the anchor date. The
// window's appointments are loaded once and indexed; each (day, slot) cell
// is then resolved against the index.
func (s *Service) AgendaGrid(ctx context.Context, anchor time.Time, view agenda.ViewMode, f agenda.Filter) (*Grid, error) {
	days, err := agenda.CalendarWindow(anchor, view)
	if err != nil {
		return nil, err
	}
	slots, err := agenda.TimeGrid(s.cfg.OpenHour, s.cfg.CloseHour)
	if err != nil {
		return nil, fmt.Errorf("time grid: %w", err)
	}

	from := days[0]
	to := days[len(days)-1].AddDate(0, 0, 1)
	appointments, err := s.repo.ListAppointmentsBetween(ctx, from, to, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	ix := agenda.NewIndex(appointments, func(cellTime time.Time, matches []agenda.Appointment) {
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID.String()
		}
		s.log.Warn().
			Time("cell", cellTime).
			Strs("appointment_ids", ids).
			Msg("room double-booked: multiple appointments occupy one cell")
	})

	grid := &Grid{Days: days, Slots: slots}
	for _, day := range days {
		for _, slot := range slots {
			occ, err := ix.FindOccupant(day, slot, f)
			if err != nil {
				return nil, err
			}
			if occ != nil {
				grid.Cells = append(grid.Cells, GridCell{Day: day, Slot: slot, Appointment: *occ})
			}
		}
	}
	return grid, nil
}

// Reschedule moves an appointment to the cell at (newDay, slotLabel),
// optionally into a different room. The destination cell lock makes the
// occupancy check and the commit atomic with respect to concurrent moves
// into the same cell; the guarded update catches moves of the appointment
// itself that raced past the lock.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDay time.Time, slotLabel string, newRoomID *uuid.UUID) (*agenda.Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status == agenda.StatusCancelled || appt.Status == agenda.StatusCompleted {
		return nil, ErrImmovableStatus
	}

	if newRoomID != nil {
		if _, err := s.repo.GetRoomByID(ctx, *newRoomID); err != nil {
			if errors.Is(err, ErrRoomNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load room: %w", err)
		}
	}

	moved, err := agenda.Reschedule(*appt, newDay, slotLabel, newRoomID)
	if err != nil {
		return nil, err
	}
	if err := s.checkGridSlot(moved.StartTime); err != nil {
		return nil, err
	}

	var out *agenda.Appointment

	err = s.locker.WithCellLock(ctx, moved.RoomID, moved.StartTime, func(lockCtx context.Context) error {
		occ, err := s.repo.FindOccupying(lockCtx, moved.RoomID, moved.StartTime, moved.EndTime(), appt.ID)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check destination cell: %w", err)
		}
		if occ != nil {
			return ErrSlotConflict
		}

		updated, err := s.repo.MoveAppointment(lockCtx, appt.ID, appt.StartTime, appt.RoomID, moved.StartTime, moved.RoomID)
		if err != nil {
			if errors.Is(err, ErrConcurrentUpdate) {
				return err
			}
			return fmt.Errorf("commit reschedule: %w", err)
		}

		out = updated

		payload := map[string]any{
			"from_start": appt.StartTime,
			"from_room":  appt.RoomID.String(),
			"to_start":   updated.StartTime,
			"to_room":    updated.RoomID.String(),
		}
		s.logEvent(lockCtx, updated.ID, EventAppointmentRescheduled, payload)

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrCellBeingMoved
		}
		return nil, err
	}

	return out, nil
}

// checkGridSlot rejects targets outside the clinic's bookable grid: hours
// before opening or at/after closing, and minutes off the 30-minute rows.
func (s *Service) checkGridSlot(start time.Time) error {
	if start.Hour() < s.cfg.OpenHour || start.Hour() >= s.cfg.CloseHour {
		return ErrOutsideOpeningHours
	}
	if start.Minute()%agenda.SlotMinutes != 0 {
		return ErrOutsideOpeningHours
	}
	return nil
}

// MarkNoShows is intended to be called by the worker periodically. It
// moves appointments that stayed in scheduled past their whole occupancy
// window into no-show.
func (s *Service) MarkNoShows(ctx context.Context) error {
	now := time.Now()
	elapsed, err := s.repo.FindElapsedScheduled(ctx, now)
	if err != nil {
		return fmt.Errorf("find elapsed scheduled appointments: %w", err)
	}

	for _, appt := range elapsed {
		if _, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, agenda.StatusScheduled, agenda.StatusNoShow); err != nil {
			// the guarded update refuses when the status changed under
			// the sweep; no transition happened, so no event either
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to mark no-show")
			}
			continue
		}
		s.logEvent(ctx, appt.ID, EventAppointmentNoShow, map[string]any{
			"ended_at": appt.EndTime(),
		})
	}

	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

// GetAppointment retrieves an appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*agenda.Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListRooms returns the clinic's consulting rooms
func (s *Service) ListRooms(ctx context.Context) ([]agenda.ConsultingRoom, error) {
	rooms, err := s.repo.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
