package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/practiceflow/clinic-agenda/internal/agenda"
	redisclient "github.com/practiceflow/clinic-agenda/internal/redis"
	"github.com/practiceflow/clinic-agenda/internal/schedule"
)

const dateLayout = "2006-01-02"

func agendaHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		anchor := time.Now().UTC()
		if ds := q.Get("date"); ds != "" {
			parsed, err := time.Parse(dateLayout, ds)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted YYYY-MM-DD")
				return
			}
			anchor = parsed
		}

		view := agenda.ViewWeek
		switch q.Get("view") {
		case "", "week":
		case "day":
			view = agenda.ViewDay
		default:
			writeError(w, http.StatusBadRequest, "invalid_view", "view must be day or week")
			return
		}

		var f agenda.Filter
		if rid := q.Get("room_id"); rid != "" {
			id, err := uuid.Parse(rid)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
				return
			}
			f.RoomID = &id
		}
		if tid := q.Get("therapist_id"); tid != "" {
			id, err := uuid.Parse(tid)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
				return
			}
			f.TherapistID = &id
		}

		grid, err := svc.AgendaGrid(r.Context(), anchor, view, f)
		if err != nil {
			handleAgendaError(w, err)
			return
		}

		resp := GridResponse{
			View:  string(view),
			Days:  make([]string, len(grid.Days)),
			Slots: grid.Slots,
			Cells: make([]GridCellResponse, len(grid.Cells)),
		}
		for i, d := range grid.Days {
			resp.Days[i] = d.Format(dateLayout)
		}
		for i, c := range grid.Cells {
			resp.Cells[i] = GridCellResponse{
				Day:         c.Day.Format(dateLayout),
				Slot:        c.Slot,
				Appointment: toAppointmentResponse(c.Appointment),
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			if errors.Is(err, schedule.ErrAppointmentNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func rescheduleAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		newDay, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted YYYY-MM-DD")
			return
		}

		var newRoomID *uuid.UUID
		if req.RoomID != nil {
			roomID, err := uuid.Parse(*req.RoomID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
				return
			}
			newRoomID = &roomID
		}

		appt, err := svc.Reschedule(r.Context(), id, newDay, req.Slot, newRoomID)
		if err != nil {
			handleRescheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func listRoomsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := svc.ListRooms(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]RoomResponse, len(rooms))
		for i, room := range rooms {
			resp[i] = RoomResponse{
				ID:        room.ID,
				Name:      room.Name,
				Capacity:  room.Capacity,
				Equipment: room.Equipment,
				Status:    string(room.Status),
				Location:  room.Location,
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleAgendaError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agenda.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, agenda.ErrInvalidView):
		writeError(w, http.StatusBadRequest, "invalid_view", err.Error())
	case errors.Is(err, agenda.ErrInvalidRange):
		writeError(w, http.StatusInternalServerError, "invalid_grid_config", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleRescheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room_not_found", err.Error())
	case errors.Is(err, agenda.ErrInvalidSlotLabel):
		writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
	case errors.Is(err, agenda.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, schedule.ErrOutsideOpeningHours):
		writeError(w, http.StatusBadRequest, "slot_outside_grid", err.Error())
	case errors.Is(err, schedule.ErrImmovableStatus):
		writeError(w, http.StatusConflict, "immovable_status", err.Error())
	case errors.Is(err, schedule.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, schedule.ErrCellBeingMoved),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "cell_being_moved", "destination cell is being modified, please retry shortly")
	case errors.Is(err, schedule.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, "concurrent_update", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
