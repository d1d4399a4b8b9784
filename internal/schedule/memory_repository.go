package schedule

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/practiceflow/clinic-agenda/internal/agenda"
)

// MemoryRepository is a map-backed Repository used by the tests and the
// simulator. It mirrors the Postgres semantics, including the guarded
// MoveAppointment update.
type MemoryRepository struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]agenda.Appointment
	rooms        map[uuid.UUID]agenda.ConsultingRoom
	therapists   map[uuid.UUID]Therapist
	patients     map[uuid.UUID]Patient
	events       []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]agenda.Appointment),
		rooms:        make(map[uuid.UUID]agenda.ConsultingRoom),
		therapists:   make(map[uuid.UUID]Therapist),
		patients:     make(map[uuid.UUID]Patient),
	}
}

// Seed helpers

func (r *MemoryRepository) PutAppointment(a agenda.Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = a
}

func (r *MemoryRepository) PutRoom(room agenda.ConsultingRoom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = room
}

func (r *MemoryRepository) PutTherapist(t Therapist) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.therapists[t.ID] = t
}

func (r *MemoryRepository) PutPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

// Interface methods

func (r *MemoryRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*agenda.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListAppointmentsBetween(ctx context.Context, from, to time.Time, f agenda.Filter) ([]agenda.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []agenda.Appointment
	for _, a := range r.appointments {
		if a.StartTime.Before(from) || !a.StartTime.Before(to) {
			continue
		}
		if f.RoomID != nil && a.RoomID != *f.RoomID {
			continue
		}
		if f.TherapistID != nil && a.TherapistID != *f.TherapistID {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].StartTime.Before(result[j].StartTime)
		}
		return bytes.Compare(result[i].ID[:], result[j].ID[:]) < 0
	})
	return result, nil
}

func (r *MemoryRepository) FindOccupying(ctx context.Context, roomID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (*agenda.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *agenda.Appointment
	for _, a := range r.appointments {
		if a.ID == excludeID || a.RoomID != roomID || !a.BlocksCell() {
			continue
		}
		if !a.StartTime.Before(end) || !a.EndTime().After(start) {
			continue
		}
		a := a
		if best == nil ||
			a.StartTime.Before(best.StartTime) ||
			(a.StartTime.Equal(best.StartTime) && bytes.Compare(a.ID[:], best.ID[:]) < 0) {
			best = &a
		}
	}
	if best == nil {
		return nil, ErrAppointmentNotFound
	}
	return best, nil
}

func (r *MemoryRepository) MoveAppointment(ctx context.Context, id uuid.UUID, fromStart time.Time, fromRoom uuid.UUID, toStart time.Time, toRoom uuid.UUID) (*agenda.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if !a.StartTime.Equal(fromStart) || a.RoomID != fromRoom {
		return nil, ErrConcurrentUpdate
	}

	a.StartTime = toStart
	a.RoomID = toRoom
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to agenda.AppointmentStatus) (*agenda.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) FindElapsedScheduled(ctx context.Context, now time.Time) ([]agenda.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []agenda.Appointment
	for _, a := range r.appointments {
		if a.Status == agenda.StatusScheduled && a.EndTime().Before(now) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) GetRoomByID(ctx context.Context, id uuid.UUID) (*agenda.ConsultingRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

func (r *MemoryRepository) ListRooms(ctx context.Context) ([]agenda.ConsultingRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]agenda.ConsultingRoom, 0, len(r.rooms))
	for _, room := range r.rooms {
		result = append(result, room)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *MemoryRepository) GetTherapistByID(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.therapists[id]
	if !ok {
		return nil, ErrTherapistNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.events = append(r.events, ev)
	return nil
}
