package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practiceflow/clinic-agenda/internal/agenda"
	"github.com/practiceflow/clinic-agenda/internal/config"
	redisclient "github.com/practiceflow/clinic-agenda/internal/redis"
)

// passLocker runs the critical section without any locking; fine for the
// single-goroutine tests.
type passLocker struct{}

func (passLocker) WithCellLock(ctx context.Context, roomID uuid.UUID, start time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// mutexLocker serializes all critical sections; stands in for Redis in the
// concurrency test.
type mutexLocker struct{ mu sync.Mutex }

func (l *mutexLocker) WithCellLock(ctx context.Context, roomID uuid.UUID, start time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type failLocker struct{}

func (failLocker) WithCellLock(ctx context.Context, roomID uuid.UUID, start time.Time, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func testConfig() config.Config {
	return config.Config{OpenHour: 8, CloseHour: 20}
}

func newTestService(locker redisclient.Locker) (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	svc := NewService(repo, locker, testConfig(), zerolog.Nop())
	return svc, repo
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedAppointment(repo *MemoryRepository, room uuid.UUID, start time.Time, minutes int, status agenda.AppointmentStatus) agenda.Appointment {
	a := agenda.Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		TherapistID:     uuid.New(),
		RoomID:          room,
		StartTime:       start,
		DurationMinutes: minutes,
		Type:            agenda.TypeIndividual,
		Status:          status,
		Cost:            85,
	}
	repo.PutAppointment(a)
	return a
}

func seedRoom(repo *MemoryRepository, name string) uuid.UUID {
	id := uuid.New()
	repo.PutRoom(agenda.ConsultingRoom{
		ID:       id,
		Name:     name,
		Capacity: 3,
		Status:   agenda.RoomAvailable,
		Location: "first floor",
	})
	return id
}

func TestRescheduleSuccess(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")
	room2 := seedRoom(repo, "Sala 2")
	appt := seedAppointment(repo, room1, at(2024, time.March, 15, 10, 0), 60, agenda.StatusConfirmed)

	moved, err := svc.Reschedule(context.Background(), appt.ID, day(2024, time.March, 16), "09:00", &room2)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	if !moved.StartTime.Equal(at(2024, time.March, 16, 9, 0)) {
		t.Errorf("start: got %v", moved.StartTime)
	}
	if moved.RoomID != room2 {
		t.Errorf("room: got %s, want %s", moved.RoomID, room2)
	}
	if moved.DurationMinutes != 60 {
		t.Errorf("duration changed: %d", moved.DurationMinutes)
	}

	stored, err := repo.GetAppointmentByID(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !stored.StartTime.Equal(moved.StartTime) || stored.RoomID != room2 {
		t.Error("repository not updated with the new placement")
	}

	events := repo.Events()
	if len(events) != 1 || events[0].EventType != EventAppointmentRescheduled {
		t.Fatalf("expected one reschedule event, got %+v", events)
	}
}

func TestRescheduleConflict(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")
	appt := seedAppointment(repo, room1, at(2024, time.March, 15, 10, 0), 60, agenda.StatusConfirmed)
	seedAppointment(repo, room1, at(2024, time.March, 16, 9, 0), 60, agenda.StatusScheduled)

	_, err := svc.Reschedule(context.Background(), appt.ID, day(2024, time.March, 16), "09:00", nil)
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}

	// the move must not have partially applied
	stored, _ := repo.GetAppointmentByID(context.Background(), appt.ID)
	if !stored.StartTime.Equal(appt.StartTime) || stored.RoomID != room1 {
		t.Error("failed reschedule mutated the appointment")
	}
	if len(repo.Events()) != 0 {
		t.Error("failed reschedule logged an event")
	}
}

func TestReschedulePartialOverlapConflicts(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")
	appt := seedAppointment(repo, room1, at(2024, time.March, 15, 14, 0), 60, agenda.StatusConfirmed)
	// occupant 09:00-10:00; target 09:30-10:30 overlaps its tail
	seedAppointment(repo, room1, at(2024, time.March, 16, 9, 0), 60, agenda.StatusConfirmed)

	_, err := svc.Reschedule(context.Background(), appt.ID, day(2024, time.March, 16), "09:30", nil)
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
}

func TestRescheduleAdjacentDoesNotConflict(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")
	appt := seedAppointment(repo, room1, at(2024, time.March, 15, 14, 0), 60, agenda.StatusConfirmed)
	// occupant ends exactly at 10:00; the window is half-open so 10:00 is free
	seedAppointment(repo, room1, at(2024, time.March, 16, 9, 0), 60, agenda.StatusConfirmed)

	if _, err := svc.Reschedule(context.Background(), appt.ID, day(2024, time.March, 16), "10:00", nil); err != nil {
		t.Fatalf("adjacent target should not conflict: %v", err)
	}
}

func TestRescheduleConflictIgnoresCancelled(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")
	appt := seedAppointment(repo, room1, at(2024, time.March, 15, 14, 0), 60, agenda.StatusConfirmed)
	seedAppointment(repo, room1, at(2024, time.March, 16, 9, 0), 60, agenda.StatusCancelled)

	if _, err := svc.Reschedule(context.Background(), appt.ID, day(2024, time.March, 16), "09:00", nil); err != nil {
		t.Fatalf("cancelled occupant should not block: %v", err)
	}
}

func TestRescheduleWithinOwnWindow(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")
	appt := seedAppointment(repo, room1, at(2024, time.March, 15, 10, 0), 60, agenda.StatusConfirmed)

	// nudge 30 minutes later: the new window overlaps the old one, which
	// must not count as a conflict with itself
	moved, err := svc.Reschedule(context.Background(), appt.ID, day(2024, time.March, 15), "10:30", nil)
	if err != nil {
		t.Fatalf("self-overlapping move: %v", err)
	}
	if !moved.StartTime.Equal(at(2024, time.March, 15, 10, 30)) {
		t.Errorf("start: got %v", moved.StartTime)
	}
}

func TestRescheduleImmovableStatuses(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")

	for _, status := range []agenda.AppointmentStatus{agenda.StatusCancelled, agenda.StatusCompleted} {
		appt := seedAppointment(repo, room1, at(2024, time.March, 15, 10, 0), 60, status)
		_, err := svc.Reschedule(context.Background(), appt.ID, day(2024, time.March, 16), "09:00", nil)
		if !errors.Is(err, ErrImmovableStatus) {
			t.Errorf("status %s: expected ErrImmovableStatus, got %v", status, err)
		}
	}
}

func TestRescheduleUnknownTargets(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")
	appt := seedAppointment(repo, room1, at(2024, time.March, 15, 10, 0), 60, agenda.StatusScheduled)

	unknownRoom := uuid.New()
	if _, err := svc.Reschedule(context.Background(), appt.ID, day(2024, time.March, 16), "09:00", &unknownRoom); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}

	if _, err := svc.Reschedule(context.Background(), uuid.New(), day(2024, time.March, 16), "09:00", nil); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestRescheduleOffGridTargets(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")
	appt := seedAppointment(repo, room1, at(2024, time.March, 15, 10, 0), 60, agenda.StatusScheduled)

	tests := []struct {
		name string
		slot string
		want error
	}{
		{"before opening", "07:30", ErrOutsideOpeningHours},
		{"at closing", "20:00", ErrOutsideOpeningHours},
		{"off the half-hour rows", "10:15", ErrOutsideOpeningHours},
		{"malformed", "9am", agenda.ErrInvalidSlotLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Reschedule(context.Background(), appt.ID, day(2024, time.March, 16), tt.slot, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRescheduleLockContention(t *testing.T) {
	svc, repo := newTestService(failLocker{})
	room1 := seedRoom(repo, "Sala 1")
	appt := seedAppointment(repo, room1, at(2024, time.March, 15, 10, 0), 60, agenda.StatusScheduled)

	_, err := svc.Reschedule(context.Background(), appt.ID, day(2024, time.March, 16), "09:00", nil)
	if !errors.Is(err, ErrCellBeingMoved) {
		t.Fatalf("expected ErrCellBeingMoved, got %v", err)
	}
}

func TestConcurrentReschedulesIntoOneCell(t *testing.T) {
	svc, repo := newTestService(&mutexLocker{})
	room1 := seedRoom(repo, "Sala 1")

	const n = 8
	ids := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		// spread out so the sources never overlap each other
		a := seedAppointment(repo, room1, at(2024, time.March, 15, 8+i, 0), 30, agenda.StatusConfirmed)
		ids[i] = a.ID
	}

	target := day(2024, time.March, 22)
	var wg sync.WaitGroup
	results := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := svc.Reschedule(context.Background(), id, target, "11:00", nil)
			results <- err
		}(ids[i])
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrSlotConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("expected exactly 1 success, got %d", successes)
	}
	if conflicts != n-1 {
		t.Errorf("expected %d conflicts, got %d", n-1, conflicts)
	}
}

func TestAgendaGridWeek(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")
	room2 := seedRoom(repo, "Sala 2")

	// 2024-03-15 is a Friday; its week runs 03-11 .. 03-17
	a1 := seedAppointment(repo, room1, at(2024, time.March, 15, 10, 0), 60, agenda.StatusConfirmed)
	seedAppointment(repo, room2, at(2024, time.March, 11, 8, 0), 30, agenda.StatusScheduled)
	// outside the window, must not appear
	seedAppointment(repo, room1, at(2024, time.March, 18, 10, 0), 60, agenda.StatusConfirmed)

	grid, err := svc.AgendaGrid(context.Background(), day(2024, time.March, 15), agenda.ViewWeek, agenda.Filter{})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}

	if len(grid.Days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(grid.Days))
	}
	if len(grid.Slots) != 24 {
		t.Fatalf("expected 24 slots, got %d", len(grid.Slots))
	}

	// a1 is 60 minutes, so it fills two cells
	cellsFor := func(id uuid.UUID) []GridCell {
		var out []GridCell
		for _, c := range grid.Cells {
			if c.Appointment.ID == id {
				out = append(out, c)
			}
		}
		return out
	}
	if got := cellsFor(a1.ID); len(got) != 2 {
		t.Errorf("expected a1 in 2 cells, got %d", len(got))
	}
	if len(grid.Cells) != 3 {
		t.Errorf("expected 3 occupied cells in total, got %d", len(grid.Cells))
	}
}

func TestAgendaGridDayWithFilter(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")
	room2 := seedRoom(repo, "Sala 2")

	seedAppointment(repo, room1, at(2024, time.March, 15, 10, 0), 30, agenda.StatusConfirmed)
	seedAppointment(repo, room2, at(2024, time.March, 15, 10, 0), 30, agenda.StatusConfirmed)

	grid, err := svc.AgendaGrid(context.Background(), day(2024, time.March, 15), agenda.ViewDay, agenda.Filter{RoomID: &room1})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}

	if len(grid.Days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(grid.Days))
	}
	if len(grid.Cells) != 1 {
		t.Fatalf("expected 1 occupied cell, got %d", len(grid.Cells))
	}
	if grid.Cells[0].Appointment.RoomID != room1 {
		t.Error("filter leaked another room's appointment")
	}
}

func TestMarkNoShows(t *testing.T) {
	svc, repo := newTestService(passLocker{})
	room1 := seedRoom(repo, "Sala 1")

	past := time.Now().Add(-3 * time.Hour)
	future := time.Now().Add(3 * time.Hour)

	elapsed := seedAppointment(repo, room1, past, 60, agenda.StatusScheduled)
	upcoming := seedAppointment(repo, room1, future, 60, agenda.StatusScheduled)
	attended := seedAppointment(repo, room1, past, 60, agenda.StatusCompleted)

	if err := svc.MarkNoShows(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ := repo.GetAppointmentByID(context.Background(), elapsed.ID)
	if got.Status != agenda.StatusNoShow {
		t.Errorf("elapsed scheduled: got %s, want no-show", got.Status)
	}
	got, _ = repo.GetAppointmentByID(context.Background(), upcoming.ID)
	if got.Status != agenda.StatusScheduled {
		t.Errorf("upcoming: got %s, want scheduled", got.Status)
	}
	got, _ = repo.GetAppointmentByID(context.Background(), attended.ID)
	if got.Status != agenda.StatusCompleted {
		t.Errorf("completed: got %s, want completed", got.Status)
	}

	events := repo.Events()
	if len(events) != 1 || events[0].EventType != EventAppointmentNoShow {
		t.Fatalf("expected one no-show event, got %+v", events)
	}
}

// refusingStatusRepo simulates the sweep race: the appointment left
// scheduled between find and update, so the guarded transition refuses.
type refusingStatusRepo struct {
	*MemoryRepository
}

func (r *refusingStatusRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to agenda.AppointmentStatus) (*agenda.Appointment, error) {
	return nil, ErrAppointmentNotFound
}

func TestMarkNoShowsSkipsEventWhenTransitionRefused(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(&refusingStatusRepo{repo}, passLocker{}, testConfig(), zerolog.Nop())
	room1 := seedRoom(repo, "Sala 1")
	seedAppointment(repo, room1, time.Now().Add(-3*time.Hour), 60, agenda.StatusScheduled)

	if err := svc.MarkNoShows(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if events := repo.Events(); len(events) != 0 {
		t.Fatalf("refused transition must not log an event, got %+v", events)
	}
}

func TestMoveAppointmentCAS(t *testing.T) {
	repo := NewMemoryRepository()
	room1 := uuid.New()
	appt := seedAppointment(repo, room1, at(2024, time.March, 15, 10, 0), 60, agenda.StatusScheduled)

	// stale fromStart: the guard must refuse
	_, err := repo.MoveAppointment(context.Background(), appt.ID, at(2024, time.March, 15, 11, 0), room1, at(2024, time.March, 16, 9, 0), room1)
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}
