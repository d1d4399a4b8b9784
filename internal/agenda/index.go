package agenda

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Filter narrows an occupant lookup. Nil fields match everything.
type Filter struct {
	RoomID      *uuid.UUID
	TherapistID *uuid.UUID
}

func (f Filter) matches(a Appointment) bool {
	if f.RoomID != nil && a.RoomID != *f.RoomID {
		return false
	}
	if f.TherapistID != nil && a.TherapistID != *f.TherapistID {
		return false
	}
	return true
}

// ViolationFunc is invoked when more than one appointment occupies the
// same cell, which breaks the one-occupant-per-room invariant. The lookup
// still returns a deterministic winner so the grid can render.
type ViolationFunc func(cellTime time.Time, matches []Appointment)

type cellKey struct {
	room  uuid.UUID
	year  int
	month time.Month
	day   int
}

func keyFor(roomID uuid.UUID, t time.Time) cellKey {
	y, m, d := t.Date()
	return cellKey{room: roomID, year: y, month: m, day: d}
}

// Index holds one grid window's appointments bucketed by room and every
// calendar day the occupancy window touches, each bucket sorted by start
// time then ID. Lookups touch a single bucket when a room filter is given
// instead of scanning the whole collection per cell. Cancelled
// appointments are excluded at build time.
//
// Appointments and query days are assumed to share a single time location;
// the service layer loads both in the configured clinic zone.
type Index struct {
	buckets     map[cellKey][]Appointment
	rooms       []uuid.UUID
	onViolation ViolationFunc
}

// NewIndex builds an index over the collection. onViolation may be nil.
func NewIndex(appointments []Appointment, onViolation ViolationFunc) *Index {
	ix := &Index{
		buckets:     make(map[cellKey][]Appointment),
		onViolation: onViolation,
	}

	seen := make(map[uuid.UUID]bool)
	for _, a := range appointments {
		if !a.BlocksCell() {
			continue
		}
		// one bucket per calendar day of [StartTime, EndTime()), so a
		// session running past midnight stays visible the next morning
		endDay := DayOf(a.EndTime().Add(-time.Nanosecond))
		for d := DayOf(a.StartTime); !d.After(endDay); d = d.AddDate(0, 0, 1) {
			k := keyFor(a.RoomID, d)
			ix.buckets[k] = append(ix.buckets[k], a)
		}
		if !seen[a.RoomID] {
			seen[a.RoomID] = true
			ix.rooms = append(ix.rooms, a.RoomID)
		}
	}

	for k := range ix.buckets {
		sortByStartThenID(ix.buckets[k])
	}
	sort.Slice(ix.rooms, func(i, j int) bool {
		return bytes.Compare(ix.rooms[i][:], ix.rooms[j][:]) < 0
	})
	return ix
}

// FindOccupant returns the appointment occupying the (day, slot) cell, or
// nil when the cell is free. When the invariant is broken and several
// appointments match, the earliest start wins, then the lowest ID.
func (ix *Index) FindOccupant(day time.Time, slotLabel string, f Filter) (*Appointment, error) {
	t, err := SlotInstant(day, slotLabel)
	if err != nil {
		return nil, err
	}

	var matches []Appointment
	if f.RoomID != nil {
		matches = ix.collect(keyFor(*f.RoomID, t), t, f)
	} else {
		for _, room := range ix.rooms {
			matches = append(matches, ix.collect(keyFor(room, t), t, f)...)
		}
	}

	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		sortByStartThenID(matches)
		if ix.onViolation != nil {
			ix.onViolation(t, matches)
		}
	}

	occ := matches[0]
	return &occ, nil
}

func (ix *Index) collect(k cellKey, t time.Time, f Filter) []Appointment {
	var out []Appointment
	for _, a := range ix.buckets[k] {
		if a.StartTime.After(t) {
			break
		}
		if a.Occupies(t) && f.matches(a) {
			out = append(out, a)
		}
	}
	return out
}

func sortByStartThenID(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].StartTime.Before(appts[j].StartTime)
		}
		return bytes.Compare(appts[i].ID[:], appts[j].ID[:]) < 0
	})
}

// findOccupantLinear is the reference implementation: a plain scan over
// the collection with the same containment, filter, and tie-break
// semantics. The tests use it as the oracle for Index.
func findOccupantLinear(appointments []Appointment, day time.Time, slotLabel string, f Filter) (*Appointment, error) {
	t, err := SlotInstant(day, slotLabel)
	if err != nil {
		return nil, err
	}

	var matches []Appointment
	for _, a := range appointments {
		if a.BlocksCell() && a.Occupies(t) && f.matches(a) {
			matches = append(matches, a)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sortByStartThenID(matches)
	occ := matches[0]
	return &occ, nil
}
