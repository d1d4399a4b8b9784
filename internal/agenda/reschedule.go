package agenda

import (
	"time"

	"github.com/google/uuid"
)

// Reschedule returns a copy of appt moved to the slot starting at
// (newDay, slotLabel), optionally into a different room. Every other field
// is preserved. This is the pure transformation; collision checking needs
// the full collection and belongs to the service layer, which must reject
// the move when the destination cell is already occupied.
func Reschedule(appt Appointment, newDay time.Time, slotLabel string, newRoomID *uuid.UUID) (Appointment, error) {
	start, err := SlotInstant(newDay, slotLabel)
	if err != nil {
		return Appointment{}, err
	}

	moved := appt
	moved.StartTime = start
	if newRoomID != nil {
		moved.RoomID = *newRoomID
	}
	return moved, nil
}
