package agenda

import (
	"errors"
	"fmt"
)

// SlotMinutes is the grid granularity. The agenda renders one row per
// half hour.
const SlotMinutes = 30

var ErrInvalidRange = errors.New("closing hour must be after opening hour")

// TimeGrid returns the ordered slot labels for one day: openHour inclusive,
// closeHour exclusive, every SlotMinutes. With the default 8 and 20 that is
// "08:00" through "19:30", 24 slots.
func TimeGrid(openHour, closeHour int) ([]string, error) {
	if openHour < 0 || closeHour > 24 || closeHour <= openHour {
		return nil, fmt.Errorf("time grid %d..%d: %w", openHour, closeHour, ErrInvalidRange)
	}

	slots := make([]string, 0, (closeHour-openHour)*60/SlotMinutes)
	for h := openHour; h < closeHour; h++ {
		for m := 0; m < 60; m += SlotMinutes {
			slots = append(slots, fmt.Sprintf("%02d:%02d", h, m))
		}
	}
	return slots, nil
}
