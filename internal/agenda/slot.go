package agenda

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidSlotLabel = errors.New("slot label must be HH:MM")

// ParseSlotLabel parses a strict two-digit "HH:MM" label. Anything else,
// including out-of-range hours or minutes, fails with ErrInvalidSlotLabel.
func ParseSlotLabel(label string) (hour, minute int, err error) {
	if len(label) != 5 || label[2] != ':' {
		return 0, 0, fmt.Errorf("%q: %w", label, ErrInvalidSlotLabel)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if label[i] < '0' || label[i] > '9' {
			return 0, 0, fmt.Errorf("%q: %w", label, ErrInvalidSlotLabel)
		}
	}

	hour = int(label[0]-'0')*10 + int(label[1]-'0')
	minute = int(label[3]-'0')*10 + int(label[4]-'0')
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%q: %w", label, ErrInvalidSlotLabel)
	}
	return hour, minute, nil
}

// SlotInstant combines a calendar day with a slot label into the instant
// the slot starts, seconds zeroed, in the day's location.
func SlotInstant(day time.Time, label string) (time.Time, error) {
	h, m, err := ParseSlotLabel(label)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, 0, 0, day.Location()), nil
}
