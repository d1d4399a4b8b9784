package agenda

import (
	"errors"
	"time"
)

type ViewMode string

const (
	ViewDay  ViewMode = "day"
	ViewWeek ViewMode = "week"
)

var (
	ErrInvalidDate = errors.New("anchor date is not a valid date")
	ErrInvalidView = errors.New("unknown agenda view mode")
)

// DayOf truncates t to midnight in its own location.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CalendarWindow computes the column axis of the agenda grid: the anchor
// day alone in day view, or the 7 days of the Monday-started week
// containing the anchor in week view. Days are midnight-normalized and
// ascending.
func CalendarWindow(anchor time.Time, view ViewMode) ([]time.Time, error) {
	if anchor.IsZero() {
		return nil, ErrInvalidDate
	}

	day := DayOf(anchor)

	switch view {
	case ViewDay:
		return []time.Time{day}, nil
	case ViewWeek:
		// time.Sunday is 0, so the offset back to Monday is -6 on
		// Sundays and 1-weekday otherwise.
		offset := 1 - int(day.Weekday())
		if day.Weekday() == time.Sunday {
			offset = -6
		}
		monday := day.AddDate(0, 0, offset)

		days := make([]time.Time, 7)
		for i := range days {
			days[i] = monday.AddDate(0, 0, i)
		}
		return days, nil
	default:
		return nil, ErrInvalidView
	}
}
