package search

import (
	"fmt"
	"time"
)

// Window is an inclusive range of creation dates. Both ends are midnight UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
}

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PreviousMonthDate returns the same day of the previous month, clamped to
// the last day of that month when it is shorter.
//
// It walks back one day at a time: first out of d's month, then on until
// the day-of-month no longer exceeds d's.
func PreviousMonthDate(d time.Time) time.Time {
	d = Date(d)
	prev := d.AddDate(0, 0, -1)
	for prev.Month() == d.Month() || prev.Day() > d.Day() {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// PreviousWindow returns the month-long window ending on end.
func PreviousWindow(end time.Time) Window {
	end = Date(end)
	return Window{
		Start: PreviousMonthDate(end).AddDate(0, 0, 1),
		End:   end,
	}
}
