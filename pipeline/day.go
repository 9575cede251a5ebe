package pipeline

import "time"

// Day is a calendar day in a specific location, used to scope warehouse
// queries to "today".
type Day struct {
	Start time.Time
}

// DayOf returns the day containing t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Day{Start: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)}
}

// End is the exclusive upper bound of the day.
func (d Day) End() time.Time {
	return d.Start.AddDate(0, 0, 1)
}

func (d Day) String() string {
	return d.Start.Format("2006-01-02")
}
