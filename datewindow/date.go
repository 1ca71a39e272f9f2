// Package datewindow provides calendar-date arithmetic in a configured timezone.
package datewindow

import (
	"fmt"
	"time"
)

const (
	// MachineLayout is the compact form used on the wire and in calendar feeds.
	MachineLayout = "20060102"
	// DisplayLayout is the short form shown on the kiosk.
	DisplayLayout = "Mon 2 Jan"
)

// Date is a calendar day with no time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// New returns a normalized Date (e.g. 32 January becomes 1 February).
func New(year int, month time.Month, day int) Date {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// FromTime returns the calendar day of t in t's location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseMachine parses a YYYYMMDD or YYYY-MM-DD string.
func ParseMachine(s string) (Date, error) {
	for _, layout := range []string{MachineLayout, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t), nil
		}
	}
	return Date{}, fmt.Errorf("invalid machine date %q", s)
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) utc() time.Time {
	return d.Time(time.UTC)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	return d.Compare(o) < 0
}

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool {
	return d.Compare(o) > 0
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmp(d.Year, o.Year)
	case d.Month != o.Month:
		return cmp(int(d.Month), int(o.Month))
	default:
		return cmp(d.Day, o.Day)
	}
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return FromTime(d.utc().AddDate(0, 0, n))
}

// Weekday returns the day of the week.
func (d Date) Weekday() time.Weekday {
	return d.utc().Weekday()
}

// DaysUntil returns the signed number of days from d to o.
// UTC midnights are used so DST transitions never skew the count.
func (d Date) DaysUntil(o Date) int {
	return int(o.utc().Sub(d.utc()).Hours() / 24)
}

// NextWeekday returns the first date on or after d falling on wd.
func (d Date) NextWeekday(wd time.Weekday) Date {
	delta := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDays(delta)
}

// Machine formats d as YYYYMMDD.
func (d Date) Machine() string {
	return d.utc().Format(MachineLayout)
}

// Display formats d as "Mon 2 Jan".
func (d Date) Display() string {
	return d.utc().Format(DisplayLayout)
}

func (d Date) String() string {
	return d.utc().Format(time.DateOnly)
}
