package datewindow

import (
	"fmt"
	"time"
)

// Clock abstracts time.Now() to allow deterministic testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return time.Time(c)
}

// Window resolves "today" in a configured timezone.
type Window struct {
	clock Clock
	loc   *time.Location
}

// NewWindow creates a Window for the named IANA timezone.
func NewWindow(clock Clock, timezone string) (*Window, error) {
	if clock == nil {
		clock = RealClock{}
	}
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
	}
	return &Window{clock: clock, loc: loc}, nil
}

// Now returns the current instant in the configured timezone.
func (w *Window) Now() time.Time {
	return w.clock.Now().In(w.loc)
}

// Today returns the current calendar day in the configured timezone.
func (w *Window) Today() Date {
	return FromTime(w.Now())
}

// Location returns the configured timezone.
func (w *Window) Location() *time.Location {
	return w.loc
}
