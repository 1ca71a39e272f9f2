// Package selector picks the next relevant collection from a sorted event list.
package selector

import (
	"bin-kiosk/datewindow"
	"bin-kiosk/pkg/collection"
)

// SelectNext returns the first event on or after today.
// When every event is in the past the last one is returned flagged as estimated
// with Err set to collection.ErrNoUpcoming, so a stale date is never presented as upcoming.
// An empty list yields a result carrying only an error.
func SelectNext(events []collection.Event, today datewindow.Date) collection.Result {
	if len(events) == 0 {
		return collection.ErrorResult(collection.ErrNoEvents)
	}

	for i := range events {
		if !events[i].Date.Before(today) {
			return build(events[i], today)
		}
	}

	r := build(events[len(events)-1], today)
	r.Estimated = true
	r.Err = collection.ErrNoUpcoming
	r.Warning = collection.ErrNoUpcoming.Error()
	return r
}

func build(ev collection.Event, today datewindow.Date) collection.Result {
	date := ev.Date
	machine := date.Machine()
	days := today.DaysUntil(date)

	return collection.Result{
		NextDate:    &date,
		Date:        date.Display(),
		Bins:        collection.BinsFromSet(ev.Bins),
		Next:        &machine,
		IsToday:     days == 0,
		DaysUntil:   &days,
		Description: ev.RawDescription,
	}
}

// Upcoming returns the events dated today or later.
func Upcoming(events []collection.Event, today datewindow.Date) []collection.Event {
	for i := range events {
		if !events[i].Date.Before(today) {
			return events[i:]
		}
	}
	return nil
}
