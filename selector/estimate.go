package selector

import (
	"time"

	"bin-kiosk/datewindow"
	"bin-kiosk/pkg/collection"
)

// Estimator guesses the next collection from an alternating weekly pattern:
// recycling on weeks an even distance from Anchor, general waste otherwise.
type Estimator struct {
	Weekday time.Weekday
	Anchor  datewindow.Date // A known recycling day
}

// Estimate returns the guessed next collection on or after today.
func (e Estimator) Estimate(today datewindow.Date) collection.Result {
	next := today.NextWeekday(e.Weekday)

	weeks := e.Anchor.DaysUntil(next) / 7
	bins := collection.BinSet{}
	if weeks%2 == 0 {
		bins.Add(collection.Recycling)
	} else {
		bins.Add(collection.GeneralWaste)
	}

	r := build(collection.Event{Date: next, Bins: bins, RawDescription: "estimated from fortnightly pattern"}, today)
	r.Estimated = true
	r.Warning = "collection estimated from fortnightly pattern"
	return r
}
