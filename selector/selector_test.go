package selector

import (
	"errors"
	"testing"
	"time"

	"bin-kiosk/datewindow"
	"bin-kiosk/pkg/collection"
)

func event(y int, m time.Month, d int, cats ...collection.Category) collection.Event {
	bins := collection.BinSet{}
	for _, c := range cats {
		bins.Add(c)
	}
	return collection.Event{Date: datewindow.New(y, m, d), Bins: bins}
}

func TestSelectNext(t *testing.T) {
	events := []collection.Event{
		event(2025, 1, 3, collection.GeneralWaste),
		event(2025, 1, 10, collection.Recycling),
		event(2025, 1, 17, collection.GeneralWaste, collection.GardenOrFood),
	}

	tests := []struct {
		name          string
		today         datewindow.Date
		wantNext      string
		wantDays      int
		wantToday     bool
		wantEstimated bool
	}{
		{"collection today", datewindow.New(2025, 1, 10), "20250110", 0, true, false},
		{"next week", datewindow.New(2025, 1, 11), "20250117", 6, false, false},
		{"before first", datewindow.New(2024, 12, 31), "20250103", 3, false, false},
		{"all in the past", datewindow.New(2025, 2, 1), "20250117", -15, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SelectNext(events, tt.today)
			if r.Next == nil || *r.Next != tt.wantNext {
				t.Fatalf("SelectNext() next = %v, want %v", r.Next, tt.wantNext)
			}
			if r.DaysUntil == nil || *r.DaysUntil != tt.wantDays {
				t.Errorf("SelectNext() daysUntil = %v, want %v", r.DaysUntil, tt.wantDays)
			}
			if r.IsToday != tt.wantToday {
				t.Errorf("SelectNext() isToday = %v, want %v", r.IsToday, tt.wantToday)
			}
			if r.Estimated != tt.wantEstimated {
				t.Errorf("SelectNext() estimated = %v, want %v", r.Estimated, tt.wantEstimated)
			}
			if r.Error != "" {
				t.Errorf("SelectNext() error = %q, want none", r.Error)
			}
		})
	}
}

func TestSelectNextNeverReturnsPastUnflagged(t *testing.T) {
	events := []collection.Event{
		event(2025, 1, 3, collection.GeneralWaste),
		event(2025, 1, 10, collection.Recycling),
	}
	for d := 0; d < 20; d++ {
		today := datewindow.New(2025, 1, 1).AddDays(d)
		r := SelectNext(events, today)
		if r.NextDate.Before(today) {
			if !r.Estimated || !errors.Is(r.Err, collection.ErrNoUpcoming) {
				t.Errorf("today=%v: past date %v returned without past-fallback flag", today, r.NextDate)
			}
		}
	}
}

func TestSelectNextEmpty(t *testing.T) {
	r := SelectNext(nil, datewindow.New(2025, 1, 1))
	if r.Error == "" {
		t.Error("SelectNext(nil) should carry an error")
	}
	if r.Next != nil || r.DaysUntil != nil || r.IsToday {
		t.Errorf("SelectNext(nil) should carry no date, got %+v", r)
	}
	if r.Bins != (collection.Bins{}) {
		t.Errorf("SelectNext(nil) bins = %+v, want none", r.Bins)
	}
}

func TestSelectNextScrapeScenario(t *testing.T) {
	events := []collection.Event{event(2025, 1, 23, collection.Recycling)}
	r := SelectNext(events, datewindow.New(2025, 1, 10))

	if *r.DaysUntil != 13 || r.IsToday {
		t.Errorf("daysUntil = %d isToday = %v, want 13 false", *r.DaysUntil, r.IsToday)
	}
	want := collection.Bins{Recycling: true}
	if r.Bins != want {
		t.Errorf("bins = %+v, want %+v", r.Bins, want)
	}
	if r.Date != "Thu 23 Jan" {
		t.Errorf("date = %q, want Thu 23 Jan", r.Date)
	}
}

func TestUpcoming(t *testing.T) {
	events := []collection.Event{
		event(2025, 1, 3),
		event(2025, 1, 10),
		event(2025, 1, 17),
	}
	if got := Upcoming(events, datewindow.New(2025, 1, 10)); len(got) != 2 {
		t.Errorf("Upcoming() returned %d events, want 2", len(got))
	}
	if got := Upcoming(events, datewindow.New(2025, 2, 1)); len(got) != 0 {
		t.Errorf("Upcoming() returned %d events, want 0", len(got))
	}
}

func TestEstimate(t *testing.T) {
	// Anchor: recycling on Friday 2025-01-03.
	e := Estimator{Weekday: time.Friday, Anchor: datewindow.New(2025, 1, 3)}

	tests := []struct {
		name      string
		today     datewindow.Date
		wantNext  string
		wantBins  collection.Bins
		wantToday bool
	}{
		{"anchor week", datewindow.New(2025, 1, 1), "20250103", collection.Bins{Recycling: true}, false},
		{"odd week", datewindow.New(2025, 1, 6), "20250110", collection.Bins{GeneralWaste: true}, false},
		{"even week on the day", datewindow.New(2025, 1, 17), "20250117", collection.Bins{Recycling: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.Estimate(tt.today)
			if *r.Next != tt.wantNext {
				t.Errorf("Estimate() next = %v, want %v", *r.Next, tt.wantNext)
			}
			if r.Bins != tt.wantBins {
				t.Errorf("Estimate() bins = %+v, want %+v", r.Bins, tt.wantBins)
			}
			if r.IsToday != tt.wantToday {
				t.Errorf("Estimate() isToday = %v, want %v", r.IsToday, tt.wantToday)
			}
			if !r.Estimated {
				t.Error("Estimate() should be flagged estimated")
			}
		})
	}
}
