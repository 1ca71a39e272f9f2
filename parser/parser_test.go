package parser

import (
	"io"
	"log/slog"
	"testing"

	"bin-kiosk/datewindow"
	"bin-kiosk/pkg/collection"
)

type fixedToday datewindow.Date

func (f fixedToday) Today() datewindow.Date { return datewindow.Date(f) }

func newTestParser(today datewindow.Date) *Parser {
	return New(fixedToday(today), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolveDate(t *testing.T) {
	tests := []struct {
		name     string
		dateText string
		today    datewindow.Date
		want     datewindow.Date
		wantOK   bool
	}{
		{
			name:     "machine date",
			dateText: "20250314",
			today:    datewindow.New(2025, 1, 1),
			want:     datewindow.New(2025, 3, 14),
			wantOK:   true,
		},
		{
			name:     "machine date in the past is kept",
			dateText: "20240314",
			today:    datewindow.New(2025, 1, 1),
			want:     datewindow.New(2024, 3, 14),
			wantOK:   true,
		},
		{
			name:     "short month without year",
			dateText: "23 Jan",
			today:    datewindow.New(2025, 1, 10),
			want:     datewindow.New(2025, 1, 23),
			wantOK:   true,
		},
		{
			name:     "weekday and full month",
			dateText: "Friday 23 January",
			today:    datewindow.New(2026, 1, 2),
			want:     datewindow.New(2026, 1, 23),
			wantOK:   true,
		},
		{
			name:     "year rollover",
			dateText: "2 January",
			today:    datewindow.New(2024, 12, 30),
			want:     datewindow.New(2025, 1, 2),
			wantOK:   true,
		},
		{
			name:     "today is not rolled",
			dateText: "Monday 30 December",
			today:    datewindow.New(2024, 12, 30),
			want:     datewindow.New(2024, 12, 30),
			wantOK:   true,
		},
		{
			name:     "explicit year is kept",
			dateText: "14 March 2026",
			today:    datewindow.New(2025, 1, 1),
			want:     datewindow.New(2026, 3, 14),
			wantOK:   true,
		},
		{
			name:     "explicit past year is not rolled",
			dateText: "3 January 2024",
			today:    datewindow.New(2025, 1, 10),
			want:     datewindow.New(2024, 1, 3),
			wantOK:   true,
		},
		{
			name:     "ordinal suffix and lower case",
			dateText: "tuesday 4th february",
			today:    datewindow.New(2025, 1, 10),
			want:     datewindow.New(2025, 2, 4),
			wantOK:   true,
		},
		{
			name:     "month first",
			dateText: "March 14",
			today:    datewindow.New(2025, 1, 1),
			want:     datewindow.New(2025, 3, 14),
			wantOK:   true,
		},
		{
			name:     "garbage",
			dateText: "next week sometime",
			today:    datewindow.New(2025, 1, 1),
			wantOK:   false,
		},
		{
			name:     "empty",
			dateText: "  ",
			today:    datewindow.New(2025, 1, 1),
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveDate(tt.dateText, tt.today)
			if ok != tt.wantOK {
				t.Fatalf("ResolveDate() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ResolveDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want collection.Bins
	}{
		{"Green Bin and Grey Bin", collection.Bins{Recycling: true, GeneralWaste: true}},
		{"RECYCLING", collection.Bins{Recycling: true}},
		{"grey bin, small electrical items", collection.Bins{GeneralWaste: true}},
		{"Gray bin", collection.Bins{GeneralWaste: true}},
		{"Refuse collection", collection.Bins{GeneralWaste: true}},
		{"Rubbish", collection.Bins{GeneralWaste: true}},
		{"Food waste and garden waste", collection.Bins{GardenOrFood: true}},
		{"Brown bin (organic)", collection.Bins{GardenOrFood: true}},
		{"green bin, grey bin, brown bin", collection.Bins{Recycling: true, GeneralWaste: true, GardenOrFood: true}},
		{"textiles and batteries", collection.Bins{}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			first := Classify(tt.text)
			if got := collection.BinsFromSet(first); got != tt.want {
				t.Errorf("Classify() = %+v, want %+v", got, tt.want)
			}
			second := Classify(tt.text)
			if collection.BinsFromSet(second) != collection.BinsFromSet(first) {
				t.Errorf("Classify() not idempotent: %+v then %+v", first, second)
			}
		})
	}
}

func TestParseAllMergesSameDate(t *testing.T) {
	p := newTestParser(datewindow.New(2025, 1, 10))

	events := p.ParseAll([]collection.RawRecord{
		{DateText: "14 March", BinsText: "green bin"},
		{DateText: "14 March", BinsText: "grey bin"},
	})

	if len(events) != 1 {
		t.Fatalf("ParseAll() returned %d events, want 1", len(events))
	}
	got := collection.BinsFromSet(events[0].Bins)
	want := collection.Bins{Recycling: true, GeneralWaste: true}
	if got != want {
		t.Errorf("merged bins = %+v, want %+v", got, want)
	}
	if events[0].Date != datewindow.New(2025, 3, 14) {
		t.Errorf("merged date = %v, want 2025-03-14", events[0].Date)
	}
	if events[0].RawDescription != "green bin, grey bin" {
		t.Errorf("merged description = %q", events[0].RawDescription)
	}
}

func TestParseAllSortsAndDrops(t *testing.T) {
	p := newTestParser(datewindow.New(2025, 1, 10))

	events := p.ParseAll([]collection.RawRecord{
		{DateText: "20250321", BinsText: "Brown Bin"},
		{DateText: "not a date", BinsText: "Green Bin"},
		{DateText: "20250314", BinsText: "Green Bin"},
		{DateText: "20250117", BinsText: "Mystery"},
	})

	if len(events) != 3 {
		t.Fatalf("ParseAll() returned %d events, want 3", len(events))
	}
	wantDates := []datewindow.Date{
		datewindow.New(2025, 1, 17),
		datewindow.New(2025, 3, 14),
		datewindow.New(2025, 3, 21),
	}
	for i, want := range wantDates {
		if events[i].Date != want {
			t.Errorf("events[%d].Date = %v, want %v", i, events[i].Date, want)
		}
	}
	if !events[0].Bins.Empty() {
		t.Errorf("unrecognized text should give empty bins, got %v", events[0].Bins)
	}
	if events[0].RawDescription != "Mystery" {
		t.Errorf("raw description should be retained, got %q", events[0].RawDescription)
	}
}

func TestParseAllEmpty(t *testing.T) {
	p := newTestParser(datewindow.New(2025, 1, 10))
	if events := p.ParseAll(nil); len(events) != 0 {
		t.Errorf("ParseAll(nil) = %v, want empty", events)
	}
}

func TestParseAllAtUsesReferenceDay(t *testing.T) {
	p := newTestParser(datewindow.New(2025, 1, 10))
	records := []collection.RawRecord{{DateText: "23 Dec", BinsText: "green bin"}}

	if got := p.ParseAll(records); len(got) != 1 || got[0].Date != datewindow.New(2025, 12, 23) {
		t.Errorf("ParseAll() = %v, want 2025-12-23", got)
	}
	if got := p.ParseAllAt(records, datewindow.New(2024, 12, 1)); len(got) != 1 || got[0].Date != datewindow.New(2024, 12, 23) {
		t.Errorf("ParseAllAt() = %v, want 2024-12-23", got)
	}
}
