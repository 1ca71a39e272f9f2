// Package parser turns raw upstream records into resolved collection events.
package parser

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bin-kiosk/datewindow"
	"bin-kiosk/pkg/collection"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	yearRegex    = regexp.MustCompile(`\b\d{4}\b`)
	machineRegex = regexp.MustCompile(`^\d{8}$|^\d{4}-\d{2}-\d{2}$`)
	ordinalRegex = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	spaceRegex   = regexp.MustCompile(`\s+`)
)

// Free-text layouts seen on council pages, all with a trailing year.
var freeTextLayouts = []string{
	"Monday 2 January 2006",
	"Mon 2 January 2006",
	"Monday 2 Jan 2006",
	"Mon 2 Jan 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Monday January 2 2006",
	"Mon Jan 2 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2/1/2006",
	"02/01/2006",
}

var keywords = map[collection.Category][]string{
	collection.Recycling:    {"recycling", "green"},
	collection.GeneralWaste: {"grey", "gray", "rubbish", "refuse"},
	collection.GardenOrFood: {"garden", "brown", "food", "organic"},
}

// Today supplies the current calendar day.
type Today interface {
	Today() datewindow.Date
}

// Parser resolves dates relative to "today" and classifies bin text.
type Parser struct {
	today  Today
	logger *slog.Logger
}

// New creates a new parser.
func New(today Today, logger *slog.Logger) *Parser {
	return &Parser{
		today:  today,
		logger: logger,
	}
}

// ParseAll resolves every record relative to today, drops the unparseable ones,
// merges same-date records and returns the events sorted by date. It never fails.
func (p *Parser) ParseAll(records []collection.RawRecord) []collection.Event {
	return p.ParseAllAt(records, p.today.Today())
}

// ParseAllAt is ParseAll with year inference relative to ref instead of today.
// Cached payloads pass the day they were fetched, so an expired "23 Jan" stays in
// the year it was published rather than rolling a year ahead.
func (p *Parser) ParseAllAt(records []collection.RawRecord, ref datewindow.Date) []collection.Event {
	today := ref

	byDate := make(map[datewindow.Date]*collection.Event)
	var order []datewindow.Date
	dropped := 0

	for _, rec := range records {
		date, ok := ResolveDate(rec.DateText, today)
		if !ok {
			dropped++
			p.logger.Debug("Dropping unparseable collection record", "date_text", rec.DateText, "bins_text", rec.BinsText)
			continue
		}

		ev := collection.Event{
			Date:           date,
			Bins:           Classify(rec.BinsText),
			RawDescription: strings.TrimSpace(rec.BinsText),
		}

		if existing, ok := byDate[date]; ok {
			existing.Merge(ev)
			continue
		}
		byDate[date] = &ev
		order = append(order, date)
	}

	events := make([]collection.Event, 0, len(order))
	for _, d := range order {
		events = append(events, *byDate[d])
	}
	collection.SortEvents(events)

	p.logger.Debug("Collection records parsed",
		"records", len(records),
		"events", len(events),
		"dropped", dropped)

	return events
}

// ResolveDate interprets dateText relative to today.
// Machine dates (YYYYMMDD) are taken as-is. Free-text dates without a year get
// today's year, rolling to the next year when that lands strictly before today.
func ResolveDate(dateText string, today datewindow.Date) (datewindow.Date, bool) {
	text := strings.TrimSpace(dateText)
	if text == "" {
		return datewindow.Date{}, false
	}

	if machineRegex.MatchString(text) {
		d, err := datewindow.ParseMachine(text)
		return d, err == nil
	}

	text = normalizeFreeText(text)
	hasYear := yearRegex.MatchString(text)
	if !hasYear {
		text += " " + strconv.Itoa(today.Year)
	}

	d, ok := parseFreeText(text)
	if !ok {
		return datewindow.Date{}, false
	}

	if !hasYear && d.Before(today) {
		// Roll over the year boundary, e.g. "2 January" read on 30 December.
		next := datewindow.New(d.Year+1, d.Month, d.Day)
		if next.Month != d.Month {
			// 29 February has no counterpart next year.
			return datewindow.Date{}, false
		}
		d = next
	}

	return d, true
}

func normalizeFreeText(s string) string {
	s = ordinalRegex.ReplaceAllString(s, "$1")
	s = strings.NewReplacer(",", " ", ".", " ").Replace(s)
	s = spaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func parseFreeText(s string) (datewindow.Date, bool) {
	// time.Parse is case-sensitive on month names; council pages are not.
	// Casers are stateful, so each call gets its own.
	s = cases.Title(language.BritishEnglish).String(strings.ToLower(s))
	for _, layout := range freeTextLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return datewindow.FromTime(t), true
		}
	}
	return datewindow.Date{}, false
}

// Classify returns the bin categories mentioned in text. Matching is
// case-insensitive on substrings and a text may match several categories or none.
func Classify(text string) collection.BinSet {
	lower := strings.ToLower(text)
	bins := collection.BinSet{}
	for _, c := range collection.Categories {
		for _, kw := range keywords[c] {
			if strings.Contains(lower, kw) {
				bins.Add(c)
				break
			}
		}
	}
	return bins
}
