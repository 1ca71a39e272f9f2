package source

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"bin-kiosk/pkg/collection"
)

// DefaultCalendarURL is the public iCal export of a Google calendar.
const DefaultCalendarURL = "https://calendar.google.com/calendar/ical/%s/public/basic.ics"

const calendarUserAgent = "Kiosk Display/1.0"

var wholeDayRegex = regexp.MustCompile(`^\d{8}$`)

// CalendarAdapter reads whole-day events from a calendar export feed.
type CalendarAdapter struct {
	client      *http.Client
	logger      *slog.Logger
	calendarID  string
	urlTemplate string
}

// NewCalendar creates a calendar feed adapter. urlTemplate must contain one %s
// for the calendar identifier; empty means DefaultCalendarURL.
func NewCalendar(client *http.Client, logger *slog.Logger, calendarID, urlTemplate string) *CalendarAdapter {
	if urlTemplate == "" {
		urlTemplate = DefaultCalendarURL
	}
	return &CalendarAdapter{
		client:      client,
		logger:      logger,
		calendarID:  calendarID,
		urlTemplate: urlTemplate,
	}
}

// Identity names the calendar for cache keys.
func (a *CalendarAdapter) Identity() string {
	return "calendar:" + a.calendarID
}

// Describe returns a short label for the source.
func (a *CalendarAdapter) Describe() string {
	return "calendar feed"
}

// URL returns the export URL for the configured calendar.
func (a *CalendarAdapter) URL() string {
	return fmt.Sprintf(a.urlTemplate, url.PathEscape(a.calendarID))
}

// Fetch downloads the feed and extracts collection records.
func (a *CalendarAdapter) Fetch(ctx context.Context) ([]collection.RawRecord, error) {
	feedURL := a.URL()
	req, err := newRequest(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", calendarUserAgent)
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	body, err := get(a.client, a.logger, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, &collection.FetchError{URL: req.URL.Redacted(), StatusCode: http.StatusOK, Reason: "empty calendar body"}
	}

	records := ExtractCalendarRecords(string(body))
	a.logger.Info("Calendar feed parsed", "records", len(records))
	if len(records) == 0 {
		return nil, &collection.FetchError{URL: req.URL.Redacted(), StatusCode: http.StatusOK, Reason: "no whole-day events found"}
	}
	return records, nil
}

// ExtractCalendarRecords scans feed text for events with a whole-day start date
// and a summary. Timed events (reminders) are skipped.
func ExtractCalendarRecords(feed string) []collection.RawRecord {
	feed = strings.ReplaceAll(feed, "\r\n", "\n")

	var (
		records  []collection.RawRecord
		inEvent  bool
		depth    int // Nested components (VALARM) inside the current event
		date     string
		summary  strings.Builder
		lastProp string
	)

	sc := bufio.NewScanner(strings.NewReader(feed))
	sc.Buffer(make([]byte, 0, 64*1024), maxBodySize)
	for sc.Scan() {
		line := sc.Text()

		// Folded continuation of the previous property.
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if inEvent && depth == 0 && lastProp == "SUMMARY" {
				summary.WriteString(line[1:])
			}
			continue
		}

		marker := strings.TrimSpace(line)
		name, params, value := splitProp(line)

		switch {
		case marker == "BEGIN:VEVENT":
			inEvent = true
			depth = 0
			date = ""
			summary.Reset()
		case inEvent && strings.HasPrefix(marker, "BEGIN:"):
			depth++
		case inEvent && depth > 0 && strings.HasPrefix(marker, "END:"):
			depth--
		case marker == "END:VEVENT":
			if inEvent {
				text := unescapeText(strings.TrimSpace(summary.String()))
				if date != "" && text != "" {
					records = append(records, collection.RawRecord{DateText: date, BinsText: text})
				}
			}
			inEvent = false
			depth = 0
		case !inEvent || depth > 0:
		case name == "DTSTART":
			value = strings.TrimSpace(value)
			if hasParam(params, "VALUE", "DATE") && wholeDayRegex.MatchString(value) {
				date = value
			}
		case name == "SUMMARY":
			summary.Reset()
			summary.WriteString(value)
		}
		lastProp = name
	}

	return records
}

// splitProp splits "NAME;P1=V1;P2=V2:value" into its parts.
func splitProp(line string) (name string, params []string, value string) {
	head, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", nil, ""
	}
	parts := strings.Split(head, ";")
	return strings.ToUpper(parts[0]), parts[1:], value
}

func hasParam(params []string, key, want string) bool {
	for _, p := range params {
		k, v, ok := strings.Cut(p, "=")
		if ok && strings.EqualFold(k, key) && strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

var textUnescaper = strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, " ", `\N`, " ", `\\`, `\`)

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}
