package server

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"bin-kiosk/pkg/collection"
)

const (
	prodID   = "-//Bin Kiosk//Collections//EN"
	calName  = "Bin collections"
	uidHost  = "bin-kiosk"
	emptyCal = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + prodID + "\r\nEND:VCALENDAR\r\n"
)

var categoryLabels = map[collection.Category]string{
	collection.Recycling:    "Recycling",
	collection.GeneralWaste: "General waste",
	collection.GardenOrFood: "Garden/food",
}

// encodeCalendar renders events as whole-day VEVENTs.
func encodeCalendar(events []collection.Event, now time.Time) ([]byte, error) {
	// The encoder rejects a calendar without components.
	if len(events) == 0 {
		return []byte(emptyCal), nil
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Props.SetText("X-WR-CALNAME", calName)

	stamp := ical.NewProp(ical.PropDateTimeStamp)
	stamp.SetDateTime(now.UTC())

	for _, ev := range events {
		e := ical.NewEvent()
		e.Props.SetText(ical.PropUID, fmt.Sprintf("%s@%s", ev.Date.Machine(), uidHost))
		e.Props.Set(stamp)

		start := ical.NewProp(ical.PropDateTimeStart)
		start.SetDate(ev.Date.Time(time.UTC))
		e.Props.Set(start)

		e.Props.SetText(ical.PropSummary, summary(ev))
		if ev.RawDescription != "" {
			e.Props.SetText(ical.PropDescription, ev.RawDescription)
		}
		cal.Children = append(cal.Children, e.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func summary(ev collection.Event) string {
	var labels []string
	for _, c := range ev.Bins.Sorted() {
		labels = append(labels, categoryLabels[c])
	}
	if len(labels) == 0 {
		return "Bin collection"
	}
	return strings.Join(labels, " + ") + " collection"
}
