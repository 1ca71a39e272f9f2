package collection

import "bin-kiosk/datewindow"

// Bins is the JSON shape of a BinSet.
type Bins struct {
	Recycling    bool `json:"recycling"`
	GeneralWaste bool `json:"generalWaste"`
	GardenOrFood bool `json:"gardenOrFood"`
}

// BinsFromSet converts a BinSet to its JSON shape.
func BinsFromSet(s BinSet) Bins {
	return Bins{
		Recycling:    s.Has(Recycling),
		GeneralWaste: s.Has(GeneralWaste),
		GardenOrFood: s.Has(GardenOrFood),
	}
}

// Result is the answer to "when is the next collection?".
// Callers must render a result with Error set as unavailable, never as "no bins due".
type Result struct {
	NextDate    *datewindow.Date `json:"-"`
	Date        string           `json:"date"`           // Display form, e.g. "Fri 23 Jan"
	Bins        Bins             `json:"bins"`           // Due categories
	Next        *string          `json:"nextCollection"` // YYYYMMDD or null
	IsToday     bool             `json:"isToday"`
	DaysUntil   *int             `json:"daysUntil"`
	Description string           `json:"description,omitempty"` // Raw upstream label
	Source      string           `json:"source,omitempty"`
	Stale       bool             `json:"stale,omitempty"`     // Served from an expired cache entry
	Estimated   bool             `json:"estimated,omitempty"` // Past fallback or week-parity guess
	Warning     string           `json:"warning,omitempty"`
	Error       string           `json:"error,omitempty"`

	Err error `json:"-"`
}

// ErrorResult builds a result carrying only an error.
func ErrorResult(err error) Result {
	return Result{Err: err, Error: err.Error()}
}

// Available reports whether the result carries a date.
func (r Result) Available() bool {
	return r.NextDate != nil && r.Error == ""
}
