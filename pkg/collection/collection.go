// Package collection contains the core domain types for the bin-collection kiosk service.
package collection

import (
	"sort"
	"strings"

	"bin-kiosk/datewindow"
)

// Category is a kind of household bin.
type Category string

// Bin categories. Source councils label these green/grey/brown.
const (
	Recycling    Category = "recycling"
	GeneralWaste Category = "generalWaste"
	GardenOrFood Category = "gardenOrFood"
)

// Categories lists every category in display order.
var Categories = []Category{Recycling, GeneralWaste, GardenOrFood}

// RawRecord is one normalized upstream entry before parsing.
// This is the shape persisted in the cache.
type RawRecord struct {
	DateText string `json:"date"`
	BinsText string `json:"bins"`
}

// BinSet is the set of categories due on one date.
type BinSet map[Category]bool

// Add marks c as due.
func (b BinSet) Add(c Category) {
	b[c] = true
}

// Has reports whether c is due.
func (b BinSet) Has(c Category) bool {
	return b[c]
}

// Union adds every category in other to b.
func (b BinSet) Union(other BinSet) {
	for c, due := range other {
		if due {
			b[c] = true
		}
	}
}

// Empty reports whether no category is due.
func (b BinSet) Empty() bool {
	for _, due := range b {
		if due {
			return false
		}
	}
	return true
}

// Sorted returns the due categories in display order.
func (b BinSet) Sorted() []Category {
	var out []Category
	for _, c := range Categories {
		if b[c] {
			out = append(out, c)
		}
	}
	return out
}

// Event is a resolved collection day.
type Event struct {
	Date           datewindow.Date
	Bins           BinSet
	RawDescription string
}

// Merge unions other into e. Descriptions are joined so nothing shown to the user is lost.
func (e *Event) Merge(other Event) {
	if e.Bins == nil {
		e.Bins = BinSet{}
	}
	e.Bins.Union(other.Bins)
	switch {
	case other.RawDescription == "" || strings.Contains(e.RawDescription, other.RawDescription):
	case e.RawDescription == "":
		e.RawDescription = other.RawDescription
	default:
		e.RawDescription += ", " + other.RawDescription
	}
}

// SortEvents orders events by date ascending.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
}
