package collection

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigMissing means no upstream source is configured.
	ErrConfigMissing = errors.New("no bin collection source configured")

	// ErrNoUpcoming means every known collection date is in the past.
	ErrNoUpcoming = errors.New("no upcoming collections found")

	// ErrNoData means the fetch failed and no cached copy exists.
	ErrNoData = errors.New("unable to fetch bin collection data")

	// ErrNoEvents means a payload produced no usable collection events.
	ErrNoEvents = errors.New("no collection events available")
)

// FetchError describes a failed upstream fetch (network, timeout, bad status, access-denied page).
type FetchError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: HTTP %d: %s", e.URL, e.StatusCode, e.Reason)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError checks if an error is an upstream fetch failure.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
