package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bin-kiosk/datewindow"
	"bin-kiosk/pkg/collection"
	"bin-kiosk/storage"
)

type fakeCollections struct {
	result      collection.Result
	events      []collection.Event
	stale       bool
	upcomingErr error
	refreshErr  error
	refreshes   int
}

func (f *fakeCollections) Next(context.Context) collection.Result { return f.result }

func (f *fakeCollections) Upcoming(context.Context) ([]collection.Event, bool, error) {
	return f.events, f.stale, f.upcomingErr
}

func (f *fakeCollections) Refresh(context.Context) error {
	f.refreshes++
	return f.refreshErr
}

type fakeCache struct {
	infos []storage.Info
	err   error
}

func (f *fakeCache) List(context.Context, time.Duration) ([]storage.Info, error) {
	return f.infos, f.err
}

var testNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(c *fakeCollections, cache *fakeCache) http.Handler {
	if cache == nil {
		cache = &fakeCache{}
	}
	return New(&Config{
		Collections: c,
		Cache:       cache,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return testNow },
		CacheWindow: 24 * time.Hour,
		PollLimit:   2,
	}).Handler()
}

func okResult() collection.Result {
	date := datewindow.New(2025, 1, 23)
	next := date.Machine()
	days := 13
	return collection.Result{
		NextDate:  &date,
		Date:      date.Display(),
		Bins:      collection.Bins{Recycling: true},
		Next:      &next,
		DaysUntil: &days,
		Source:    "council web form",
	}
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleBins(t *testing.T) {
	h := newTestServer(&fakeCollections{result: okResult()}, nil)

	rec := do(h, http.MethodGet, "/api/bins")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Thu 23 Jan", body["date"])
	assert.Equal(t, "20250123", body["nextCollection"])
	assert.EqualValues(t, 13, body["daysUntil"])
	assert.Equal(t, false, body["isToday"])
	assert.Equal(t, map[string]any{"recycling": true, "generalWaste": false, "gardenOrFood": false}, body["bins"])
	assert.NotContains(t, body, "error")
	assert.NotContains(t, body, "stale")
}

func TestHandleBinsError(t *testing.T) {
	h := newTestServer(&fakeCollections{result: collection.ErrorResult(collection.ErrNoData)}, nil)

	rec := do(h, http.MethodGet, "/api/bins")
	require.Equal(t, http.StatusOK, rec.Code, "errors are reported in the body")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, collection.ErrNoData.Error(), body["error"])
	assert.Nil(t, body["nextCollection"])
	assert.Nil(t, body["daysUntil"])
	assert.Equal(t, "", body["date"])
}

func TestHandleCalendar(t *testing.T) {
	bins := collection.BinSet{}
	bins.Add(collection.Recycling)
	bins.Add(collection.GeneralWaste)
	c := &fakeCollections{events: []collection.Event{
		{Date: datewindow.New(2025, 3, 14), Bins: bins, RawDescription: "Green bin, Grey bin"},
		{Date: datewindow.New(2025, 3, 21), Bins: collection.BinSet{}},
	}}
	h := newTestServer(c, nil)

	rec := do(h, http.MethodGet, "/api/bins.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))

	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "PRODID:"+prodID)
	assert.Contains(t, body, "DTSTART;VALUE=DATE:20250314")
	assert.Contains(t, body, "DTSTART;VALUE=DATE:20250321")
	assert.Contains(t, body, "UID:20250314@bin-kiosk")
	assert.Contains(t, body, "SUMMARY:Recycling + General waste collection")
	assert.Contains(t, body, "SUMMARY:Bin collection")
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
	assert.Empty(t, rec.Header().Get("Warning"))
}

func TestHandleCalendarEmptyAndStale(t *testing.T) {
	h := newTestServer(&fakeCollections{stale: true}, nil)

	rec := do(h, http.MethodGet, "/api/bins.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
	assert.NotContains(t, rec.Body.String(), "BEGIN:VEVENT")
	assert.NotEmpty(t, rec.Header().Get("Warning"))
}

func TestHandleCalendarUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"config missing", collection.ErrConfigMissing, collection.ErrConfigMissing.Error()},
		{"no data", errors.Join(collection.ErrNoData, errors.New("upstream 500")), collection.ErrNoData.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeCollections{upcomingErr: tt.err}, nil)
			rec := do(h, http.MethodGet, "/api/bins.ics")
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.NotContains(t, rec.Body.String(), "upstream 500")
		})
	}
}

func TestHandleCache(t *testing.T) {
	stored := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	cache := &fakeCache{infos: []storage.Info{{Key: "bins-0011223344556677.json", StoredAt: stored, Records: 4, Fresh: true}}}
	h := newTestServer(&fakeCollections{}, cache)

	rec := do(h, http.MethodGet, "/api/bins/cache")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		WindowSeconds int64          `json:"windowSeconds"`
		Entries       []storage.Info `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 86400, body.WindowSeconds)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, 4, body.Entries[0].Records)
	assert.True(t, body.Entries[0].Fresh)

	h = newTestServer(&fakeCollections{}, &fakeCache{err: errors.New("bucket gone")})
	assert.Equal(t, http.StatusInternalServerError, do(h, http.MethodGet, "/api/bins/cache").Code)
}

func TestHandlePoll(t *testing.T) {
	c := &fakeCollections{}
	h := newTestServer(c, nil)

	rec := do(h, http.MethodPost, "/pollz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"completed"}`, rec.Body.String())
	assert.Equal(t, 1, c.refreshes)

	c.refreshErr = errors.New("upstream down")
	assert.Equal(t, http.StatusInternalServerError, do(h, http.MethodPost, "/pollz").Code)

	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/pollz").Code)
	assert.Equal(t, 2, c.refreshes)
}

func TestRoot(t *testing.T) {
	h := newTestServer(&fakeCollections{result: okResult()}, nil)

	rec := do(h, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Thu 23 Jan")
	assert.Contains(t, rec.Body.String(), "Recycling")
	assert.Contains(t, rec.Body.String(), "in 13 days")

	h = newTestServer(&fakeCollections{result: collection.ErrorResult(collection.ErrNoData)}, nil)
	rec = do(h, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
	assert.NotContains(t, rec.Body.String(), "General waste")

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/nope").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(&fakeCollections{}, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/bins"},
		{http.MethodPost, "/api/bins.ics"},
		{http.MethodDelete, "/api/bins/cache"},
		{http.MethodPost, "/health"},
		{http.MethodGet, "/pollz"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, http.StatusMethodNotAllowed, do(h, tt.method, tt.path).Code)
		})
	}
}

func TestHealth(t *testing.T) {
	rec := do(newTestServer(&fakeCollections{}, nil), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestRateLimiter(t *testing.T) {
	now := testNow
	rl := newRateLimiter(2, time.Hour, func() time.Time { return now })

	assert.True(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("1.2.3.4"))
	assert.False(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("5.6.7.8"), "limits are per client")

	now = now.Add(61 * time.Minute)
	assert.True(t, rl.allow("1.2.3.4"))
	assert.Len(t, rl.clients, 1, "idle clients are forgotten")
	assert.NotContains(t, rl.clients, "5.6.7.8")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"forwarded", "203.0.113.9, 10.0.0.1", "10.0.0.2:1234", "203.0.113.9"},
		{"remote addr", "", "192.0.2.1:5555", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
