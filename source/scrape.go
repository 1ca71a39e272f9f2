package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bin-kiosk/pkg/collection"
)

// DefaultScrapeURL is the Binzone form used by South Oxfordshire and Vale of White Horse.
const DefaultScrapeURL = "https://eform.southoxon.gov.uk/ebase/BINZONE_DESKTOP.eb?SOVA_TAG=%s&ebd=0"

const (
	sessionCookie  = "SVBINZONE"
	forbiddenMark  = "403 Forbidden"
	recordSelector = ".binextra"
)

var (
	noticeRegex = regexp.MustCompile(`(?i)your usual collection day is different this week\s*`)
	spaceRegex  = regexp.MustCompile(`\s+`)
)

// ScrapeAdapter reads collection records from the council's HTML form page.
type ScrapeAdapter struct {
	client      *http.Client
	logger      *slog.Logger
	council     string
	uprn        string
	urlTemplate string
}

// NewScrape creates an HTML scrape adapter. urlTemplate must contain one %s for
// the council code; empty means DefaultScrapeURL.
func NewScrape(client *http.Client, logger *slog.Logger, council, uprn, urlTemplate string) *ScrapeAdapter {
	if urlTemplate == "" {
		urlTemplate = DefaultScrapeURL
	}
	return &ScrapeAdapter{
		client:      client,
		logger:      logger,
		council:     council,
		uprn:        uprn,
		urlTemplate: urlTemplate,
	}
}

// Identity names the property for cache keys.
func (a *ScrapeAdapter) Identity() string {
	return "scrape:" + a.council + ":" + a.uprn
}

// Describe returns a short label for the source.
func (a *ScrapeAdapter) Describe() string {
	return "council website"
}

// URL returns the form URL for the configured council.
func (a *ScrapeAdapter) URL() string {
	return fmt.Sprintf(a.urlTemplate, url.QueryEscape(a.council))
}

// Cookie returns the session cookie that scopes the page to one property.
func (a *ScrapeAdapter) Cookie() *http.Cookie {
	return &http.Cookie{
		Name:  sessionCookie,
		Value: url.QueryEscape(a.council + ":UPRN@" + a.uprn),
	}
}

// Fetch downloads the form page and extracts collection records.
func (a *ScrapeAdapter) Fetch(ctx context.Context) ([]collection.RawRecord, error) {
	pageURL := a.URL()
	req, err := newRequest(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	// The form rejects default client identifiers; send Chrome-like headers.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	// Note: Don't set Accept-Encoding - let Go's http.Client handle compression automatically
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.AddCookie(a.Cookie())

	body, err := get(a.client, a.logger, req)
	if err != nil {
		return nil, err
	}

	// The upstream sometimes serves its access-denied page with a 200 status.
	if bytes.Contains(body, []byte(forbiddenMark)) {
		a.logger.Warn("Access denied page returned", "url", req.URL.Redacted())
		return nil, &collection.FetchError{URL: req.URL.Redacted(), StatusCode: http.StatusOK, Reason: "access denied page"}
	}

	records, err := ExtractHTMLRecords(bytes.NewReader(body))
	if err != nil {
		return nil, &collection.FetchError{URL: req.URL.Redacted(), StatusCode: http.StatusOK, Reason: "parse HTML", Err: err}
	}

	a.logger.Info("Council page parsed", "records", len(records))
	if len(records) == 0 {
		return nil, &collection.FetchError{URL: req.URL.Redacted(), StatusCode: http.StatusOK, Reason: "no collection records found"}
	}
	return records, nil
}

// ExtractHTMLRecords reads every element carrying the binextra class and splits
// its text on the first "-" into date and bins. Fragments without a separator are skipped.
func ExtractHTMLRecords(r io.Reader) ([]collection.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var records []collection.RawRecord
	doc.Find(recordSelector).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(spaceRegex.ReplaceAllString(s.Text(), " "))

		dateText, binsText, ok := strings.Cut(text, "-")
		if !ok {
			return
		}
		dateText = strings.TrimSpace(noticeRegex.ReplaceAllString(dateText, ""))
		binsText = strings.TrimSpace(binsText)
		if dateText == "" || binsText == "" {
			return
		}

		records = append(records, collection.RawRecord{
			DateText: dateText,
			BinsText: binsText,
		})
	})

	return records, nil
}
