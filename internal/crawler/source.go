// Package crawler fetches listing pages from the marketplace.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/PuerkitoBio/goquery"
)

// Source returns the raw listings shown on one page of a target.
type Source interface {
	FetchPage(ctx context.Context, target string, page int) ([]models.RawListing, error)
}

// StatusError is returned for any non-200 response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status code error: [%d] %s", e.StatusCode, e.URL)
}

// Retryable reports whether the response is worth another attempt: 429 and 5xx.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable classifies fetch errors for the retry loop. Cancellation is final,
// status errors decide for themselves and transport errors are retried.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; ListingMonitor/1.0)"
)

// HTMLSource scrapes listing cards out of server rendered marketplace pages.
type HTMLSource struct {
	log       *slog.Logger
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewHTMLSource creates a source for pages under baseURL. A nil client gets a
// client with a 30 second timeout.
func NewHTMLSource(log *slog.Logger, baseURL, userAgent string, client *http.Client) *HTMLSource {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTMLSource{log: log, client: client, baseURL: baseURL, userAgent: userAgent}
}

// FetchPage downloads and parses one page.
func (s *HTMLSource) FetchPage(ctx context.Context, target string, page int) ([]models.RawListing, error) {
	const opn = "crawler.FetchPage"

	pageURL, err := s.PageURL(target, page)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	resp, err := s.get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}
	defer resp.Body.Close()

	listings, err := s.parse(ctx, resp.Body, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	return listings, nil
}

// PageURL builds the address of a page: the target is a path below the base URL
// and the page number goes into the "page" query parameter.
func (s *HTMLSource) PageURL(target string, page int) (*url.URL, error) {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL %s: %w", s.baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", s.baseURL)
	}

	u := base
	if t := strings.Trim(target, "/"); t != "" {
		u = base.JoinPath(t)
	}

	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	return u, nil
}

func (s *HTMLSource) get(ctx context.Context, pageURL *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request %s: %w", pageURL, err)
	}

	req.Header.Add("User-Agent", s.userAgent)

	s.log.DebugContext(ctx, "Send request", "method", req.Method, "URL", req.URL)

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s: %w", pageURL, err)
	}

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
		res.Body.Close()
		return nil, &StatusError{StatusCode: res.StatusCode, URL: pageURL.String()}
	}

	return res, nil
}

func (s *HTMLSource) parse(ctx context.Context, body io.Reader, pageURL *url.URL) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("data cannot be parsed as HTML: %w", err)
	}

	var listings []models.RawListing

	doc.Find("[data-listing-id]").Each(func(idx int, card *goquery.Selection) {
		id, _ := card.Attr("data-listing-id")

		raw := models.RawListing{
			ID:             strings.TrimSpace(id),
			Title:          text(card, ".title"),
			URL:            link(card, pageURL),
			AskingPrice:    text(card, ".price"),
			MonthlyRevenue: text(card, ".revenue"),
			MonthlyProfit:  text(card, ".profit"),
			Category:       text(card, ".category"),
			Status:         text(card, ".status"),
			Location:       text(card, ".location"),
			Attributes:     attributes(card),
		}

		if raw.ID == "" && raw.URL == "" {
			s.log.WarnContext(ctx, "listing card has neither id nor link", "index", idx)
		}

		s.log.DebugContext(ctx, "Parsed listing", "id", raw.ID, "title", raw.Title, "price", raw.AskingPrice)
		listings = append(listings, raw)
	})

	return listings, nil
}

func text(card *goquery.Selection, selector string) string {
	return strings.TrimSpace(card.Find(selector).First().Text())
}

// link resolves the first anchor of a card against the page it came from.
func link(card *goquery.Selection, pageURL *url.URL) string {
	href, ok := card.Find("a[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return strings.TrimSpace(href)
	}
	return pageURL.ResolveReference(ref).String()
}

func attributes(card *goquery.Selection) map[string]string {
	terms := card.Find("dl.attributes dt")
	if terms.Length() == 0 {
		return nil
	}

	attrs := make(map[string]string, terms.Length())
	terms.Each(func(_ int, dt *goquery.Selection) {
		key := strings.TrimSpace(dt.Text())
		if key == "" {
			return
		}
		attrs[key] = strings.TrimSpace(dt.NextFiltered("dd").Text())
	})
	return attrs
}
