// Package fingerprint derives listing identity and content digests from raw crawl records.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
)

// ErrMalformedRecord is returned for records that cannot be turned into a listing.
var ErrMalformedRecord = errors.New("malformed listing record")

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	moneyRegex      = regexp.MustCompile(`^(-?[0-9]*\.?[0-9]+)([kmb]?)$`)
)

// Listing normalizes a raw record observed on page of target at seenAt.
// The returned listing carries its fingerprint; timestamps are all set to seenAt.
func Listing(raw models.RawListing, target string, page int, seenAt time.Time) (models.Listing, error) {
	const opn = "fingerprint.Listing"

	id := ExtractID(raw)
	if id == "" {
		return models.Listing{}, fmt.Errorf("%s: no stable identifier (url %q): %w", opn, raw.URL, ErrMalformedRecord)
	}

	price, err := ParseMoney(raw.AskingPrice)
	if err != nil {
		return models.Listing{}, fmt.Errorf("%s: listing %s asking price: %w", opn, id, err)
	}
	revenue, err := ParseMoney(raw.MonthlyRevenue)
	if err != nil {
		return models.Listing{}, fmt.Errorf("%s: listing %s monthly revenue: %w", opn, id, err)
	}
	profit, err := ParseMoney(raw.MonthlyProfit)
	if err != nil {
		return models.Listing{}, fmt.Errorf("%s: listing %s monthly profit: %w", opn, id, err)
	}

	var category *string
	if c := normalizeText(raw.Category); c != "" {
		category = &c
	}

	// Raw keys are visited in sorted order: when two of them normalize to the same
	// key, the value of the last one wins on every observation.
	rawKeys := make([]string, 0, len(raw.Attributes))
	for k := range raw.Attributes {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	var attrs map[string]string
	for _, k := range rawKeys {
		key := strings.ToLower(normalizeText(k))
		if key == "" {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]string, len(raw.Attributes))
		}
		attrs[key] = normalizeText(raw.Attributes[k])
	}

	listing := models.Listing{
		ID:             id,
		Title:          normalizeText(raw.Title),
		URL:            strings.TrimSpace(raw.URL),
		Location:       normalizeText(raw.Location),
		Attributes:     attrs,
		AskingPrice:    price,
		MonthlyRevenue: revenue,
		MonthlyProfit:  profit,
		Category:       category,
		Status:         ParseStatus(raw.Status),
		Target:         target,
		Page:           page,
		FirstSeen:      seenAt,
		LastSeen:       seenAt,
		LastModified:   seenAt,
	}
	listing.Fingerprint = Of(listing)

	return listing, nil
}

// ExtractID returns the stable identifier of a raw record: the explicit ID when present,
// otherwise the last path segment of its URL. Empty when neither is usable.
func ExtractID(raw models.RawListing) string {
	if id := strings.TrimSpace(raw.ID); id != "" {
		return id
	}

	u, err := url.Parse(strings.TrimSpace(raw.URL))
	if err != nil || u.Path == "" {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}

// ParseMoney converts source text like "$1,250,000", "1.2M" or "45k" to a number.
// Blank text is nil; text that is not a number fails with ErrMalformedRecord.
func ParseMoney(s string) (*float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "-" || s == "n/a" {
		return nil, nil //nolint:nilnil // absent value is not an error
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "", "usd", "").Replace(s)
	s = strings.TrimSuffix(s, "/mo")

	m := moneyRegex.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("unparseable amount %q: %w", s, ErrMalformedRecord)
	}

	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, fmt.Errorf("unparseable amount %q: %w", s, ErrMalformedRecord)
	}

	switch m[2] {
	case "k":
		v *= 1e3
	case "m":
		v *= 1e6
	case "b":
		v *= 1e9
	}

	return &v, nil
}

// ParseStatus maps source status text to a listing status. Unknown text means active.
func ParseStatus(s string) models.Status {
	switch strings.ToLower(normalizeText(s)) {
	case "sold", "under offer", "under contract", "pending":
		return models.StatusSold
	case "removed", "delisted", "withdrawn":
		return models.StatusRemoved
	default:
		return models.StatusActive
	}
}

// Of returns the content digest over every tracked field of l.
func Of(l models.Listing) string {
	return digest(l, true)
}

// WithoutPrice returns the digest over every tracked field except the asking price.
// Two listings with equal WithoutPrice digests differ at most in price.
func WithoutPrice(l models.Listing) string {
	return digest(l, false)
}

func digest(l models.Listing, withPrice bool) string {
	var b strings.Builder

	// Length-prefixed fields: no separator inside a value can shift another field.
	writeField(&b, l.ID)
	writeField(&b, l.Title)
	writeField(&b, l.URL)
	writeField(&b, l.Location)
	writeField(&b, optionalString(l.Category))
	writeField(&b, string(l.Status))
	if withPrice {
		writeField(&b, formatAmount(l.AskingPrice))
	}
	writeField(&b, formatAmount(l.MonthlyRevenue))
	writeField(&b, formatAmount(l.MonthlyProfit))

	keys := make([]string, 0, len(l.Attributes))
	for k := range l.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeField(&b, strconv.Itoa(len(keys)))
	for _, k := range keys {
		writeField(&b, k)
		writeField(&b, l.Attributes[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeField(b *strings.Builder, v string) {
	b.WriteString(strconv.Itoa(len(v)))
	b.WriteByte(':')
	b.WriteString(v)
}

func optionalString(s *string) string {
	if s == nil {
		return "\x00"
	}
	return *s
}

func formatAmount(v *float64) string {
	if v == nil {
		return "\x00"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func normalizeText(s string) string {
	return strings.TrimSpace(multiSpaceRegex.ReplaceAllString(s, " "))
}
