package models

import "time"

// Status is the marketplace state of a listing.
type Status string

const (
	StatusActive  Status = "active"
	StatusSold    Status = "sold"
	StatusRemoved Status = "removed"
)

// RawListing is a listing record exactly as a crawl source observed it.
// All values are source text; normalization happens in the fingerprint package.
type RawListing struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	URL            string            `json:"url"`
	AskingPrice    string            `json:"asking_price"`
	MonthlyRevenue string            `json:"monthly_revenue"`
	MonthlyProfit  string            `json:"monthly_profit"`
	Category       string            `json:"category"`
	Status         string            `json:"status"`
	Location       string            `json:"location"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// Listing is a normalized listing as stored in the baseline.
type Listing struct {
	ID             string            `json:"id"`
	Fingerprint    string            `json:"fingerprint"`
	Title          string            `json:"title"`
	URL            string            `json:"url"`
	Location       string            `json:"location"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	AskingPrice    *float64          `json:"asking_price"`
	MonthlyRevenue *float64          `json:"monthly_revenue"`
	MonthlyProfit  *float64          `json:"monthly_profit"`
	Category       *string           `json:"category"`
	Status         Status            `json:"status"`

	// Target and Page record where the listing was last observed.
	Target string `json:"target"`
	Page   int    `json:"page"`

	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	LastModified time.Time `json:"last_modified"`
}

// BaselineSnapshot is the last committed listing set.
type BaselineSnapshot struct {
	Version  int64              `json:"version"`
	AsOf     time.Time          `json:"as_of"`
	Listings map[string]Listing `json:"listings"`
}

// Scope is the part of a target a scan actually covered.
type Scope struct {
	Target string `json:"target"`
	Pages  []int  `json:"pages"`
}

// Covers reports whether a listing last seen at (target, page) lies inside the scope.
func (s Scope) Covers(target string, page int) bool {
	if target != s.Target {
		return false
	}
	for _, p := range s.Pages {
		if p == page {
			return true
		}
	}
	return false
}
