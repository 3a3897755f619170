package models

import "time"

// ChangeType is the kind of difference found between baseline and crawl.
type ChangeType string

const (
	ChangeNew          ChangeType = "new"
	ChangeRemoved      ChangeType = "removed"
	ChangeModified     ChangeType = "modified"
	ChangePriceChanged ChangeType = "priceChanged"
)

// Category is the notification priority assigned by the scorer.
type Category string

const (
	CategoryLow      Category = "low"
	CategoryMedium   Category = "medium"
	CategoryHigh     Category = "high"
	CategoryCritical Category = "critical"
)

// Rank orders categories from low (0) to critical (3). Unknown values rank below low.
func (c Category) Rank() int {
	switch c {
	case CategoryLow:
		return 0
	case CategoryMedium:
		return 1
	case CategoryHigh:
		return 2
	case CategoryCritical:
		return 3
	default:
		return -1
	}
}

// ChangeRecord - a single scored change produced by a scan. Never mutated once logged.
type ChangeRecord struct {
	Seq        int64      `json:"seq,omitempty"`
	ScanID     string     `json:"scan_id"`
	ListingID  string     `json:"listing_id"`
	ChangeType ChangeType `json:"change_type"`
	Before     *Listing   `json:"before"`
	After      *Listing   `json:"after"`
	Score      float64    `json:"score"`
	Category   Category   `json:"category"`
	DetectedAt time.Time  `json:"detected_at"`
}
