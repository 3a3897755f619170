package models

import "time"

// ScanStatus is the lifecycle state of a scan run.
type ScanStatus string

const (
	ScanRunning   ScanStatus = "running"
	ScanSucceeded ScanStatus = "succeeded"
	ScanFailed    ScanStatus = "failed"
)

// ScanRun - the record of one scan execution.
type ScanRun struct {
	ID               string     `json:"scan_id"`
	Target           string     `json:"target"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	Status           ScanStatus `json:"status"`
	PagesRequested   int        `json:"pages_requested"`
	PagesFetched     int        `json:"pages_fetched"`
	ListingsObserved int        `json:"listings_observed"`
	ParseErrors      int        `json:"parse_errors"`
	FetchErrors      int        `json:"fetch_errors"`
	ChangeCount      int        `json:"change_count"`
	Error            *string    `json:"error"`
}
