// Package repository defines the persistence contract of the monitoring engine.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
)

var (
	// ErrVersionConflict is returned when the baseline changed since it was read.
	ErrVersionConflict = errors.New("baseline version conflict")
	// ErrScanNotFound is returned when no scan run matches the query.
	ErrScanNotFound = errors.New("scan run not found")
	// ErrScanAlreadyRunning is returned when a second running scan would be recorded.
	ErrScanAlreadyRunning = errors.New("another scan is already recorded as running")
)

// CommitRequest is everything a successful scan persists as one unit.
type CommitRequest struct {
	Snapshot        *models.BaselineSnapshot
	ExpectedVersion int64
	Run             *models.ScanRun
	Changes         []models.ChangeRecord
}

// BaselineStore holds the current baseline snapshot and the change log.
type BaselineStore interface {
	// GetBaseline returns the last committed snapshot.
	GetBaseline(ctx context.Context) (*models.BaselineSnapshot, error)
	// CommitBaseline replaces the snapshot if the stored version equals expectedVersion.
	CommitBaseline(ctx context.Context, snapshot *models.BaselineSnapshot, expectedVersion int64) error
	// AppendChangeLog appends a batch of change records atomically.
	AppendChangeLog(ctx context.Context, scanID string, changes []models.ChangeRecord) error
	// CommitScan swaps the baseline, appends the change log and finalizes the run in one transaction.
	CommitScan(ctx context.Context, req CommitRequest) error
	// GetChangeLog returns change records detected at or after since, oldest first.
	GetChangeLog(ctx context.Context, since time.Time, limit int) ([]models.ChangeRecord, error)
}

// ScanHistory records scan runs.
type ScanHistory interface {
	CreateRun(ctx context.Context, run *models.ScanRun) error
	FinishRun(ctx context.Context, run *models.ScanRun) error
	GetLatestRun(ctx context.Context) (*models.ScanRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.ScanRun, error)
}

// StateRepository is the full storage surface the scan orchestrator depends on.
type StateRepository interface {
	BaselineStore
	ScanHistory
}

// SubscriptionRepository stores the Telegram chats that receive change digests.
type SubscriptionRepository interface {
	SubscribeChat(ctx context.Context, chatID int64) error
	UnsubscribeChat(ctx context.Context, chatID int64) error
	GetSubscribedChats(ctx context.Context) ([]int64, error)
}
