// Package notify delivers scored change sets to their consumers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Houeta/listing-monitor/internal/models"
)

// Sink receives the change set of one committed scan. Delivery is at least once:
// a sink may see the same records again after a retry.
type Sink interface {
	Deliver(ctx context.Context, changes []models.ChangeRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, changes []models.ChangeRecord) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, changes []models.ChangeRecord) error {
	return f(ctx, changes)
}

// Multi fans a change set out to every sink. All sinks are tried; their errors are joined.
type Multi []Sink

// Deliver implements Sink.
func (m Multi) Deliver(ctx context.Context, changes []models.ChangeRecord) error {
	var errs []error
	for i, s := range m {
		if err := s.Deliver(ctx, changes); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// MinCategory forwards only the records scored at or above Min.
// Nothing is forwarded when no record qualifies.
type MinCategory struct {
	Min  models.Category
	Next Sink
}

// Deliver implements Sink.
func (f MinCategory) Deliver(ctx context.Context, changes []models.ChangeRecord) error {
	kept := Filter(changes, f.Min)
	if len(kept) == 0 {
		return nil
	}
	return f.Next.Deliver(ctx, kept)
}

// Filter returns the records whose category ranks at least min.
func Filter(changes []models.ChangeRecord, minimum models.Category) []models.ChangeRecord {
	var kept []models.ChangeRecord
	for _, c := range changes {
		if c.Category.Rank() >= minimum.Rank() {
			kept = append(kept, c)
		}
	}
	return kept
}

// Log writes every change to a logger.
type Log struct {
	log *slog.Logger
}

// NewLog creates a logging sink.
func NewLog(log *slog.Logger) *Log {
	return &Log{log: log.With("sink", "log")}
}

// Deliver implements Sink.
func (l *Log) Deliver(ctx context.Context, changes []models.ChangeRecord) error {
	if len(changes) == 0 {
		l.log.DebugContext(ctx, "scan produced no changes")
		return nil
	}
	for _, c := range changes {
		l.log.InfoContext(ctx, "listing changed",
			"scan_id", c.ScanID,
			"listing_id", c.ListingID,
			"change_type", c.ChangeType,
			"category", c.Category,
			"score", c.Score,
		)
	}
	return nil
}
