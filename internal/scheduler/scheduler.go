// Package scheduler triggers scans on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/repository"
	"github.com/Houeta/listing-monitor/internal/services/monitor"
	"github.com/robfig/cron/v3"
)

// Scanner runs one scan to completion.
type Scanner interface {
	RunScan(ctx context.Context, target string, pageBudget int) (*models.ScanRun, error)
}

// Config configures the schedule.
type Config struct {
	// Spec is a standard 5-field cron expression or a descriptor such as "@every 15m".
	Spec       string
	Target     string
	PageBudget int
	// ConflictRetries is how many times a scan failing on a baseline version conflict is re-run.
	ConflictRetries    int
	ConflictRetryDelay time.Duration
}

// Scheduler runs scans on the configured schedule. Ticks that fire while a scan is
// still running are skipped.
type Scheduler struct {
	log     *slog.Logger
	scanner Scanner
	cfg     Config
	cron    *cron.Cron

	mu     sync.Mutex
	ctx    context.Context //nolint:containedctx // lifetime of scheduled runs
	cancel context.CancelFunc
}

// New validates the schedule and creates a stopped scheduler.
func New(log *slog.Logger, scanner Scanner, cfg Config) (*Scheduler, error) {
	const opn = "scheduler.New"

	log = log.With("component", "scheduler")
	cronLog := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelInfo))

	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))

	s := &Scheduler{log: log, scanner: scanner, cfg: cfg, cron: c}

	if _, err := c.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("%s: invalid schedule %q: %w", opn, cfg.Spec, err)
	}

	return s, nil
}

// Start begins firing scheduled scans. Scans run with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.log.InfoContext(ctx, "scheduler started", "schedule", s.cfg.Spec)
	s.cron.Start()
}

// Stop stops firing new scans and cancels a scheduled scan in progress. The returned
// context is done once the running tick has returned.
func (s *Scheduler) Stop() context.Context {
	done := s.cron.Stop()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.log.Info("scheduler stopped")
	return done
}

// Next returns the time of the next scheduled scan, zero when not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// TriggerNow runs a scan immediately with the scheduled target and budget.
func (s *Scheduler) TriggerNow(ctx context.Context) (*models.ScanRun, error) {
	return s.run(ctx)
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	run, err := s.run(ctx)
	switch {
	case errors.Is(err, monitor.ErrAlreadyRunning):
		s.log.InfoContext(ctx, "scheduled scan skipped, another scan is running")
	case err != nil:
		s.log.ErrorContext(ctx, "scheduled scan failed", "error", err)
	default:
		s.log.InfoContext(ctx, "scheduled scan finished", "scan_id", run.ID, "changes", run.ChangeCount)
	}
}

// run executes a scan, re-running it when the commit lost a version race.
func (s *Scheduler) run(ctx context.Context) (*models.ScanRun, error) {
	const opn = "scheduler.run"

	for attempt := 0; ; attempt++ {
		run, err := s.scanner.RunScan(ctx, s.cfg.Target, s.cfg.PageBudget)
		if err == nil {
			return run, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) || attempt >= s.cfg.ConflictRetries {
			return run, fmt.Errorf("%s: %w", opn, err)
		}

		s.log.WarnContext(ctx, "baseline changed during scan, retrying",
			"attempt", attempt+1, "retries", s.cfg.ConflictRetries)

		timer := time.NewTimer(s.cfg.ConflictRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return run, fmt.Errorf("%s: %w", opn, ctx.Err())
		case <-timer.C:
		}
	}
}
