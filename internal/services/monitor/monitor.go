// Package monitor runs scans: crawl, diff, score, commit and notify.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Houeta/listing-monitor/internal/crawler"
	"github.com/Houeta/listing-monitor/internal/differ"
	"github.com/Houeta/listing-monitor/internal/fingerprint"
	"github.com/Houeta/listing-monitor/internal/metrics"
	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/notify"
	"github.com/Houeta/listing-monitor/internal/repository"
	"github.com/Houeta/listing-monitor/internal/scorer"
	"github.com/google/uuid"
)

var (
	// ErrAlreadyRunning is returned when a scan is triggered while another one runs.
	ErrAlreadyRunning = errors.New("a scan is already running")
	// ErrScanCancelled is the failure of a scan stopped from outside.
	ErrScanCancelled = errors.New("scan cancelled")
	// ErrScanTimeout is the failure of a scan that exceeded its wall-clock budget.
	ErrScanTimeout = errors.New("scan timed out")
	// ErrTooManyFetchErrors is the failure of a scan whose page fetch error rate was too high.
	ErrTooManyFetchErrors = errors.New("too many page fetch errors")
	// ErrInvalidPageBudget is returned for a page budget outside 1..MaxPageBudget.
	ErrInvalidPageBudget = errors.New("invalid page budget")
)

// PageFetcher fetches pages 1..budget of a target.
type PageFetcher interface {
	FetchPages(ctx context.Context, target string, budget int) []crawler.PageResult
}

// Config tunes the orchestrator.
type Config struct {
	DefaultTarget     string
	DefaultPageBudget int
	MaxPageBudget     int
	// ScanTimeout bounds a whole scan. Zero means no limit.
	ScanTimeout time.Duration
	// MaxFetchErrorRate is the tolerated share of failed pages, 0..1.
	MaxFetchErrorRate float64
}

// Monitor is the scan orchestrator. At most one scan runs at a time.
type Monitor struct {
	log     *slog.Logger
	repo    repository.StateRepository
	fetcher PageFetcher
	scorer  *scorer.Scorer
	sink    notify.Sink
	metrics *metrics.Metrics
	cfg     Config

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	current *models.ScanRun
	cancel  context.CancelCauseFunc
	wg      sync.WaitGroup
}

// New creates a Monitor. sink and m may be nil; a nil scorer uses the default thresholds.
func New(
	log *slog.Logger,
	repo repository.StateRepository,
	fetcher PageFetcher,
	sc *scorer.Scorer,
	sink notify.Sink,
	m *metrics.Metrics,
	cfg Config,
) *Monitor {
	if sc == nil {
		sc = scorer.New(scorer.DefaultThresholds())
	}
	if cfg.DefaultPageBudget <= 0 {
		cfg.DefaultPageBudget = 1
	}
	if cfg.MaxPageBudget < cfg.DefaultPageBudget {
		cfg.MaxPageBudget = cfg.DefaultPageBudget
	}

	return &Monitor{
		log:     log,
		repo:    repo,
		fetcher: fetcher,
		scorer:  sc,
		sink:    sink,
		metrics: m,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// StartScan launches a scan in the background and returns its ID. The scan outlives ctx;
// use Cancel to stop it.
func (m *Monitor) StartScan(ctx context.Context, target string, pageBudget int) (string, error) {
	run, scanCtx, err := m.begin(context.WithoutCancel(ctx), target, pageBudget)
	if err != nil {
		return "", err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.execute(scanCtx, run)
	}()

	return run.ID, nil
}

// RunScan runs a scan to completion and returns its final record. The returned error
// is the reason a started scan failed.
func (m *Monitor) RunScan(ctx context.Context, target string, pageBudget int) (*models.ScanRun, error) {
	run, scanCtx, err := m.begin(ctx, target, pageBudget)
	if err != nil {
		return nil, err
	}

	err = m.execute(scanCtx, run)
	return run, err
}

// Cancel stops the running scan. It reports whether there was one.
func (m *Monitor) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return false
	}
	m.cancel(ErrScanCancelled)
	return true
}

// Wait blocks until every scan started by StartScan has finished.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Status returns the running scan, or the most recent one when idle.
func (m *Monitor) Status(ctx context.Context) (*models.ScanRun, error) {
	m.mu.Lock()
	if m.current != nil {
		run := *m.current
		m.mu.Unlock()
		return &run, nil
	}
	m.mu.Unlock()

	run, err := m.repo.GetLatestRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitor.Status: %w", err)
	}
	return run, nil
}

// ChangeLog returns logged changes detected at or after since.
func (m *Monitor) ChangeLog(ctx context.Context, since time.Time, limit int) ([]models.ChangeRecord, error) {
	changes, err := m.repo.GetChangeLog(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("monitor.ChangeLog: %w", err)
	}
	return changes, nil
}

// Baseline returns the committed snapshot.
func (m *Monitor) Baseline(ctx context.Context) (*models.BaselineSnapshot, error) {
	snapshot, err := m.repo.GetBaseline(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitor.Baseline: %w", err)
	}
	return snapshot, nil
}

// History returns the most recent scan runs, newest first.
func (m *Monitor) History(ctx context.Context, limit int) ([]models.ScanRun, error) {
	runs, err := m.repo.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("monitor.History: %w", err)
	}
	return runs, nil
}

// begin claims the single scan slot, records the run and derives the scan context.
func (m *Monitor) begin(
	parent context.Context,
	target string,
	pageBudget int,
) (*models.ScanRun, context.Context, error) {
	const opn = "monitor.begin"

	if target == "" {
		target = m.cfg.DefaultTarget
	}
	if pageBudget == 0 {
		pageBudget = m.cfg.DefaultPageBudget
	}
	if pageBudget < 0 || pageBudget > m.cfg.MaxPageBudget {
		return nil, nil, fmt.Errorf("%w: %d, allowed 1..%d", ErrInvalidPageBudget, pageBudget, m.cfg.MaxPageBudget)
	}

	run := &models.ScanRun{
		ID:             m.newID(),
		Target:         target,
		StartedAt:      m.now(),
		Status:         models.ScanRunning,
		PagesRequested: pageBudget,
	}

	// The cancel function is installed together with the slot so that Cancel
	// reaches a scan still being recorded.
	ctx, cancel := context.WithCancelCause(parent)
	var stopTimer context.CancelFunc = func() {}
	if m.cfg.ScanTimeout > 0 {
		ctx, stopTimer = context.WithTimeoutCause(ctx, m.cfg.ScanTimeout, ErrScanTimeout)
	}
	stop := func(cause error) {
		cancel(cause)
		stopTimer()
	}

	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		stop(nil)
		return nil, nil, ErrAlreadyRunning
	}
	snapshot := *run
	m.current = &snapshot
	m.cancel = stop
	m.mu.Unlock()

	if err := m.repo.CreateRun(parent, run); err != nil {
		m.release()
		if errors.Is(err, repository.ErrScanAlreadyRunning) {
			return nil, nil, ErrAlreadyRunning
		}
		return nil, nil, fmt.Errorf("%s: failed to record scan: %w", opn, err)
	}

	return run, ctx, nil
}

// release frees the scan slot.
func (m *Monitor) release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel(nil)
	}
	m.current = nil
	m.cancel = nil
}

// track publishes run progress to Status.
func (m *Monitor) track(run *models.ScanRun) {
	snapshot := *run
	m.mu.Lock()
	m.current = &snapshot
	m.mu.Unlock()
}

func (m *Monitor) execute(ctx context.Context, run *models.ScanRun) error {
	const opn = "monitor.execute"

	log := m.log.With("op", opn, "scan_id", run.ID, "target", run.Target)
	started := time.Now()
	m.metrics.SetRunning(true)

	log.InfoContext(ctx, "scan started", "page_budget", run.PagesRequested)

	changes, err := m.scan(ctx, log, run)
	if err != nil {
		m.fail(ctx, log, run, err)
	} else {
		log.InfoContext(ctx, "scan succeeded",
			"pages_fetched", run.PagesFetched,
			"listings", run.ListingsObserved,
			"changes", run.ChangeCount,
		)
	}

	m.release()
	m.metrics.SetRunning(false)
	m.metrics.RecordRun(run, time.Since(started))

	if err != nil {
		return err
	}

	m.deliver(context.WithoutCancel(ctx), log, changes)
	return nil
}

// scan does the work of one run. The baseline is only written by the final CommitScan.
func (m *Monitor) scan(ctx context.Context, log *slog.Logger, run *models.ScanRun) ([]models.ChangeRecord, error) {
	baseline, err := m.repo.GetBaseline(ctx)
	if err != nil {
		if abortErr := aborted(ctx); abortErr != nil {
			return nil, abortErr
		}
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	}

	results := m.fetcher.FetchPages(ctx, run.Target, run.PagesRequested)
	if abortErr := aborted(ctx); abortErr != nil {
		return nil, abortErr
	}

	obs := m.fold(ctx, log, run, results, baseline.Listings)
	m.track(run)
	m.metrics.RecordPages(run.PagesFetched, run.FetchErrors)

	if err = m.checkFetchErrors(run, obs.lastErr); err != nil {
		return nil, err
	}

	now := m.now()
	diff := differ.Diff(baseline.Listings, obs.listings, obs.scope, now)
	for i := range diff.Changes {
		diff.Changes[i].ScanID = run.ID
	}
	m.scorer.Apply(diff.Changes)

	log.DebugContext(ctx, "diff computed",
		"changes", len(diff.Changes),
		"unchanged", diff.Unchanged,
		"carried", diff.Carried,
	)

	if abortErr := aborted(ctx); abortErr != nil {
		return nil, abortErr
	}

	completed := now
	run.Status = models.ScanSucceeded
	run.CompletedAt = &completed
	run.ChangeCount = len(diff.Changes)

	next := &models.BaselineSnapshot{
		Version:  baseline.Version + 1,
		AsOf:     now,
		Listings: diff.Listings,
	}

	err = m.repo.CommitScan(ctx, repository.CommitRequest{
		Snapshot:        next,
		ExpectedVersion: baseline.Version,
		Run:             run,
		Changes:         diff.Changes,
	})
	if err != nil {
		run.Status = models.ScanRunning
		run.CompletedAt = nil
		if abortErr := aborted(ctx); abortErr != nil {
			return nil, abortErr
		}
		return nil, fmt.Errorf("failed to commit scan: %w", err)
	}

	m.metrics.RecordCommit(diff.Changes, next.Version, len(next.Listings))
	return diff.Changes, nil
}

type observation struct {
	listings []models.Listing
	scope    models.Scope
	lastErr  error
}

// fold turns page results into observed listings in page order. Malformed records are
// counted and skipped. A malformed record whose ID is already in the baseline still
// proves the listing is on the page, so its baseline entry is observed unchanged.
func (m *Monitor) fold(
	ctx context.Context,
	log *slog.Logger,
	run *models.ScanRun,
	results []crawler.PageResult,
	baseline map[string]models.Listing,
) observation {
	obs := observation{scope: models.Scope{Target: run.Target}}
	seenAt := m.now()

	// kept entries go first so a parsed observation of the same ID overrides them.
	var kept []models.Listing

	for _, res := range results {
		if res.Err != nil {
			run.FetchErrors++
			obs.lastErr = res.Err
			continue
		}

		run.PagesFetched++
		obs.scope.Pages = append(obs.scope.Pages, res.Page)

		for _, raw := range res.Listings {
			l, err := fingerprint.Listing(raw, run.Target, res.Page, seenAt)
			if err != nil {
				run.ParseErrors++
				log.DebugContext(ctx, "skipping malformed record", "page", res.Page, "error", err)
				if prev, ok := baseline[fingerprint.ExtractID(raw)]; ok && prev.Status != models.StatusRemoved {
					prev.Target, prev.Page = run.Target, res.Page
					kept = append(kept, prev)
				}
				continue
			}
			obs.listings = append(obs.listings, l)
		}
	}

	obs.listings = append(kept, obs.listings...)
	run.ListingsObserved = len(differ.Dedupe(obs.listings))
	return obs
}

func (m *Monitor) checkFetchErrors(run *models.ScanRun, lastErr error) error {
	if run.PagesFetched == 0 {
		return fmt.Errorf("%w: no page of %d fetched: %w", ErrTooManyFetchErrors, run.PagesRequested, lastErr)
	}
	errRate := float64(run.FetchErrors) / float64(run.PagesRequested)
	if errRate > m.cfg.MaxFetchErrorRate {
		return fmt.Errorf("%w: %d of %d pages failed: %w",
			ErrTooManyFetchErrors, run.FetchErrors, run.PagesRequested, lastErr)
	}
	return nil
}

// fail records a failed run. The baseline is left as it was.
func (m *Monitor) fail(ctx context.Context, log *slog.Logger, run *models.ScanRun, cause error) {
	completed := m.now()
	msg := cause.Error()
	run.Status = models.ScanFailed
	run.CompletedAt = &completed
	run.Error = &msg

	log.ErrorContext(ctx, "scan failed", "error", cause)

	if err := m.repo.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.ErrorContext(ctx, "failed to record scan failure", "error", err)
	}
}

func (m *Monitor) deliver(ctx context.Context, log *slog.Logger, changes []models.ChangeRecord) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Deliver(ctx, changes); err != nil {
		m.metrics.RecordNotifyFailure("sink")
		log.ErrorContext(ctx, "failed to deliver changes", "changes", len(changes), "error", err)
	}
}

// aborted maps a done scan context onto the scan failure it stands for.
func aborted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrScanTimeout):
		return ErrScanTimeout
	case errors.Is(cause, ErrScanCancelled):
		return ErrScanCancelled
	case errors.Is(cause, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrScanTimeout, cause)
	default:
		return fmt.Errorf("%w: %w", ErrScanCancelled, cause)
	}
}
