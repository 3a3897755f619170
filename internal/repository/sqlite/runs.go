package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/repository"
	sqlite3 "github.com/mattn/go-sqlite3"
)

const runColumns = `scan_id, target, started_at, completed_at, status, pages_requested, pages_fetched,
	listings_observed, parse_errors, fetch_errors, change_count, error`

// CreateRun records a new running scan. A second running scan is rejected by a partial unique index.
func (r *Repository) CreateRun(ctx context.Context, run *models.ScanRun) error {
	const opn = "repository.sqlite.CreateRun"

	_, err := r.db.ExecContext(ctx, `INSERT INTO scan_runs (scan_id, target, started_at, status, pages_requested)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Target, formatTime(run.StartedAt), string(run.Status), run.PagesRequested)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
			strings.Contains(sqliteErr.Error(), "scan_runs.status") {
			return fmt.Errorf("%s: %w", opn, repository.ErrScanAlreadyRunning)
		}
		return fmt.Errorf("%s: %w", opn, err)
	}

	return nil
}

// FinishRun stores the final state of a run.
func (r *Repository) FinishRun(ctx context.Context, run *models.ScanRun) error {
	const opn = "repository.sqlite.FinishRun"

	return r.inTx(ctx, opn, func(tx *sql.Tx) error {
		return updateRun(ctx, tx, run)
	})
}

// GetLatestRun returns the most recently started run.
func (r *Repository) GetLatestRun(ctx context.Context) (*models.ScanRun, error) {
	const opn = "repository.sqlite.GetLatestRun"

	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM scan_runs ORDER BY started_at DESC LIMIT 1")
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrScanNotFound
		}
		return nil, fmt.Errorf("%s: failed to get latest run: %w", opn, err)
	}

	return &run, nil
}

// ListRuns returns up to limit runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]models.ScanRun, error) {
	const opn = "repository.sqlite.ListRuns"

	rows, err := r.db.QueryContext(ctx, "SELECT "+runColumns+" FROM scan_runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}
	defer rows.Close()

	var runs []models.ScanRun
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%s: failed to scan run: %w", opn, scanErr)
		}
		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration error: %w", opn, err)
	}

	return runs, nil
}

// RecoverInterruptedRuns fails every run left in the running state by a previous process.
func (r *Repository) RecoverInterruptedRuns(ctx context.Context, now time.Time) (int, error) {
	const opn = "repository.sqlite.RecoverInterruptedRuns"

	res, err := r.db.ExecContext(ctx,
		"UPDATE scan_runs SET status = ?, completed_at = ?, error = ? WHERE status = ?",
		string(models.ScanFailed), formatTime(now), "interrupted: process exited during scan", string(models.ScanRunning))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", opn, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to read affected rows: %w", opn, err)
	}

	return int(n), nil
}

func updateRun(ctx context.Context, tx *sql.Tx, run *models.ScanRun) error {
	res, err := tx.ExecContext(ctx, `UPDATE scan_runs SET completed_at = ?, status = ?, pages_requested = ?,
		pages_fetched = ?, listings_observed = ?, parse_errors = ?, fetch_errors = ?, change_count = ?, error = ?
		WHERE scan_id = ?`,
		nullTime(run.CompletedAt), string(run.Status), run.PagesRequested, run.PagesFetched,
		run.ListingsObserved, run.ParseErrors, run.FetchErrors, run.ChangeCount, nullString(run.Error), run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: %w", run.ID, repository.ErrScanNotFound)
	}

	return nil
}

func scanRun(row rowScanner) (models.ScanRun, error) {
	var (
		run                models.ScanRun
		startedAt, status  string
		completedAt, errSt sql.NullString
	)

	if err := row.Scan(&run.ID, &run.Target, &startedAt, &completedAt, &status, &run.PagesRequested,
		&run.PagesFetched, &run.ListingsObserved, &run.ParseErrors, &run.FetchErrors, &run.ChangeCount,
		&errSt); err != nil {
		return models.ScanRun{}, err
	}

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return models.ScanRun{}, err
	}
	if completedAt.Valid {
		t, parseErr := parseTime(completedAt.String)
		if parseErr != nil {
			return models.ScanRun{}, parseErr
		}
		run.CompletedAt = &t
	}
	run.Status = models.ScanStatus(status)
	run.Error = stringPtr(errSt)

	return run, nil
}
