package sqlite_test

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/repository"
	"github.com/Houeta/listing-monitor/internal/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Integration Tests (using a real temporary database)
// =============================================================================

// newTestDB is a helper function that creates a temporary database for a test.
func newTestDB(t *testing.T) *sqlite.Repository {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := sqlite.NewRepository(t.Context(), logger, dbPath)
	require.NoError(t, err, "failed to create test database")

	t.Cleanup(func() {
		if err = repo.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})

	return repo
}

// newMockedRepo creates a repository with a mocked database connection for testing failures.
func newMockedRepo(t *testing.T) (*sqlite.Repository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := sqlite.NewForTest(mockDB)

	t.Cleanup(func() { mockDB.Close() })

	return repo, mock
}

func ptr[T any](v T) *T { return &v }

var t0 = time.Date(2026, 5, 4, 10, 30, 0, 123456789, time.UTC)

func listing(id string, price float64, page int) models.Listing {
	return models.Listing{
		ID:           id,
		Fingerprint:  "fp-" + id,
		Title:        "Listing " + id,
		URL:          "https://example.com/listing/" + id,
		Attributes:   map[string]string{"age": "3 years"},
		AskingPrice:  ptr(price),
		Category:     ptr("saas"),
		Status:       models.StatusActive,
		Target:       "all",
		Page:         page,
		FirstSeen:    t0,
		LastSeen:     t0.Add(time.Hour),
		LastModified: t0,
	}
}

func newRun(id string) *models.ScanRun {
	return &models.ScanRun{ID: id, Target: "all", StartedAt: t0, Status: models.ScanRunning, PagesRequested: 2}
}

// TestRepository_Integration_CommitAndGetBaseline simulates the full lifecycle
// of the baseline against a real SQLite database.
func TestRepository_Integration_CommitAndGetBaseline(t *testing.T) {
	repo := newTestDB(t)
	ctx := t.Context()

	t.Run("empty_store_is_version_zero", func(t *testing.T) {
		snapshot, err := repo.GetBaseline(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(0), snapshot.Version)
		assert.Empty(t, snapshot.Listings)
	})

	first := &models.BaselineSnapshot{
		Version: 1,
		AsOf:    t0,
		Listings: map[string]models.Listing{
			"A": listing("A", 100000, 1),
			"B": {ID: "B", Fingerprint: "fp-B", Status: models.StatusSold, Target: "all", Page: 2,
				FirstSeen: t0, LastSeen: t0, LastModified: t0},
		},
	}

	t.Run("first_commit", func(t *testing.T) {
		require.NoError(t, repo.CommitBaseline(ctx, first, 0))

		got, err := repo.GetBaseline(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	})

	t.Run("stale_version_is_rejected", func(t *testing.T) {
		stale := &models.BaselineSnapshot{Version: 1, AsOf: t0.Add(time.Minute), Listings: map[string]models.Listing{}}

		err := repo.CommitBaseline(ctx, stale, 0)

		require.ErrorIs(t, err, repository.ErrVersionConflict)
		got, getErr := repo.GetBaseline(ctx)
		require.NoError(t, getErr)
		assert.Equal(t, first, got, "a conflicting commit must leave the baseline untouched")
	})

	t.Run("second_commit_replaces_everything", func(t *testing.T) {
		second := &models.BaselineSnapshot{
			Version:  2,
			AsOf:     t0.Add(time.Hour),
			Listings: map[string]models.Listing{"C": listing("C", 5, 1)},
		}

		require.NoError(t, repo.CommitBaseline(ctx, second, 1))

		got, err := repo.GetBaseline(ctx)
		require.NoError(t, err)
		assert.Equal(t, second, got)
	})
}

func TestRepository_Integration_CommitScan(t *testing.T) {
	repo := newTestDB(t)
	ctx := t.Context()

	run := newRun("scan-1")
	require.NoError(t, repo.CreateRun(ctx, run))

	after := listing("A", 100000, 1)
	changes := []models.ChangeRecord{{
		ScanID: run.ID, ListingID: "A", ChangeType: models.ChangeNew, After: &after,
		Score: 62.5, Category: models.CategoryHigh, DetectedAt: t0,
	}}

	completed := t0.Add(time.Minute)
	run.Status = models.ScanSucceeded
	run.CompletedAt = &completed
	run.ChangeCount = 1

	err := repo.CommitScan(ctx, repository.CommitRequest{
		Snapshot:        &models.BaselineSnapshot{Version: 1, AsOf: t0, Listings: map[string]models.Listing{"A": after}},
		ExpectedVersion: 0,
		Run:             run,
		Changes:         changes,
	})
	require.NoError(t, err)

	logged, err := repo.GetChangeLog(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, int64(1), logged[0].Seq)
	assert.Equal(t, changes[0].ListingID, logged[0].ListingID)
	assert.Nil(t, logged[0].Before)
	assert.Equal(t, &after, logged[0].After)
	assert.Equal(t, t0, logged[0].DetectedAt)

	latest, err := repo.GetLatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run, latest)

	t.Run("conflict_rolls_back_log_and_run", func(t *testing.T) {
		run2 := newRun("scan-2")
		run2.StartedAt = t0.Add(time.Hour)
		require.NoError(t, repo.CreateRun(ctx, run2))
		run2.Status = models.ScanSucceeded

		err = repo.CommitScan(ctx, repository.CommitRequest{
			Snapshot:        &models.BaselineSnapshot{Version: 1, AsOf: t0, Listings: map[string]models.Listing{}},
			ExpectedVersion: 0,
			Run:             run2,
			Changes:         changes,
		})

		require.ErrorIs(t, err, repository.ErrVersionConflict)
		logged, err = repo.GetChangeLog(ctx, time.Time{}, 0)
		require.NoError(t, err)
		assert.Len(t, logged, 1)
		latest, err = repo.GetLatestRun(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.ScanRunning, latest.Status)
	})
}

func TestRepository_Integration_GetChangeLogSince(t *testing.T) {
	repo := newTestDB(t)
	ctx := t.Context()

	var changes []models.ChangeRecord
	for i, id := range []string{"A", "B", "C"} {
		l := listing(id, 1, 1)
		changes = append(changes, models.ChangeRecord{
			ListingID: id, ChangeType: models.ChangeRemoved, Before: &l,
			Category: models.CategoryLow, DetectedAt: t0.Add(time.Duration(i) * time.Hour),
		})
	}
	require.NoError(t, repo.AppendChangeLog(ctx, "scan-x", changes))

	got, err := repo.GetChangeLog(ctx, t0.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].ListingID)
	assert.Equal(t, "C", got[1].ListingID)
	assert.Equal(t, "scan-x", got[0].ScanID)

	limited, err := repo.GetChangeLog(ctx, time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// =============================================================================
// Unit Tests (using sqlmock for failure scenarios)
// =============================================================================

func TestRepository_GetBaseline_Failures(t *testing.T) {
	ctx := t.Context()

	t.Run("error_on_begin", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectBegin().WillReturnError(assert.AnError)

		_, err := repo.GetBaseline(ctx)

		require.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error_on_version_query", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT version, as_of FROM baseline_meta").WillReturnError(assert.AnError)
		mock.ExpectRollback()

		_, err := repo.GetBaseline(ctx)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get baseline version")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error_on_listings_query", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT version, as_of FROM baseline_meta").
			WillReturnRows(sqlmock.NewRows([]string{"version", "as_of"}).AddRow(3, ""))
		mock.ExpectQuery("SELECT id, fingerprint").WillReturnError(errors.New("table listings is locked"))
		mock.ExpectRollback()

		_, err := repo.GetBaseline(ctx)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "table listings is locked")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error_on_rows", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT version, as_of FROM baseline_meta").
			WillReturnRows(sqlmock.NewRows([]string{"version", "as_of"}).AddRow(3, ""))
		rows := sqlmock.NewRows([]string{"id", "fingerprint", "title", "url", "location", "attributes",
			"asking_price", "monthly_revenue", "monthly_profit", "category", "status", "target", "page",
			"first_seen", "last_seen", "last_modified"}).
			AddRow("A", "fp", "", "", "", nil, nil, nil, nil, nil, "active", "all", 1,
				"2026-05-04T10:30:00.000000000Z", "2026-05-04T10:30:00.000000000Z", "2026-05-04T10:30:00.000000000Z").
			RowError(0, assert.AnError)
		mock.ExpectQuery("SELECT id, fingerprint").WillReturnRows(rows)
		mock.ExpectRollback()

		_, err := repo.GetBaseline(ctx)

		require.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "rows iteration error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_CommitScan_Failures(t *testing.T) {
	ctx := t.Context()
	l := listing("A", 1, 1)
	req := func() repository.CommitRequest {
		return repository.CommitRequest{
			Snapshot:        &models.BaselineSnapshot{Version: 5, AsOf: t0, Listings: map[string]models.Listing{"A": l}},
			ExpectedVersion: 4,
			Run:             newRun("scan-9"),
			Changes:         []models.ChangeRecord{{ListingID: "A", ChangeType: models.ChangeNew, After: &l}},
		}
	}

	t.Run("error_missing_snapshot", func(t *testing.T) {
		repo, mock := newMockedRepo(t)

		err := repo.CommitScan(ctx, repository.CommitRequest{Run: newRun("x")})

		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version_conflict", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE baseline_meta SET version").
			WithArgs(int64(5), sqlmock.AnyArg(), int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.CommitScan(ctx, req())

		require.ErrorIs(t, err, repository.ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error_on_delete_listings", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE baseline_meta SET version").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM listings").WillReturnError(assert.AnError)
		mock.ExpectRollback()

		err := repo.CommitScan(ctx, req())

		require.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "failed to delete old listings")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error_on_change_log_insert", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE baseline_meta SET version").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM listings").WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectPrepare("INSERT INTO listings").ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectPrepare("INSERT INTO change_log").ExpectExec().WillReturnError(assert.AnError)
		mock.ExpectRollback()

		err := repo.CommitScan(ctx, req())

		require.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "failed to append change for listing A")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error_on_run_update", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE baseline_meta SET version").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM listings").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectPrepare("INSERT INTO listings").ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectPrepare("INSERT INTO change_log").ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE scan_runs SET").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.CommitScan(ctx, req())

		require.ErrorIs(t, err, repository.ErrScanNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error_on_commit", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE baseline_meta SET version").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM listings").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectPrepare("INSERT INTO listings").ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectPrepare("INSERT INTO change_log").ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE scan_runs SET").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit().WillReturnError(errors.New("commit failed"))

		err := repo.CommitScan(ctx, req())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_AppendChangeLog_Empty(t *testing.T) {
	repo, mock := newMockedRepo(t)

	require.NoError(t, repo.AppendChangeLog(t.Context(), "scan", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
