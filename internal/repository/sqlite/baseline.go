package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/repository"
)

const listingColumns = `id, fingerprint, title, url, location, attributes, asking_price, monthly_revenue,
	monthly_profit, category, status, target, page, first_seen, last_seen, last_modified`

// GetBaseline returns the last committed snapshot. Version and listings are read in one
// transaction, so a concurrent commit is either fully visible or not at all.
func (r *Repository) GetBaseline(ctx context.Context) (*models.BaselineSnapshot, error) {
	const opn = "repository.sqlite.GetBaseline"

	tx, err := r.db.BeginTx(ctx, nil) //nolint:varnamelen // tx its a default naming for transaction
	if err != nil {
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", opn, err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only transaction

	// 1. Get version of the baseline.
	var (
		version int64
		asOf    string
	)
	err = tx.QueryRowContext(ctx, "SELECT version, as_of FROM baseline_meta WHERE id = 1").Scan(&version, &asOf)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: failed to get baseline version: %w", opn, err)
	}

	snapshot := &models.BaselineSnapshot{Version: version, Listings: make(map[string]models.Listing)}
	if snapshot.AsOf, err = parseTime(asOf); err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	// 2. Get all listings.
	rows, err := tx.QueryContext(ctx, "SELECT "+listingColumns+" FROM listings ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get listings: %w", opn, err)
	}
	defer rows.Close()

	for rows.Next() {
		l, scanErr := scanListing(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%s: failed to scan listing: %w", opn, scanErr)
		}
		snapshot.Listings[l.ID] = l
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration error: %w", opn, err)
	}

	return snapshot, nil
}

// CommitBaseline atomically replaces the snapshot when the stored version equals expectedVersion.
func (r *Repository) CommitBaseline(
	ctx context.Context,
	snapshot *models.BaselineSnapshot,
	expectedVersion int64,
) error {
	const opn = "repository.sqlite.CommitBaseline"

	return r.inTx(ctx, opn, func(tx *sql.Tx) error {
		return replaceBaseline(ctx, tx, snapshot, expectedVersion)
	})
}

// AppendChangeLog appends all changes in one transaction: either the whole batch is logged or none of it.
func (r *Repository) AppendChangeLog(ctx context.Context, scanID string, changes []models.ChangeRecord) error {
	const opn = "repository.sqlite.AppendChangeLog"

	if len(changes) == 0 {
		return nil
	}

	return r.inTx(ctx, opn, func(tx *sql.Tx) error {
		return insertChanges(ctx, tx, scanID, changes)
	})
}

// CommitScan persists a successful scan: baseline swap, change log and run record together.
func (r *Repository) CommitScan(ctx context.Context, req repository.CommitRequest) error {
	const opn = "repository.sqlite.CommitScan"

	if req.Snapshot == nil || req.Run == nil {
		return fmt.Errorf("%s: snapshot and run are required", opn)
	}

	return r.inTx(ctx, opn, func(tx *sql.Tx) error {
		if err := replaceBaseline(ctx, tx, req.Snapshot, req.ExpectedVersion); err != nil {
			return err
		}
		if err := insertChanges(ctx, tx, req.Run.ID, req.Changes); err != nil {
			return err
		}
		return updateRun(ctx, tx, req.Run)
	})
}

// GetChangeLog returns change records detected at or after since in log order.
// A non-positive limit returns every matching record.
func (r *Repository) GetChangeLog(ctx context.Context, since time.Time, limit int) ([]models.ChangeRecord, error) {
	const opn = "repository.sqlite.GetChangeLog"

	query := `SELECT seq, scan_id, listing_id, change_type, before_json, after_json, score, category, detected_at
		FROM change_log WHERE detected_at >= ? ORDER BY seq`
	args := []any{formatTime(since)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query change log: %w", opn, err)
	}
	defer rows.Close()

	var changes []models.ChangeRecord
	for rows.Next() {
		var (
			rec           models.ChangeRecord
			before, after sql.NullString
			detectedAt    string
		)
		if err = rows.Scan(&rec.Seq, &rec.ScanID, &rec.ListingID, &rec.ChangeType, &before, &after,
			&rec.Score, &rec.Category, &detectedAt); err != nil {
			return nil, fmt.Errorf("%s: failed to scan change record: %w", opn, err)
		}
		if rec.Before, err = decodeListing(before); err != nil {
			return nil, fmt.Errorf("%s: change %d: %w", opn, rec.Seq, err)
		}
		if rec.After, err = decodeListing(after); err != nil {
			return nil, fmt.Errorf("%s: change %d: %w", opn, rec.Seq, err)
		}
		if rec.DetectedAt, err = parseTime(detectedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", opn, err)
		}
		changes = append(changes, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration error: %w", opn, err)
	}

	return changes, nil
}

// inTx runs fn inside a transaction and commits only if fn succeeds.
func (r *Repository) inTx(ctx context.Context, opn string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil) //nolint:varnamelen // tx its a default naming for transaction
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", opn, err)
	}
	defer tx.Rollback() //nolint:errcheck // ErrTxDone after a successful commit

	if err = fn(tx); err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", opn, err)
	}

	return nil
}

func replaceBaseline(ctx context.Context, tx *sql.Tx, snapshot *models.BaselineSnapshot, expectedVersion int64) error {
	// 1. Compare-and-swap the version; zero rows means somebody else committed first.
	res, err := tx.ExecContext(ctx,
		"UPDATE baseline_meta SET version = ?, as_of = ? WHERE id = 1 AND version = ?",
		snapshot.Version, formatTime(snapshot.AsOf), expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update baseline version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("expected version %d: %w", expectedVersion, repository.ErrVersionConflict)
	}

	// 2. Completely clear the listings table to record the new current state.
	if _, err = tx.ExecContext(ctx, "DELETE FROM listings"); err != nil {
		return fmt.Errorf("failed to delete old listings: %w", err)
	}

	// 3. Insert the new listing set.
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO listings ("+listingColumns+
		") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, l := range snapshot.Listings {
		attrs, encErr := encodeAttributes(l.Attributes)
		if encErr != nil {
			return fmt.Errorf("listing %s: %w", l.ID, encErr)
		}
		if _, err = stmt.ExecContext(ctx,
			l.ID, l.Fingerprint, l.Title, l.URL, l.Location, attrs,
			nullFloat(l.AskingPrice), nullFloat(l.MonthlyRevenue), nullFloat(l.MonthlyProfit),
			nullString(l.Category), string(l.Status), l.Target, l.Page,
			formatTime(l.FirstSeen), formatTime(l.LastSeen), formatTime(l.LastModified),
		); err != nil {
			return fmt.Errorf("failed to insert listing with id %s: %w", l.ID, err)
		}
	}

	return nil
}

func insertChanges(ctx context.Context, tx *sql.Tx, scanID string, changes []models.ChangeRecord) error {
	if len(changes) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO change_log
		(scan_id, listing_id, change_type, before_json, after_json, score, category, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare change log statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range changes {
		before, encErr := encodeListing(c.Before)
		if encErr != nil {
			return fmt.Errorf("change for %s: %w", c.ListingID, encErr)
		}
		after, encErr := encodeListing(c.After)
		if encErr != nil {
			return fmt.Errorf("change for %s: %w", c.ListingID, encErr)
		}
		if _, err = stmt.ExecContext(ctx, scanID, c.ListingID, string(c.ChangeType), before, after,
			c.Score, string(c.Category), formatTime(c.DetectedAt)); err != nil {
			return fmt.Errorf("failed to append change for listing %s: %w", c.ListingID, err)
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (models.Listing, error) {
	var (
		l                            models.Listing
		attrs, category              sql.NullString
		price, revenue, profit       sql.NullFloat64
		status                       string
		firstSeen, lastSeen, lastMod string
	)

	if err := row.Scan(&l.ID, &l.Fingerprint, &l.Title, &l.URL, &l.Location, &attrs, &price, &revenue,
		&profit, &category, &status, &l.Target, &l.Page, &firstSeen, &lastSeen, &lastMod); err != nil {
		return models.Listing{}, err
	}

	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &l.Attributes); err != nil {
			return models.Listing{}, fmt.Errorf("invalid attributes of %s: %w", l.ID, err)
		}
	}

	l.AskingPrice = floatPtr(price)
	l.MonthlyRevenue = floatPtr(revenue)
	l.MonthlyProfit = floatPtr(profit)
	l.Category = stringPtr(category)
	l.Status = models.Status(status)

	var err error
	if l.FirstSeen, err = parseTime(firstSeen); err != nil {
		return models.Listing{}, err
	}
	if l.LastSeen, err = parseTime(lastSeen); err != nil {
		return models.Listing{}, err
	}
	if l.LastModified, err = parseTime(lastMod); err != nil {
		return models.Listing{}, err
	}

	return l, nil
}

func encodeAttributes(attrs map[string]string) (sql.NullString, error) {
	if len(attrs) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode attributes: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func encodeListing(l *models.Listing) (sql.NullString, error) {
	if l == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode listing: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeListing(s sql.NullString) (*models.Listing, error) {
	if !s.Valid {
		return nil, nil //nolint:nilnil // absent side of a change
	}
	var l models.Listing
	if err := json.Unmarshal([]byte(s.String), &l); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}
	return &l, nil
}
