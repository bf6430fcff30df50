package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timetable-importer/internal/iff"
)

// ImportRun is one completed load of a delivery.
type ImportRun struct {
	Identification iff.Identification
	Legs           int
	Committed      int
	Skipped        int
	Failed         int
	FinishedAt     time.Time
}

// LatestImport returns the most recent recorded run of the delivery
// identified by ident, or nil if it was never imported.
func LatestImport(ctx context.Context, db *sql.DB, ident iff.Identification) (*ImportRun, error) {
	q := `
SELECT legs, committed, skipped, failed, finished_at
FROM timetable_import
WHERE company_number = $1 AND version_number = $2
  AND first_valid = $3::date AND last_valid = $4::date
ORDER BY finished_at DESC
LIMIT 1`
	run := &ImportRun{Identification: ident}
	err := db.QueryRowContext(ctx, q,
		ident.CompanyNumber, ident.VersionNumber,
		ident.FirstValid.Format(time.DateOnly), ident.LastValid.Format(time.DateOnly),
	).Scan(&run.Legs, &run.Committed, &run.Skipped, &run.Failed, &run.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest import: %w", err)
	}
	return run, nil
}

// RecordImport appends a finished run to the import ledger.
func RecordImport(ctx context.Context, db *sql.DB, run ImportRun) error {
	q := `
INSERT INTO timetable_import (company_number, version_number, first_valid, last_valid, legs, committed, skipped, failed)
VALUES ($1, $2, $3::date, $4::date, $5, $6, $7, $8)`
	ident := run.Identification
	_, err := db.ExecContext(ctx, q,
		ident.CompanyNumber, ident.VersionNumber,
		ident.FirstValid.Format(time.DateOnly), ident.LastValid.Format(time.DateOnly),
		run.Legs, run.Committed, run.Skipped, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}
