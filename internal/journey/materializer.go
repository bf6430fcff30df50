// Package journey turns service legs into idempotent upserts of service,
// journey and journey event rows.
package journey

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"timetable-importer/internal/iff"
)

var (
	ErrCompanyNotFound  = errors.New("company not found")
	ErrFootnoteNotFound = errors.New("footnote not found")
)

// StatementError reports the statement that failed so the leg can be
// reproduced from the log.
type StatementError struct {
	Statement Statement
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s: %v", e.Statement.Name, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Executor runs statements, normally inside one transaction.
type Executor interface {
	// QueryID runs a statement returning a single id column.
	QueryID(ctx context.Context, st Statement) (uuid.UUID, error)
	Exec(ctx context.Context, st Statement) error
}

// Tx is an Executor bound to a transaction.
type Tx interface {
	Executor
	Commit() error
	Rollback() error
}

type Outcome uint8

const (
	OutcomeCommitted Outcome = iota
	OutcomeSkipped
)

func (o Outcome) String() string {
	if o == OutcomeSkipped {
		return "skipped"
	}
	return "committed"
}

// Result summarizes the rows written for one leg.
type Result struct {
	Outcome     Outcome
	TrainNumber string
	ServiceRow  uuid.UUID
	Journeys    int
	Events      int
}

// Materializer writes legs of one delivery. It holds read-only lookup
// tables and is safe for concurrent use.
type Materializer struct {
	Identification iff.Identification
	Footnotes      *iff.Footnotes
	Companies      *iff.Companies
	Log            zerolog.Logger
}

// Materialize issues every upsert for leg through exec. The caller owns the
// transaction; on error nothing should be committed.
func (m *Materializer) Materialize(ctx context.Context, exec Executor, leg iff.ServiceLeg) (Result, error) {
	trainNumber, ok := leg.Number.TrainNumber()
	if !ok {
		return Result{Outcome: OutcomeSkipped}, nil
	}
	res := Result{TrainNumber: trainNumber}

	company, ok := m.Companies.ByID(leg.Number.CompanyNumber)
	if !ok {
		return res, fmt.Errorf("%w: %d", ErrCompanyNotFound, leg.Number.CompanyNumber)
	}
	footnote, ok := m.Footnotes.ByID(leg.Validity.Footnote)
	if !ok {
		return res, fmt.Errorf("%w: %d", ErrFootnoteNotFound, leg.Validity.Footnote)
	}

	serviceRow, err := queryID(ctx, exec, ServiceUpsert(Service{
		TrainNumber:   trainNumber,
		TimetableYear: m.TimetableYear(),
		Type:          leg.TransportMode.Code,
		Provider:      company.Code,
	}))
	if err != nil {
		return res, err
	}
	res.ServiceRow = serviceRow

	events := Events(leg)
	attrs := leg.JourneyAttributes()
	sourceIDs := []string{strconv.FormatUint(uint64(leg.ServiceID), 10)}

	days := footnote.ValidDates(m.Identification)
	for date, running := range days.All() {
		if !running {
			continue
		}
		journeyID, err := queryID(ctx, exec, JourneyUpsert(Journey{
			ServiceID:  serviceRow,
			RunningOn:  date,
			Attributes: attrs,
			SourceIDs:  sourceIDs,
		}))
		if err != nil {
			return res, err
		}
		res.Journeys++

		if len(events) == 0 {
			continue
		}
		st := JourneyEventsUpsert(journeyID, events)
		if err := exec.Exec(ctx, st); err != nil {
			return res, &StatementError{Statement: st, Err: err}
		}
		res.Events += len(events)
	}

	m.Log.Debug().
		Uint32("service_id", uint32(leg.ServiceID)).
		Str("train_number", trainNumber).
		Int("journeys", res.Journeys).
		Int("events", res.Events).
		Msg("leg materialized")

	res.Outcome = OutcomeCommitted
	return res, nil
}

// TimetableYear is the year the delivery's validity window ends in.
func (m *Materializer) TimetableYear() string {
	return strconv.Itoa(m.Identification.LastValid.Year())
}

func queryID(ctx context.Context, exec Executor, st Statement) (uuid.UUID, error) {
	id, err := exec.QueryID(ctx, st)
	if err != nil {
		return uuid.Nil, &StatementError{Statement: st, Err: err}
	}
	return id, nil
}
