// Package journeytest provides an in-memory store that applies journey
// statements with the same conflict semantics as the Postgres schema.
package journeytest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"timetable-importer/internal/journey"
)

var ErrTxDone = errors.New("transaction already finished")

type ServiceRow struct {
	ID            uuid.UUID
	TrainNumber   string
	TimetableYear string
	Type          string
	Provider      string
}

type JourneyRow struct {
	ID         uuid.UUID
	ServiceID  uuid.UUID
	RunningOn  string
	Attributes []string
	SourceIDs  []string
}

type EventRow struct {
	JourneyID uuid.UUID
	journey.Event
}

type serviceKey struct{ trainNumber, year string }

type journeyKey struct {
	serviceID uuid.UUID
	runningOn string
}

type eventKey struct {
	journeyID uuid.UUID
	stopOrder int
}

type state struct {
	services map[serviceKey]ServiceRow
	journeys map[journeyKey]JourneyRow
	events   map[eventKey]EventRow
}

func (s state) clone() state {
	c := state{
		services: make(map[serviceKey]ServiceRow, len(s.services)),
		journeys: make(map[journeyKey]JourneyRow, len(s.journeys)),
		events:   make(map[eventKey]EventRow, len(s.events)),
	}
	for k, v := range s.services {
		c.services[k] = v
	}
	for k, v := range s.journeys {
		c.journeys[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

// MemStore is a transactional in-memory database. Transactions are
// serialized: Begin blocks until the previous one finishes.
type MemStore struct {
	// FailOn, when set, is consulted before every statement; a non-nil
	// return fails that statement.
	FailOn func(journey.Statement) error

	mu      sync.Mutex
	txMu    sync.Mutex
	data    state
	commits int
}

func NewMemStore() *MemStore {
	return &MemStore{data: state{}.clone()}
}

func (s *MemStore) Begin(ctx context.Context) (journey.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.txMu.Lock()
	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()
	return &MemTx{store: s, data: snapshot}, nil
}

// Services returns the committed service rows.
func (s *MemStore) Services() []ServiceRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]ServiceRow, 0, len(s.data.services))
	for _, r := range s.data.services {
		rows = append(rows, r)
	}
	return rows
}

// Journeys returns the committed journey rows.
func (s *MemStore) Journeys() []JourneyRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]JourneyRow, 0, len(s.data.journeys))
	for _, r := range s.data.journeys {
		rows = append(rows, r)
	}
	return rows
}

// Events returns the committed journey event rows.
func (s *MemStore) Events() []EventRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]EventRow, 0, len(s.data.events))
	for _, r := range s.data.events {
		rows = append(rows, r)
	}
	return rows
}

func (s *MemStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// MemTx works on a private copy of the store, published on Commit.
type MemTx struct {
	store *MemStore
	data  state
	done  bool
}

func (tx *MemTx) QueryID(ctx context.Context, st journey.Statement) (uuid.UUID, error) {
	if err := tx.check(st); err != nil {
		return uuid.Nil, err
	}
	switch st.Name {
	case journey.ServiceUpsertName:
		return tx.upsertService(st.Args)
	case journey.JourneyUpsertName:
		return tx.upsertJourney(st.Args)
	default:
		return uuid.Nil, fmt.Errorf("statement %s returns no id", st.Name)
	}
}

func (tx *MemTx) Exec(ctx context.Context, st journey.Statement) error {
	if err := tx.check(st); err != nil {
		return err
	}
	if st.Name != journey.JourneyEventsUpsertName {
		return fmt.Errorf("unsupported statement %s", st.Name)
	}
	return tx.upsertEvents(st.Args)
}

func (tx *MemTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	tx.store.mu.Lock()
	tx.store.data = tx.data
	tx.store.commits++
	tx.store.mu.Unlock()
	tx.store.txMu.Unlock()
	return nil
}

func (tx *MemTx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	tx.store.txMu.Unlock()
	return nil
}

func (tx *MemTx) check(st journey.Statement) error {
	if tx.done {
		return ErrTxDone
	}
	if tx.store.FailOn != nil {
		return tx.store.FailOn(st)
	}
	return nil
}

func (tx *MemTx) upsertService(args []any) (uuid.UUID, error) {
	if len(args) != 4 {
		return uuid.Nil, fmt.Errorf("service upsert: %d args", len(args))
	}
	row := ServiceRow{
		TrainNumber:   args[0].(string),
		TimetableYear: args[1].(string),
		Type:          args[2].(string),
		Provider:      args[3].(string),
	}
	key := serviceKey{row.TrainNumber, row.TimetableYear}
	if existing, ok := tx.data.services[key]; ok {
		return existing.ID, nil
	}
	row.ID = uuid.New()
	tx.data.services[key] = row
	return row.ID, nil
}

func (tx *MemTx) upsertJourney(args []any) (uuid.UUID, error) {
	if len(args) != 4 {
		return uuid.Nil, fmt.Errorf("journey upsert: %d args", len(args))
	}
	row := JourneyRow{
		ServiceID:  args[0].(uuid.UUID),
		RunningOn:  args[1].(string),
		Attributes: stringSlice(args[2]),
		SourceIDs:  stringSlice(args[3]),
	}
	key := journeyKey{row.ServiceID, row.RunningOn}
	if existing, ok := tx.data.journeys[key]; ok {
		existing.Attributes = row.Attributes
		existing.SourceIDs = slices.Clone(existing.SourceIDs)
		for _, id := range row.SourceIDs {
			if !slices.Contains(existing.SourceIDs, id) {
				existing.SourceIDs = append(existing.SourceIDs, id)
			}
		}
		tx.data.journeys[key] = existing
		return existing.ID, nil
	}
	row.ID = uuid.New()
	tx.data.journeys[key] = row
	return row.ID, nil
}

func (tx *MemTx) upsertEvents(args []any) error {
	const width = 9
	if len(args) == 0 || len(args)%width != 0 {
		return fmt.Errorf("journey events upsert: %d args", len(args))
	}
	for i := 0; i < len(args); i += width {
		a := args[i : i+width]
		row := EventRow{
			JourneyID: a[0].(uuid.UUID),
			Event: journey.Event{
				Station:           a[1].(string),
				EventType:         a[2].(string),
				StopOrder:         a[3].(int),
				ArrivalTime:       optional(a[4]),
				ArrivalPlatform:   optional(a[5]),
				DepartureTime:     optional(a[6]),
				DeparturePlatform: optional(a[7]),
				Attributes:        stringSlice(a[8]),
			},
		}
		tx.data.events[eventKey{row.JourneyID, row.StopOrder}] = row
	}
	return nil
}

func stringSlice(v any) []string {
	if v == nil {
		return nil
	}
	return slices.Clone(v.([]string))
}

func optional(v any) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}
