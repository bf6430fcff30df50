package journey

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"timetable-importer/internal/iff"
)

// Statement names, used in logs and errors.
const (
	ServiceUpsertName       = "service_upsert"
	JourneyUpsertName       = "journey_upsert"
	JourneyEventsUpsertName = "journey_events_upsert"
)

// Statement is one parameterized SQL statement.
type Statement struct {
	Name string
	SQL  string
	Args []any
}

// Service is the train-number row a leg resolves to.
type Service struct {
	TrainNumber   string
	TimetableYear string
	Type          string
	Provider      string
}

// Journey is one calendar-day run of a service.
type Journey struct {
	ServiceID  uuid.UUID
	RunningOn  time.Time
	Attributes []string
	SourceIDs  []string
}

// Event is one planned call of a journey. Optional columns are nil when absent.
type Event struct {
	Station           string
	EventType         string
	StopOrder         int
	ArrivalTime       *string
	ArrivalPlatform   *string
	DepartureTime     *string
	DeparturePlatform *string
	Attributes        []string
}

const serviceUpsertSQL = `
INSERT INTO service (train_number, timetable_year, type, provider)
VALUES ($1, $2, $3, $4)
ON CONFLICT (train_number, timetable_year) DO UPDATE SET train_number = excluded.train_number
RETURNING id`

// ServiceUpsert inserts or fetches the service row. The no-op update makes
// RETURNING yield the existing id on conflict.
func ServiceUpsert(s Service) Statement {
	return Statement{
		Name: ServiceUpsertName,
		SQL:  serviceUpsertSQL,
		Args: []any{s.TrainNumber, s.TimetableYear, s.Type, s.Provider},
	}
}

const journeyUpsertSQL = `
INSERT INTO journey (service_id, running_on, attributes, source_ids)
VALUES ($1, $2, $3, $4)
ON CONFLICT (service_id, running_on) DO UPDATE SET
  attributes = excluded.attributes,
  source_ids = ARRAY(SELECT DISTINCT unnest(array_cat(journey.source_ids, excluded.source_ids)))
RETURNING id`

// JourneyUpsert inserts a journey or, on conflict, replaces its attributes
// and merges the provenance ids.
func JourneyUpsert(j Journey) Statement {
	return Statement{
		Name: JourneyUpsertName,
		SQL:  journeyUpsertSQL,
		Args: []any{j.ServiceID, j.RunningOn.Format(time.DateOnly), textArray(j.Attributes), j.SourceIDs},
	}
}

var journeyEventColumns = []string{
	"journey_id",
	"station",
	"event_type_planned",
	"stop_order",
	"arrival_time_planned",
	"arrival_platform_planned",
	"departure_time_planned",
	"departure_platform_planned",
	"attributes",
}

const journeyEventConflict = `
ON CONFLICT (journey_id, stop_order) DO UPDATE SET
  station = excluded.station,
  event_type_planned = excluded.event_type_planned,
  arrival_time_planned = excluded.arrival_time_planned,
  arrival_platform_planned = excluded.arrival_platform_planned,
  departure_time_planned = excluded.departure_time_planned,
  departure_platform_planned = excluded.departure_platform_planned,
  attributes = excluded.attributes`

// JourneyEventsUpsert writes every event of one journey in a single
// multi-row statement. Existing rows are overwritten per stop.
func JourneyEventsUpsert(journeyID uuid.UUID, events []Event) Statement {
	var sb strings.Builder
	sb.WriteString("\nINSERT INTO journey_event (")
	sb.WriteString(strings.Join(journeyEventColumns, ", "))
	sb.WriteString(")\nVALUES ")

	width := len(journeyEventColumns)
	args := make([]any, 0, len(events)*width)
	for i, e := range events {
		if i > 0 {
			sb.WriteString(",\n       ")
		}
		sb.WriteByte('(')
		for c := 0; c < width; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*width+c+1)
		}
		sb.WriteByte(')')

		args = append(args,
			journeyID,
			e.Station,
			e.EventType,
			e.StopOrder,
			nullable(e.ArrivalTime),
			nullable(e.ArrivalPlatform),
			nullable(e.DepartureTime),
			nullable(e.DeparturePlatform),
			textArray(e.Attributes),
		)
	}
	sb.WriteString(journeyEventConflict)

	return Statement{Name: JourneyEventsUpsertName, SQL: sb.String(), Args: args}
}

// Events derives the planned events of a leg. Stop order counts every call,
// passage points included.
func Events(leg iff.ServiceLeg) []Event {
	events := make([]Event, 0, len(leg.Calls))
	for i, call := range leg.Calls {
		e := Event{
			Station:       call.Event.Station,
			EventType:     call.Event.Type.String(),
			StopOrder:     i,
			ArrivalTime:   clock(call.Event.ArrivalTime),
			DepartureTime: clock(call.Event.DepartureTime),
			Attributes:    leg.StopAttributes(i),
		}
		if call.Platform != nil {
			e.ArrivalPlatform = platform(call.Platform.ArrivalPlatform)
			e.DeparturePlatform = platform(call.Platform.DeparturePlatform)
		}
		events = append(events, e)
	}
	return events
}

func clock(c *iff.Clock) *string {
	if c == nil {
		return nil
	}
	s := c.String()
	return &s
}

func platform(p string) *string {
	if p == "" {
		return nil
	}
	return &p
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func textArray(codes []string) any {
	if len(codes) == 0 {
		return nil
	}
	return codes
}
