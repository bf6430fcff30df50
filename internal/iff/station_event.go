package iff

import (
	"fmt"
	"strings"
)

// StopType is the kind of call a train makes at a station.
type StopType uint8

const (
	Departure StopType = iota
	ShortStop
	LongerStop
	Passage
	Arrival
)

func (t StopType) String() string {
	switch t {
	case Departure:
		return "DEPARTURE"
	case ShortStop:
		return "SHORT_STOP"
	case LongerStop:
		return "LONGER_STOP"
	case Passage:
		return "PASSAGE"
	case Arrival:
		return "ARRIVAL"
	default:
		return fmt.Sprintf("StopType(%d)", uint8(t))
	}
}

// StationEvent is one point on the route, including passage points.
type StationEvent struct {
	Type          StopType
	Station       string
	ArrivalTime   *Clock
	DepartureTime *Clock
}

// AsArrival returns an arrival-only copy of e.
func (e StationEvent) AsArrival() (StationEvent, error) {
	if e.ArrivalTime == nil {
		return StationEvent{}, fmt.Errorf("%w: no arrival at %s", ErrMissingBoundaryTime, e.Station)
	}
	at := *e.ArrivalTime
	return StationEvent{Type: Arrival, Station: e.Station, ArrivalTime: &at}, nil
}

// AsDeparture returns a departure-only copy of e.
func (e StationEvent) AsDeparture() (StationEvent, error) {
	if e.DepartureTime == nil {
		return StationEvent{}, fmt.Errorf("%w: no departure at %s", ErrMissingBoundaryTime, e.Station)
	}
	dt := *e.DepartureTime
	return StationEvent{Type: Departure, Station: e.Station, DepartureTime: &dt}, nil
}

var stopSigils = map[byte]StopType{
	'>': Departure,
	'.': ShortStop,
	'+': LongerStop,
	'<': Arrival,
	';': Passage,
}

// ParseStationEvent parses one of ">st,HHMM", ".st,HHMM", "+st,HHMM,HHMM",
// "<st,HHMM" or ";st".
func ParseStationEvent(input string) (StationEvent, string, error) {
	const record = "station event"

	line, rest, ok := cutLine(input)
	if !ok {
		return StationEvent{}, input, parseErr(record, "", errEmptyInput)
	}
	if line == "" {
		return StationEvent{}, input, parseErr(record, line, errSigil)
	}
	stopType, known := stopSigils[line[0]]
	if !known {
		return StationEvent{}, input, parseErr(record, line, errSigil)
	}
	body := line[1:]

	if stopType == Passage {
		return StationEvent{Type: Passage, Station: strings.TrimSpace(body)}, rest, nil
	}

	n := 2
	if stopType == LongerStop {
		n = 3
	}
	fields, err := splitFields(body, n)
	if err != nil {
		return StationEvent{}, input, parseErr(record, body, err)
	}
	clocks := make([]Clock, 0, 2)
	for _, f := range fields[1:] {
		c, err := parseClock(strings.TrimSpace(f))
		if err != nil {
			return StationEvent{}, input, parseErr(record, body, err)
		}
		clocks = append(clocks, c)
	}

	ev := StationEvent{Type: stopType, Station: strings.TrimSpace(fields[0])}
	switch stopType {
	case Departure:
		ev.DepartureTime = &clocks[0]
	case Arrival:
		ev.ArrivalTime = &clocks[0]
	case ShortStop:
		at, dt := clocks[0], clocks[0]
		ev.ArrivalTime, ev.DepartureTime = &at, &dt
	case LongerStop:
		ev.ArrivalTime, ev.DepartureTime = &clocks[0], &clocks[1]
	}
	return ev, rest, nil
}
