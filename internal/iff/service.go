package iff

import (
	"fmt"
	"slices"
)

// Call is a station event with its optional platform record.
type Call struct {
	Event    StationEvent
	Platform *PlatformInfo
}

// Calls is the ordered route of a service, passage points included. Stop
// numbering only counts non-passage calls.
type Calls []Call

// NumStops returns the number of non-passage calls.
func (c Calls) NumStops() int {
	n := 0
	for _, call := range c {
		if call.Event.Type != Passage {
			n++
		}
	}
	return n
}

// Stops returns the non-passage calls in route order.
func (c Calls) Stops() []Call {
	stops := make([]Call, 0, len(c))
	for _, call := range c {
		if call.Event.Type != Passage {
			stops = append(stops, call)
		}
	}
	return stops
}

// StopNumber returns the 0-based position of call i among the non-passage
// calls. ok is false for passage points and out of range indexes.
func (c Calls) StopNumber(i int) (int, bool) {
	if i < 0 || i >= len(c) || c[i].Event.Type == Passage {
		return 0, false
	}
	n := 0
	for _, call := range c[:i] {
		if call.Event.Type != Passage {
			n++
		}
	}
	return n, true
}

// stopIndex returns the index in c of the k-th (1-based) non-passage call.
func (c Calls) stopIndex(k int) (int, bool) {
	if k < 1 {
		return 0, false
	}
	seen := 0
	for i, call := range c {
		if call.Event.Type == Passage {
			continue
		}
		seen++
		if seen == k {
			return i, true
		}
	}
	return 0, false
}

// Service is one raw service as it appears in the timetable file.
type Service struct {
	ID            ServiceID
	Numbers       []ServiceNumber
	Validity      Validity
	TransportMode TransportMode
	Attributes    []Attribute
	Calls         Calls
}

// ServiceLeg is one operationally numbered part of a service.
type ServiceLeg struct {
	ServiceID     ServiceID
	Number        ServiceNumber
	Validity      Validity
	TransportMode TransportMode
	Attributes    []Attribute
	Calls         Calls
}

// SplitLegs divides the service into one leg per service number. A through
// service with two numbers is cut at the last stop of the first number; the
// boundary stop becomes an arrival closing the first leg and a departure
// opening the second.
func (s Service) SplitLegs() ([]ServiceLeg, error) {
	switch len(s.Numbers) {
	case 1:
		return []ServiceLeg{s.leg(0, slices.Clone(s.Calls))}, nil
	case 2:
	default:
		return nil, fmt.Errorf("%w: service %d has %d", ErrUnsupportedLegCount, s.ID, len(s.Numbers))
	}

	k := int(s.Numbers[0].LastStop)
	idx, ok := s.Calls.stopIndex(k)
	if !ok {
		return nil, fmt.Errorf("%w: service %d stop %d of %d", ErrBoundaryOutOfRange, s.ID, k, s.Calls.NumStops())
	}

	boundary := s.Calls[idx]
	arrival, err := boundary.Event.AsArrival()
	if err != nil {
		return nil, fmt.Errorf("service %d: %w", s.ID, err)
	}
	departure, err := boundary.Event.AsDeparture()
	if err != nil {
		return nil, fmt.Errorf("service %d: %w", s.ID, err)
	}

	first := make(Calls, 0, idx+1)
	first = append(first, s.Calls[:idx]...)
	first = append(first, Call{Event: arrival, Platform: clonePlatform(boundary.Platform)})

	second := make(Calls, 0, len(s.Calls)-idx)
	second = append(second, Call{Event: departure, Platform: clonePlatform(boundary.Platform)})
	second = append(second, s.Calls[idx+1:]...)

	return []ServiceLeg{s.leg(0, first), s.leg(1, second)}, nil
}

func (s Service) leg(n int, calls Calls) ServiceLeg {
	return ServiceLeg{
		ServiceID:     s.ID,
		Number:        s.Numbers[n],
		Validity:      s.Validity,
		TransportMode: s.TransportMode,
		Attributes:    slices.Clone(s.Attributes),
		Calls:         calls,
	}
}

func clonePlatform(p *PlatformInfo) *PlatformInfo {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// PartitionAttributes separates attributes spanning every stop of the leg
// from those scoped to a stop range.
func (l ServiceLeg) PartitionAttributes() (journey, stop []Attribute) {
	n := l.Calls.NumStops()
	for _, a := range l.Attributes {
		if a.FirstStop == 1 && int(a.LastStop) == n {
			journey = append(journey, a)
		} else {
			stop = append(stop, a)
		}
	}
	return journey, stop
}

// JourneyAttributes returns the codes of the attributes spanning the whole leg.
func (l ServiceLeg) JourneyAttributes() []string {
	journey, _ := l.PartitionAttributes()
	return attributeCodes(journey, func(Attribute) bool { return true })
}

// StopAttributes returns the codes of the stop-scoped attributes whose range
// contains the stop number of call i. Passage points carry none.
//
// The stop number is 0-based while attribute ranges are 1-based; the
// comparison is made on the raw values.
func (l ServiceLeg) StopAttributes(i int) []string {
	stopNo, ok := l.Calls.StopNumber(i)
	if !ok {
		return nil
	}
	_, scoped := l.PartitionAttributes()
	return attributeCodes(scoped, func(a Attribute) bool { return a.Covers(stopNo) })
}

func attributeCodes(attrs []Attribute, keep func(Attribute) bool) []string {
	var codes []string
	for _, a := range attrs {
		if keep(a) {
			codes = append(codes, a.Code)
		}
	}
	return codes
}
