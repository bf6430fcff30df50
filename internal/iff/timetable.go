package iff

import (
	"errors"
	"fmt"
	"strings"
)

// Footnotes is a parsed footnote file indexed by footnote id.
type Footnotes struct {
	Identification Identification
	Data           []Footnote

	byID map[uint32]int
}

func NewFootnotes(ident Identification, data []Footnote) *Footnotes {
	f := &Footnotes{Identification: ident, Data: data, byID: make(map[uint32]int, len(data))}
	for i, fn := range data {
		if _, dup := f.byID[fn.ID]; !dup {
			f.byID[fn.ID] = i
		}
	}
	return f
}

// ByID looks up a footnote. Id 0 always resolves to the synthetic
// every-day footnote, whatever the file contains.
func (f *Footnotes) ByID(id uint32) (Footnote, bool) {
	if id == 0 {
		return AlwaysValid(f.Identification), true
	}
	i, ok := f.byID[id]
	if !ok {
		return Footnote{}, false
	}
	return f.Data[i], true
}

// Timetable is a parsed timetable file.
type Timetable struct {
	Identification Identification
	Services       []Service
}

// cursor tracks the unparsed input and the 1-based line it starts on.
type cursor struct {
	input string
	line  int
}

func newCursor(input string) *cursor {
	return &cursor{input: input, line: 1}
}

func (c *cursor) done() bool { return c.input == "" }

// step runs parse at the cursor and advances past what it consumed.
func step[T any](c *cursor, parse func(string) (T, string, error)) (T, error) {
	v, rest, err := parse(c.input)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) && pe.Line == 0 {
			pe.Line = c.line
		}
		return v, err
	}
	c.line += strings.Count(c.input[:len(c.input)-len(rest)], "\n")
	c.input = rest
	return v, nil
}

// try is step for optional records: on failure the cursor is left untouched.
func try[T any](c *cursor, parse func(string) (T, string, error)) (T, bool) {
	v, err := step(c, parse)
	return v, err == nil
}

func (c *cursor) residual(record string) error {
	line, _, _ := cutLine(c.input)
	return &ParseError{Line: c.line, Record: record, Input: line, Err: ErrResidualInput}
}

// ParseCompanyFile parses a whole company file.
func ParseCompanyFile(input string) (*Companies, error) {
	c := newCursor(input)
	ident, err := step(c, ParseIdentification)
	if err != nil {
		return nil, err
	}
	var companies []Company
	for !c.done() {
		company, ok := try(c, ParseCompany)
		if !ok {
			return nil, c.residual("company")
		}
		companies = append(companies, company)
	}
	return NewCompanies(ident, companies), nil
}

// ParseFootnoteFile parses a whole footnote file. Every vector must cover
// exactly the identification's validity window.
func ParseFootnoteFile(input string) (*Footnotes, error) {
	c := newCursor(input)
	ident, err := step(c, ParseIdentification)
	if err != nil {
		return nil, err
	}
	days := ident.DaysValid()

	var footnotes []Footnote
	for !c.done() {
		line := c.line
		fn, ok := try(c, ParseFootnote)
		if !ok {
			return nil, c.residual("footnote")
		}
		if len(fn.Vector) != days {
			return nil, &ParseError{
				Line:   line,
				Record: "footnote",
				Input:  fmt.Sprintf("#%05d", fn.ID),
				Err:    fmt.Errorf("vector covers %d days, validity window has %d", len(fn.Vector), days),
			}
		}
		footnotes = append(footnotes, fn)
	}
	return NewFootnotes(ident, footnotes), nil
}

// ParseTimetableFile parses a whole timetable file into services.
func ParseTimetableFile(input string) (*Timetable, error) {
	c := newCursor(input)
	ident, err := step(c, ParseIdentification)
	if err != nil {
		return nil, err
	}

	tt := &Timetable{Identification: ident}
	for !c.done() {
		id, ok := try(c, ParseServiceID)
		if !ok {
			return nil, c.residual("service identification")
		}
		svc, err := parseService(c, id)
		if err != nil {
			return nil, err
		}
		tt.Services = append(tt.Services, svc)
	}
	return tt, nil
}

func parseService(c *cursor, id ServiceID) (Service, error) {
	svc := Service{ID: id}

	for {
		n, ok := try(c, ParseServiceNumber)
		if !ok {
			break
		}
		svc.Numbers = append(svc.Numbers, n)
	}
	if len(svc.Numbers) == 0 {
		_, err := step(c, ParseServiceNumber)
		return Service{}, err
	}

	var err error
	if svc.Validity, err = step(c, ParseValidity); err != nil {
		return Service{}, err
	}
	if svc.TransportMode, err = step(c, ParseTransportMode); err != nil {
		return Service{}, err
	}
	for {
		a, ok := try(c, ParseAttribute)
		if !ok {
			break
		}
		svc.Attributes = append(svc.Attributes, a)
	}

	for {
		ev, ok := try(c, ParseStationEvent)
		if !ok {
			break
		}
		call := Call{Event: ev}
		if p, ok := try(c, ParsePlatformInfo); ok {
			call.Platform = &p
		}
		svc.Calls = append(svc.Calls, call)
	}
	if len(svc.Calls) == 0 {
		_, err := step(c, ParseStationEvent)
		return Service{}, err
	}
	return svc, nil
}
