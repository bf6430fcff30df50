package iff

import (
	"errors"
	"fmt"
)

var (
	// ErrResidualInput is returned when a file parser stops before the end of its input.
	ErrResidualInput = errors.New("unconsumed input after last record")

	ErrUnsupportedLegCount = errors.New("unsupported number of service numbers")
	ErrBoundaryOutOfRange  = errors.New("leg boundary stop out of range")
	ErrMissingBoundaryTime = errors.New("boundary stop lacks arrival or departure time")
)

// ParseError describes a record that could not be decoded. Line is 1-based and
// only set by the file parsers; record parsers leave it at zero.
type ParseError struct {
	Line   int
	Record string
	Input  string
	Err    error
}

func (e *ParseError) Error() string {
	input := e.Input
	if len(input) > 60 {
		input = input[:60] + "..."
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: parse %s %q: %v", e.Line, e.Record, input, e.Err)
	}
	return fmt.Sprintf("parse %s %q: %v", e.Record, input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErr(record, input string, err error) *ParseError {
	return &ParseError{Record: record, Input: input, Err: err}
}
