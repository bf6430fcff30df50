package iff

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	errEmptyInput = errors.New("unexpected end of input")
	errSigil      = errors.New("unexpected record sigil")
	errFieldCount = errors.New("wrong number of fields")
)

// Clock is a wall-clock time of day as printed in the feed, minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// String renders the clock in the HH:MM:SS form Postgres accepts for time columns.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:00", c.Hour, c.Minute)
}

// cutLine splits off the first line of input. Both \r\n and \n terminate a
// line; a last line without a terminator is accepted.
func cutLine(input string) (line, rest string, ok bool) {
	if input == "" {
		return "", "", false
	}
	idx := strings.IndexByte(input, '\n')
	if idx < 0 {
		return strings.TrimSuffix(input, "\r"), "", true
	}
	return strings.TrimSuffix(input[:idx], "\r"), input[idx+1:], true
}

// recordLine cuts the next line and checks that it starts with sigil. The
// returned body excludes the sigil.
func recordLine(input string, sigil byte, record string) (body, rest string, err error) {
	line, rest, ok := cutLine(input)
	if !ok {
		return "", input, parseErr(record, "", errEmptyInput)
	}
	if len(line) == 0 || line[0] != sigil {
		return "", input, parseErr(record, line, errSigil)
	}
	return line[1:], rest, nil
}

// splitFields splits a comma separated record body into exactly n fields; the
// last field keeps any further commas.
func splitFields(body string, n int) ([]string, error) {
	fields := strings.SplitN(body, ",", n)
	if len(fields) != n {
		return nil, fmt.Errorf("%w: want %d, got %d", errFieldCount, n, len(fields))
	}
	return fields, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func parseUint(field string) (uint32, error) {
	s := strings.TrimSpace(field)
	if !isDigits(s) {
		return 0, fmt.Errorf("invalid number %q", field)
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", field, err)
	}
	return uint32(v), nil
}

// parseDate decodes a fixed DDMMYYYY token into a UTC date.
func parseDate(field string) (time.Time, error) {
	if len(field) != 8 || !isDigits(field) {
		return time.Time{}, fmt.Errorf("invalid date %q", field)
	}
	day, _ := strconv.Atoi(field[0:2])
	month, _ := strconv.Atoi(field[2:4])
	year, _ := strconv.Atoi(field[4:8])

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day || int(date.Month()) != month || date.Year() != year {
		return time.Time{}, fmt.Errorf("invalid calendar date %q", field)
	}
	return date, nil
}

// parseClock decodes a fixed HHMM token. Hours past 23 denote the next
// operating day; they wrap modulo 24 and the date is not advanced.
func parseClock(field string) (Clock, error) {
	if len(field) != 4 || !isDigits(field) {
		return Clock{}, fmt.Errorf("invalid time %q", field)
	}
	hour, _ := strconv.Atoi(field[0:2])
	minute, _ := strconv.Atoi(field[2:4])
	if minute > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", field)
	}
	return Clock{Hour: hour % 24, Minute: minute}, nil
}

// optional trims a padded text field; blank fields are absent.
func optional(field string) *string {
	s := strings.TrimSpace(field)
	if s == "" {
		return nil
	}
	return &s
}
