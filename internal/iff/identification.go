package iff

import (
	"fmt"
	"strings"
	"time"
)

// Identification is the header record shared by every file of one delivery.
type Identification struct {
	CompanyNumber string
	FirstValid    time.Time
	LastValid     time.Time
	VersionNumber string
	Description   string
}

// DaysValid returns the number of calendar days in the inclusive validity window.
func (i Identification) DaysValid() int {
	return int(i.LastValid.Sub(i.FirstValid).Hours()/24) + 1
}

// Contains reports whether date falls inside the validity window.
func (i Identification) Contains(date time.Time) bool {
	return !date.Before(i.FirstValid) && !date.After(i.LastValid)
}

// dayIndex returns the 0-based offset of date from FirstValid.
func (i Identification) dayIndex(date time.Time) int {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(i.FirstValid).Hours() / 24)
}

// ParseIdentification parses an "@company,DDMMYYYY,DDMMYYYY,version,description" line.
func ParseIdentification(input string) (Identification, string, error) {
	const record = "identification"

	body, rest, err := recordLine(input, '@', record)
	if err != nil {
		return Identification{}, input, err
	}
	fields, err := splitFields(body, 5)
	if err != nil {
		return Identification{}, input, parseErr(record, body, err)
	}

	companyNumber := strings.TrimSpace(fields[0])
	if !isDigits(companyNumber) {
		return Identification{}, input, parseErr(record, body, fmt.Errorf("invalid company number %q", fields[0]))
	}
	firstValid, err := parseDate(fields[1])
	if err != nil {
		return Identification{}, input, parseErr(record, body, err)
	}
	lastValid, err := parseDate(fields[2])
	if err != nil {
		return Identification{}, input, parseErr(record, body, err)
	}
	if lastValid.Before(firstValid) {
		return Identification{}, input, parseErr(record, body, fmt.Errorf("validity ends before it starts"))
	}
	version := strings.TrimSpace(fields[3])
	if !isDigits(version) {
		return Identification{}, input, parseErr(record, body, fmt.Errorf("invalid version number %q", fields[3]))
	}

	return Identification{
		CompanyNumber: companyNumber,
		FirstValid:    firstValid,
		LastValid:     lastValid,
		VersionNumber: version,
		Description:   strings.TrimSpace(fields[4]),
	}, rest, nil
}
