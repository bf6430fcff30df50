package iff

import (
	"fmt"
	"strings"
)

// ServiceID is the per-file identifier of one raw service.
type ServiceID uint32

// ServiceNumber is one operational number of a service, applying to the
// 1-based non-passage stop range [FirstStop, LastStop].
type ServiceNumber struct {
	CompanyNumber uint32
	Number        uint32
	Variant       *string
	FirstStop     uint32
	LastStop      uint32
	Name          *string
}

// TrainNumber returns the public train number: the numeric number when
// non-zero, otherwise the variant.
func (n ServiceNumber) TrainNumber() (string, bool) {
	if n.Number != 0 {
		return fmt.Sprintf("%d", n.Number), true
	}
	if n.Variant != nil {
		return *n.Variant, true
	}
	return "", false
}

// Validity links a service to its footnote calendar.
type Validity struct {
	Footnote  uint32
	FirstStop uint32
	LastStop  uint32
}

type TransportMode struct {
	Code      string
	FirstStop uint32
	LastStop  uint32
}

type Attribute struct {
	Code      string
	FirstStop uint32
	LastStop  uint32
	Footnote  uint32
}

// Covers reports whether the attribute range includes stop.
func (a Attribute) Covers(stop int) bool {
	return stop >= int(a.FirstStop) && stop <= int(a.LastStop)
}

type PlatformInfo struct {
	ArrivalPlatform   string
	DeparturePlatform string
	Footnote          uint32
}

func ParseServiceID(input string) (ServiceID, string, error) {
	const record = "service identification"

	body, rest, err := recordLine(input, '#', record)
	if err != nil {
		return 0, input, err
	}
	id, err := parseUint(body)
	if err != nil {
		return 0, input, parseErr(record, body, err)
	}
	return ServiceID(id), rest, nil
}

// ParseServiceNumber parses "%company,number,variant,first,last,name". The
// name runs to the end of the line and may contain commas.
func ParseServiceNumber(input string) (ServiceNumber, string, error) {
	const record = "service number"

	body, rest, err := recordLine(input, '%', record)
	if err != nil {
		return ServiceNumber{}, input, err
	}
	fields, err := splitFields(body, 6)
	if err != nil {
		return ServiceNumber{}, input, parseErr(record, body, err)
	}

	var nums [4]uint32
	for i, idx := range []int{0, 1, 3, 4} {
		if nums[i], err = parseUint(fields[idx]); err != nil {
			return ServiceNumber{}, input, parseErr(record, body, err)
		}
	}

	return ServiceNumber{
		CompanyNumber: nums[0],
		Number:        nums[1],
		Variant:       optional(fields[2]),
		FirstStop:     nums[2],
		LastStop:      nums[3],
		Name:          optional(fields[5]),
	}, rest, nil
}

func ParseValidity(input string) (Validity, string, error) {
	const record = "validity"

	body, rest, err := recordLine(input, '-', record)
	if err != nil {
		return Validity{}, input, err
	}
	nums, err := uintFields(body, 3)
	if err != nil {
		return Validity{}, input, parseErr(record, body, err)
	}
	return Validity{Footnote: nums[0], FirstStop: nums[1], LastStop: nums[2]}, rest, nil
}

func ParseTransportMode(input string) (TransportMode, string, error) {
	const record = "transport mode"

	body, rest, err := recordLine(input, '&', record)
	if err != nil {
		return TransportMode{}, input, err
	}
	code, tail, found := strings.Cut(body, ",")
	if !found {
		return TransportMode{}, input, parseErr(record, body, errFieldCount)
	}
	nums, err := uintFields(tail, 2)
	if err != nil {
		return TransportMode{}, input, parseErr(record, body, err)
	}
	return TransportMode{Code: strings.TrimSpace(code), FirstStop: nums[0], LastStop: nums[1]}, rest, nil
}

func ParseAttribute(input string) (Attribute, string, error) {
	const record = "attribute"

	body, rest, err := recordLine(input, '*', record)
	if err != nil {
		return Attribute{}, input, err
	}
	code, tail, found := strings.Cut(body, ",")
	if !found {
		return Attribute{}, input, parseErr(record, body, errFieldCount)
	}
	nums, err := uintFields(tail, 3)
	if err != nil {
		return Attribute{}, input, parseErr(record, body, err)
	}
	return Attribute{
		Code:      strings.TrimSpace(code),
		FirstStop: nums[0],
		LastStop:  nums[1],
		Footnote:  nums[2],
	}, rest, nil
}

func ParsePlatformInfo(input string) (PlatformInfo, string, error) {
	const record = "platform info"

	body, rest, err := recordLine(input, '?', record)
	if err != nil {
		return PlatformInfo{}, input, err
	}
	fields, err := splitFields(body, 3)
	if err != nil {
		return PlatformInfo{}, input, parseErr(record, body, err)
	}
	footnote, err := parseUint(fields[2])
	if err != nil {
		return PlatformInfo{}, input, parseErr(record, body, err)
	}
	return PlatformInfo{
		ArrivalPlatform:   strings.TrimSpace(fields[0]),
		DeparturePlatform: strings.TrimSpace(fields[1]),
		Footnote:          footnote,
	}, rest, nil
}

func uintFields(body string, n int) ([]uint32, error) {
	fields, err := splitFields(body, n)
	if err != nil {
		return nil, err
	}
	nums := make([]uint32, n)
	for i, f := range fields {
		if nums[i], err = parseUint(f); err != nil {
			return nil, err
		}
	}
	return nums, nil
}
