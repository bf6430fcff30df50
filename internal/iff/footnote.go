package iff

import (
	"fmt"
	"iter"
	"time"
)

// Footnote is a per-day operating calendar. Vector[i] covers FirstValid+i days
// of the owning identification.
type Footnote struct {
	ID     uint32
	Vector []bool
}

// AlwaysValid returns the synthetic footnote 0, running on every day of ident.
func AlwaysValid(ident Identification) Footnote {
	vector := make([]bool, ident.DaysValid())
	for i := range vector {
		vector[i] = true
	}
	return Footnote{ID: 0, Vector: vector}
}

// IsValidOn reports whether the footnote runs on date.
func (f Footnote) IsValidOn(date time.Time, ident Identification) bool {
	if !ident.Contains(date) {
		return false
	}
	idx := ident.dayIndex(date)
	if idx < 0 || idx >= len(f.Vector) {
		return false
	}
	return f.Vector[idx]
}

// ValidDates returns a cursor over every day covered by the vector.
func (f Footnote) ValidDates(ident Identification) *DateIter {
	return &DateIter{vector: f.Vector, first: ident.FirstValid}
}

// RunningDates returns only the days the footnote runs on, in order.
func (f Footnote) RunningDates(ident Identification) []time.Time {
	var dates []time.Time
	it := f.ValidDates(ident)
	for day, ok := it.Next(); ok; day, ok = it.Next() {
		if day.Running {
			dates = append(dates, day.Date)
		}
	}
	return dates
}

// Day is one element of a footnote calendar. Date is zero when Running is false.
type Day struct {
	Date    time.Time
	Running bool
}

// DateIter walks a footnote vector one calendar day at a time.
type DateIter struct {
	vector []bool
	first  time.Time
	index  int
}

// Next returns the next day. ok is false once the vector is exhausted.
func (it *DateIter) Next() (day Day, ok bool) {
	if it.index >= len(it.vector) {
		return Day{}, false
	}
	i := it.index
	it.index++
	if !it.vector[i] {
		return Day{}, true
	}
	return Day{Date: it.first.AddDate(0, 0, i), Running: true}, true
}

// Reset rewinds the cursor to the first day.
func (it *DateIter) Reset() { it.index = 0 }

// Len is the total number of days the iterator yields.
func (it *DateIter) Len() int { return len(it.vector) }

// All yields the remaining days as (date, running) pairs.
func (it *DateIter) All() iter.Seq2[time.Time, bool] {
	return func(yield func(time.Time, bool) bool) {
		for day, ok := it.Next(); ok; day, ok = it.Next() {
			if !yield(day.Date, day.Running) {
				return
			}
		}
	}
}

// ParseFootnote parses a "#id" line followed by a line of 0/1 day flags.
func ParseFootnote(input string) (Footnote, string, error) {
	const record = "footnote"

	body, rest, err := recordLine(input, '#', record)
	if err != nil {
		return Footnote{}, input, err
	}
	id, err := parseUint(body)
	if err != nil {
		return Footnote{}, input, parseErr(record, body, err)
	}

	bits, rest, ok := cutLine(rest)
	if !ok {
		return Footnote{}, input, parseErr(record, body, errEmptyInput)
	}
	vector := make([]bool, len(bits))
	for i := 0; i < len(bits); i++ {
		switch bits[i] {
		case '1':
			vector[i] = true
		case '0':
		default:
			return Footnote{}, input, parseErr(record, bits, fmt.Errorf("invalid day flag %q at %d", bits[i], i))
		}
	}

	return Footnote{ID: id, Vector: vector}, rest, nil
}
