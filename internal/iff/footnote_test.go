package iff

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
}

func testIdent() Identification {
	return Identification{CompanyNumber: "100", FirstValid: day(1, 1), LastValid: day(1, 5), VersionNumber: "1"}
}

func TestParseFootnote(t *testing.T) {
	input := "#00000\n" + strings.Repeat("1", 251) + "\r\n"

	fn, rest, err := ParseFootnote(input)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, uint32(0), fn.ID)
	assert.Len(t, fn.Vector, 251)

	_, rest, err = ParseFootnote("#00001\r\n1102\r\n")
	assert.Error(t, err)
	assert.Equal(t, "#00001\r\n1102\r\n", rest)
}

func TestValidDates(t *testing.T) {
	fn := Footnote{ID: 1, Vector: []bool{true, true, false, false, false}}

	it := fn.ValidDates(testIdent())
	assert.Equal(t, 5, it.Len())

	var got []Day
	for d, ok := it.Next(); ok; d, ok = it.Next() {
		got = append(got, d)
	}
	assert.Equal(t, []Day{
		{Date: day(1, 1), Running: true},
		{Date: day(1, 2), Running: true},
		{}, {}, {},
	}, got)

	it.Reset()
	var running []time.Time
	for date, ok := range it.All() {
		if ok {
			running = append(running, date)
		}
	}
	assert.Equal(t, []time.Time{day(1, 1), day(1, 2)}, running)
	assert.Equal(t, running, fn.RunningDates(testIdent()))
}

func TestValidDatesAgreeWithIsValidOn(t *testing.T) {
	ident := testIdent()
	fn := Footnote{ID: 7, Vector: []bool{false, true, false, true, true}}

	it := fn.ValidDates(ident)
	prev := time.Time{}
	for i := 0; ; i++ {
		d, ok := it.Next()
		if !ok {
			assert.Equal(t, len(fn.Vector), i)
			break
		}
		date := ident.FirstValid.AddDate(0, 0, i)
		assert.Equal(t, fn.IsValidOn(date, ident), d.Running, date)
		if d.Running {
			assert.Equal(t, date, d.Date)
			assert.True(t, d.Date.After(prev))
			prev = d.Date
		}
	}
}

func TestIsValidOnOutsideWindow(t *testing.T) {
	fn := AlwaysValid(testIdent())
	assert.False(t, fn.IsValidOn(day(1, 6), testIdent()))
	assert.False(t, fn.IsValidOn(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), testIdent()))
	assert.True(t, fn.IsValidOn(day(1, 5), testIdent()))

	short := Footnote{ID: 2, Vector: []bool{true}}
	assert.False(t, short.IsValidOn(day(1, 3), testIdent()))
}

func TestAlwaysValid(t *testing.T) {
	fn := AlwaysValid(testIdent())
	assert.Equal(t, uint32(0), fn.ID)
	assert.Equal(t, []time.Time{day(1, 1), day(1, 2), day(1, 3), day(1, 4), day(1, 5)}, fn.RunningDates(testIdent()))
}
