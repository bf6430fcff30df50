package iff

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimetableFileMinimal(t *testing.T) {
	raw, err := os.ReadFile("testdata/timetbls.dat")
	require.NoError(t, err)

	tt, err := ParseTimetableFile(string(raw))
	require.NoError(t, err)
	require.Len(t, tt.Services, 1)

	svc := tt.Services[0]
	assert.Equal(t, ServiceID(1), svc.ID)
	require.Len(t, svc.Numbers, 1)
	assert.Equal(t, uint32(4084), svc.Numbers[0].Number)
	assert.Equal(t, 16, svc.Calls.NumStops())

	first := svc.Calls[0]
	assert.Equal(t, Departure, first.Event.Type)
	assert.Equal(t, "rtd", first.Event.Station)
	require.NotNil(t, first.Platform)
	assert.Equal(t, "16", first.Platform.DeparturePlatform)

	last := svc.Calls[len(svc.Calls)-1]
	assert.Equal(t, Arrival, last.Event.Type)
	assert.Equal(t, "asd", last.Event.Station)

	wd := svc.Calls[7].Event
	assert.Equal(t, &Clock{0, 1}, wd.ArrivalTime)
}

func TestParseTimetableFileMultipleServices(t *testing.T) {
	const input = "@100,01012025,05012025,0001,test\n" +
		"#00000001\n" +
		"%100,01001,      ,001,002,                              \n" +
		"%100,02001,      ,002,003,                              \n" +
		"-00000,000,999\n" +
		"&IC  ,001,003\n" +
		"*ROL ,001,003,00000\n" +
		">ut     ,1000\n" +
		";utzl\n" +
		"+ht     ,1030,1035\n" +
		"?3    ,4    ,00000\n" +
		"<ehv    ,1100\n" +
		"#00000002\n" +
		"%100,00000,X1    ,001,002,Extra                         \n" +
		"-00001,000,999\n" +
		"&SPR ,001,002\n" +
		">ehv    ,1200\n" +
		"<ut     ,1300"

	tt, err := ParseTimetableFile(input)
	require.NoError(t, err)
	require.Len(t, tt.Services, 2)
	assert.Len(t, tt.Services[0].Numbers, 2)
	assert.Len(t, tt.Services[0].Calls, 4)
	assert.Nil(t, tt.Services[0].Calls[0].Platform)
	assert.NotNil(t, tt.Services[0].Calls[2].Platform)
	assert.Equal(t, "X1", *tt.Services[1].Numbers[0].Variant)
}

func TestParseTimetableFileResidualInput(t *testing.T) {
	const input = "@100,01012025,05012025,0001,test\n" +
		"#00000001\n" +
		"%100,01001,      ,001,002,                              \n" +
		"-00000,000,999\n" +
		"&IC  ,001,002\n" +
		">ut     ,1000\n" +
		"<ht     ,10x0\n"

	_, err := ParseTimetableFile(input)
	require.ErrorIs(t, err, ErrResidualInput)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 7, pe.Line)
}

func TestParseTimetableFileMissingValidity(t *testing.T) {
	const input = "@100,01012025,05012025,0001,test\n" +
		"#00000001\n" +
		"%100,01001,      ,001,002,                              \n" +
		"&IC  ,001,002\n"

	_, err := ParseTimetableFile(input)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 4, pe.Line)
	assert.Equal(t, "validity", pe.Record)
}

func TestParseFootnoteFile(t *testing.T) {
	const header = "@100,01012025,05012025,0001,test\r\n"

	fns, err := ParseFootnoteFile(header + "#00001\r\n11000\r\n#00002\r\n00111\r\n")
	require.NoError(t, err)
	assert.Len(t, fns.Data, 2)

	fn, ok := fns.ByID(2)
	require.True(t, ok)
	assert.Equal(t, []bool{false, false, true, true, true}, fn.Vector)

	_, ok = fns.ByID(3)
	assert.False(t, ok)

	_, err = ParseFootnoteFile(header + "#00001\r\n1100\r\n")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
}

func TestFootnoteZeroIgnoresFile(t *testing.T) {
	fns, err := ParseFootnoteFile("@100,01012025,05012025,0001,test\n#00000\n00000\n")
	require.NoError(t, err)

	fn, ok := fns.ByID(0)
	require.True(t, ok)
	assert.Equal(t, []bool{true, true, true, true, true}, fn.Vector)
}

func TestParseCompanyFile(t *testing.T) {
	input := strings.Join([]string{
		"@000,01012025,05012025,0001,companies",
		"100,ns       ,NS                            ,0000",
		"200,arr      ,Arriva                        ,0400",
	}, "\r\n") + "\r\n"

	companies, err := ParseCompanyFile(input)
	require.NoError(t, err)
	assert.Len(t, companies.Data, 2)

	c, ok := companies.ByID(200)
	require.True(t, ok)
	assert.Equal(t, "Arriva", c.Name)

	_, err = ParseCompanyFile(input + "garbage\r\n")
	assert.ErrorIs(t, err, ErrResidualInput)
}
