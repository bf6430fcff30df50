package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable-importer/internal/iff"
)

const (
	header    = "@100,01012025,05012025,0001,test\r\n"
	companies = "@100,01012025,05012025,0001,test\r\n100,ns       ,NS                            ,0000\r\n"
	footnotes = header + "#00001\r\n11000\r\n"
	timetable = header +
		"#00000001\r\n" +
		"%100,01001,      ,001,002,                              \r\n" +
		"-00001,000,999\r\n" +
		"&IC  ,001,002\r\n" +
		">ut     ,1000\r\n" +
		"<ht     ,1030\r\n"
)

func writeFeed(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestReadLatin1(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latin1.dat")
	require.NoError(t, os.WriteFile(path, []byte{'C', 'a', 'f', 0xE9}, 0o644))

	got, err := ReadLatin1(path)
	require.NoError(t, err)
	assert.Equal(t, "Café", got)
}

func TestLoad(t *testing.T) {
	dir := writeFeed(t, map[string]string{
		CompanyFile:   companies,
		FootnoteFile:  footnotes,
		TimetableFile: timetable,
	})

	d, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, d.Timetable.Services, 1)
	assert.Len(t, d.Footnotes.Data, 1)
	_, ok := d.Companies.ByID(100)
	assert.True(t, ok)
}

func TestLoadRejectsWholeDeliveryOnParseError(t *testing.T) {
	dir := writeFeed(t, map[string]string{
		CompanyFile:   companies,
		FootnoteFile:  footnotes,
		TimetableFile: timetable + "garbage\r\n",
	})

	d, err := Load(dir)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, iff.ErrResidualInput)
	assert.ErrorContains(t, err, TimetableFile)
}

func TestLoadRejectsWindowMismatch(t *testing.T) {
	dir := writeFeed(t, map[string]string{
		CompanyFile:   companies,
		FootnoteFile:  "@100,01012025,04012025,0001,test\r\n#00001\r\n1100\r\n",
		TimetableFile: timetable,
	})

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrWindowMismatch)
}

func TestLoadMissingFile(t *testing.T) {
	dir := writeFeed(t, map[string]string{CompanyFile: companies})

	_, err := Load(dir)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
