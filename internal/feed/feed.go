// Package feed reads the three files of a timetable delivery from disk and
// fetches the published archive.
package feed

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/encoding/charmap"

	"timetable-importer/internal/iff"
)

const (
	TimetableFile = "timetbls.dat"
	FootnoteFile  = "footnote.dat"
	CompanyFile   = "company.dat"
)

// ErrWindowMismatch is returned when the footnote and timetable files of one
// delivery cover different validity windows.
var ErrWindowMismatch = errors.New("footnote and timetable validity windows differ")

// Delivery is one fully parsed feed.
type Delivery struct {
	Timetable *iff.Timetable
	Footnotes *iff.Footnotes
	Companies *iff.Companies
}

// ReadLatin1 reads an ISO-8859-1 encoded file into a UTF-8 string.
func ReadLatin1(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return string(decoded), nil
}

// Load reads and parses the timetable, footnote and company files in dir.
// Any parse failure rejects the whole delivery.
func Load(dir string) (*Delivery, error) {
	companies, err := loadFile(dir, CompanyFile, iff.ParseCompanyFile)
	if err != nil {
		return nil, err
	}
	footnotes, err := loadFile(dir, FootnoteFile, iff.ParseFootnoteFile)
	if err != nil {
		return nil, err
	}
	timetable, err := loadFile(dir, TimetableFile, iff.ParseTimetableFile)
	if err != nil {
		return nil, err
	}

	fi, ti := footnotes.Identification, timetable.Identification
	if !fi.FirstValid.Equal(ti.FirstValid) || !fi.LastValid.Equal(ti.LastValid) {
		return nil, fmt.Errorf("%w: footnotes %s..%s, timetable %s..%s", ErrWindowMismatch,
			fi.FirstValid.Format(time.DateOnly), fi.LastValid.Format(time.DateOnly),
			ti.FirstValid.Format(time.DateOnly), ti.LastValid.Format(time.DateOnly))
	}

	return &Delivery{Timetable: timetable, Footnotes: footnotes, Companies: companies}, nil
}

func loadFile[T any](dir, name string, parse func(string) (T, error)) (T, error) {
	var zero T
	content, err := ReadLatin1(filepath.Join(dir, name))
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", name, err)
	}
	v, err := parse(content)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
