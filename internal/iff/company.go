package iff

import (
	"strings"
)

// Company is one carrier from the company file.
type Company struct {
	ID   uint32
	Code string
	Name string
}

// Companies is a parsed company file indexed by company id.
type Companies struct {
	Identification Identification
	Data           []Company

	byID map[uint32]int
}

func NewCompanies(ident Identification, data []Company) *Companies {
	c := &Companies{Identification: ident, Data: data, byID: make(map[uint32]int, len(data))}
	for i, company := range data {
		if _, dup := c.byID[company.ID]; !dup {
			c.byID[company.ID] = i
		}
	}
	return c
}

func (c *Companies) ByID(id uint32) (Company, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Company{}, false
	}
	return c.Data[i], true
}

// ParseCompany parses an "id,code,name,time" line. The trailing field is ignored.
func ParseCompany(input string) (Company, string, error) {
	const record = "company"

	line, rest, ok := cutLine(input)
	if !ok {
		return Company{}, input, parseErr(record, "", errEmptyInput)
	}
	fields, err := splitFields(line, 4)
	if err != nil {
		return Company{}, input, parseErr(record, line, err)
	}
	id, err := parseUint(fields[0])
	if err != nil {
		return Company{}, input, parseErr(record, line, err)
	}

	return Company{
		ID:   id,
		Code: strings.TrimSpace(fields[1]),
		Name: strings.TrimSpace(fields[2]),
	}, rest, nil
}
