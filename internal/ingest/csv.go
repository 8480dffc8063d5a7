// Package ingest turns uploaded files and manual form input into records.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"idsguard/internal/failure"
	"idsguard/internal/normalize"
)

const bom = "\ufeff"

// ReadCSV parses a CSV document with a header row. Header names are
// trimmed; every data row becomes one record in file order. Malformed CSV
// and ragged rows are contract failures.
func ReadCSV(r io.Reader) ([]normalize.Record, error) {
	const op = "read csv"
	cr := csv.NewReader(bufio.NewReader(r))
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, failure.New(failure.KindContract, op, "file is empty")
	}
	if err != nil {
		return nil, &failure.Error{Kind: failure.KindContract, Op: op, Detail: "header", Err: err}
	}
	names := normalizeHeader(header)
	var rows []normalize.Record
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &failure.Error{Kind: failure.KindContract, Op: op, Detail: fmt.Sprintf("row %d", len(rows)), Err: err}
		}
		fields := make([]normalize.Field, len(names))
		for i, name := range names {
			fields[i] = normalize.Field{Name: name, Value: rec[i]}
		}
		rows = append(rows, normalize.NewRecord(fields...))
	}
	if len(rows) == 0 {
		return nil, failure.New(failure.KindContract, op, "file has a header but no rows")
	}
	return rows, nil
}

// ValidateHeader reports the contract features missing from a header row.
func ValidateHeader(c *normalize.Contract, header []string) []string {
	return c.ValidateNames(normalizeHeader(header))
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, bom)
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}
