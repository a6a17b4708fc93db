package ranking

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// CSVParser parses comma-separated ranking files with a header row.
type CSVParser struct{}

// NewCSVParser creates a new CSV parser.
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse reads all records and maps them to raw rows. A record the reader
// cannot decode becomes a Malformed row; only a broken header or a failing
// underlying reader abandons the file.
func (p *CSVParser) Parse(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) && len(records) > 0 {
			records = append(records, nil)
			lines = append(lines, pe.StartLine)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return rowsFromRecords(records, lines)
}
