// Package ranking loads the externally supplied ranked-metric file
// (mindshare / impressions share per social handle) into a validated,
// top-K table.
package ranking

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions without a parser.
var ErrUnsupportedFormat = errors.New("unsupported ranking file format")

// ErrMissingColumns is returned when the header lacks a handle or score column.
var ErrMissingColumns = errors.New("ranking file header lacks handle or score column")

// Recognized header names, compared after lower-casing and trimming.
var (
	handleColumns = []string{"handle", "username", "twitter_handle", "author", "account"}
	scoreColumns  = []string{"mindshare", "normalized_score", "score", "impressions_share", "share"}
)

// RawRow is one data row before validation.
type RawRow struct {
	Line      int // 1-based line/row number in the source
	Handle    string
	Score     string
	Malformed bool // the source record could not be decoded
}

// Parser turns a tabular source into raw rows.
type Parser interface {
	Parse(r io.Reader) ([]RawRow, error)
}

// ParserFor returns the parser for the given file name, chosen by extension.
func ParserFor(filename string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return NewCSVParser(), nil
	case ".xlsx":
		return NewXLSXParser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// columnIndexes finds the handle and score columns in a header row.
func columnIndexes(header []string) (handleIdx, scoreIdx int, err error) {
	handleIdx, scoreIdx = -1, -1
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if handleIdx < 0 && contains(handleColumns, name) {
			handleIdx = i
		}
		if scoreIdx < 0 && contains(scoreColumns, name) {
			scoreIdx = i
		}
	}
	if handleIdx < 0 || scoreIdx < 0 {
		return -1, -1, fmt.Errorf("%w: %v", ErrMissingColumns, header)
	}
	return handleIdx, scoreIdx, nil
}

// rowsFromRecords converts header + records into raw rows. Blank records
// are skipped; short records yield empty cells and fail validation later.
// lines holds the source line of each record; nil means record i is line i+1.
// A nil record after the header is an undecodable one.
func rowsFromRecords(records [][]string, lines []int) ([]RawRow, error) {
	headerAt := -1
	for i, rec := range records {
		if !isBlank(rec) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, nil
	}

	handleIdx, scoreIdx, err := columnIndexes(records[headerAt])
	if err != nil {
		return nil, err
	}

	var rows []RawRow
	for i := headerAt + 1; i < len(records); i++ {
		rec := records[i]
		line := i + 1
		if lines != nil {
			line = lines[i]
		}
		if rec == nil {
			rows = append(rows, RawRow{Line: line, Malformed: true})
			continue
		}
		if isBlank(rec) {
			continue
		}
		rows = append(rows, RawRow{
			Line:   line,
			Handle: cell(rec, handleIdx),
			Score:  cell(rec, scoreIdx),
		})
	}
	return rows, nil
}

func cell(rec []string, idx int) string {
	if idx < len(rec) {
		return rec[idx]
	}
	return ""
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
