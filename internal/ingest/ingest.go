// Package ingest reads filter values from a column of a CSV, XLSX or
// plain-text file.
//
// Values are trimmed, NFC-normalized and deduplicated keeping their first
// occurrence; blank cells are skipped.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnsupportedFormat is returned for file extensions other than
	// .csv, .xlsx and .txt.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrColumnNotFound is returned when the requested header or index
	// does not exist.
	ErrColumnNotFound = errors.New("column not found")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Selector picks the column to read.
//
// When Header is set, the first non-empty row is the header row and the
// column whose trimmed name equals Header (case-insensitively) is read.
// Otherwise Index (0-based) is read, and the first non-empty row is
// skipped as a header unless NoHeader is set (.txt files default to no
// header). Sheet names the XLSX sheet; empty means the first one.
type Selector struct {
	Header   string
	Index    int
	NoHeader bool
	Sheet    string
}

// Stats counts what cleaning did.
type Stats struct {
	Rows       int `json:"rows"`
	Blank      int `json:"blank"`
	Duplicates int `json:"duplicates"`
}

// Result is a cleaned value column.
type Result struct {
	Values []string `json:"values"`
	Stats  Stats    `json:"stats"`
}

// ReadFile reads the selected column of the file at path.
func ReadFile(path string, sel Selector) (Result, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: %w", err)
	}
	return Parse(filepath.Base(path), payload, sel)
}

// Parse reads the selected column of payload, dispatching on the
// extension of fileName.
func Parse(fileName string, payload []byte, sel Selector) (Result, error) {
	if strings.EqualFold(filepath.Ext(fileName), ".txt") && sel.Header == "" {
		sel.NoHeader = true
	}
	records, err := parseTable(fileName, payload, sel.Sheet)
	if err != nil {
		return Result{}, fmt.Errorf("ingest %s: %w", fileName, err)
	}
	column, err := selectColumn(records, sel)
	if err != nil {
		return Result{}, fmt.Errorf("ingest %s: %w", fileName, err)
	}
	values, stats := Clean(column)
	return Result{Values: values, Stats: stats}, nil
}

// Clean trims, NFC-normalizes and deduplicates values in order, dropping
// blanks.
func Clean(raw []string) ([]string, Stats) {
	stats := Stats{Rows: len(raw)}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		v = Normalize(v)
		if v == "" {
			stats.Blank++
			continue
		}
		if _, dup := seen[v]; dup {
			stats.Duplicates++
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, stats
}

// Normalize trims surrounding whitespace and applies Unicode NFC so that
// visually identical values compare equal.
func Normalize(v string) string {
	return norm.NFC.String(strings.TrimSpace(v))
}

func parseTable(fileName string, payload []byte, sheet string) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload, sheet)
	case ".txt":
		return parseLines(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func parseExcel(payload []byte, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("excel file has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// parseLines treats each line as a one-cell row.
func parseLines(payload []byte) ([][]string, error) {
	payload = bytes.TrimPrefix(payload, byteOrderMark)
	var rows [][]string
	sc := bufio.NewScanner(bytes.NewReader(payload))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		rows = append(rows, []string{sc.Text()})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lines: %w", err)
	}
	return rows, nil
}

func selectColumn(records [][]string, sel Selector) ([]string, error) {
	header := -1
	for i, row := range records {
		if !isEmptyRow(row) {
			header = i
			break
		}
	}
	if header < 0 {
		return []string{}, nil
	}

	col := sel.Index
	start := header + 1
	switch {
	case sel.Header != "":
		col = -1
		for i, name := range records[header] {
			if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(sel.Header)) {
				col = i
				break
			}
		}
		if col < 0 {
			return nil, fmt.Errorf("%w: header %q", ErrColumnNotFound, sel.Header)
		}
	case sel.NoHeader:
		start = header
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: index %d", ErrColumnNotFound, col)
	}

	out := make([]string, 0, len(records)-start)
	found := false
	for _, row := range records[start:] {
		if isEmptyRow(row) {
			continue
		}
		if col < len(row) {
			found = true
			out = append(out, row[col])
		} else {
			out = append(out, "")
		}
	}
	if !found && col >= len(records[header]) {
		return nil, fmt.Errorf("%w: index %d", ErrColumnNotFound, col)
	}
	return out, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
