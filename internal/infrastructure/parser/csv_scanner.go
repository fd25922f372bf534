package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/scanner"
)

// CSVScanner reads chart downloads that carry a header row, optionally after a preamble.
type CSVScanner struct{}

var _ scanner.Scanner = (*CSVScanner)(nil)

// NewCSVScanner builds the CSV scanner.
func NewCSVScanner() *CSVScanner {
	return &CSVScanner{}
}

// Name identifies the scanner inside the registry.
func (c *CSVScanner) Name() string {
	return "csv"
}

// Scan skips scheme.SkipRows preamble lines, reads the header and maps every following line.
// With no columns configured every header becomes a raw key.
func (c *CSVScanner) Scan(body []byte, scheme domain.ParseScheme) ([]domain.RawRecord, error) {
	body = bytes.TrimPrefix(body, []byte("\ufeff"))
	if looksLikeHTML(body) {
		return nil, fmt.Errorf("document is HTML, not CSV")
	}

	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	for i := 0; i < scheme.SkipRows; i++ {
		if _, err := reader.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return []domain.RawRecord{}, nil
			}
			return nil, fmt.Errorf("skip preamble: %w", err)
		}
	}

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []domain.RawRecord{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	columns := scheme.Columns
	if len(columns) == 0 {
		columns = make(map[string]string, len(header))
		for name := range index {
			columns[name] = name
		}
	}

	records := make([]domain.RawRecord, 0)
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		record := domain.RawRecord{domain.PositionKey: line}
		for field, headerName := range columns {
			i, ok := index[headerName]
			if !ok || i >= len(row) {
				continue
			}
			record[field] = strings.TrimSpace(row[i])
		}
		records = append(records, record)
	}

	return records, nil
}

func looksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return bytes.HasPrefix(trimmed, []byte("<"))
}
