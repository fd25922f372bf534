package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/scanner"
)

// JSONScanner reads API payloads. Row is a dotted path to the item array;
// column specs are dotted paths relative to each item. Numeric segments index arrays.
type JSONScanner struct{}

var _ scanner.Scanner = (*JSONScanner)(nil)

// NewJSONScanner builds the JSON scanner.
func NewJSONScanner() *JSONScanner {
	return &JSONScanner{}
}

// Name identifies the scanner inside the registry.
func (j *JSONScanner) Name() string {
	return "json"
}

// Scan decodes the payload and maps every item of the row array.
func (j *JSONScanner) Scan(body []byte, scheme domain.ParseScheme) ([]domain.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	node, ok := lookupPath(root, scheme.Row)
	if !ok || node == nil {
		return []domain.RawRecord{}, nil
	}

	items, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("path %q is not an array", scheme.Row)
	}

	records := make([]domain.RawRecord, 0, len(items))
	for i, item := range items {
		record := domain.RawRecord{domain.PositionKey: i + 1}
		for field, path := range scheme.Columns {
			value, ok := lookupPath(item, path)
			if !ok {
				continue
			}
			if scalar, ok := scalarValue(value); ok {
				record[field] = scalar
			}
		}
		records = append(records, record)
	}

	return records, nil
}

func lookupPath(node any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return node, true
	}

	for _, segment := range strings.Split(path, ".") {
		switch typed := node.(type) {
		case map[string]any:
			next, ok := typed[segment]
			if !ok {
				return nil, false
			}
			node = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(typed) {
				return nil, false
			}
			node = typed[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

func scalarValue(value any) (any, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case json.Number:
		if f, err := typed.Float64(); err == nil {
			return f, true
		}
		return typed.String(), true
	case bool:
		return strconv.FormatBool(typed), true
	default:
		return nil, false
	}
}
