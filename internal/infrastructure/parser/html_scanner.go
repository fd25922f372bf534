package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/scanner"
)

// HTMLScanner extracts chart rows from an HTML document with CSS selectors.
//
// Column specs are "selector" (trimmed text of the first match) or
// "selector@attr" (attribute of the first match). An empty selector
// addresses the row element itself.
type HTMLScanner struct{}

var _ scanner.Scanner = (*HTMLScanner)(nil)

// NewHTMLScanner builds the goquery-backed scanner.
func NewHTMLScanner() *HTMLScanner {
	return &HTMLScanner{}
}

// Name identifies the scanner inside the registry.
func (h *HTMLScanner) Name() string {
	return "html"
}

// Scan selects every row and reads the configured columns; rows missing a column omit that key.
func (h *HTMLScanner) Scan(body []byte, scheme domain.ParseScheme) ([]domain.RawRecord, error) {
	if strings.TrimSpace(scheme.Row) == "" {
		return nil, fmt.Errorf("html scheme has no row selector")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	records := make([]domain.RawRecord, 0)
	doc.Find(scheme.Row).Each(func(i int, row *goquery.Selection) {
		record := domain.RawRecord{domain.PositionKey: i + 1}
		for field, spec := range scheme.Columns {
			if value, ok := extractColumn(row, spec); ok {
				record[field] = value
			}
		}
		records = append(records, record)
	})

	return records, nil
}

func extractColumn(row *goquery.Selection, spec string) (string, bool) {
	selector, attr := splitColumnSpec(spec)

	node := row
	if selector != "" {
		node = row.Find(selector).First()
	}
	if node.Length() == 0 {
		return "", false
	}

	if attr != "" {
		return node.Attr(attr)
	}
	return collapseSpace(node.Text()), true
}

// attrSuffix matches a trailing "@attr"; an "@" inside a quoted attribute selector does not.
var attrSuffix = regexp.MustCompile(`@([A-Za-z_:][A-Za-z0-9_:.-]*)$`)

func splitColumnSpec(spec string) (selector, attr string) {
	spec = strings.TrimSpace(spec)
	loc := attrSuffix.FindStringSubmatchIndex(spec)
	if loc == nil {
		return spec, ""
	}
	return strings.TrimSpace(spec[:loc[0]]), spec[loc[2]:loc[3]]
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
