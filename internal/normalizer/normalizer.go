package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"ChartAggregator/internal/domain"
)

// Outcome is the validated batch for one source. Reason is set only when Entries is empty.
type Outcome struct {
	Entries    []domain.CanonicalEntry
	Reason     domain.FailureReason
	Rejected   int
	Duplicates int
}

// Normalize maps raw records through the source's field mapping, drops malformed rows and
// collapses duplicate (title, artist) pairs. Entry order follows the raw sequence.
func Normalize(src domain.ChartSource, records []domain.RawRecord) Outcome {
	var (
		out      Outcome
		seen     = make(map[string]int, len(records))
		observed = make(map[string]bool, len(src.RequiredFields))
	)

	for _, raw := range records {
		for _, field := range src.RequiredFields {
			if hasAnyKey(raw, acceptedKeys(src, field)) {
				observed[field] = true
			}
		}

		entry, ok := toEntry(src, raw)
		if !ok {
			out.Rejected++
			continue
		}

		key := dedupKey(entry.Title, entry.Artist)
		if idx, dup := seen[key]; dup {
			out.Duplicates++
			kept := out.Entries[idx]
			if entry.Rank > 0 && (kept.Rank == 0 || entry.Rank < kept.Rank) {
				out.Entries[idx] = entry
			}
			continue
		}
		seen[key] = len(out.Entries)
		out.Entries = append(out.Entries, entry)
	}

	if len(out.Entries) == 0 {
		out.Reason = domain.ReasonNoValidEntries
		if len(records) > 0 {
			for _, field := range src.RequiredFields {
				if !observed[field] {
					out.Reason = domain.ReasonSchemaMismatch
					break
				}
			}
		}
	}
	return out
}

func toEntry(src domain.ChartSource, raw domain.RawRecord) (domain.CanonicalEntry, bool) {
	for _, field := range src.RequiredFields {
		if _, ok := lookup(raw, acceptedKeys(src, field)); !ok {
			return domain.CanonicalEntry{}, false
		}
	}

	entry := domain.CanonicalEntry{SourceID: src.ID}

	if value, ok := lookup(raw, acceptedKeys(src, domain.FieldRank)); ok {
		rank, err := parseRank(value)
		if err != nil {
			return domain.CanonicalEntry{}, false
		}
		entry.Rank = rank
	}

	if value, ok := lookup(raw, acceptedKeys(src, domain.FieldScore)); ok {
		score, err := parseNumber(value)
		if err != nil {
			return domain.CanonicalEntry{}, false
		}
		entry.Score = score
	}

	title, _ := lookup(raw, acceptedKeys(src, domain.FieldTitle))
	entry.Title = cleanTitle(title, src.TitleDelimiter)
	artist, _ := lookup(raw, acceptedKeys(src, domain.FieldArtist))
	entry.Artist = collapse(artist)
	if entry.Title == "" || entry.Artist == "" {
		return domain.CanonicalEntry{}, false
	}

	if ref, ok := lookup(raw, acceptedKeys(src, domain.FieldExternalRef)); ok {
		entry.ExternalRef = ref
	} else if src.ExternalRefTemplate != "" {
		query := url.PathEscape(entry.Title + " " + entry.Artist)
		entry.ExternalRef = strings.ReplaceAll(src.ExternalRefTemplate, "{query}", query)
	}

	return entry, true
}

func acceptedKeys(src domain.ChartSource, field string) []string {
	if keys, ok := src.FieldMapping[field]; ok && len(keys) > 0 {
		return keys
	}
	return []string{field}
}

// lookup returns the first accepted key carrying a non-blank value.
func lookup(raw domain.RawRecord, keys []string) (string, bool) {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		text := strings.TrimSpace(stringify(value))
		if text != "" {
			return text, true
		}
	}
	return "", false
}

func hasAnyKey(raw domain.RawRecord, keys []string) bool {
	for _, key := range keys {
		if _, ok := raw[key]; ok {
			return true
		}
	}
	return false
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func parseRank(value string) (int, error) {
	cleaned := strings.TrimPrefix(stripSeparators(value), "#")
	rank, err := strconv.Atoi(cleaned)
	if err != nil {
		f, ferr := strconv.ParseFloat(cleaned, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("rank %q is not an integer", value)
		}
		rank = int(f)
	}
	if rank <= 0 {
		return 0, fmt.Errorf("rank %q is not positive", value)
	}
	return rank, nil
}

func parseNumber(value string) (float64, error) {
	n, err := strconv.ParseFloat(stripSeparators(value), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("score %q is not a number", value)
	}
	return n, nil
}

func stripSeparators(value string) string {
	return strings.NewReplacer(",", "", "_", "", " ", "").Replace(strings.TrimSpace(value))
}

func cleanTitle(title, delimiter string) string {
	if delimiter != "" {
		if head, _, found := strings.Cut(title, delimiter); found {
			title = head
		}
	}
	return collapse(title)
}

func collapse(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func dedupKey(title, artist string) string {
	return strings.ToLower(collapse(title)) + "\x00" + strings.ToLower(collapse(artist))
}
