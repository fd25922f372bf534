package normalizer

import (
	"testing"

	"ChartAggregator/internal/domain"
)

func positionSource() domain.ChartSource {
	return domain.ChartSource{
		ID:             "988",
		RankMode:       domain.RankByPosition,
		RequiredFields: []string{domain.FieldRank, domain.FieldTitle, domain.FieldArtist},
		TitleDelimiter: "｜",
		FieldMapping: map[string][]string{
			domain.FieldRank:   {"rank", domain.PositionKey},
			domain.FieldTitle:  {"song"},
			domain.FieldArtist: {"singer"},
		},
		ExternalRefTemplate: "https://open.spotify.com/search/{query}",
	}
}

func TestNormalizeMapsFields(t *testing.T) {
	t.Parallel()

	records := []domain.RawRecord{
		{"rank": "1", "song": "  Hello｜OST of Drama ", "singer": "Adele", domain.PositionKey: float64(1)},
		{"song": "World", "singer": "Band  Name", domain.PositionKey: float64(2)},
	}

	out := Normalize(positionSource(), records)
	if len(out.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", out)
	}

	first := out.Entries[0]
	if first.Title != "Hello" || first.Artist != "Adele" || first.Rank != 1 || first.SourceID != "988" {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if first.ExternalRef != "https://open.spotify.com/search/Hello%20Adele" {
		t.Fatalf("unexpected external ref: %s", first.ExternalRef)
	}

	second := out.Entries[1]
	if second.Rank != 2 || second.Artist != "Band Name" {
		t.Fatalf("position fallback or whitespace collapse failed: %+v", second)
	}
}

func TestNormalizeRejectsMalformedRows(t *testing.T) {
	t.Parallel()

	records := []domain.RawRecord{
		{"rank": "x1", "song": "Bad Rank", "singer": "A"},
		{"rank": "2", "song": "   ", "singer": "A"},
		{"rank": "3", "song": "No Artist"},
		{"rank": "4", "song": "Good", "singer": "B"},
	}

	out := Normalize(positionSource(), records)
	if len(out.Entries) != 1 || out.Entries[0].Title != "Good" {
		t.Fatalf("unexpected entries: %+v", out.Entries)
	}
	if out.Rejected != 3 {
		t.Fatalf("expected 3 rejected rows, got %d", out.Rejected)
	}
	if out.Reason != "" {
		t.Fatalf("reason should be empty on success, got %s", out.Reason)
	}
}

func TestNormalizeDeduplicatesKeepingLowerRank(t *testing.T) {
	t.Parallel()

	records := []domain.RawRecord{
		{"rank": "5", "song": "Same Song", "singer": "Artist"},
		{"rank": "2", "song": "same  song", "singer": "ARTIST"},
		{"rank": "3", "song": "Other", "singer": "Artist"},
	}

	out := Normalize(positionSource(), records)
	if len(out.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", out.Entries)
	}
	if out.Entries[0].Rank != 2 || out.Entries[0].Title != "same song" {
		t.Fatalf("lower-ranked duplicate should win: %+v", out.Entries[0])
	}
	if out.Duplicates != 1 {
		t.Fatalf("expected 1 duplicate, got %d", out.Duplicates)
	}
}

func TestNormalizeScoreSource(t *testing.T) {
	t.Parallel()

	src := domain.ChartSource{
		ID:             "spotify-sg",
		RankMode:       domain.RankByScore,
		RequiredFields: []string{domain.FieldTitle, domain.FieldArtist, domain.FieldScore},
		FieldMapping: map[string][]string{
			domain.FieldTitle:       {"Track Name"},
			domain.FieldArtist:      {"Artist"},
			domain.FieldScore:       {"Streams"},
			domain.FieldExternalRef: {"URL"},
		},
	}
	records := []domain.RawRecord{
		{"Track Name": "One", "Artist": "X", "Streams": "1,234,567", "URL": "https://open.spotify.com/track/1"},
		{"Track Name": "Two", "Artist": "Y", "Streams": "many"},
		{"Track Name": "Three", "Artist": "Z", "Streams": float64(42)},
		{"Track Name": "One", "Artist": "X", "Streams": "9"},
	}

	out := Normalize(src, records)
	if len(out.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", out.Entries)
	}
	if out.Entries[0].Score != 1234567 || out.Entries[0].ExternalRef != "https://open.spotify.com/track/1" {
		t.Fatalf("unexpected first entry: %+v", out.Entries[0])
	}
	if out.Entries[1].Score != 42 {
		t.Fatalf("unexpected second entry: %+v", out.Entries[1])
	}
	if out.Entries[0].Rank != 0 {
		t.Fatalf("score sources carry no source rank, got %d", out.Entries[0].Rank)
	}
}

func TestNormalizeFailureReasons(t *testing.T) {
	t.Parallel()

	mismatch := Normalize(positionSource(), []domain.RawRecord{
		{"name": "Song", "performer": "A"},
	})
	if len(mismatch.Entries) != 0 || mismatch.Reason != domain.ReasonSchemaMismatch {
		t.Fatalf("expected schema mismatch, got %+v", mismatch)
	}

	invalid := Normalize(positionSource(), []domain.RawRecord{
		{"rank": "one", "song": "Song", "singer": "A"},
	})
	if len(invalid.Entries) != 0 || invalid.Reason != domain.ReasonNoValidEntries {
		t.Fatalf("expected no valid entries, got %+v", invalid)
	}

	empty := Normalize(positionSource(), nil)
	if empty.Reason != domain.ReasonNoValidEntries {
		t.Fatalf("expected no valid entries for empty input, got %s", empty.Reason)
	}
}
