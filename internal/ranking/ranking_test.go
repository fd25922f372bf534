package ranking

import (
	"fmt"
	"testing"

	"ChartAggregator/internal/domain"
)

func titles(entries []domain.CanonicalEntry) string {
	out := ""
	for _, e := range entries {
		out += fmt.Sprintf("%s%d ", e.Title, e.Rank)
	}
	return out
}

func TestComputeScoreTieBreakIsStable(t *testing.T) {
	t.Parallel()

	in := []domain.CanonicalEntry{
		{Title: "A", Score: 10},
		{Title: "B", Score: 30},
		{Title: "C", Score: 10},
	}

	got := titles(Compute(in, domain.RankByScore, 0))
	if got != "B1 A2 C3 " {
		t.Fatalf("got %q, want %q", got, "B1 A2 C3 ")
	}
	if in[0].Title != "A" || in[0].Rank != 0 {
		t.Fatalf("input slice must not be reordered: %+v", in)
	}
}

func TestComputePositionModeKeepsSourceOrder(t *testing.T) {
	t.Parallel()

	in := []domain.CanonicalEntry{
		{Title: "third", Rank: 7},
		{Title: "unranked", Rank: 0},
		{Title: "first", Rank: 2, Score: 1},
		{Title: "second", Rank: 5, Score: 99},
	}

	got := titles(Compute(in, domain.RankByPosition, 0))
	if got != "first1 second2 third3 unranked4 " {
		t.Fatalf("unexpected order %q", got)
	}
}

func TestComputeTruncatesAfterOrdering(t *testing.T) {
	t.Parallel()

	in := make([]domain.CanonicalEntry, 0, 35)
	for i := 0; i < 35; i++ {
		in = append(in, domain.CanonicalEntry{Title: fmt.Sprintf("t%02d", i), Score: float64(i)})
	}

	out := Compute(in, domain.RankByScore, 20)
	if len(out) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(out))
	}
	for i, e := range out {
		if e.Rank != i+1 {
			t.Fatalf("entry %d has rank %d", i, e.Rank)
		}
	}
	if out[0].Title != "t34" || out[19].Title != "t15" {
		t.Fatalf("lowest scores should be discarded, got first=%s last=%s", out[0].Title, out[19].Title)
	}
}

func TestComputeEmpty(t *testing.T) {
	t.Parallel()

	if out := Compute(nil, domain.RankByPosition, 10); len(out) != 0 {
		t.Fatalf("expected empty result, got %+v", out)
	}
}
