package ranking

import (
	"sort"

	"ChartAggregator/internal/domain"
)

// Compute orders entries for mode, keeps at most limit of them (limit <= 0 keeps all) and
// assigns dense ranks 1..N. Ties keep their order from the input sequence.
//
// Position mode sorts by the source-declared rank; entries without one follow ranked entries.
// Score mode sorts by descending score on the source's native scale.
func Compute(entries []domain.CanonicalEntry, mode domain.RankMode, limit int) []domain.CanonicalEntry {
	ordered := append([]domain.CanonicalEntry(nil), entries...)

	switch mode {
	case domain.RankByScore:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Score > ordered[j].Score
		})
	default:
		sort.SliceStable(ordered, func(i, j int) bool {
			return positionLess(ordered[i].Rank, ordered[j].Rank)
		})
	}

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	for i := range ordered {
		ordered[i].Rank = i + 1
	}
	return ordered
}

func positionLess(a, b int) bool {
	switch {
	case a == 0:
		return false
	case b == 0:
		return true
	default:
		return a < b
	}
}
