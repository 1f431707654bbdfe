package pipeline

import (
	"math/rand/v2"
	"slices"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

// SampleHistory bounds the history sent for analysis. Up to threshold
// records are returned as they are, most recent first. Above it, the recent
// most recent records are kept plus random picks from the remainder, so
// the sample covers both current listening and older variety.
func SampleHistory(records []domain.ListeningRecord, threshold, recent, random int, rng *rand.Rand) []domain.ListeningRecord {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b domain.ListeningRecord) int {
		return b.PlayedAt.Compare(a.PlayedAt)
	})
	if len(sorted) <= threshold {
		return sorted
	}

	recent = min(recent, len(sorted))
	out := make([]domain.ListeningRecord, 0, recent+random)
	out = append(out, sorted[:recent]...)

	rest := slices.Clone(sorted[recent:])
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	return append(out, rest[:min(random, len(rest))]...)
}
