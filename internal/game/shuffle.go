// apps/go-server/internal/game/shuffle.go
//
// Deck shuffling. Kept as a pure function over a working copy so the
// multiset of symbols is provably preserved and a seeded source yields
// reproducible deals (daily mode, tests).

package game

import "math/rand"

// Shuffle returns a uniformly random permutation of deck using the
// Fisher–Yates algorithm: for i from the last index down to 1, draw j
// uniformly in [0,i] and swap. Every one of the n! orderings is
// equally likely. The input slice is never mutated.
func Shuffle(deck []string, rng *rand.Rand) []string {
	out := make([]string, len(deck))
	copy(out, deck)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
