package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShufflePreservesMultiset(t *testing.T) {
	deck := []string{"A", "A", "B", "B", "C", "C", "D", "D"}
	out := Shuffle(deck, rand.New(rand.NewSource(42)))

	require.Len(t, out, len(deck))
	count := func(list []string) map[string]int {
		m := map[string]int{}
		for _, s := range list {
			m[s]++
		}
		return m
	}
	assert.Equal(t, count(deck), count(out))
}

func TestShuffleDoesNotMutateInput(t *testing.T) {
	deck := []string{"A", "A", "B", "B", "C", "C"}
	orig := append([]string(nil), deck...)
	_ = Shuffle(deck, rand.New(rand.NewSource(7)))
	assert.Equal(t, orig, deck)
}

func TestShuffleIsDeterministicPerSeed(t *testing.T) {
	deck := []string{"A", "A", "B", "B", "C", "C", "D", "D", "E", "E"}

	one := Shuffle(deck, rand.New(rand.NewSource(99)))
	two := Shuffle(deck, rand.New(rand.NewSource(99)))
	assert.Equal(t, one, two, "same seed must yield the same permutation")

	other := Shuffle(deck, rand.New(rand.NewSource(100)))
	assert.NotEqual(t, one, other, "different seeds should disagree on a 10-card deck")
}

func TestSeededEnginesDealIdenticalDecks(t *testing.T) {
	a, _, _ := newTestEngine(t, 1234)
	b, _, _ := newTestEngine(t, 1234)
	require.NoError(t, a.Start("medium"))
	require.NoError(t, b.Start("medium"))
	assert.Equal(t, a.cards, b.cards)
}
