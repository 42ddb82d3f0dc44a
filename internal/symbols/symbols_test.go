package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedAlphabet(t *testing.T) {
	require.NoError(t, Init())

	alpha := Alphabet()
	// hard preset needs 15 pairs; the shipped default carries slack
	assert.GreaterOrEqual(t, len(alpha), 15)
	assert.Equal(t, len(alpha), Count())

	seen := map[string]struct{}{}
	for _, s := range alpha {
		assert.NotEmpty(t, s)
		_, dup := seen[s]
		assert.Falsef(t, dup, "duplicate symbol %q", s)
		seen[s] = struct{}{}
	}
}

func TestNormalizeLinesSkipsCommentsAndBlanks(t *testing.T) {
	got := normalizeLines("# header\n\n  🍎  \n🍌\n# trailing\n")
	assert.Equal(t, []string{"🍎", "🍌"}, got)
}

func TestDedupeKeepsFirstOccurrenceOrder(t *testing.T) {
	got := dedupe([]string{"b", "a", "b", "c", "a"})
	assert.Equal(t, []string{"b", "a", "c"}, got)
}
