package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordSimExactAndPrefixMatch(t *testing.T) {
	assert.Equal(t, 1.0, wordSim("invoice", "Your Invoice is ready"))
	assert.Greater(t, wordSim("inv", "Your Invoice is ready"), 0.0)
	assert.Greater(t, wordSim("invoice", "invoices"), 0.0)
	assert.Equal(t, 0.0, wordSim("zzzzzz", "Your Invoice is ready"))
	assert.Equal(t, 0.0, wordSim("", "anything"))
}

func TestSimIsSymmetric(t *testing.T) {
	a, b := "alice@example.com", "alice@exmaple.com"
	assert.InDelta(t, sim(a, b), sim(b, a), 1e-9)
	assert.Greater(t, sim(a, b), 0.5)
	assert.Equal(t, 1.0, sim("same", "same"))
	assert.Equal(t, 0.0, sim("", "x"))
}

func TestPhraseRankRewardsContiguousMatch(t *testing.T) {
	tokens := tokenize("quarterly budget review for the finance team")
	scattered := phraseRank(tokens, []string{"budget", "team"})
	phrase := phraseRank(tokens, []string{"budget", "review"})
	assert.Greater(t, phrase, scattered)
	assert.Equal(t, 0.0, phraseRank(tokens, []string{"nonexistentword"}))
}

func TestTokenizeSplitsOnPunctuation(t *testing.T) {
	assert.Equal(t, []string{"re", "invoice", "4231"}, tokenize("Re: invoice#4231"))
}

func TestLevenshteinBasic(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 1, levenshtein("abc", "abd"))
	assert.Equal(t, 3, levenshtein("", "abc"))
}
