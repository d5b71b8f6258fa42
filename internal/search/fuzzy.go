package search

import (
	"strings"
)

// tokenize lowercases and splits on anything that isn't a letter or
// digit, dropping empties. Grounded on the teacher's normalizeString,
// generalized from whitespace-only splitting to punctuation-aware
// splitting so subjects like "re: invoice#4231" tokenize sensibly.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	var out []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	m, n := len(ra), len(rb)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}
	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}
	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[n]
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// wordSim is an asymmetric, prefix-/substring-aware similarity of the
// query against text, grounded on the teacher's CalculateRelevanceScore
// prefix/contains bonuses, rescaled into [0,1]. Direction matters: a
// short query that is a prefix of a long word scores highly, while the
// reverse (a long query containing a short word) scores lower.
func wordSim(q, text string) float64 {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return 0
	}
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}
	best := 0.0
	for _, w := range words {
		var s float64
		switch {
		case w == q:
			s = 1.0
		case strings.HasPrefix(w, q):
			s = float64(len(q)) / float64(len(w))
		case strings.HasPrefix(q, w):
			s = 0.9 * float64(len(w)) / float64(len(q))
		case strings.Contains(w, q):
			s = 0.7 * float64(len(q)) / float64(len(w))
		default:
			maxLen := len(q)
			if len(w) > maxLen {
				maxLen = len(w)
			}
			if maxLen > 0 {
				d := levenshtein(q, w)
				ratio := 1 - float64(d)/float64(maxLen)
				if ratio > 0.5 {
					s = ratio * 0.6
				}
			}
		}
		if s > best {
			best = s
		}
	}
	return clamp01(best)
}

// sim is a symmetric similarity between two strings using Jaccard
// overlap of character trigrams, so it degrades gracefully on
// single-token strings like email addresses where wordSim's
// whitespace tokenization gives only one word to compare.
func sim(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		if strings.Contains(a, b) || strings.Contains(b, a) {
			shorter, longer := a, b
			if len(b) < len(a) {
				shorter, longer = b, a
			}
			return float64(len(shorter)) / float64(len(longer))
		}
		return 0
	}
	inter := 0
	for g := range ta {
		if tb[g] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return clamp01(float64(inter) / float64(union))
}

func trigrams(s string) map[string]bool {
	r := []rune(s)
	if len(r) < 3 {
		return nil
	}
	out := make(map[string]bool, len(r)-2)
	for i := 0; i+3 <= len(r); i++ {
		out[string(r[i:i+3])] = true
	}
	return out
}

// phraseRank scores how well queryTokens appear within tokens: the
// fraction of distinct query tokens present, boosted when they appear
// as a contiguous run (a phrase hit) rather than scattered.
func phraseRank(tokens, queryTokens []string) float64 {
	if len(queryTokens) == 0 || len(tokens) == 0 {
		return 0
	}
	present := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		present[t] = true
	}
	matched := 0
	qset := make(map[string]bool, len(queryTokens))
	for _, q := range queryTokens {
		if qset[q] {
			continue
		}
		qset[q] = true
		if present[q] {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	base := float64(matched) / float64(len(qset))

	if containsPhrase(tokens, queryTokens) {
		base = base*0.7 + 0.3
	}
	return clamp01(base)
}

func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, p := range phrase {
			if tokens[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
