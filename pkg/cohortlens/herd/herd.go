// Package herd computes cohort-level recurring-phrase statistics. The output
// is a descriptive corpus view; nothing downstream branches on it.
package herd

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultTopN is the number of bigrams kept per run.
const DefaultTopN = 30

// PhraseStat is one bigram with its total occurrence count and the number of
// distinct texts it appeared in.
type PhraseStat struct {
	Phrase  string `json:"phrase"`
	Count   int    `json:"count"`
	DocFreq int    `json:"doc_freq"`
}

var stopwords = buildStopwords(`
a an the and or but if then than to of in on for with by from as at is are was were be been being
this that these those it its we our you your they their i me my
`)

func buildStopwords(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(raw) {
		set[w] = struct{}{}
	}
	return set
}

// Tokenize splits text into lowercase alphabetic tokens. A token starts with a
// letter, may contain internal hyphens, and must be at least two characters
// long after trimming; stopwords are dropped.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		word := strings.Trim(current.String(), "-")
		current.Reset()
		if len(word) < 2 {
			return
		}
		if _, stop := stopwords[word]; stop {
			return
		}
		tokens = append(tokens, word)
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			current.WriteRune(unicode.ToLower(r))
		case r == '-' && current.Len() > 0:
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}

// Bigrams forms adjacent-token pairs joined by a single space.
func Bigrams(tokens []string) []string {
	if len(tokens) < 2 {
		return nil
	}
	out := make([]string, 0, len(tokens)-1)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

// Phrases accumulates bigram statistics over texts and returns the topN
// bigrams by total count, descending. Ties keep first-seen order so the
// result is stable across runs over the same cohort.
func Phrases(texts []string, topN int) []PhraseStat {
	if topN <= 0 {
		topN = DefaultTopN
	}

	counts := make(map[string]int)
	docFreq := make(map[string]int)
	firstSeen := make(map[string]int)
	var order int

	for _, text := range texts {
		bs := Bigrams(Tokenize(text))
		seenHere := make(map[string]struct{}, len(bs))
		for _, b := range bs {
			if _, ok := firstSeen[b]; !ok {
				firstSeen[b] = order
				order++
			}
			counts[b]++
			if _, ok := seenHere[b]; !ok {
				seenHere[b] = struct{}{}
				docFreq[b]++
			}
		}
	}

	phrases := make([]string, 0, len(counts))
	for p := range counts {
		phrases = append(phrases, p)
	}
	sort.Slice(phrases, func(i, j int) bool {
		a, b := phrases[i], phrases[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return firstSeen[a] < firstSeen[b]
	})

	if len(phrases) > topN {
		phrases = phrases[:topN]
	}

	out := make([]PhraseStat, len(phrases))
	for i, p := range phrases {
		out[i] = PhraseStat{Phrase: p, Count: counts[p], DocFreq: docFreq[p]}
	}
	return out
}
