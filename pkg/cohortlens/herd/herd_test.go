package herd

import (
	"reflect"
	"testing"
)

func TestTokenizeBasics(t *testing.T) {
	tokens := Tokenize("Deep learning, and machine-learning tools!")
	want := []string{"deep", "learning", "machine-learning", "tools"}
	if !reflect.DeepEqual(tokens, want) {
		t.Errorf("got %v, want %v", tokens, want)
	}
}

func TestTokenizeDropsShortAndStopwords(t *testing.T) {
	tokens := Tokenize("I am the a x of Go go")
	// "am" survives; "go" (len 2) survives; everything else is a stopword or
	// too short.
	want := []string{"am", "go", "go"}
	if !reflect.DeepEqual(tokens, want) {
		t.Errorf("got %v, want %v", tokens, want)
	}
}

func TestTokenizeDigitsSplitTokens(t *testing.T) {
	tokens := Tokenize("python3 sql2019 data")
	want := []string{"python", "sql", "data"}
	if !reflect.DeepEqual(tokens, want) {
		t.Errorf("got %v, want %v", tokens, want)
	}
}

func TestBigrams(t *testing.T) {
	got := Bigrams([]string{"data", "analysis", "tools"})
	want := []string{"data analysis", "analysis tools"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if Bigrams([]string{"solo"}) != nil {
		t.Error("single token should yield no bigrams")
	}
}

func TestPhrasesTopCountAndDocFreq(t *testing.T) {
	stats := Phrases([]string{"data analysis tools", "data analysis team"}, 5)
	if len(stats) == 0 {
		t.Fatal("no phrases returned")
	}
	top := stats[0]
	if top.Phrase != "data analysis" || top.Count != 2 || top.DocFreq != 2 {
		t.Errorf("top = %+v, want {data analysis 2 2}", top)
	}
}

func TestPhrasesRepeatWithinOneTextCountsOnceForDocFreq(t *testing.T) {
	stats := Phrases([]string{"data analysis data analysis"}, 5)
	var found bool
	for _, s := range stats {
		if s.Phrase == "data analysis" {
			found = true
			if s.Count != 2 {
				t.Errorf("count = %d, want 2", s.Count)
			}
			if s.DocFreq != 1 {
				t.Errorf("doc_freq = %d, want 1", s.DocFreq)
			}
		}
	}
	if !found {
		t.Fatal("bigram not found")
	}
}

func TestPhrasesTieBreakFirstSeen(t *testing.T) {
	stats := Phrases([]string{"alpha beta", "gamma delta"}, 5)
	if len(stats) != 2 {
		t.Fatalf("got %d phrases", len(stats))
	}
	if stats[0].Phrase != "alpha beta" || stats[1].Phrase != "gamma delta" {
		t.Errorf("tie-break order wrong: %v", stats)
	}
}

func TestPhrasesTopNBound(t *testing.T) {
	stats := Phrases([]string{"one two three four five six"}, 2)
	if len(stats) != 2 {
		t.Errorf("got %d phrases, want 2", len(stats))
	}
}
