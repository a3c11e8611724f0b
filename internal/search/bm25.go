package search

import (
	"math"
	"regexp"
	"strings"

	"github.com/orsinium-labs/stopwords"

	"github.com/kittclouds/memoria/internal/records"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases and splits on non-alphanumeric runs, then drops
// English stopwords.
func tokenize(text string) []string {
	sw := stopwords.MustGet("en")
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if sw.Contains(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// bm25k1/bm25b are the standard Okapi BM25 free parameters.
const (
	bm25k1 = 1.2
	bm25b  = 0.75
)

// BM25Index is a simple in-memory inverted index rebuilt from the current
// memory set on every search, trading incremental-update complexity for
// correctness and simplicity at agent-memory corpus sizes.
type BM25Index struct {
	docs     map[string][]string // memory id -> tokens
	postings map[string]map[string]int
	avgLen   float64
}

func BuildBM25Index(memories []*records.Memory) *BM25Index {
	idx := &BM25Index{
		docs:     make(map[string][]string, len(memories)),
		postings: make(map[string]map[string]int),
	}
	var totalLen int
	for _, m := range memories {
		toks := tokenize(m.Content)
		idx.docs[m.ID] = toks
		totalLen += len(toks)
		seen := make(map[string]int)
		for _, tok := range toks {
			seen[tok]++
		}
		for tok, freq := range seen {
			if idx.postings[tok] == nil {
				idx.postings[tok] = make(map[string]int)
			}
			idx.postings[tok][m.ID] = freq
		}
	}
	if len(memories) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(memories))
	}
	return idx
}

// Score returns BM25 scores for every document containing at least one
// query term.
func (idx *BM25Index) Score(query string) map[string]float64 {
	terms := tokenize(query)
	scores := make(map[string]float64)
	n := float64(len(idx.docs))
	if n == 0 {
		return scores
	}

	for _, term := range terms {
		postingsForTerm := idx.postings[term]
		df := float64(len(postingsForTerm))
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for docID, freq := range postingsForTerm {
			docLen := float64(len(idx.docs[docID]))
			tf := float64(freq)
			denom := tf + bm25k1*(1-bm25b+bm25b*docLen/idx.avgLen)
			scores[docID] += idf * (tf * (bm25k1 + 1) / denom)
		}
	}
	return scores
}
