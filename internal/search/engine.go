package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/coregx/ahocorasick"

	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
	"github.com/kittclouds/memoria/internal/vectorindex"
)

// Mode selects which candidate sources feed score combination.
type Mode string

const (
	ModeText   Mode = "text"
	ModeVector Mode = "vector"
	ModeHybrid Mode = "hybrid"
)

// Embedder is the opaque collaborator that turns text into a fixed
// dimension vector; model loading and tokenization live behind it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MemoryLister is the subset of the kernel/record layer the engine needs
// to gather candidates; kept as an interface so tests can stub it.
type MemoryLister interface {
	ListMemories(filter records.MemoryFilter, limit, offset int) ([]*records.Memory, error)
}

// Result is one ranked hit.
type Result struct {
	Memory     *records.Memory
	Score      float64
	Highlights []string
}

// Engine composes BM25 text search, vector k-NN, and lifecycle-aware score
// fusion.
type Engine struct {
	lister   MemoryLister
	vectors  *vectorindex.Index
	embedder Embedder
	scorer   *ScoreCalculator
}

func NewEngine(lister MemoryLister, vectors *vectorindex.Index, embedder Embedder, scorer *ScoreCalculator) *Engine {
	return &Engine{lister: lister, vectors: vectors, embedder: embedder, scorer: scorer}
}

// Search gathers candidates for the requested mode, fuses BM25 and
// vector scores with the lifecycle boosts, and ranks descending.
func (e *Engine) Search(ctx context.Context, query string, mode Mode, limit int, filter records.MemoryFilter, queryVector []float32) ([]Result, error) {
	if ctx.Err() != nil {
		return nil, memerr.Timeout()
	}
	if mode == ModeText && query == "" {
		return nil, memerr.EmptySearchQuery()
	}

	candidates, err := e.lister.ListMemories(filter, 0, 0)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*records.Memory, len(candidates))
	for _, m := range candidates {
		byID[m.ID] = m
	}

	bm25Scores := map[string]float64{}
	if mode == ModeText || mode == ModeHybrid {
		if query != "" {
			idx := BuildBM25Index(candidates)
			bm25Scores = idx.Score(query)
		}
	}

	vecScores := map[string]float64{}
	if mode == ModeVector || mode == ModeHybrid {
		qv := queryVector
		if qv == nil {
			if e.embedder == nil {
				if mode == ModeVector {
					return nil, memerr.MLNotConfigured()
				}
			} else {
				qv, err = e.embedder.Embed(ctx, query)
				if err != nil {
					return nil, memerr.Storage(err)
				}
			}
		}
		if qv != nil && e.vectors != nil {
			hits, err := e.vectors.Search(qv, vectorindex.SearchParams{Limit: 0})
			if err != nil {
				return nil, err
			}
			for _, h := range hits {
				if _, ok := byID[h.Vector.ID]; !ok {
					continue // vector candidate not in the current filtered set
				}
				vecScores[h.Vector.ID] = 1 - h.Score // convert distance to similarity-like score
			}
		}
	}

	now := time.Now()
	union := make(map[string]bool)
	for id := range bm25Scores {
		union[id] = true
	}
	for id := range vecScores {
		union[id] = true
	}

	var results []Result
	for id := range union {
		m, ok := byID[id]
		if !ok {
			continue
		}
		var vs *float64
		if v, ok := vecScores[id]; ok {
			vv := v
			vs = &vv
		}
		score := e.scorer.CalculateFinalScore(bm25Scores[id], vs, m, now)
		results = append(results, Result{Memory: m, Score: score, Highlights: highlight(m.Content, query)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Memory.CreatedAt != results[j].Memory.CreatedAt {
			return results[i].Memory.CreatedAt > results[j].Memory.CreatedAt
		}
		return results[i].Memory.ID > results[j].Memory.ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// highlight finds every occurrence of the tokenized query terms in
// content using Aho-Corasick multi-pattern matching.
func highlight(content, query string) []string {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(terms).
		SetMatchKind(ahocorasick.LeftmostLongest).
		Build()
	if err != nil {
		return nil
	}
	matches := automaton.FindAllOverlapping([]byte(strings.ToLower(content)))
	seen := make(map[string]bool)
	var out []string
	for _, match := range matches {
		term := terms[match.PatternID]
		if !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}
	return out
}
