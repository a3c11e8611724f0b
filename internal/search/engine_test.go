package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoria/internal/records"
)

type stubLister struct{ memories []*records.Memory }

func (s *stubLister) ListMemories(filter records.MemoryFilter, limit, offset int) ([]*records.Memory, error) {
	return s.memories, nil
}

// TestKeywordSearch checks that "Paris" outranks "Berlin" for a
// "Paris" query.
func TestKeywordSearch(t *testing.T) {
	lister := &stubLister{memories: []*records.Memory{
		{ID: "france", Content: "The capital of France is Paris", CreatedAt: 1},
		{ID: "germany", Content: "Berlin is the capital of Germany", CreatedAt: 2},
	}}
	engine := NewEngine(lister, nil, nil, MustNewScoreCalculator(DefaultScoringConfig()))

	results, err := engine.Search(context.Background(), "Paris", ModeText, 10, records.MemoryFilter{}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "france", results[0].Memory.ID)
	if len(results) > 1 {
		require.Greater(t, results[0].Score, results[1].Score)
	}
}

func TestEmptyTextQueryFails(t *testing.T) {
	engine := NewEngine(&stubLister{}, nil, nil, MustNewScoreCalculator(DefaultScoringConfig()))
	_, err := engine.Search(context.Background(), "", ModeText, 10, records.MemoryFilter{}, nil)
	require.Error(t, err)
}
