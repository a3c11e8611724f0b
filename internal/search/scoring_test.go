package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoria/internal/records"
)

func TestScoringConfigValidation(t *testing.T) {
	_, err := NewScoreCalculator(ScoringConfig{BM25Weight: 0, VectorWeight: 0})
	require.Error(t, err)

	_, err = NewScoreCalculator(ScoringConfig{BM25Weight: 1, DecayFn: DecayLinear, DecayRate: 0})
	require.Error(t, err)
}

func TestPriorityBoost(t *testing.T) {
	calc := MustNewScoreCalculator(ScoringConfig{BM25Weight: 1, PriorityBoost: 1})
	now := time.Now()

	low := &records.Memory{Priority: records.PriorityLow, CreatedAt: now.UnixMilli()}
	normal := &records.Memory{Priority: records.PriorityNormal, CreatedAt: now.UnixMilli()}
	high := &records.Memory{Priority: records.PriorityHigh, CreatedAt: now.UnixMilli()}
	critical := &records.Memory{Priority: records.PriorityCritical, CreatedAt: now.UnixMilli()}

	require.Equal(t, 0.0, calc.CalculateFinalScore(0, nil, low, now))
	require.Equal(t, 1.0, calc.CalculateFinalScore(0, nil, normal, now))
	require.Equal(t, 2.0, calc.CalculateFinalScore(0, nil, high, now))
	require.Equal(t, 3.0, calc.CalculateFinalScore(0, nil, critical, now))
}

// TestScoreMonotonicityWithRecency checks that, holding
// BM25/vector scores equal, a newer memory scores >= an older one for
// every decay function except None, where scores must be equal.
func TestScoreMonotonicityWithRecency(t *testing.T) {
	now := time.Now()
	older := &records.Memory{CreatedAt: now.Add(-10 * time.Hour).UnixMilli()}
	newer := &records.Memory{CreatedAt: now.UnixMilli()}

	for _, fn := range []DecayFunction{DecayLinear, DecayExponential, DecayLogarithmic} {
		calc := MustNewScoreCalculator(ScoringConfig{BM25Weight: 1, RecencyBoost: 10, DecayFn: fn, DecayRate: 0.1})
		sOld := calc.CalculateFinalScore(1, nil, older, now)
		sNew := calc.CalculateFinalScore(1, nil, newer, now)
		require.GreaterOrEqualf(t, sNew, sOld, "decay=%s", fn)
	}

	calc := MustNewScoreCalculator(ScoringConfig{BM25Weight: 1, RecencyBoost: 10, DecayFn: DecayNone})
	require.Equal(t, calc.CalculateFinalScore(1, nil, older, now), calc.CalculateFinalScore(1, nil, newer, now))
}

func TestAccessBoostDiminishing(t *testing.T) {
	calc := MustNewScoreCalculator(ScoringConfig{BM25Weight: 1, AccessBoost: 1})
	now := time.Now()
	low := &records.Memory{AccessCount: 1, CreatedAt: now.UnixMilli()}
	high := &records.Memory{AccessCount: 100, CreatedAt: now.UnixMilli()}
	require.Greater(t, calc.CalculateFinalScore(0, nil, high, now), calc.CalculateFinalScore(0, nil, low, now))
}
