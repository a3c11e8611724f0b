// Package search implements hybrid BM25+vector search with lifecycle-aware
// scoring: recency decay, access-count, and priority boosts folded into
// the combined BM25/vector score.
package search

import (
	"math"
	"time"

	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

// DecayFunction selects the recency-boost curve.
type DecayFunction string

const (
	DecayNone        DecayFunction = "none"
	DecayLinear      DecayFunction = "linear"
	DecayExponential DecayFunction = "exponential"
	DecayLogarithmic DecayFunction = "logarithmic"
)

// ScoringConfig holds the fusion weights and lifecycle-boost tunables.
type ScoringConfig struct {
	BM25Weight     float64
	VectorWeight   float64
	RecencyBoost   float64
	AccessBoost    float64
	PriorityBoost  float64
	DecayFn        DecayFunction
	DecayRate      float64
}

// Validate rejects weight and decay combinations that cannot rank.
func (c ScoringConfig) Validate() error {
	if c.BM25Weight+c.VectorWeight <= 0 {
		return memerr.Validation("weights", "bm25_weight + vector_weight must be > 0")
	}
	if c.DecayFn != DecayNone && c.DecayFn != "" && c.DecayRate <= 0 {
		return memerr.Validation("decayRate", "decay_rate must be > 0 when a decay function other than None is chosen")
	}
	return nil
}

// DefaultScoringConfig matches a reasonable starting point; callers
// normally supply their own via memoria.Config.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{BM25Weight: 1, VectorWeight: 1, DecayFn: DecayNone}
}

// ScoreCalculator applies the weighted score-combination formula.
type ScoreCalculator struct {
	config ScoringConfig
}

// NewScoreCalculator validates config up front and returns an error on
// an unusable combination; callers
// wanting the panicking form can call MustNewScoreCalculator.
func NewScoreCalculator(config ScoringConfig) (*ScoreCalculator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ScoreCalculator{config: config}, nil
}

func MustNewScoreCalculator(config ScoringConfig) *ScoreCalculator {
	c, err := NewScoreCalculator(config)
	if err != nil {
		panic(err)
	}
	return c
}

// CalculateFinalScore combines bm25Score, an optional vectorScore, and
// the three lifecycle boosts.
func (c *ScoreCalculator) CalculateFinalScore(bm25Score float64, vectorScore *float64, m *records.Memory, now time.Time) float64 {
	score := bm25Score * c.config.BM25Weight
	if vectorScore != nil {
		score += *vectorScore * c.config.VectorWeight
	}
	score += c.recencyBoost(m, now)
	score += c.accessBoost(m)
	score += c.priorityBoost(m)
	return score
}

func (c *ScoreCalculator) recencyBoost(m *records.Memory, now time.Time) float64 {
	if c.config.DecayFn == DecayNone || c.config.DecayFn == "" {
		return 0
	}
	ageHours := now.Sub(time.UnixMilli(m.CreatedAt)).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	rate := c.config.DecayRate

	switch c.config.DecayFn {
	case DecayLinear:
		rem := 1 - ageHours*rate
		if rem < 0 {
			rem = 0
		}
		return c.config.RecencyBoost * rem
	case DecayExponential:
		return c.config.RecencyBoost * math.Exp(-rate*ageHours)
	case DecayLogarithmic:
		return c.config.RecencyBoost / (1 + math.Log(1+ageHours*rate))
	default:
		return 0
	}
}

func (c *ScoreCalculator) accessBoost(m *records.Memory) float64 {
	return math.Log(1+float64(m.AccessCount)) * c.config.AccessBoost
}

func (c *ScoreCalculator) priorityBoost(m *records.Memory) float64 {
	return float64(m.Priority.Value()) * c.config.PriorityBoost
}
