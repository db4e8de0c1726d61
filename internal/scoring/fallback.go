package scoring

import (
	"context"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fallback"
	"github.com/opensource-finance/kestrel/internal/scorecard"
)

// FallbackVersion identifies rule-based results on the wire.
const FallbackVersion = "1.0.0-fallback"

// FallbackScorer scores claims with the deterministic rule engine. Used when
// the trained artifacts are unavailable; the service stays up and every
// syntactically valid claim still receives a score.
type FallbackScorer struct {
	engine    *fallback.Engine
	segmenter *scorecard.Segmenter
}

// NewFallbackScorer wires the rule engine to the segment bands.
func NewFallbackScorer(engine *fallback.Engine, segmenter *scorecard.Segmenter) *FallbackScorer {
	return &FallbackScorer{engine: engine, segmenter: segmenter}
}

// Score implements Scorer.
func (s *FallbackScorer) Score(ctx context.Context, claim domain.ClaimRecord) (*domain.ScorecardResult, error) {
	start := time.Now()

	if err := claim.Validate(); err != nil {
		return nil, err
	}
	res := s.engine.Evaluate(claim)
	segment, action := s.segmenter.Classify(res.Score)

	return &domain.ScorecardResult{
		Score:              res.Score,
		RiskSegment:        segment,
		RecommendedAction:  action,
		ModelMode:          domain.ModeFallback,
		Probability:        math.Round(res.Probability*1000) / 1000,
		KeyRiskFactors:     res.RiskFactors,
		ScorecardBreakdown: res.Breakdown,
		ProcessingMs:       float64(time.Since(start).Microseconds()) / 1000,
		ModelVersion:       FallbackVersion,
		Timestamp:          time.Now().UTC(),
	}, nil
}

// Mode implements Scorer.
func (s *FallbackScorer) Mode() domain.ModelMode {
	return domain.ModeFallback
}

// Info implements Scorer.
func (s *FallbackScorer) Info() ModelInfo {
	return ModelInfo{
		ModelType:    "Business Rules Engine (Fallback Mode)",
		Version:      FallbackVersion,
		Performance:  map[string]float64{},
		FeatureCount: s.engine.RulesCount(),
	}
}
