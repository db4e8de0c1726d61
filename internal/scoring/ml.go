package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/encoder"
	"github.com/opensource-finance/kestrel/internal/model"
	"github.com/opensource-finance/kestrel/internal/scorecard"
)

// MLScorer runs the full trained pipeline: encode, predict, convert to the
// points scale, segment. Read-only after construction.
type MLScorer struct {
	enc        *encoder.Encoder
	predictor  *model.Predictor
	converter  *scorecard.Converter
	segmenter  *scorecard.Segmenter
	basePoints float64
	points     map[string]float64
	metadata   *model.Metadata
}

// NewMLScorer wires the scoring pipeline from a validated artifact set.
// A nil blend uses the default weighted average.
func NewMLScorer(a *model.Artifacts, blend model.BlendFunc) (*MLScorer, error) {
	if a == nil {
		return nil, domain.ErrModelUnavailable
	}
	enc, err := encoder.New(a.Metadata.FeatureNames, a.Bins)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	predictor, err := model.NewPredictor(a, blend)
	if err != nil {
		return nil, err
	}
	converter, err := scorecard.NewConverter(
		a.Scorecard.Parameters.BaseScore,
		a.Scorecard.Parameters.PDO,
		a.Scorecard.Parameters.Odds,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	segmenter, err := scorecard.NewSegmenter(a.Scorecard.Segments)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	return &MLScorer{
		enc:        enc,
		predictor:  predictor,
		converter:  converter,
		segmenter:  segmenter,
		basePoints: a.Scorecard.BasePoints,
		points:     a.Scorecard.Points,
		metadata:   a.Metadata,
	}, nil
}

// Score implements Scorer.
func (s *MLScorer) Score(ctx context.Context, claim domain.ClaimRecord) (*domain.ScorecardResult, error) {
	start := time.Now()

	vec, err := s.enc.Encode(claim)
	if err != nil {
		return nil, err
	}
	pred, err := s.predictor.Predict(vec)
	if err != nil {
		return nil, err
	}
	score, err := s.converter.ToScore(pred.Blended)
	if err != nil {
		return nil, err
	}
	segment, action := s.segmenter.Classify(score)

	return &domain.ScorecardResult{
		Score:              score,
		RiskSegment:        segment,
		RecommendedAction:  action,
		ModelMode:          domain.ModeML,
		Probability:        math.Round(pred.Blended*1000) / 1000,
		KeyRiskFactors:     riskFactors(claim, pred.Blended),
		ScorecardBreakdown: s.breakdown(vec),
		ProcessingMs:       float64(time.Since(start).Microseconds()) / 1000,
		ModelVersion:       s.metadata.Version,
		Timestamp:          time.Now().UTC(),
	}, nil
}

// breakdown reports the per-feature point contributions for explainability.
// Contributions below half a point are folded away to keep the breakdown
// readable.
func (s *MLScorer) breakdown(vec domain.EncodedVector) map[string]int {
	out := map[string]int{"Base Score": int(s.basePoints)}
	for i, name := range s.enc.Features() {
		points, ok := s.points[name]
		if !ok {
			continue
		}
		contribution := vec[i] * points
		if math.Abs(contribution) <= 0.5 {
			continue
		}
		display := strings.TrimSuffix(strings.TrimSuffix(name, "_WoE"), "_Numeric")
		out[display] = int(contribution)
	}
	return out
}

// Mode implements Scorer.
func (s *MLScorer) Mode() domain.ModelMode {
	return domain.ModeML
}

// Info implements Scorer.
func (s *MLScorer) Info() ModelInfo {
	return ModelInfo{
		ModelType: "Dual Model: Logistic Regression + Tree Ensemble",
		Version:   s.metadata.Version,
		Performance: map[string]float64{
			"auc_logistic": s.metadata.AUCLogistic,
			"auc_tree":     s.metadata.AUCTree,
		},
		FeatureCount: len(s.metadata.FeatureNames),
		TrainingDate: s.metadata.TrainingDate,
	}
}

// Features returns the ordered feature schema of the active model.
func (s *MLScorer) Features() []string {
	return s.enc.Features()
}
