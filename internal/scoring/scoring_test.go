package scoring

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/encoder"
	"github.com/opensource-finance/kestrel/internal/fallback"
	"github.com/opensource-finance/kestrel/internal/model"
	"github.com/opensource-finance/kestrel/internal/scorecard"
)

// testArtifacts builds a compact artifact set whose weights reproduce the
// expected orderings: a stacked high-risk claim lands HIGH, a clean claim
// lands LOW.
func testArtifacts() *model.Artifacts {
	sc := &model.ScorecardArtifact{
		BasePoints: 428,
		Points: map[string]float64{
			"Make_WoE":              -29,
			"PolicyType_WoE":        -29,
			"Days_Policy_Claim_WoE": -29,
			"Claim_Urgency":         -35,
			"Premium_Make":          -23,
			"Young_Driver":          -17,
			"Luxury_Vehicle":        -17,
		},
		Segments: scorecard.DefaultBands(),
	}
	sc.Parameters.BaseScore = 650
	sc.Parameters.PDO = 20
	sc.Parameters.Odds = 50

	return &model.Artifacts{
		Metadata: &model.Metadata{
			FeatureNames: []string{
				"Make_WoE", "PolicyType_WoE", "Days_Policy_Claim_WoE",
				"Claim_Urgency", "Premium_Make", "Young_Driver", "Luxury_Vehicle",
			},
			AUCLogistic:  0.847,
			AUCTree:      0.835,
			Version:      "1.0.0",
			TrainingDate: "2026-07-01",
		},
		Logistic: &model.LogisticModel{
			Intercept:    -3.8,
			Coefficients: []float64{1.0, 1.0, 1.0, 1.2, 0.8, 0.6, 0.6},
		},
		Trees: &model.TreeEnsemble{
			Bias: -2.5,
			Trees: []model.Tree{
				{
					Nodes: []model.TreeNode{
						{Feature: 3, Threshold: 0.5, Left: 1, Right: 2},
						{Leaf: true, Value: -0.8},
						{Leaf: true, Value: 1.5},
					},
				},
			},
		},
		Bins: map[string]encoder.BinTable{
			"Make": {
				WoE:     map[string]float64{"BMW": 0.8, "Honda": -0.4},
				Default: 0,
			},
			"PolicyType": {
				WoE:     map[string]float64{"Sport - All Perils": 0.7, "Sedan - Collision": -0.3},
				Default: 0,
			},
			"Days_Policy_Claim": {
				WoE:     map[string]float64{"1 to 7": 0.9, "more than 30": -0.5},
				Default: 0,
			},
		},
		Scorecard: sc,
	}
}

func highRiskClaim() domain.ClaimRecord {
	return domain.ClaimRecord{
		"Make":              "BMW",
		"PolicyType":        "Sport - All Perils",
		"Days_Policy_Claim": "1 to 7",
		"AgeOfPolicyHolder": "21 to 25",
		"VehiclePrice":      "more than 69000",
		"AgeOfVehicle":      "2 years",
		"AccidentArea":      "Urban",
	}
}

func cleanClaim() domain.ClaimRecord {
	return domain.ClaimRecord{
		"Make":              "Honda",
		"PolicyType":        "Sedan - Collision",
		"Days_Policy_Claim": "more than 30",
		"AgeOfPolicyHolder": "41 to 50",
		"VehiclePrice":      "20000 to 29000",
		"AgeOfVehicle":      "5 years",
		"AccidentArea":      "Urban",
	}
}

func newMLScorer(t *testing.T) *MLScorer {
	t.Helper()
	s, err := NewMLScorer(testArtifacts(), nil)
	if err != nil {
		t.Fatalf("NewMLScorer failed: %v", err)
	}
	return s
}

func newFallbackScorer(t *testing.T) *FallbackScorer {
	t.Helper()
	engine, err := fallback.NewEngine(fallback.DefaultRules(), slog.Default())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	seg, err := scorecard.NewSegmenter(scorecard.DefaultBands())
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}
	return NewFallbackScorer(engine, seg)
}

func TestMLScorer(t *testing.T) {
	s := newMLScorer(t)
	ctx := context.Background()

	if s.Mode() != domain.ModeML {
		t.Errorf("Mode = %s, want ML", s.Mode())
	}

	t.Run("stacked indicators land in the HIGH segment", func(t *testing.T) {
		res, err := s.Score(ctx, highRiskClaim())
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if res.Score >= 581 {
			t.Errorf("score = %d, want <= 580", res.Score)
		}
		if res.RiskSegment != domain.SegmentHigh {
			t.Errorf("segment = %s, want HIGH", res.RiskSegment)
		}
		if res.ModelMode != domain.ModeML {
			t.Errorf("mode = %s, want ML", res.ModelMode)
		}
		if res.Probability <= 0 || res.Probability > 1 {
			t.Errorf("probability %v outside (0,1]", res.Probability)
		}
		if len(res.KeyRiskFactors) == 0 {
			t.Error("expected risk factors for a stacked claim")
		}
		if res.ScorecardBreakdown["Base Score"] != 428 {
			t.Errorf("breakdown base = %d, want 428", res.ScorecardBreakdown["Base Score"])
		}
	})

	t.Run("clean claim lands in the LOW segment", func(t *testing.T) {
		res, err := s.Score(ctx, cleanClaim())
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if res.RiskSegment != domain.SegmentLow {
			t.Errorf("segment = %s (score %d), want LOW", res.RiskSegment, res.Score)
		}
		if len(res.KeyRiskFactors) != 0 {
			t.Errorf("expected no risk factors, got %v", res.KeyRiskFactors)
		}
	})

	t.Run("risky claim scores below clean claim", func(t *testing.T) {
		risky, err := s.Score(ctx, highRiskClaim())
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		clean, err := s.Score(ctx, cleanClaim())
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if risky.Score >= clean.Score {
			t.Errorf("risky score %d not below clean score %d", risky.Score, clean.Score)
		}
		if risky.Probability <= clean.Probability {
			t.Errorf("risky probability %v not above clean %v", risky.Probability, clean.Probability)
		}
	})

	t.Run("unknown categories use default bins", func(t *testing.T) {
		claim := highRiskClaim()
		claim["Make"] = "Yugo"
		claim["PolicyType"] = "Wagon - Liability"
		res, err := s.Score(ctx, claim)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if res.Score < 300 || res.Score > 850 {
			t.Errorf("score %d outside [300,850]", res.Score)
		}
	})

	t.Run("missing required field is a schema error", func(t *testing.T) {
		claim := highRiskClaim()
		delete(claim, "PolicyType")
		_, err := s.Score(ctx, claim)
		if !errors.Is(err, domain.ErrSchema) {
			t.Fatalf("expected ErrSchema, got %v", err)
		}
	})

	t.Run("deterministic for identical claims", func(t *testing.T) {
		first, err := s.Score(ctx, highRiskClaim())
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		second, err := s.Score(ctx, highRiskClaim())
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if first.Score != second.Score || first.Probability != second.Probability {
			t.Errorf("results diverged: %d/%v vs %d/%v",
				first.Score, first.Probability, second.Score, second.Probability)
		}
	})
}

func TestFallbackScorer(t *testing.T) {
	s := newFallbackScorer(t)
	ctx := context.Background()

	if s.Mode() != domain.ModeFallback {
		t.Errorf("Mode = %s, want FALLBACK", s.Mode())
	}

	t.Run("stacked indicators land in the HIGH segment", func(t *testing.T) {
		res, err := s.Score(ctx, highRiskClaim())
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		// 650 - 25 - 15 - 20 - 15 - 10 + 2
		if res.Score != 567 {
			t.Errorf("score = %d, want 567", res.Score)
		}
		if res.RiskSegment != domain.SegmentHigh {
			t.Errorf("segment = %s, want HIGH", res.RiskSegment)
		}
		if res.ModelMode != domain.ModeFallback {
			t.Errorf("mode = %s, want FALLBACK", res.ModelMode)
		}
		if res.ModelVersion != FallbackVersion {
			t.Errorf("version = %s, want %s", res.ModelVersion, FallbackVersion)
		}
	})

	t.Run("clean claim lands in the LOW segment", func(t *testing.T) {
		res, err := s.Score(ctx, cleanClaim())
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if res.Score != 677 {
			t.Errorf("score = %d, want 677", res.Score)
		}
		if res.RiskSegment != domain.SegmentLow {
			t.Errorf("segment = %s, want LOW", res.RiskSegment)
		}
	})

	t.Run("missing required field is a schema error", func(t *testing.T) {
		claim := highRiskClaim()
		delete(claim, "Make")
		_, err := s.Score(ctx, claim)
		if !errors.Is(err, domain.ErrSchema) {
			t.Fatalf("expected ErrSchema, got %v", err)
		}
	})
}

// Both scoring paths must agree on the canonical high-risk scenario: the
// service cannot flip a blatant fraud pattern to LOW just because it is
// running degraded.
func TestModeParityOnHighRiskScenario(t *testing.T) {
	ctx := context.Background()
	for _, s := range []Scorer{newMLScorer(t), newFallbackScorer(t)} {
		res, err := s.Score(ctx, highRiskClaim())
		if err != nil {
			t.Fatalf("%s: Score failed: %v", s.Mode(), err)
		}
		if res.RiskSegment != domain.SegmentHigh {
			t.Errorf("%s: segment = %s (score %d), want HIGH", s.Mode(), res.RiskSegment, res.Score)
		}
		if res.Score > 580 {
			t.Errorf("%s: score = %d, want <= 580", s.Mode(), res.Score)
		}
	}
}

func TestRiskFactors(t *testing.T) {
	t.Run("capped at four", func(t *testing.T) {
		claim := highRiskClaim()
		claim["AccidentArea"] = "Rural"
		factors := riskFactors(claim, 0.6)
		if len(factors) != 4 {
			t.Errorf("expected 4 factors, got %d: %v", len(factors), factors)
		}
	})

	t.Run("combined note for factorless elevated probability", func(t *testing.T) {
		factors := riskFactors(cleanClaim(), 0.45)
		if len(factors) != 1 {
			t.Fatalf("expected a single combined-factors note, got %v", factors)
		}
	})

	t.Run("empty for clean low-probability claim", func(t *testing.T) {
		if factors := riskFactors(cleanClaim(), 0.02); len(factors) != 0 {
			t.Errorf("expected no factors, got %v", factors)
		}
	})
}
