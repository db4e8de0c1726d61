package fallback

import (
	"log/slog"
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultRules(), slog.Default())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func TestNewEngine(t *testing.T) {
	t.Run("compiles default rule set", func(t *testing.T) {
		e := newTestEngine(t)
		if e.RulesCount() != 6 {
			t.Errorf("expected 6 rules, got %d", e.RulesCount())
		}
	})

	t.Run("rejects invalid CEL expression", func(t *testing.T) {
		_, err := NewEngine([]Rule{{ID: "bad", Expression: `claim[`}}, nil)
		if err == nil {
			t.Fatal("expected compile error")
		}
	})

	t.Run("rejects non-bool expression", func(t *testing.T) {
		_, err := NewEngine([]Rule{{ID: "notbool", Expression: `claim["Make"]`}}, nil)
		if err == nil {
			t.Fatal("expected output type error")
		}
	})

	t.Run("rejects empty rule set", func(t *testing.T) {
		if _, err := NewEngine(nil, nil); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestEvaluate(t *testing.T) {
	e := newTestEngine(t)

	t.Run("every rule firing", func(t *testing.T) {
		res := e.Evaluate(domain.ClaimRecord{
			"Make":              "BMW",
			"PolicyType":        "Sport - All Perils",
			"Days_Policy_Claim": "1 to 7",
			"AgeOfPolicyHolder": "21 to 25",
			"VehiclePrice":      "more than 69000",
			"AccidentArea":      "Rural",
		})

		// 0.035 + 0.18 + 0.09 + 0.12 + 0.07 + 0.08 + 0.05
		if math.Abs(res.Probability-0.625) > 1e-9 {
			t.Errorf("probability = %v, want 0.625", res.Probability)
		}
		// 650 - 25 - 15 - 20 - 15 - 10 - 8
		if res.Score != 557 {
			t.Errorf("score = %d, want 557", res.Score)
		}
		if len(res.RiskFactors) != 4 {
			t.Errorf("expected risk factors capped at 4, got %d", len(res.RiskFactors))
		}
		if res.Breakdown["Base Score"] != 650 {
			t.Errorf("breakdown base = %d, want 650", res.Breakdown["Base Score"])
		}
		if res.Breakdown["Claim Timing"] != -25 {
			t.Errorf("breakdown claim timing = %d, want -25", res.Breakdown["Claim Timing"])
		}
	})

	t.Run("no rules firing", func(t *testing.T) {
		res := e.Evaluate(domain.ClaimRecord{
			"Make":              "Honda",
			"PolicyType":        "Sedan - Collision",
			"Days_Policy_Claim": "more than 30",
			"AgeOfPolicyHolder": "41 to 50",
			"VehiclePrice":      "20000 to 29000",
			"AccidentArea":      "Urban",
		})

		if math.Abs(res.Probability-BaseProbability) > 1e-9 {
			t.Errorf("probability = %v, want base %v", res.Probability, BaseProbability)
		}
		// 650 + 10 + 5 + 5 + 5 + 0 + 2
		if res.Score != 677 {
			t.Errorf("score = %d, want 677", res.Score)
		}
		if len(res.RiskFactors) != 0 {
			t.Errorf("expected no risk factors, got %v", res.RiskFactors)
		}
		if res.Breakdown["Claim Timing"] != 10 {
			t.Errorf("breakdown claim timing = %d, want 10", res.Breakdown["Claim Timing"])
		}
	})

	t.Run("missing optional fields count as miss", func(t *testing.T) {
		res := e.Evaluate(domain.ClaimRecord{
			"Make":              "BMW",
			"PolicyType":        "Sedan - Collision",
			"Days_Policy_Claim": "8 to 15",
		})
		// premium make fires, everything else misses
		if math.Abs(res.Probability-(BaseProbability+0.12)) > 1e-9 {
			t.Errorf("probability = %v, want %v", res.Probability, BaseProbability+0.12)
		}
		if res.Score != 650+10+5-20+5+0+2 {
			t.Errorf("score = %d, want %d", res.Score, 650+10+5-20+5+0+2)
		}
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		claim := domain.ClaimRecord{
			"Make":              "Mercedes",
			"PolicyType":        "Sport - All Perils",
			"Days_Policy_Claim": "1 to 7",
		}
		first := e.Evaluate(claim)
		for i := 0; i < 10; i++ {
			got := e.Evaluate(claim)
			if got.Score != first.Score || got.Probability != first.Probability {
				t.Fatalf("evaluation %d diverged: %+v vs %+v", i, got, first)
			}
		}
	})
}
