// Package fallback provides the CEL-based deterministic rule engine used
// when the trained models are unavailable.
package fallback

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scorecard"
)

// Engine defaults. The base probability is the portfolio fraud rate; every
// claim starts there and rules adjust it.
const (
	BaseScore       = 650
	BaseProbability = 0.035

	// Probability clamp bounds for rule-based scoring.
	MinProbability = 0.005
	MaxProbability = 0.95

	maxRiskFactors = 4
)

// Rule is one fallback scoring rule. Expression is a CEL boolean over the
// `claim` attribute map.
type Rule struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`

	// Label names the rule in the scorecard breakdown.
	Label string `json:"label"`

	// RiskFactor is the human-readable factor reported when the rule fires.
	RiskFactor string `json:"riskFactor"`

	// ProbabilityDelta is added to the fraud probability when the rule fires.
	ProbabilityDelta float64 `json:"probabilityDelta"`

	// HitPoints adjusts the score when the rule fires (negative = riskier).
	// MissPoints is the credit applied when it does not.
	HitPoints  int `json:"hitPoints"`
	MissPoints int `json:"missPoints"`
}

// DefaultRules returns the built-in fallback rule set. Weights reflect the
// observed fraud-rate uplift of each indicator in historical claims.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:               "urgent_claim",
			Expression:       `claim["Days_Policy_Claim"] == "1 to 7"`,
			Label:            "Claim Timing",
			RiskFactor:       "Claim filed within 7 days of policy start",
			ProbabilityDelta: 0.18,
			HitPoints:        -25,
			MissPoints:       10,
		},
		{
			ID:               "complex_policy",
			Expression:       `claim["PolicyType"].contains("All Perils")`,
			Label:            "Policy Type",
			RiskFactor:       "All Perils coverage policy",
			ProbabilityDelta: 0.09,
			HitPoints:        -15,
			MissPoints:       5,
		},
		{
			ID:               "premium_make",
			Expression:       `claim["Make"] in ["BMW", "Mercedes", "Audi"]`,
			Label:            "Vehicle Make",
			RiskFactor:       "Premium vehicle make",
			ProbabilityDelta: 0.12,
			HitPoints:        -20,
			MissPoints:       5,
		},
		{
			ID:               "young_driver",
			Expression:       `claim["AgeOfPolicyHolder"] in ["18 to 20", "21 to 25"]`,
			Label:            "Driver Age",
			RiskFactor:       "Young policy holder (18-25)",
			ProbabilityDelta: 0.07,
			HitPoints:        -15,
			MissPoints:       5,
		},
		{
			ID:               "luxury_price",
			Expression:       `claim["VehiclePrice"] in ["60000 to 69000", "more than 69000"]`,
			Label:            "Vehicle Value",
			RiskFactor:       "High-value vehicle",
			ProbabilityDelta: 0.08,
			HitPoints:        -10,
			MissPoints:       0,
		},
		{
			ID:               "rural_area",
			Expression:       `claim["AccidentArea"] == "Rural"`,
			Label:            "Accident Area",
			RiskFactor:       "Accident in rural area",
			ProbabilityDelta: 0.05,
			HitPoints:        -8,
			MissPoints:       2,
		},
	}
}

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// Engine evaluates the fallback rule set against a claim. Rules are compiled
// once at construction; the engine is read-only afterwards and safe for
// concurrent use.
type Engine struct {
	rules  []compiledRule
	logger *slog.Logger
}

// NewEngine compiles the rule set. Compilation failures are construction
// errors; evaluation failures at scoring time skip the rule.
func NewEngine(rules []Rule, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("fallback: no rules")
	}

	env, err := cel.NewEnv(
		cel.Variable("claim", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("fallback: creating CEL environment: %w", err)
	}

	e := &Engine{
		rules:  make([]compiledRule, 0, len(rules)),
		logger: logger,
	}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("fallback: compiling rule %s: %w", r.ID, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("fallback: rule %s: expression must return bool, got %s", r.ID, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("fallback: building program for rule %s: %w", r.ID, err)
		}
		e.rules = append(e.rules, compiledRule{rule: r, program: program})
	}
	return e, nil
}

// Result is the outcome of a fallback evaluation.
type Result struct {
	Probability float64
	Score       int
	RiskFactors []string
	Breakdown   map[string]int
}

// Evaluate scores a claim with the rule set. A rule whose evaluation errors
// is skipped and logged; a syntactically valid claim always scores.
func (e *Engine) Evaluate(claim domain.ClaimRecord) Result {
	activation := map[string]any{"claim": claimActivation(claim)}

	prob := BaseProbability
	points := 0
	breakdown := map[string]int{"Base Score": BaseScore}
	var factors []string

	for _, cr := range e.rules {
		out, _, err := cr.program.Eval(activation)
		if err != nil {
			e.logger.Warn("fallback rule evaluation failed, skipping",
				"rule", cr.rule.ID,
				"error", err)
			continue
		}
		fired, ok := out.(types.Bool)
		if !ok {
			e.logger.Warn("fallback rule returned non-bool, skipping",
				"rule", cr.rule.ID)
			continue
		}

		if bool(fired) {
			prob += cr.rule.ProbabilityDelta
			points += cr.rule.HitPoints
			breakdown[cr.rule.Label] = cr.rule.HitPoints
			if len(factors) < maxRiskFactors {
				factors = append(factors, cr.rule.RiskFactor)
			}
		} else {
			points += cr.rule.MissPoints
			breakdown[cr.rule.Label] = cr.rule.MissPoints
		}
	}

	if prob < MinProbability {
		prob = MinProbability
	}
	if prob > MaxProbability {
		prob = MaxProbability
	}

	score := BaseScore + points
	if score < scorecard.MinScore {
		score = scorecard.MinScore
	}
	if score > scorecard.MaxScore {
		score = scorecard.MaxScore
	}

	return Result{
		Probability: prob,
		Score:       score,
		RiskFactors: factors,
		Breakdown:   breakdown,
	}
}

// RulesCount returns the number of compiled rules.
func (e *Engine) RulesCount() int {
	return len(e.rules)
}

// claimActivation builds the CEL activation map. Well-known fields default
// to "" so rules see a miss rather than a missing-key error.
func claimActivation(claim domain.ClaimRecord) map[string]string {
	m := map[string]string{
		domain.FieldMonth:             "",
		domain.FieldDayOfWeek:         "",
		domain.FieldMake:              "",
		domain.FieldAccidentArea:      "",
		domain.FieldSex:               "",
		domain.FieldMaritalStatus:     "",
		domain.FieldPolicyType:        "",
		domain.FieldVehiclePrice:      "",
		domain.FieldAgeOfVehicle:      "",
		domain.FieldAgeOfPolicyHolder: "",
		domain.FieldDaysPolicyClaim:   "",
	}
	for k, v := range claim {
		m[k] = v
	}
	return m
}
