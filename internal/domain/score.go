package domain

import (
	"fmt"
	"math"
	"time"
)

// RiskSegment is a discrete risk tier derived from the scorecard score.
type RiskSegment string

const (
	SegmentLow    RiskSegment = "LOW"
	SegmentMedium RiskSegment = "MEDIUM"
	SegmentHigh   RiskSegment = "HIGH"
)

// ModelMode identifies which scoring path produced a result.
type ModelMode string

const (
	// ModeML means both trained models were loaded and used.
	ModeML ModelMode = "ML"

	// ModeFallback means the deterministic rule engine produced the score.
	ModeFallback ModelMode = "FALLBACK"
)

// EncodedVector is an ordered sequence of encoded feature values,
// positionally aligned to the model's training-time feature schema.
type EncodedVector []float64

// ModelPrediction holds the per-model and blended fraud probabilities.
type ModelPrediction struct {
	Logistic float64 `json:"logistic"`
	Tree     float64 `json:"tree"`
	Blended  float64 `json:"blended"`
}

// Validate checks the probability contract: every value in [0,1], never NaN.
// A violation here is a programming error, not bad input.
func (p ModelPrediction) Validate() error {
	for name, v := range map[string]float64{
		"logistic": p.Logistic,
		"tree":     p.Tree,
		"blended":  p.Blended,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s probability %v outside [0,1]", ErrRangeViolation, name, v)
		}
	}
	return nil
}

// ScorecardResult is the full scoring outcome returned to the caller.
type ScorecardResult struct {
	Score              int            `json:"score"`
	RiskSegment        RiskSegment    `json:"risk_segment"`
	RecommendedAction  string         `json:"recommended_action"`
	ModelMode          ModelMode      `json:"model_mode"`
	Probability        float64        `json:"probability"`
	KeyRiskFactors     []string       `json:"key_risk_factors,omitempty"`
	ScorecardBreakdown map[string]int `json:"scorecard_breakdown,omitempty"`
	ProcessingMs       float64        `json:"processing_time_ms"`
	ModelVersion       string         `json:"model_version"`
	Timestamp          time.Time      `json:"timestamp"`
}

// ScoreRecord is a persisted scoring outcome, retrievable by ID.
type ScoreRecord struct {
	ID        string          `json:"id"`
	ClaimID   string          `json:"claimId"`
	Claim     ClaimRecord     `json:"claim"`
	Result    ScorecardResult `json:"result"`
	CreatedAt time.Time       `json:"createdAt"`
}

// BusinessSnapshot is a point-in-time copy of the running business KPIs.
// Counters are monotonic for the lifetime of the process.
type BusinessSnapshot struct {
	TotalScored   int64 `json:"totalScored"`
	HighCount     int64 `json:"highCount"`
	MediumCount   int64 `json:"mediumCount"`
	LowCount      int64 `json:"lowCount"`
	FallbackCount int64 `json:"fallbackCount"`

	// EstimatedSavings is the cumulative expected recovered value across
	// flagged claims, per the configured per-segment value estimates.
	EstimatedSavings float64 `json:"estimatedSavings"`

	TotalLatencyMs float64   `json:"-"`
	StartedAt      time.Time `json:"startedAt"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// SegmentCount returns the counter for a segment.
func (s BusinessSnapshot) SegmentCount(seg RiskSegment) int64 {
	switch seg {
	case SegmentHigh:
		return s.HighCount
	case SegmentMedium:
		return s.MediumCount
	case SegmentLow:
		return s.LowCount
	}
	return 0
}

// HighRiskRate returns the fraction of scored claims landing in HIGH.
func (s BusinessSnapshot) HighRiskRate() float64 {
	if s.TotalScored == 0 {
		return 0
	}
	return float64(s.HighCount) / float64(s.TotalScored)
}

// AvgLatencyMs returns the mean scoring latency.
func (s BusinessSnapshot) AvgLatencyMs() float64 {
	if s.TotalScored == 0 {
		return 0
	}
	return s.TotalLatencyMs / float64(s.TotalScored)
}
