// Package scoring orchestrates the scoring pipeline behind a single Scorer
// capability. The implementation is chosen once at startup: MLScorer when
// the trained artifacts load, FallbackScorer otherwise.
package scoring

import (
	"context"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Scorer scores a single claim. Implementations are safe for concurrent use.
type Scorer interface {
	// Score produces the full scoring outcome for a claim. A missing
	// required field yields ErrSchema; unknown category values never error.
	Score(ctx context.Context, claim domain.ClaimRecord) (*domain.ScorecardResult, error)

	// Mode identifies which scoring path this Scorer implements.
	Mode() domain.ModelMode

	// Info describes the underlying model for the model-info endpoints.
	Info() ModelInfo
}

// ModelInfo describes the active scoring model.
type ModelInfo struct {
	ModelType    string             `json:"model_type"`
	Version      string             `json:"version"`
	Performance  map[string]float64 `json:"performance_metrics"`
	FeatureCount int                `json:"features_count"`
	TrainingDate string             `json:"training_date,omitempty"`
}
