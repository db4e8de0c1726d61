package model

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// LogisticModel is a trained logistic regression over the encoded feature
// vector. Coefficients are positionally aligned to the metadata feature list.
type LogisticModel struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// Validate checks the coefficient count matches the feature schema and every
// coefficient is finite.
func (m *LogisticModel) Validate(nFeatures int) error {
	if m == nil {
		return fmt.Errorf("missing logistic model")
	}
	if len(m.Coefficients) != nFeatures {
		return fmt.Errorf("%d coefficients for %d features", len(m.Coefficients), nFeatures)
	}
	for i, c := range m.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("non-finite coefficient %v at index %d", c, i)
		}
	}
	if math.IsNaN(m.Intercept) || math.IsInf(m.Intercept, 0) {
		return fmt.Errorf("non-finite intercept %v", m.Intercept)
	}
	return nil
}

// PredictProba returns the fraud probability for an encoded vector.
func (m *LogisticModel) PredictProba(vec domain.EncodedVector) float64 {
	z := m.Intercept
	for i, c := range m.Coefficients {
		z += c * vec[i]
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
