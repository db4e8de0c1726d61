// Package scorecard converts fraud probabilities to credit-style risk
// scores and classifies scores into risk segments.
package scorecard

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Score bounds. Every score the converter emits lands in this range.
const (
	MinScore = 300
	MaxScore = 850
)

// Converter maps a fraud probability onto the points scale using the
// points-to-double-the-odds (PDO) formulation. Lower score means higher risk.
type Converter struct {
	factor float64
	offset float64
}

// NewConverter builds a Converter from scorecard parameters: baseScore is
// the score assigned at 1:odds fraud odds, and pdo is the number of points
// that doubles the odds.
func NewConverter(baseScore, pdo, odds float64) (*Converter, error) {
	if pdo <= 0 || odds <= 0 {
		return nil, fmt.Errorf("scorecard: pdo and odds must be positive (pdo=%v odds=%v)", pdo, odds)
	}
	factor := pdo / math.Ln2
	return &Converter{
		factor: factor,
		offset: baseScore - factor*math.Log(odds),
	}, nil
}

// ToScore converts a fraud probability to a score via the logit transform:
// score = offset - factor * ln(p/(1-p)), rounded and clamped to
// [MinScore, MaxScore]. Strictly decreasing in p up to integer rounding.
func (c *Converter) ToScore(p float64) (int, error) {
	if math.IsNaN(p) || p <= 0 || p >= 1 {
		return 0, fmt.Errorf("%w: probability %v outside (0,1)", domain.ErrRangeViolation, p)
	}
	raw := c.offset - c.factor*math.Log(p/(1-p))
	score := int(math.Round(raw))
	if score < MinScore {
		score = MinScore
	}
	if score > MaxScore {
		score = MaxScore
	}
	return score, nil
}
