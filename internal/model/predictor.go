package model

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BlendFunc combines the logistic and tree probabilities into the final
// blended probability. Implementations must stay within [0,1] for inputs
// within [0,1].
type BlendFunc func(logistic, tree float64) float64

// WeightedAverage returns a BlendFunc giving the logistic model weight w and
// the tree ensemble 1-w. The default blend weights the logistic model at 0.7
// for interpretability, with the tree ensemble as a corrective signal.
func WeightedAverage(w float64) BlendFunc {
	return func(logistic, tree float64) float64 {
		return w*logistic + (1-w)*tree
	}
}

// Predictor serves blended predictions from a validated artifact set.
// Read-only after construction; safe for concurrent use.
type Predictor struct {
	logistic *LogisticModel
	trees    *TreeEnsemble
	blend    BlendFunc
	features int
}

// NewPredictor builds a Predictor. A nil blend defaults to
// WeightedAverage(0.7).
func NewPredictor(a *Artifacts, blend BlendFunc) (*Predictor, error) {
	if a == nil {
		return nil, domain.ErrModelUnavailable
	}
	if blend == nil {
		blend = WeightedAverage(0.7)
	}
	return &Predictor{
		logistic: a.Logistic,
		trees:    a.Trees,
		blend:    blend,
		features: len(a.Metadata.FeatureNames),
	}, nil
}

// Predict returns the per-model and blended fraud probabilities for an
// encoded vector. The result is range-checked before being returned.
func (p *Predictor) Predict(vec domain.EncodedVector) (domain.ModelPrediction, error) {
	if len(vec) != p.features {
		return domain.ModelPrediction{}, fmt.Errorf("predict: vector length %d, expected %d", len(vec), p.features)
	}
	pred := domain.ModelPrediction{
		Logistic: p.logistic.PredictProba(vec),
		Tree:     p.trees.PredictProba(vec),
	}
	pred.Blended = p.blend(pred.Logistic, pred.Tree)
	if err := pred.Validate(); err != nil {
		return domain.ModelPrediction{}, err
	}
	return pred, nil
}
