package model

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// TreeEnsemble is a gradient-boosted ensemble of regression trees producing
// log-odds margins. The summed margins plus bias pass through the sigmoid.
type TreeEnsemble struct {
	Bias  float64 `json:"bias"`
	Trees []Tree  `json:"trees"`
}

// Tree is one regression tree stored as a flat node array; index 0 is the
// root, internal nodes reference children by index.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeNode is a split node (Leaf false) or a leaf (Leaf true). Splits route
// left when vec[Feature] < Threshold.
type TreeNode struct {
	Leaf      bool    `json:"leaf"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// Validate checks structural integrity: at least one tree, node indices in
// bounds, feature indices within the feature schema, finite values.
func (e *TreeEnsemble) Validate(nFeatures int) error {
	if e == nil || len(e.Trees) == 0 {
		return fmt.Errorf("missing tree ensemble")
	}
	if math.IsNaN(e.Bias) || math.IsInf(e.Bias, 0) {
		return fmt.Errorf("non-finite bias %v", e.Bias)
	}
	for ti, tree := range e.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, node := range tree.Nodes {
			if node.Leaf {
				if math.IsNaN(node.Value) || math.IsInf(node.Value, 0) {
					return fmt.Errorf("tree %d node %d: non-finite leaf value", ti, ni)
				}
				continue
			}
			if node.Feature < 0 || node.Feature >= nFeatures {
				return fmt.Errorf("tree %d node %d: feature index %d out of range [0,%d)", ti, ni, node.Feature, nFeatures)
			}
			if node.Left <= ni || node.Left >= len(tree.Nodes) ||
				node.Right <= ni || node.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
			}
		}
	}
	return nil
}

// PredictProba returns the fraud probability for an encoded vector.
func (e *TreeEnsemble) PredictProba(vec domain.EncodedVector) float64 {
	margin := e.Bias
	for i := range e.Trees {
		margin += e.Trees[i].evaluate(vec)
	}
	return sigmoid(margin)
}

func (t *Tree) evaluate(vec domain.EncodedVector) float64 {
	i := 0
	for {
		node := t.Nodes[i]
		if node.Leaf {
			return node.Value
		}
		if vec[node.Feature] < node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}
