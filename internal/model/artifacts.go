// Package model loads the trained model artifacts and serves blended
// fraud probability predictions.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/encoder"
	"github.com/opensource-finance/kestrel/internal/scorecard"
)

// Artifact file names expected in the model directory.
const (
	LogisticFile  = "logistic.json"
	TreesFile     = "trees.json"
	WoEBinsFile   = "woe_bins.json"
	ScorecardFile = "scorecard.json"
	MetadataFile  = "metadata.json"
)

// Metadata describes the trained model set.
type Metadata struct {
	FeatureNames    []string `json:"feature_names"`
	AUCLogistic     float64  `json:"auc_logistic"`
	AUCTree         float64  `json:"auc_tree"`
	NFeatures       int      `json:"n_features"`
	Version         string   `json:"version"`
	TrainingDate    string   `json:"training_date"`
	TrainingSamples int      `json:"training_samples"`
}

// ScorecardArtifact holds the exported scorecard: PDO parameters, the
// per-feature point weights derived from the logistic coefficients, and the
// segment cut-points.
type ScorecardArtifact struct {
	Parameters struct {
		BaseScore float64 `json:"base_score"`
		PDO       float64 `json:"pdo"`
		Odds      float64 `json:"odds"`
	} `json:"parameters"`
	BasePoints float64            `json:"base_points"`
	Points     map[string]float64 `json:"points"`
	Segments   []scorecard.Band   `json:"segments"`
}

// Artifacts is the complete validated model artifact set.
type Artifacts struct {
	Logistic  *LogisticModel
	Trees     *TreeEnsemble
	Bins      map[string]encoder.BinTable
	Scorecard *ScorecardArtifact
	Metadata  *Metadata
}

// LoadArtifacts reads and validates the artifact set from dir. Any missing
// or malformed file yields ErrModelUnavailable so the caller can degrade to
// fallback scoring instead of failing.
func LoadArtifacts(dir string) (*Artifacts, error) {
	a := &Artifacts{}

	if err := readJSON(dir, MetadataFile, &a.Metadata); err != nil {
		return nil, err
	}
	if err := readJSON(dir, LogisticFile, &a.Logistic); err != nil {
		return nil, err
	}
	if err := readJSON(dir, TreesFile, &a.Trees); err != nil {
		return nil, err
	}
	if err := readJSON(dir, WoEBinsFile, &a.Bins); err != nil {
		return nil, err
	}
	if err := readJSON(dir, ScorecardFile, &a.Scorecard); err != nil {
		return nil, err
	}

	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	return a, nil
}

func readJSON(dir, name string, out any) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", domain.ErrModelUnavailable, name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", domain.ErrModelUnavailable, name, err)
	}
	return nil
}

// validate cross-checks the artifact set before it serves traffic.
func (a *Artifacts) validate() error {
	n := len(a.Metadata.FeatureNames)
	if n == 0 {
		return fmt.Errorf("metadata has no feature names")
	}
	if a.Metadata.NFeatures != 0 && a.Metadata.NFeatures != n {
		return fmt.Errorf("metadata n_features=%d but %d feature names listed", a.Metadata.NFeatures, n)
	}
	if err := a.Logistic.Validate(n); err != nil {
		return fmt.Errorf("%s: %v", LogisticFile, err)
	}
	if err := a.Trees.Validate(n); err != nil {
		return fmt.Errorf("%s: %v", TreesFile, err)
	}
	for name, table := range a.Bins {
		if err := table.Validate(); err != nil {
			return fmt.Errorf("%s: %s: %v", WoEBinsFile, name, err)
		}
	}
	if err := a.Scorecard.Validate(a.Metadata.FeatureNames); err != nil {
		return fmt.Errorf("%s: %v", ScorecardFile, err)
	}
	return nil
}

// Validate checks the scorecard parameters, point weights and segment bands.
func (s *ScorecardArtifact) Validate(featureNames []string) error {
	if s.Parameters.PDO <= 0 || s.Parameters.Odds <= 0 {
		return fmt.Errorf("invalid parameters: pdo=%v odds=%v", s.Parameters.PDO, s.Parameters.Odds)
	}
	known := make(map[string]bool, len(featureNames))
	for _, f := range featureNames {
		known[f] = true
	}
	for feature, points := range s.Points {
		if !known[feature] {
			return fmt.Errorf("points for unknown feature %q", feature)
		}
		if math.IsNaN(points) || math.IsInf(points, 0) {
			return fmt.Errorf("non-finite points for feature %q", feature)
		}
	}
	if _, err := scorecard.NewSegmenter(s.Segments); err != nil {
		return err
	}
	return nil
}
