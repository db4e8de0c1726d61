package scorecard

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Band is one contiguous score range mapped to a risk segment. A band covers
// every score up to and including MaxScore; its lower bound is the previous
// band's MaxScore + 1 (or MinScore for the first band).
type Band struct {
	Segment  domain.RiskSegment `json:"segment"`
	MaxScore int                `json:"max_score"`
	Action   string             `json:"action"`
}

// Segmenter classifies scores into risk segments via ordered cut-points.
// Immutable after construction.
type Segmenter struct {
	bands []Band
}

// NewSegmenter validates that the bands form a closed partition of
// [MinScore, MaxScore]: strictly ascending cut-points, final band ending
// exactly at MaxScore. Gaps, overlaps and uncovered ranges are rejected.
func NewSegmenter(bands []Band) (*Segmenter, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("scorecard: no segment bands")
	}
	prev := MinScore - 1
	for i, b := range bands {
		if b.Segment == "" {
			return nil, fmt.Errorf("scorecard: band %d has no segment", i)
		}
		if b.MaxScore <= prev {
			return nil, fmt.Errorf("scorecard: band %d cut-point %d not above previous %d", i, b.MaxScore, prev)
		}
		if b.MaxScore > MaxScore {
			return nil, fmt.Errorf("scorecard: band %d cut-point %d above max score %d", i, b.MaxScore, MaxScore)
		}
		prev = b.MaxScore
	}
	if prev != MaxScore {
		return nil, fmt.Errorf("scorecard: bands end at %d, leaving (%d, %d] uncovered", prev, prev, MaxScore)
	}
	return &Segmenter{bands: append([]Band(nil), bands...)}, nil
}

// DefaultBands returns the standard segment partition.
func DefaultBands() []Band {
	return []Band{
		{Segment: domain.SegmentHigh, MaxScore: 580, Action: "INVESTIGATE IMMEDIATELY - Multiple high-risk indicators detected"},
		{Segment: domain.SegmentMedium, MaxScore: 620, Action: "DETAILED REVIEW REQUIRED - Some concerning factors present"},
		{Segment: domain.SegmentLow, MaxScore: 850, Action: "STANDARD PROCESSING - Normal risk profile"},
	}
}

// Classify returns the segment and recommended action for a score.
// The score must already be clamped to [MinScore, MaxScore].
func (s *Segmenter) Classify(score int) (domain.RiskSegment, string) {
	for _, b := range s.bands {
		if score <= b.MaxScore {
			return b.Segment, b.Action
		}
	}
	// unreachable for clamped scores; last band covers MaxScore
	last := s.bands[len(s.bands)-1]
	return last.Segment, last.Action
}

// Bands returns a copy of the configured bands.
func (s *Segmenter) Bands() []Band {
	return append([]Band(nil), s.bands...)
}
