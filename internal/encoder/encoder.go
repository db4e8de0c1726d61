// Package encoder turns raw claim attributes into the encoded feature
// vector the trained models were fitted on.
//
// Three feature kinds exist, mirroring the training pipeline:
//   - <Var>_WoE: Weight-of-Evidence encoding of a categorical attribute
//   - <Var>_Numeric: midpoint of the attribute's categorical range
//   - business flags: derived binary indicators (Claim_Urgency, ...)
package encoder

import (
	"fmt"
	"math"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BinTable holds the WoE encoding for one categorical variable.
type BinTable struct {
	// WoE maps a raw category to its Weight-of-Evidence value.
	WoE map[string]float64 `json:"woe"`

	// Default is the WoE assigned to categories unseen at training time.
	Default float64 `json:"default"`
}

// Validate checks the table is non-empty and every WoE value is finite.
func (t BinTable) Validate() error {
	if len(t.WoE) == 0 {
		return fmt.Errorf("empty bin table")
	}
	for cat, v := range t.WoE {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite WoE %v for category %q", v, cat)
		}
	}
	if math.IsNaN(t.Default) || math.IsInf(t.Default, 0) {
		return fmt.Errorf("non-finite default WoE %v", t.Default)
	}
	return nil
}

// Encode returns the WoE for a category, falling back to the default bin.
// Unknown categories are expected traffic, never an error.
func (t BinTable) Encode(category string) float64 {
	if v, ok := t.WoE[category]; ok {
		return v
	}
	return t.Default
}

// Midpoint tables for the range-valued categorical attributes. Values are the
// numeric midpoints used at training time; the default covers unseen ranges.
var (
	ageMidpoints = midpointTable{
		values: map[string]float64{
			"below 18": 17, "16 to 17": 17, "18 to 20": 19, "21 to 25": 23,
			"26 to 30": 28, "31 to 35": 33, "36 to 40": 38, "41 to 50": 45,
			"51 to 65": 58, "over 65": 70,
		},
		fallback: 35,
	}

	priceMidpoints = midpointTable{
		values: map[string]float64{
			"less than 20000": 15000, "20000 to 29000": 24500,
			"30000 to 39000": 34500, "40000 to 59000": 49500,
			"60000 to 69000": 64500, "more than 69000": 80000,
		},
		fallback: 35000,
	}

	vehicleAgeMidpoints = midpointTable{
		values: map[string]float64{
			"new": 0, "2 years": 2, "3 years": 3, "4 years": 4,
			"5 years": 5, "6 years": 6, "7 years": 7, "more than 7": 10,
		},
		fallback: 5,
	}

	daysMidpoints = midpointTable{
		values: map[string]float64{
			"none": 0, "1 to 7": 4, "8 to 15": 11,
			"15 to 30": 22, "more than 30": 45,
		},
		fallback: 30,
	}
)

type midpointTable struct {
	values   map[string]float64
	fallback float64
}

func (t midpointTable) encode(category string) float64 {
	if v, ok := t.values[category]; ok {
		return v
	}
	return t.fallback
}

// numericSources maps a "<Var>_Numeric" feature to its claim field and table.
var numericSources = map[string]struct {
	field string
	table midpointTable
}{
	"AgeOfPolicyHolder_Numeric": {domain.FieldAgeOfPolicyHolder, ageMidpoints},
	"VehiclePrice_Numeric":      {domain.FieldVehiclePrice, priceMidpoints},
	"AgeOfVehicle_Numeric":      {domain.FieldAgeOfVehicle, vehicleAgeMidpoints},
	"Days_Policy_Claim_Numeric": {domain.FieldDaysPolicyClaim, daysMidpoints},
}

// businessFlags maps a derived binary feature to its predicate.
var businessFlags = map[string]func(domain.ClaimRecord) bool{
	"Claim_Urgency": func(c domain.ClaimRecord) bool {
		return c.Field(domain.FieldDaysPolicyClaim) == "1 to 7"
	},
	"Luxury_Vehicle": func(c domain.ClaimRecord) bool {
		p := c.Field(domain.FieldVehiclePrice)
		return p == "60000 to 69000" || p == "more than 69000"
	},
	"Young_Driver": func(c domain.ClaimRecord) bool {
		a := c.Field(domain.FieldAgeOfPolicyHolder)
		return a == "18 to 20" || a == "21 to 25"
	},
	"Complex_Policy": func(c domain.ClaimRecord) bool {
		return strings.Contains(c.Field(domain.FieldPolicyType), "All Perils")
	},
	"Premium_Make": func(c domain.ClaimRecord) bool {
		m := c.Field(domain.FieldMake)
		return m == "BMW" || m == "Mercedes" || m == "Audi"
	},
}

// Encoder maps a ClaimRecord onto the model's ordered feature schema.
// Immutable after construction; safe for concurrent use.
type Encoder struct {
	features []string
	bindings []func(domain.ClaimRecord) float64
}

// New builds an Encoder for the given ordered feature names. Every feature
// must resolve to a known binding: schema drift between the model metadata
// and this encoder is a startup error, not a silent truncation.
func New(featureNames []string, bins map[string]BinTable) (*Encoder, error) {
	if len(featureNames) == 0 {
		return nil, fmt.Errorf("encoder: no feature names")
	}
	for name, table := range bins {
		if err := table.Validate(); err != nil {
			return nil, fmt.Errorf("encoder: bin table %s: %w", name, err)
		}
	}

	e := &Encoder{
		features: append([]string(nil), featureNames...),
		bindings: make([]func(domain.ClaimRecord) float64, 0, len(featureNames)),
	}
	for _, name := range featureNames {
		binding, err := resolve(name, bins)
		if err != nil {
			return nil, err
		}
		e.bindings = append(e.bindings, binding)
	}
	return e, nil
}

func resolve(name string, bins map[string]BinTable) (func(domain.ClaimRecord) float64, error) {
	if variable, ok := strings.CutSuffix(name, "_WoE"); ok {
		table, ok := bins[variable]
		if !ok {
			return nil, fmt.Errorf("encoder: feature %s has no bin table", name)
		}
		return func(c domain.ClaimRecord) float64 {
			return table.Encode(c.Field(variable))
		}, nil
	}
	if src, ok := numericSources[name]; ok {
		return func(c domain.ClaimRecord) float64 {
			return src.table.encode(c.Field(src.field))
		}, nil
	}
	if predicate, ok := businessFlags[name]; ok {
		return func(c domain.ClaimRecord) float64 {
			if predicate(c) {
				return 1
			}
			return 0
		}, nil
	}
	return nil, fmt.Errorf("encoder: unknown feature %s", name)
}

// Features returns the ordered feature names this encoder produces.
func (e *Encoder) Features() []string {
	return append([]string(nil), e.features...)
}

// Encode validates the claim and produces its encoded feature vector,
// positionally aligned to Features().
func (e *Encoder) Encode(claim domain.ClaimRecord) (domain.EncodedVector, error) {
	if err := claim.Validate(); err != nil {
		return nil, err
	}
	vec := make(domain.EncodedVector, len(e.bindings))
	for i, binding := range e.bindings {
		vec[i] = binding(claim)
	}
	return vec, nil
}
