// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ClaimRecord is an immutable mapping of named claim attributes to their raw
// categorical values, exactly as submitted by the caller.
type ClaimRecord map[string]string

// Well-known claim attribute names. Field names are preserved verbatim from
// the upstream claim intake format for wire compatibility.
const (
	FieldMonth             = "Month"
	FieldDayOfWeek         = "DayOfWeek"
	FieldMake              = "Make"
	FieldAccidentArea      = "AccidentArea"
	FieldSex               = "Sex"
	FieldMaritalStatus     = "MaritalStatus"
	FieldPolicyType        = "PolicyType"
	FieldVehiclePrice      = "VehiclePrice"
	FieldAgeOfVehicle      = "AgeOfVehicle"
	FieldAgeOfPolicyHolder = "AgeOfPolicyHolder"
	FieldDaysPolicyClaim   = "Days_Policy_Claim"
)

// RequiredClaimFields must be present in every claim. A missing required
// field is a schema error; an unrecognized value within a present field is
// not (it resolves to the default bin).
var RequiredClaimFields = []string{
	FieldMake,
	FieldPolicyType,
	FieldDaysPolicyClaim,
}

// Field returns the raw value for an attribute, or "" if absent.
func (c ClaimRecord) Field(name string) string {
	return c[name]
}

// Validate checks that all required claim fields are present and non-empty.
func (c ClaimRecord) Validate() error {
	var missing []string
	for _, f := range RequiredClaimFields {
		if strings.TrimSpace(c[f]) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrSchema, strings.Join(missing, ", "))
	}
	return nil
}

// Digest returns a stable content hash of the claim attributes.
// Scoring in ML mode is deterministic, so the digest is a safe cache key:
// identical claims always produce identical results.
func (c ClaimRecord) Digest() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(c[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a copy of the claim record.
func (c ClaimRecord) Clone() ClaimRecord {
	out := make(ClaimRecord, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Claim is a persisted claim submission.
type Claim struct {
	ID         string      `json:"id"`
	Attributes ClaimRecord `json:"attributes"`
	ReceivedAt time.Time   `json:"receivedAt"`
}
