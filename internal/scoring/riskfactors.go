package scoring

import (
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const maxRiskFactors = 4

// riskFactors names the business indicators present in a claim, most
// significant first. When no single indicator stands out but the blended
// probability is elevated, a combined-factors note is reported instead.
func riskFactors(claim domain.ClaimRecord, probability float64) []string {
	var factors []string

	if claim.Field(domain.FieldDaysPolicyClaim) == "1 to 7" {
		factors = append(factors, "Claim filed within 7 days of policy start")
	}
	if strings.Contains(claim.Field(domain.FieldPolicyType), "All Perils") {
		factors = append(factors, "All Perils coverage policy")
	}
	switch claim.Field(domain.FieldMake) {
	case "BMW", "Mercedes", "Audi":
		factors = append(factors, "Premium vehicle make")
	}
	switch claim.Field(domain.FieldAgeOfPolicyHolder) {
	case "18 to 20", "21 to 25":
		factors = append(factors, "Young policy holder (18-25)")
	}
	switch claim.Field(domain.FieldVehiclePrice) {
	case "60000 to 69000", "more than 69000":
		factors = append(factors, "High-value vehicle")
	}
	if claim.Field(domain.FieldAccidentArea) == "Rural" {
		factors = append(factors, "Accident in rural area")
	}

	if len(factors) == 0 && probability > 0.3 {
		factors = append(factors, "Combined attribute pattern elevates risk")
	}
	if len(factors) > maxRiskFactors {
		factors = factors[:maxRiskFactors]
	}
	return factors
}
