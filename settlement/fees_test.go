package settlement

import (
	"math"
	"testing"
)

func TestEstimateFeeFormula(t *testing.T) {
	limits := Limits{MaxItems: 2, MaxAmount: 1_000_000, MaxClaims: 1024}
	claims := []MintClaim{
		claim("grid-a", 1),
		claim("grid-b", 2),
		claim("grid-a", 3), // second window, same account as group one
	}
	plan, err := Plan(claims, limits)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	estimate := EstimateFee(plan, 5000, 1000)
	if estimate.Groups != 3 {
		t.Fatalf("groups %d, want 3", estimate.Groups)
	}
	if estimate.DistinctAccounts != 2 {
		t.Fatalf("distinct accounts %d, want 2", estimate.DistinctAccounts)
	}
	// (5000 + 1000*2) * 3
	if estimate.TotalFeeUnits != 21_000 {
		t.Fatalf("total %d, want 21000", estimate.TotalFeeUnits)
	}
}

func TestEstimateFeeEmptyPlan(t *testing.T) {
	estimate := EstimateFee(nil, 5000, 1000)
	if estimate.Groups != 0 || estimate.TotalFeeUnits != 0 {
		t.Fatalf("unexpected estimate: %+v", estimate)
	}
}

func TestEstimateFeeSaturates(t *testing.T) {
	plan, err := Plan([]MintClaim{claim("grid-a", 1), claim("grid-b", 1)}, testLimits())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	estimate := EstimateFee(plan, math.MaxUint64, math.MaxUint64)
	if estimate.TotalFeeUnits != math.MaxUint64 {
		t.Fatalf("total %d, want saturated max", estimate.TotalFeeUnits)
	}
}
