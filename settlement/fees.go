package settlement

// FeeEstimate statically predicts the cost of executing a batch plan. It is
// a pre-execution estimate only; it reserves no funds and ledger-side fees
// may fluctuate.
type FeeEstimate struct {
	// Groups is the predicted ledger transaction count.
	Groups int `json:"groups"`
	// DistinctAccounts is the number of unique settlement accounts across the
	// whole plan. The estimate is conservative: every distinct account is
	// assumed to require creation.
	DistinctAccounts int `json:"distinctAccounts"`
	// TotalFeeUnits is the predicted total cost in ledger fee units.
	TotalFeeUnits uint64 `json:"totalFeeUnits"`
}

// EstimateFee computes the predicted settlement cost for a plan as
// (baseFee + accountFee × distinctAccounts) × groups, saturating rather than
// wrapping on overflow.
func EstimateFee(plan *BatchPlan, baseFee, accountFee uint64) FeeEstimate {
	if plan == nil || len(plan.Groups) == 0 {
		return FeeEstimate{}
	}
	distinct := make(map[string]struct{}, len(plan.Groups))
	for _, group := range plan.Groups {
		distinct[group.Account] = struct{}{}
	}
	perGroup := saturatingAdd(baseFee, saturatingMul(accountFee, uint64(len(distinct))))
	total := saturatingMul(perGroup, uint64(len(plan.Groups)))
	return FeeEstimate{
		Groups:           len(plan.Groups),
		DistinctAccounts: len(distinct),
		TotalFeeUnits:    total,
	}
}
