package settlement

// clusterByAccount re-clusters one planner window into disjoint per-recipient
// transaction groups, preserving the relative order in which each account
// first appears. Pure function; totals accumulate with the same saturating
// arithmetic as the planner.
func clusterByAccount(window []MintClaim) []TransactionGroup {
	if len(window) == 0 {
		return nil
	}
	index := make(map[string]int, len(window))
	groups := make([]TransactionGroup, 0, len(window))
	for _, claim := range window {
		at, seen := index[claim.Account]
		if !seen {
			at = len(groups)
			index[claim.Account] = at
			groups = append(groups, TransactionGroup{Account: claim.Account})
		}
		groups[at].Claims = append(groups[at].Claims, claim)
		groups[at].Total = saturatingAdd(groups[at].Total, claim.Amount)
	}
	return groups
}
