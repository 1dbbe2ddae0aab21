package settlement

import (
	"fmt"
	"math"
	"math/bits"
)

// Limits bound the shape of one settlement run.
type Limits struct {
	// MaxItems caps the number of claims per transaction group.
	MaxItems int
	// MaxAmount caps the accumulated token amount per group. A single claim
	// whose own amount exceeds the cap is placed alone and allowed through;
	// the cap bounds accumulation, not any individual claim.
	MaxAmount uint64
	// MaxClaims is the absolute ceiling on claims per run, enforced before
	// any grouping is attempted.
	MaxClaims int
}

func (l Limits) validate() error {
	if l.MaxItems <= 0 {
		return fmt.Errorf("settle: max items must be positive")
	}
	if l.MaxAmount == 0 {
		return fmt.Errorf("settle: max amount must be positive")
	}
	if l.MaxClaims <= 0 {
		return fmt.Errorf("settle: max claims must be positive")
	}
	return nil
}

// TransactionGroup is the unit of ledger interaction: an ordered set of
// claims sharing one settlement account, minted through a single aggregated
// transaction. Groups exist only for the duration of one settlement run.
type TransactionGroup struct {
	Account string
	Claims  []MintClaim
	Total   uint64
}

// BatchPlan is the ordered sequence of transaction groups produced from one
// claim list. Every input claim appears in exactly one group.
type BatchPlan struct {
	Groups []TransactionGroup
	// ClaimCount is the number of claims partitioned into the plan.
	ClaimCount int
}

// Plan partitions claims into transaction-legal groups. Claims are processed
// in input order with a streaming first-fit accumulate policy: a claim joins
// the current window unless it would push the window past MaxItems or
// MaxAmount, in which case the window is sealed and a new one starts with
// that claim. Each sealed window is then clustered per recipient account, in
// order of first appearance. Same-recipient claims landing in different
// windows stay in different groups; merging across windows could violate the
// amount cap retroactively.
func Plan(claims []MintClaim, limits Limits) (*BatchPlan, error) {
	if err := limits.validate(); err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(claims) > limits.MaxClaims {
		return nil, &BatchTooLargeError{Size: len(claims), Max: limits.MaxClaims}
	}

	plan := &BatchPlan{ClaimCount: len(claims)}
	window := make([]MintClaim, 0, limits.MaxItems)
	var running uint64
	seal := func() {
		if len(window) == 0 {
			return
		}
		plan.Groups = append(plan.Groups, clusterByAccount(window)...)
		window = make([]MintClaim, 0, limits.MaxItems)
		running = 0
	}
	for _, claim := range claims {
		if len(window) > 0 {
			if len(window) >= limits.MaxItems || saturatingAdd(running, claim.Amount) > limits.MaxAmount {
				seal()
			}
		}
		window = append(window, claim)
		running = saturatingAdd(running, claim.Amount)
	}
	seal()
	return plan, nil
}

// saturatingAdd sums two amounts, pinning at the maximum representable value
// instead of wrapping.
func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// saturatingMul multiplies two amounts with the same pinning behaviour.
func saturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}
