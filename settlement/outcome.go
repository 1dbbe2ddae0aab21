package settlement

import "github.com/google/uuid"

// OutcomeStatus is the terminal state of one claim after a settlement run.
type OutcomeStatus string

const (
	// StatusSettled marks a claim minted through a confirmed transaction.
	StatusSettled OutcomeStatus = "settled"
	// StatusFailed marks a claim whose group definitively did not settle.
	StatusFailed OutcomeStatus = "failed"
	// StatusIndeterminate marks a claim whose transaction was handed to the
	// ledger but whose confirmation was never observed. It must not be
	// coerced to success or failure.
	StatusIndeterminate OutcomeStatus = "indeterminate"
)

// Outcome is the per-claim result of a settlement run. Every claim accepted
// into a run yields exactly one outcome; all claims in the same settled group
// share one transaction hash.
type Outcome struct {
	ClaimID uuid.UUID     `json:"claimId"`
	Status  OutcomeStatus `json:"status"`
	// TxHash is set for settled claims, and for indeterminate ones when the
	// ledger returned a hash before confirmation was lost.
	TxHash string `json:"txHash,omitempty"`
	// Kind classifies failures for machine consumption.
	Kind FailureKind `json:"kind,omitempty"`
	// Reason is the human-readable failure description.
	Reason string `json:"reason,omitempty"`
}

// groupResult is the terminal state of one transaction group pipeline.
type groupResult struct {
	status OutcomeStatus
	txHash string
	kind   FailureKind
	reason string
}

// aggregate reduces per-group results back to one outcome per original claim,
// in the original input order. Claims rejected before planning carry their
// prepared outcomes in upfront.
func aggregate(claims []MintClaim, plan *BatchPlan, results []groupResult, upfront map[uuid.UUID]Outcome) []Outcome {
	byClaim := make(map[uuid.UUID]Outcome, len(claims))
	for id, outcome := range upfront {
		byClaim[id] = outcome
	}
	if plan != nil {
		for i, group := range plan.Groups {
			res := results[i]
			for _, claim := range group.Claims {
				byClaim[claim.ID] = Outcome{
					ClaimID: claim.ID,
					Status:  res.status,
					TxHash:  res.txHash,
					Kind:    res.kind,
					Reason:  res.reason,
				}
			}
		}
	}
	out := make([]Outcome, 0, len(claims))
	for _, claim := range claims {
		out = append(out, byClaim[claim.ID])
	}
	return out
}
