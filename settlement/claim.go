package settlement

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"gridsettle/crypto"
)

// UnitsPerKWh is the number of token base units minted per measured kWh.
const UnitsPerKWh = 1_000_000_000

// MintClaim is one pending settlement unit derived from a metered-energy
// reading. Claims are immutable inputs; the engine only reads them.
type MintClaim struct {
	// ID is the externally assigned claim identifier.
	ID uuid.UUID `json:"id"`
	// Recipient is the logical user reference the claim settles for.
	Recipient string `json:"recipient"`
	// Account is the ledger-addressable settlement account for the recipient.
	Account string `json:"account"`
	// ReadingKWh is the raw measured quantity the claim was derived from.
	ReadingKWh float64 `json:"readingKwh"`
	// Amount is the derived token amount in ledger base units, precomputed by
	// the ingestion layer via TokensForReading.
	Amount uint64 `json:"amount"`
}

// Validate checks the structural fields of a claim. Amount is not checked
// here: zero-amount claims pass planning and surface as a no-op failure when
// their group is built.
func (c MintClaim) Validate() error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("claim id required")
	}
	if err := crypto.ValidateAccountAddress(c.Account); err != nil {
		return fmt.Errorf("recipient account: %w", err)
	}
	return nil
}

// TokensForReading converts a measured kWh quantity into token base units.
// The conversion is deterministic and monotonic: readings quantise by
// truncation at UnitsPerKWh resolution.
func TokensForReading(kwh float64) (uint64, error) {
	if math.IsNaN(kwh) || math.IsInf(kwh, 0) {
		return 0, fmt.Errorf("reading must be finite")
	}
	if kwh < 0 {
		return 0, fmt.Errorf("reading must be non-negative")
	}
	units := kwh * UnitsPerKWh
	if units >= math.MaxUint64 {
		return 0, fmt.Errorf("reading %v overflows token units", kwh)
	}
	return uint64(units), nil
}
