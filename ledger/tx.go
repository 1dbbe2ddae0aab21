package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"gridsettle/crypto"
)

// ChainID identifies the settlement ledger expected inside mint transactions.
const ChainID uint64 = 770001

// MintTx is the canonical mint payload signed off-ledger by the settlement
// authority. One transaction mints the aggregated amount for a single
// settlement account.
type MintTx struct {
	Account  string `json:"account"`
	Amount   string `json:"amount"`
	ChainID  uint64 `json:"chainId"`
	IssuedAt int64  `json:"issuedAt"`
}

// CanonicalJSON returns the canonical encoding used for signing. Field order
// and normalisation are fixed so the digest is reproducible.
func (tx MintTx) CanonicalJSON() ([]byte, error) {
	amount, err := tx.AmountBig()
	if err != nil {
		return nil, err
	}
	canonical := struct {
		Account  string `json:"account"`
		Amount   string `json:"amount"`
		ChainID  uint64 `json:"chainId"`
		IssuedAt int64  `json:"issuedAt"`
	}{
		Account:  strings.TrimSpace(tx.Account),
		Amount:   amount.String(),
		ChainID:  tx.ChainID,
		IssuedAt: tx.IssuedAt,
	}
	if canonical.Account == "" {
		return nil, fmt.Errorf("account required")
	}
	if err := crypto.ValidateAccountAddress(canonical.Account); err != nil {
		return nil, fmt.Errorf("invalid account: %w", err)
	}
	if canonical.ChainID == 0 {
		return nil, fmt.Errorf("chainId required")
	}
	if canonical.IssuedAt == 0 {
		return nil, fmt.Errorf("issuedAt required")
	}
	return json.Marshal(canonical)
}

// Digest computes the keccak256 hash over the canonical JSON representation.
func (tx MintTx) Digest() ([]byte, error) {
	canonical, err := tx.CanonicalJSON()
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(canonical), nil
}

// AmountBig parses the Amount field and returns it as a big integer.
func (tx MintTx) AmountBig() (*big.Int, error) {
	trimmed := strings.TrimSpace(tx.Amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", tx.Amount)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

// SignedTx bundles a mint transaction with the authority signature over its digest.
type SignedTx struct {
	Tx        MintTx `json:"tx"`
	Signature []byte `json:"sig"`
}

// Sign produces a SignedTx carrying a recoverable signature by the supplied
// settlement authority key.
func (tx MintTx) Sign(key *crypto.PrivateKey) (*SignedTx, error) {
	if key == nil {
		return nil, fmt.Errorf("authority key required")
	}
	digest, err := tx.Digest()
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("sign mint tx: %w", err)
	}
	return &SignedTx{Tx: tx, Signature: sig}, nil
}
