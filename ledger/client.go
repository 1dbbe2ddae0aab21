package ledger

import (
	"context"
	"errors"
)

var (
	// ErrAccountExists indicates an account creation raced with a prior
	// creation for the same address. Callers treat it as success.
	ErrAccountExists = errors.New("ledger: account already exists")
	// ErrUnconfirmed indicates a transaction was accepted by the ledger but a
	// confirmation was not observed before the client gave up. The
	// transaction may still land.
	ErrUnconfirmed = errors.New("ledger: transaction submitted but not confirmed")
)

// Account is the handle for a resolved settlement account.
type Account struct {
	Address string
	Created bool
}

// Client abstracts the ledger network operations the settlement engine
// depends on. Implementations must be safe for concurrent use; the engine
// shares one client across all group pipelines.
type Client interface {
	// AccountExists reports whether a settlement account is present for the address.
	AccountExists(ctx context.Context, addr string) (bool, error)
	// CreateAccount provisions a settlement account, charging the creation
	// fee to the settlement authority. Returns ErrAccountExists when the
	// account was already provisioned.
	CreateAccount(ctx context.Context, addr string) (Account, error)
	// SubmitTransaction broadcasts a signed mint transaction and awaits
	// confirmation. The returned hash is non-empty once the ledger accepted
	// the submission, even when confirmation was not observed
	// (ErrUnconfirmed).
	SubmitTransaction(ctx context.Context, tx *SignedTx) (string, error)
}
