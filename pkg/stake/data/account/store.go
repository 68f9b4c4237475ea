package account

import (
	"context"
	"errors"
)

var (
	ErrNotFound            = errors.New("account not found")
	ErrAlreadyExists       = errors.New("account already exists")
	ErrStaleVersion        = errors.New("account version is stale")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrOverflow            = errors.New("token amount overflow")
	ErrAuthorityMismatch   = errors.New("mint authority mismatch")
	ErrMintMismatch        = errors.New("token account mint mismatch")
)

// Store is the account arena backing the staking ledger and the token custody
// service. All mutations go through Commit, which applies a Changeset in full
// or not at all.
type Store interface {
	// GetPool gets a pool by address. ErrNotFound is returned if it doesn't exist.
	GetPool(ctx context.Context, address string) (*PoolRecord, error)

	// GetPosition gets a user stake position by address. ErrNotFound is returned
	// if it doesn't exist.
	GetPosition(ctx context.Context, address string) (*PositionRecord, error)

	// GetAllPositions gets every position for a pool, ordered by address.
	// ErrNotFound is returned if there are none.
	GetAllPositions(ctx context.Context, pool string) ([]*PositionRecord, error)

	// GetMint gets a mint by address. ErrNotFound is returned if it doesn't exist.
	GetMint(ctx context.Context, address string) (*MintRecord, error)

	// GetTokenAccount gets a token account by address. ErrNotFound is returned
	// if it doesn't exist.
	GetTokenAccount(ctx context.Context, address string) (*TokenAccountRecord, error)

	// GetStakeSummary returns a consistent snapshot of the pool's staking
	// balances. ErrNotFound is returned if the pool or its vault doesn't exist.
	GetStakeSummary(ctx context.Context, pool string) (*StakeSummary, error)

	// Commit atomically applies the changeset. On success, versions and
	// timestamps of records in the changeset are updated in place.
	//
	// ErrAlreadyExists, ErrStaleVersion, ErrNotFound, ErrInsufficientBalance,
	// ErrOverflow, ErrAuthorityMismatch and ErrMintMismatch are returned when the
	// corresponding operation cannot be applied, in which case nothing is
	// written.
	Commit(ctx context.Context, changeset *Changeset) error
}
