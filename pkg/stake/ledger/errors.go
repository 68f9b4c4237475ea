package ledger

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

var (
	ErrNotInitialized        = errors.New("pool is not initialized")
	ErrAlreadyInitialized    = errors.New("pool is already initialized")
	ErrInvalidDerivedAddress = errors.New("account address does not match its derivation")
	ErrInsufficientFunds     = errors.New("insufficient token balance")
	ErrInsufficientStake     = errors.New("insufficient staked balance")
	ErrOverflow              = errors.New("math overflow")
	ErrAuthorityMissing      = errors.New("pool does not hold reward mint authority")
	ErrNothingToClaim        = errors.New("no rewards to claim")
	ErrUnauthorized          = errors.New("signer does not match required identity")

	ErrInvalidMint          = errors.New("invalid mint")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidTokenAccount  = errors.New("token account does not exist")
	ErrInvalidInstruction   = errors.New("invalid staking instruction")
	ErrPositionNotFound     = errors.New("user stake does not exist")
	ErrAccountNotFound      = errors.New("account does not exist")
	ErrStaleState           = errors.New("account state changed during the transition")
	ErrDerivationFailed     = errors.New("address derivation failed")
	ErrConservationViolated = errors.New("vault balance does not match staked positions")
	ErrRateLimited          = errors.New("signer exceeded the transition rate limit")
)

// translateCommitError maps store failures onto ledger error kinds. Failures
// here mean state changed between validation and commit.
func translateCommitError(err error) error {
	switch err {
	case nil:
		return nil
	case account.ErrStaleVersion:
		return ErrStaleState
	case account.ErrAlreadyExists:
		return ErrAlreadyInitialized
	case account.ErrNotFound:
		return ErrNotInitialized
	case account.ErrInsufficientBalance:
		return ErrInsufficientFunds
	case account.ErrOverflow:
		return ErrOverflow
	case account.ErrAuthorityMismatch:
		return ErrAuthorityMissing
	case account.ErrMintMismatch:
		return ErrInvalidMint
	}
	return errors.Wrap(err, "error committing changeset")
}
