package ledger

import (
	"bytes"
	"context"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/solana/staking"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

// initializePool creates the singleton pool with the signer as its authority
// and an empty vault owned by the pool.
func (l *Ledger) initializePool(ctx context.Context, accounts *staking.InitializePoolInstructionAccounts) (*Receipt, error) {
	pool, err := l.addresses.verifyPool(accounts.Pool)
	if err != nil {
		return nil, err
	}

	vault, err := l.addresses.verifyVault(accounts.Vault, pool.address)
	if err != nil {
		return nil, err
	}

	if bytes.Equal(accounts.StakeMint, accounts.RewardMint) {
		return nil, ErrInvalidMint
	}

	// The rate is fixed for the lifetime of the pool
	rate := &PeriodicRatePolicy{
		Numerator:   l.conf.rewardRateNumerator.Get(ctx),
		Denominator: l.conf.rewardRateDenominator.Get(ctx),
		Period:      l.conf.rewardPeriod.Get(ctx),
	}
	if err := rate.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid reward rate config")
	}

	now := l.currentTime()
	err = l.withExclusiveAccess(ctx, pool, func(ctx context.Context) error {
		_, err := l.store.GetPool(ctx, pool.String())
		if err == nil {
			return ErrAlreadyInitialized
		} else if err != account.ErrNotFound {
			return errors.Wrap(err, "error getting pool")
		}

		for _, mint := range []string{base58.Encode(accounts.StakeMint), base58.Encode(accounts.RewardMint)} {
			_, err := l.store.GetMint(ctx, mint)
			if err == account.ErrNotFound {
				return ErrInvalidMint
			} else if err != nil {
				return errors.Wrap(err, "error getting mint")
			}
		}

		changeset := &account.Changeset{
			NewPool: &account.PoolRecord{
				Address:    pool.String(),
				Authority:  base58.Encode(accounts.Authority),
				StakeMint:  base58.Encode(accounts.StakeMint),
				RewardMint: base58.Encode(accounts.RewardMint),
				Vault:      vault.String(),

				RewardRateNumerator:   rate.Numerator,
				RewardRateDenominator: rate.Denominator,
				RewardPeriod:          rate.Period,

				Bump:      pool.bump,
				VaultBump: vault.bump,
			},
			NewTokenAccounts: []*account.TokenAccountRecord{
				{
					Address: vault.String(),
					Mint:    base58.Encode(accounts.StakeMint),
					Owner:   pool.String(),
				},
			},
		}
		return translateCommitError(l.store.Commit(ctx, changeset))
	})
	if err != nil {
		return nil, err
	}

	return l.newReceipt(staking.InstructionTypeInitializePool, accounts.Authority, 0, now), nil
}
