package ledger

import (
	"context"

	"github.com/code-payments/code-staking/pkg/solana/staking"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

// unstake returns amount of the stake mint from the vault to the user. The
// position is kept when it reaches zero so unclaimed rewards survive.
func (l *Ledger) unstake(ctx context.Context, accounts *staking.UnstakeInstructionAccounts, amount uint64) (*Receipt, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	pool, err := l.addresses.verifyPool(accounts.Pool)
	if err != nil {
		return nil, err
	}

	if _, err := l.addresses.verifyVault(accounts.Vault, pool.address); err != nil {
		return nil, err
	}

	userStake, err := l.addresses.verifyUserStake(accounts.UserStake, accounts.User)
	if err != nil {
		return nil, err
	}

	now := l.currentTime()
	err = l.withExclusiveAccess(ctx, userStake, func(ctx context.Context) error {
		poolRecord, vaultRecord, err := l.loadPool(ctx, pool)
		if err != nil {
			return err
		}

		position, err := l.loadPosition(ctx, userStake, accounts.User)
		if err != nil {
			return err
		}
		if position.Amount < amount {
			return ErrInsufficientStake
		}

		userToken, err := l.loadUserTokenAccount(ctx, accounts.UserToken, accounts.User, poolRecord.StakeMint)
		if err != nil {
			return err
		}
		if _, err := checkedAdd(userToken.Amount, amount); err != nil {
			return err
		}

		if err := l.settle(ctx, poolRecord, position, now); err != nil {
			return err
		}
		position.Amount -= amount

		// The pool signs for the vault with its canonical bump
		changeset := &account.Changeset{
			Transfers: []*account.Transfer{
				{
					Source:      vaultRecord.Address,
					Destination: userToken.Address,
					Amount:      amount,
				},
			},
			StakeChanges: []*account.StakeChange{
				{
					Pool:     poolRecord.Address,
					Amount:   amount,
					Withdraw: true,
				},
			},
			Positions: []*account.PositionRecord{position},
		}
		return translateCommitError(l.store.Commit(ctx, changeset))
	})
	if err != nil {
		return nil, err
	}

	return l.newReceipt(staking.InstructionTypeUnstake, accounts.User, amount, now), nil
}
