package ledger

import (
	"context"

	"github.com/mr-tron/base58"

	"github.com/code-payments/code-staking/pkg/solana/staking"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

// stake escrows amount of the stake mint from the user's token account into
// the vault, creating the user's position on first use.
func (l *Ledger) stake(ctx context.Context, accounts *staking.StakeInstructionAccounts, amount uint64) (*Receipt, error) {
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

		userToken, err := l.loadUserTokenAccount(ctx, accounts.UserToken, accounts.User, poolRecord.StakeMint)
		if err != nil {
			return err
		}
		if userToken.Amount < amount {
			return ErrInsufficientFunds
		}

		position, err := l.loadPosition(ctx, userStake, accounts.User)
		switch err {
		case nil:
		case ErrPositionNotFound:
			position = &account.PositionRecord{
				Address:      userStake.String(),
				Pool:         poolRecord.Address,
				Owner:        base58.Encode(accounts.User),
				CheckpointAt: now,
				Bump:         userStake.bump,
			}
		default:
			return err
		}

		if err := l.settle(ctx, poolRecord, position, now); err != nil {
			return err
		}

		position.Amount, err = checkedAdd(position.Amount, amount)
		if err != nil {
			return err
		}
		if _, err := checkedAdd(poolRecord.TotalStaked, amount); err != nil {
			return err
		}
		if _, err := checkedAdd(vaultRecord.Amount, amount); err != nil {
			return err
		}

		changeset := &account.Changeset{
			Transfers: []*account.Transfer{
				{
					Source:      userToken.Address,
					Destination: vaultRecord.Address,
					Amount:      amount,
				},
			},
			StakeChanges: []*account.StakeChange{
				{
					Pool:   poolRecord.Address,
					Amount: amount,
				},
			},
			Positions: []*account.PositionRecord{position},
		}
		return translateCommitError(l.store.Commit(ctx, changeset))
	})
	if err != nil {
		return nil, err
	}

	return l.newReceipt(staking.InstructionTypeStake, accounts.User, amount, now), nil
}
