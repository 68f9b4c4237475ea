package ledger

import (
	"context"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/solana/staking"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

// claimRewards mints every reward owed to the user with the pool's mint
// authority and resets the position's checkpoint. Neither the stake mint nor
// the vault are touched.
func (l *Ledger) claimRewards(ctx context.Context, accounts *staking.ClaimRewardsInstructionAccounts) (*Receipt, error) {
	pool, err := l.addresses.verifyPool(accounts.Pool)
	if err != nil {
		return nil, err
	}

	userStake, err := l.addresses.verifyUserStake(accounts.UserStake, accounts.User)
	if err != nil {
		return nil, err
	}

	var claimed uint64
	now := l.currentTime()
	err = l.withExclusiveAccess(ctx, userStake, func(ctx context.Context) error {
		poolRecord, err := l.store.GetPool(ctx, pool.String())
		if err == account.ErrNotFound {
			return ErrNotInitialized
		} else if err != nil {
			return errors.Wrap(err, "error getting pool")
		}

		if base58.Encode(accounts.RewardMint) != poolRecord.RewardMint {
			return ErrInvalidMint
		}

		position, err := l.loadPosition(ctx, userStake, accounts.User)
		if err != nil {
			return err
		}

		rewardToken, err := l.loadUserTokenAccount(ctx, accounts.UserRewardToken, accounts.User, poolRecord.RewardMint)
		if err != nil {
			return err
		}

		owed, err := owedRewards(ctx, l.rewardPolicy(poolRecord), position.Amount, position.PendingRewards, position.CheckpointAt, now)
		if err != nil {
			return err
		}
		if owed == 0 {
			return ErrNothingToClaim
		}
		if _, err := checkedAdd(rewardToken.Amount, owed); err != nil {
			return err
		}

		rewardMint, err := l.store.GetMint(ctx, poolRecord.RewardMint)
		if err == account.ErrNotFound {
			return ErrInvalidMint
		} else if err != nil {
			return errors.Wrap(err, "error getting reward mint")
		}
		if rewardMint.Authority != poolRecord.Address {
			return ErrAuthorityMissing
		}
		if _, err := checkedAdd(rewardMint.Supply, owed); err != nil {
			return err
		}

		authority, err := newRewardAuthority(poolRecord)
		if err != nil {
			return err
		}

		position.PendingRewards = 0
		if now.After(position.CheckpointAt) {
			position.CheckpointAt = now
		}

		changeset := &account.Changeset{
			Positions: []*account.PositionRecord{position},
		}
		authority.mintRewards(changeset, rewardToken.Address, owed)

		if err := translateCommitError(l.store.Commit(ctx, changeset)); err != nil {
			return err
		}
		claimed = owed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return l.newReceipt(staking.InstructionTypeClaimRewards, accounts.User, claimed, now), nil
}

func mustDecode(address string) []byte {
	decoded, err := base58.Decode(address)
	if err != nil {
		panic(err)
	}
	return decoded
}
