package ledger

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/solana/staking"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

// GetPool returns the initialized pool
func (l *Ledger) GetPool(ctx context.Context) (*account.PoolRecord, error) {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "GetPool").End()

	pool, err := l.addresses.pool()
	if err != nil {
		return nil, err
	}

	record, err := l.store.GetPool(ctx, pool.String())
	if err == account.ErrNotFound {
		return nil, ErrNotInitialized
	}
	return record, err
}

// GetPosition returns the user's stake position
func (l *Ledger) GetPosition(ctx context.Context, user ed25519.PublicKey) (*account.PositionRecord, error) {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "GetPosition").End()

	userStake, err := l.addresses.userStake(user)
	if err != nil {
		return nil, err
	}
	return l.loadPosition(ctx, userStake, user)
}

// ClaimableRewards previews what ClaimRewards would mint for the user right now
func (l *Ledger) ClaimableRewards(ctx context.Context, user ed25519.PublicKey) (uint64, error) {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "ClaimableRewards").End()

	position, err := l.GetPosition(ctx, user)
	if err != nil {
		return 0, err
	}

	pool, err := l.store.GetPool(ctx, position.Pool)
	if err == account.ErrNotFound {
		return 0, ErrNotInitialized
	} else if err != nil {
		return 0, errors.Wrap(err, "error getting pool")
	}
	return owedRewards(ctx, l.rewardPolicy(pool), position.Amount, position.PendingRewards, position.CheckpointAt, l.currentTime())
}

// GetAccountData returns the on-chain encoding of a pool or user stake account
func (l *Ledger) GetAccountData(ctx context.Context, address ed25519.PublicKey) ([]byte, error) {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "GetAccountData").End()

	encoded := base58.Encode(address)

	pool, err := l.store.GetPool(ctx, encoded)
	if err == nil {
		state := &staking.PoolAccount{
			Authority:             mustDecode(pool.Authority),
			StakeMint:             mustDecode(pool.StakeMint),
			RewardMint:            mustDecode(pool.RewardMint),
			Vault:                 mustDecode(pool.Vault),
			TotalStaked:           pool.TotalStaked,
			RewardRateNumerator:   pool.RewardRateNumerator,
			RewardRateDenominator: pool.RewardRateDenominator,
			RewardPeriodSeconds:   uint64(pool.RewardPeriod / time.Second),
			Bump:                  pool.Bump,
			VaultBump:             pool.VaultBump,
		}
		return state.Marshal(), nil
	} else if err != account.ErrNotFound {
		return nil, errors.Wrap(err, "error getting pool")
	}

	position, err := l.store.GetPosition(ctx, encoded)
	if err == nil {
		state := &staking.UserStakeAccount{
			User:               mustDecode(position.Owner),
			Amount:             position.Amount,
			PendingRewards:     position.PendingRewards,
			CheckpointUnixTime: position.CheckpointAt.Unix(),
			Bump:               position.Bump,
		}
		return state.Marshal(), nil
	} else if err != account.ErrNotFound {
		return nil, errors.Wrap(err, "error getting user stake")
	}

	return nil, ErrAccountNotFound
}

// CheckConservation verifies the vault balance equals both the pool's total
// staked counter and the sum of every position. The snapshot is returned
// alongside ErrConservationViolated when they disagree.
func (l *Ledger) CheckConservation(ctx context.Context) (*account.StakeSummary, error) {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "CheckConservation").End()

	pool, err := l.addresses.pool()
	if err != nil {
		return nil, err
	}

	summary, err := l.store.GetStakeSummary(ctx, pool.String())
	if err == account.ErrNotFound {
		return nil, ErrNotInitialized
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting stake summary")
	}

	if !summary.IsConserved() {
		return summary, ErrConservationViolated
	}
	return summary, nil
}
