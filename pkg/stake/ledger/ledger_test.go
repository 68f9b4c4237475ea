package ledger

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xrate "golang.org/x/time/rate"

	memory_lock "github.com/code-payments/code-staking/pkg/lock/memory"
	"github.com/code-payments/code-staking/pkg/rate"
	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/staking"
	"github.com/code-payments/code-staking/pkg/solana/token"
	"github.com/code-payments/code-staking/pkg/stake/custody"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
	"github.com/code-payments/code-staking/pkg/stake/data/account/memory"
)

func TestInitializePool_HappyPath(t *testing.T) {
	env := setup(t)

	receipt, err := env.initializePool(t)
	require.NoError(t, err)
	assert.Equal(t, staking.InstructionTypeInitializePool, receipt.Transition)
	assert.NotEmpty(t, receipt.Id)

	pool, err := env.ledger.GetPool(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, env.pool.String(), pool.Address)
	assert.Equal(t, env.vault.String(), pool.Vault)
	assert.EqualValues(t, 0, pool.TotalStaked)
	assert.EqualValues(t, 1, pool.RewardRateNumerator)
	assert.EqualValues(t, 10, pool.RewardRateDenominator)
	assert.Equal(t, 24*time.Hour, pool.RewardPeriod)

	assert.EqualValues(t, 0, env.balance(t, env.vault.address))

	data, err := env.ledger.GetAccountData(env.ctx, env.pool.address)
	require.NoError(t, err)
	var state staking.PoolAccount
	require.NoError(t, state.Unmarshal(data))
	assert.EqualValues(t, env.adminPub, state.Authority)
	assert.EqualValues(t, env.stakeMint, state.StakeMint)
	assert.EqualValues(t, env.rewardMint, state.RewardMint)
	assert.EqualValues(t, env.vault.address, state.Vault)
	assert.Equal(t, env.pool.bump, state.Bump)
	assert.Equal(t, env.vault.bump, state.VaultBump)
	assert.EqualValues(t, 1, state.RewardRateNumerator)
	assert.EqualValues(t, 10, state.RewardRateDenominator)
	assert.EqualValues(t, 86400, state.RewardPeriodSeconds)

	// A pool can only be initialized once
	_, err = env.initializePool(t)
	assert.Equal(t, ErrAlreadyInitialized, err)

	env.assertConserved(t)
}

func TestInitializePool_InvalidRewardRate(t *testing.T) {
	env := setup(t)
	env.ledger = New(env.store, withManualTestOverrides(&testOverrides{
		rewardRateNumerator:   1,
		rewardRateDenominator: 10,
		rewardPeriod:          time.Millisecond,
		derivationCacheSize:   100,
	}), WithClock(env.now))

	_, err := env.initializePool(t)
	assert.Error(t, err)

	_, err = env.ledger.GetPool(env.ctx)
	assert.Equal(t, ErrNotInitialized, err)
}

func TestInitializePool_Validation(t *testing.T) {
	env := setup(t)

	missingMint := newKey(t)

	for _, tc := range []struct {
		accounts *staking.InitializePoolInstructionAccounts
		expected error
	}{
		{
			accounts: &staking.InitializePoolInstructionAccounts{
				Pool:       env.pool.address,
				Authority:  env.adminPub,
				StakeMint:  env.stakeMint,
				RewardMint: env.stakeMint,
				Vault:      env.vault.address,
			},
			expected: ErrInvalidMint,
		},
		{
			accounts: &staking.InitializePoolInstructionAccounts{
				Pool:       env.pool.address,
				Authority:  env.adminPub,
				StakeMint:  env.stakeMint,
				RewardMint: missingMint,
				Vault:      env.vault.address,
			},
			expected: ErrInvalidMint,
		},
		{
			accounts: &staking.InitializePoolInstructionAccounts{
				Pool:       newKey(t),
				Authority:  env.adminPub,
				StakeMint:  env.stakeMint,
				RewardMint: env.rewardMint,
				Vault:      env.vault.address,
			},
			expected: ErrInvalidDerivedAddress,
		},
		{
			accounts: &staking.InitializePoolInstructionAccounts{
				Pool:       env.pool.address,
				Authority:  env.adminPub,
				StakeMint:  env.stakeMint,
				RewardMint: env.rewardMint,
				Vault:      newKey(t),
			},
			expected: ErrInvalidDerivedAddress,
		},
	} {
		ix := staking.NewInitializePoolInstruction(tc.accounts)
		_, err := env.execute(t, ix, env.admin)
		assert.Equal(t, tc.expected, err)
	}

	_, err := env.ledger.GetPool(env.ctx)
	assert.Equal(t, ErrNotInitialized, err)
}

func TestExecute_Unauthorized(t *testing.T) {
	env := setup(t)
	user := env.newUser(t, 1_000)

	ix := staking.NewInitializePoolInstruction(&staking.InitializePoolInstructionAccounts{
		Pool:       env.pool.address,
		Authority:  env.adminPub,
		StakeMint:  env.stakeMint,
		RewardMint: env.rewardMint,
		Vault:      env.vault.address,
	})

	// Signed by someone other than the authority
	forged := ix
	forged.Accounts = append([]solana.AccountMeta{}, ix.Accounts...)
	forged.Accounts[1].PublicKey = user.pub
	sigs, err := forged.Sign(user.priv)
	require.NoError(t, err)

	_, err = env.ledger.Execute(env.ctx, &Request{Instruction: ix, Signatures: sigs})
	assert.Equal(t, ErrUnauthorized, err)

	_, err = env.ledger.Execute(env.ctx, &Request{Instruction: ix})
	assert.Equal(t, ErrUnauthorized, err)

	// The user must be flagged as a signer, even when nothing else signs
	victim := env.newUser(t, 1_000)
	unsigned := staking.NewStakeInstruction(&staking.StakeInstructionAccounts{
		Pool:      env.pool.address,
		User:      victim.pub,
		UserToken: victim.stakeToken,
		Vault:     env.vault.address,
		UserStake: victim.userStake.address,
	}, &staking.StakeInstructionArgs{Amount: 1_000})
	unsigned.Accounts[1].IsSigner = false
	_, err = env.ledger.Execute(env.ctx, &Request{Instruction: unsigned})
	assert.ErrorIs(t, err, ErrInvalidInstruction)
	assert.EqualValues(t, 1_000, env.balance(t, victim.stakeToken))

	// Not a staking instruction
	transfer := token.Transfer(user.stakeToken, env.vault.address, user.pub, 1)
	sigs, err = transfer.Sign(user.priv)
	require.NoError(t, err)
	_, err = env.ledger.Execute(env.ctx, &Request{Instruction: transfer, Signatures: sigs})
	assert.ErrorIs(t, err, ErrInvalidInstruction)

	_, err = env.ledger.GetPool(env.ctx)
	assert.Equal(t, ErrNotInitialized, err)
}

func TestStakeAndUnstake_HappyPath(t *testing.T) {
	env := setup(t)
	_, err := env.initializePool(t)
	require.NoError(t, err)

	user := env.newUser(t, 1_000_000_000)

	receipt, err := env.stake(t, user, 500_000_000)
	require.NoError(t, err)
	assert.Equal(t, staking.InstructionTypeStake, receipt.Transition)
	assert.EqualValues(t, 500_000_000, receipt.Amount)

	assert.EqualValues(t, 500_000_000, env.balance(t, env.vault.address))
	assert.EqualValues(t, 500_000_000, env.balance(t, user.stakeToken))

	position, err := env.ledger.GetPosition(env.ctx, user.pub)
	require.NoError(t, err)
	assert.EqualValues(t, 500_000_000, position.Amount)
	assert.Equal(t, env.now(), position.CheckpointAt)
	env.assertConserved(t)

	_, err = env.unstake(t, user, 200_000_000)
	require.NoError(t, err)

	assert.EqualValues(t, 300_000_000, env.balance(t, env.vault.address))
	assert.EqualValues(t, 700_000_000, env.balance(t, user.stakeToken))
	position, err = env.ledger.GetPosition(env.ctx, user.pub)
	require.NoError(t, err)
	assert.EqualValues(t, 300_000_000, position.Amount)
	env.assertConserved(t)

	// Unstaking more than staked fails without changing anything
	_, err = env.unstake(t, user, 400_000_000)
	assert.Equal(t, ErrInsufficientStake, err)

	assert.EqualValues(t, 300_000_000, env.balance(t, env.vault.address))
	assert.EqualValues(t, 700_000_000, env.balance(t, user.stakeToken))
	position, err = env.ledger.GetPosition(env.ctx, user.pub)
	require.NoError(t, err)
	assert.EqualValues(t, 300_000_000, position.Amount)

	data, err := env.ledger.GetAccountData(env.ctx, user.userStake.address)
	require.NoError(t, err)
	var state staking.UserStakeAccount
	require.NoError(t, state.Unmarshal(data))
	assert.EqualValues(t, user.pub, state.User)
	assert.EqualValues(t, 300_000_000, state.Amount)
	assert.Equal(t, user.userStake.bump, state.Bump)
	assert.Equal(t, env.now().Unix(), state.CheckpointUnixTime)

	_, err = env.ledger.GetAccountData(env.ctx, user.pub)
	assert.Equal(t, ErrAccountNotFound, err)

	env.assertConserved(t)
}

func TestStake_Validation(t *testing.T) {
	env := setup(t)
	user := env.newUser(t, 1_000)
	other := env.newUser(t, 1_000)

	_, err := env.stake(t, user, 100)
	assert.Equal(t, ErrNotInitialized, err)

	_, err = env.initializePool(t)
	require.NoError(t, err)

	_, err = env.stake(t, user, 0)
	assert.Equal(t, ErrInvalidAmount, err)

	_, err = env.stake(t, user, 1_001)
	assert.Equal(t, ErrInsufficientFunds, err)

	// Token account denominated in the reward mint
	wrongMint := *user
	wrongMint.stakeToken = user.rewardToken
	_, err = env.stake(t, &wrongMint, 1)
	assert.Equal(t, ErrInvalidMint, err)

	// Token account owned by someone else
	stolen := *user
	stolen.stakeToken = other.stakeToken
	_, err = env.stake(t, &stolen, 1)
	assert.Equal(t, ErrUnauthorized, err)

	// Token account that doesn't exist
	missing := *user
	missing.stakeToken = newKey(t)
	_, err = env.stake(t, &missing, 1)
	assert.Equal(t, ErrInvalidTokenAccount, err)

	// User stake address derived for another user
	impersonated := *user
	impersonated.userStake = other.userStake
	_, err = env.stake(t, &impersonated, 1)
	assert.Equal(t, ErrInvalidDerivedAddress, err)

	ix := staking.NewStakeInstruction(&staking.StakeInstructionAccounts{
		Pool:      env.pool.address,
		User:      user.pub,
		UserToken: user.stakeToken,
		Vault:     newKey(t),
		UserStake: user.userStake.address,
	}, &staking.StakeInstructionArgs{Amount: 1})
	_, err = env.execute(t, ix, user.priv)
	assert.Equal(t, ErrInvalidDerivedAddress, err)

	_, err = env.ledger.GetPosition(env.ctx, user.pub)
	assert.Equal(t, ErrPositionNotFound, err)
	assert.EqualValues(t, 1_000, env.balance(t, user.stakeToken))
	assert.EqualValues(t, 1_000, env.balance(t, other.stakeToken))
	env.assertConserved(t)
}

func TestStake_EntireSupply(t *testing.T) {
	env := setup(t)
	_, err := env.initializePool(t)
	require.NoError(t, err)

	maxAmount := ^uint64(0)
	user1 := env.newUser(t, maxAmount-10)
	_, err = env.stake(t, user1, maxAmount-10)
	require.NoError(t, err)

	// Supply of the stake mint is exhausted, so the second user can only
	// receive what's left
	user2 := env.newUser(t, 10)
	_, err = env.stake(t, user2, 10)
	require.NoError(t, err)

	position, err := env.ledger.GetPosition(env.ctx, user1.pub)
	require.NoError(t, err)
	assert.Equal(t, maxAmount-10, position.Amount)
	env.assertConserved(t)
}

func TestUnstake_Validation(t *testing.T) {
	env := setup(t)
	_, err := env.initializePool(t)
	require.NoError(t, err)

	user := env.newUser(t, 1_000)
	other := env.newUser(t, 1_000)

	_, err = env.unstake(t, user, 1)
	assert.Equal(t, ErrPositionNotFound, err)

	_, err = env.stake(t, user, 1_000)
	require.NoError(t, err)

	_, err = env.unstake(t, user, 0)
	assert.Equal(t, ErrInvalidAmount, err)

	// Stake can only be returned to the user's own token account
	redirected := *user
	redirected.stakeToken = other.stakeToken
	_, err = env.unstake(t, &redirected, 1)
	assert.Equal(t, ErrUnauthorized, err)

	// Other users can't unstake from someone else's position
	impersonated := *other
	impersonated.userStake = user.userStake
	_, err = env.unstake(t, &impersonated, 1)
	assert.Equal(t, ErrInvalidDerivedAddress, err)

	assert.EqualValues(t, 1_000, env.balance(t, env.vault.address))
	env.assertConserved(t)
}

func TestUnstake_ToZeroKeepsPosition(t *testing.T) {
	env := setup(t)
	_, err := env.initializePool(t)
	require.NoError(t, err)
	env.handRewardAuthorityToPool(t)

	user := env.newUser(t, 1_000_000)
	_, err = env.stake(t, user, 1_000_000)
	require.NoError(t, err)

	env.advance(24 * time.Hour)

	_, err = env.unstake(t, user, 1_000_000)
	require.NoError(t, err)

	position, err := env.ledger.GetPosition(env.ctx, user.pub)
	require.NoError(t, err)
	assert.EqualValues(t, 0, position.Amount)
	assert.EqualValues(t, 100_000, position.PendingRewards)
	assert.Equal(t, env.now(), position.CheckpointAt)

	// Nothing accrues on a zero balance, but settled rewards remain claimable
	env.advance(24 * time.Hour)

	claimable, err := env.ledger.ClaimableRewards(env.ctx, user.pub)
	require.NoError(t, err)
	assert.EqualValues(t, 100_000, claimable)

	receipt, err := env.claim(t, user)
	require.NoError(t, err)
	assert.EqualValues(t, 100_000, receipt.Amount)
	assert.EqualValues(t, 100_000, env.balance(t, user.rewardToken))

	_, err = env.claim(t, user)
	assert.Equal(t, ErrNothingToClaim, err)

	// Restaking reactivates the same position
	_, err = env.stake(t, user, 500_000)
	require.NoError(t, err)
	position, err = env.ledger.GetPosition(env.ctx, user.pub)
	require.NoError(t, err)
	assert.EqualValues(t, 500_000, position.Amount)
	assert.EqualValues(t, 0, position.PendingRewards)

	env.assertConserved(t)
}

func TestClaimRewards_HappyPath(t *testing.T) {
	env := setup(t)
	_, err := env.initializePool(t)
	require.NoError(t, err)
	env.handRewardAuthorityToPool(t)

	user := env.newUser(t, 500_000_000)
	_, err = env.stake(t, user, 500_000_000)
	require.NoError(t, err)

	env.advance(24 * time.Hour)

	supplyBefore := env.supply(t, env.rewardMint)
	vaultBefore := env.balance(t, env.vault.address)
	stakeSupplyBefore := env.supply(t, env.stakeMint)

	receipt, err := env.claim(t, user)
	require.NoError(t, err)
	assert.Equal(t, staking.InstructionTypeClaimRewards, receipt.Transition)
	assert.EqualValues(t, 50_000_000, receipt.Amount)

	assert.EqualValues(t, 50_000_000, env.balance(t, user.rewardToken))
	assert.Equal(t, supplyBefore+50_000_000, env.supply(t, env.rewardMint))

	// Claiming never touches the stake side
	assert.Equal(t, vaultBefore, env.balance(t, env.vault.address))
	assert.Equal(t, stakeSupplyBefore, env.supply(t, env.stakeMint))

	position, err := env.ledger.GetPosition(env.ctx, user.pub)
	require.NoError(t, err)
	assert.EqualValues(t, 500_000_000, position.Amount)
	assert.EqualValues(t, 0, position.PendingRewards)
	assert.Equal(t, env.now(), position.CheckpointAt)

	// An immediate second claim has nothing left
	_, err = env.claim(t, user)
	assert.Equal(t, ErrNothingToClaim, err)
	assert.EqualValues(t, 50_000_000, env.balance(t, user.rewardToken))

	env.assertConserved(t)
}

func TestClaimRewards_Deterministic(t *testing.T) {
	var claimed []uint64
	for i := 0; i < 2; i++ {
		env := setup(t)
		_, err := env.initializePool(t)
		require.NoError(t, err)
		env.handRewardAuthorityToPool(t)

		user := env.newUser(t, 2_000_000)
		_, err = env.stake(t, user, 1_000_000)
		require.NoError(t, err)

		// Rewards accrued on the first amount are settled when staking more
		env.advance(12 * time.Hour)
		_, err = env.stake(t, user, 1_000_000)
		require.NoError(t, err)

		env.advance(12 * time.Hour)

		claimable, err := env.ledger.ClaimableRewards(env.ctx, user.pub)
		require.NoError(t, err)

		receipt, err := env.claim(t, user)
		require.NoError(t, err)
		assert.Equal(t, claimable, receipt.Amount)
		claimed = append(claimed, receipt.Amount)
	}

	assert.EqualValues(t, 150_000, claimed[0])
	assert.Equal(t, claimed[0], claimed[1])
}

func TestClaimRewards_Validation(t *testing.T) {
	env := setup(t)
	user := env.newUser(t, 1_000_000)
	other := env.newUser(t, 1_000_000)

	_, err := env.claim(t, user)
	assert.Equal(t, ErrNotInitialized, err)

	_, err = env.initializePool(t)
	require.NoError(t, err)

	_, err = env.claim(t, user)
	assert.Equal(t, ErrPositionNotFound, err)

	_, err = env.stake(t, user, 1_000_000)
	require.NoError(t, err)

	_, err = env.claim(t, user)
	assert.Equal(t, ErrNothingToClaim, err)

	env.advance(time.Hour)

	// The deployer hasn't handed the reward mint authority to the pool yet
	_, err = env.claim(t, user)
	assert.Equal(t, ErrAuthorityMissing, err)

	env.handRewardAuthorityToPool(t)

	// Rewards can only be paid into the user's own reward token account
	redirected := *user
	redirected.rewardToken = other.rewardToken
	_, err = env.claim(t, &redirected)
	assert.Equal(t, ErrUnauthorized, err)

	wrongMint := *user
	wrongMint.rewardToken = user.stakeToken
	_, err = env.claim(t, &wrongMint)
	assert.Equal(t, ErrInvalidMint, err)

	ix := staking.NewClaimRewardsInstruction(&staking.ClaimRewardsInstructionAccounts{
		Pool:            env.pool.address,
		User:            user.pub,
		UserStake:       user.userStake.address,
		RewardMint:      env.stakeMint,
		UserRewardToken: user.rewardToken,
	})
	_, err = env.execute(t, ix, user.priv)
	assert.Equal(t, ErrInvalidMint, err)

	assert.EqualValues(t, 0, env.supply(t, env.rewardMint))

	receipt, err := env.claim(t, user)
	require.NoError(t, err)
	assert.EqualValues(t, 4_166, receipt.Amount)
	assert.EqualValues(t, 4_166, env.supply(t, env.rewardMint))
}

func TestClaimRewards_InjectedPolicy(t *testing.T) {
	env := setup(t, WithRewardPolicy(&PeriodicRatePolicy{
		Numerator:   1,
		Denominator: 1,
		Period:      time.Second,
	}))
	_, err := env.initializePool(t)
	require.NoError(t, err)
	env.handRewardAuthorityToPool(t)

	user := env.newUser(t, 10)
	_, err = env.stake(t, user, 10)
	require.NoError(t, err)

	env.advance(3 * time.Second)

	receipt, err := env.claim(t, user)
	require.NoError(t, err)
	assert.EqualValues(t, 30, receipt.Amount)
}

func TestClaimRewards_RateFixedAtInitialization(t *testing.T) {
	env := setup(t)
	_, err := env.initializePool(t)
	require.NoError(t, err)
	env.handRewardAuthorityToPool(t)

	user := env.newUser(t, 500_000_000)
	_, err = env.stake(t, user, 500_000_000)
	require.NoError(t, err)

	env.advance(24 * time.Hour)

	// A restart with a different configured rate doesn't reprice the pool
	env.ledger = New(env.store, withManualTestOverrides(&testOverrides{
		rewardRateNumerator:   5,
		rewardRateDenominator: 10,
		rewardPeriod:          time.Hour,
		derivationCacheSize:   100,
	}), WithClock(env.now))

	claimable, err := env.ledger.ClaimableRewards(env.ctx, user.pub)
	require.NoError(t, err)
	assert.EqualValues(t, 50_000_000, claimable)

	receipt, err := env.claim(t, user)
	require.NoError(t, err)
	assert.EqualValues(t, 50_000_000, receipt.Amount)

	// Settlement on stake uses the pool's rate too
	env.advance(12 * time.Hour)
	_, err = env.unstake(t, user, 1)
	require.NoError(t, err)

	position, err := env.ledger.GetPosition(env.ctx, user.pub)
	require.NoError(t, err)
	assert.EqualValues(t, 25_000_000, position.PendingRewards)
}

func TestConcurrentTransitions(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []Option
	}{
		{name: "striped locks"},
		{name: "distributed locks", opts: []Option{WithDistributedLocks(memory_lock.NewLockManager())}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := setup(t, tc.opts...)
			_, err := env.initializePool(t)
			require.NoError(t, err)

			users := make([]*testUser, 8)
			for i := range users {
				users[i] = env.newUser(t, 10_000)
			}

			var wg sync.WaitGroup
			for _, user := range users {
				// Several workers contend on the same position
				for worker := 0; worker < 4; worker++ {
					wg.Add(1)
					go func(user *testUser) {
						defer wg.Done()

						for i := 0; i < 25; i++ {
							_, err := env.stake(t, user, 10)
							assert.NoError(t, err)
						}
						for i := 0; i < 10; i++ {
							_, err := env.unstake(t, user, 10)
							assert.NoError(t, err)
						}
					}(user)
				}
			}
			wg.Wait()

			for _, user := range users {
				position, err := env.ledger.GetPosition(env.ctx, user.pub)
				require.NoError(t, err)
				assert.EqualValues(t, 4*15*10, position.Amount)
				assert.EqualValues(t, 10_000-4*15*10, env.balance(t, user.stakeToken))
			}

			summary := env.assertConserved(t)
			assert.EqualValues(t, len(users)*4*15*10, summary.VaultBalance)
			assert.EqualValues(t, len(users), summary.PositionCount)
		})
	}
}

func TestExecute_RateLimited(t *testing.T) {
	env := setup(t, WithRateLimiter(rate.NewLocalRateLimiter(xrate.Limit(0.001), 2)))
	_, err := env.initializePool(t)
	require.NoError(t, err)

	user := env.newUser(t, 1_000)
	other := env.newUser(t, 1_000)

	for i := 0; i < 2; i++ {
		_, err = env.stake(t, user, 10)
		require.NoError(t, err)
	}

	_, err = env.stake(t, user, 10)
	assert.Equal(t, ErrRateLimited, err)

	// Limits are per signer
	_, err = env.stake(t, other, 10)
	require.NoError(t, err)

	position, err := env.ledger.GetPosition(env.ctx, user.pub)
	require.NoError(t, err)
	assert.EqualValues(t, 20, position.Amount)
	env.assertConserved(t)
}

func TestExecute_RecordsRejectedTransitions(t *testing.T) {
	type recordedTransition struct {
		transition staking.InstructionType
		err        error
	}

	var recorded []recordedTransition
	original := transitionRecorder
	transitionRecorder = func(_ context.Context, transition staking.InstructionType, _ time.Time, _ *Receipt, err error) {
		recorded = append(recorded, recordedTransition{transition, err})
	}
	t.Cleanup(func() { transitionRecorder = original })

	env := setup(t, WithRateLimiter(rate.NewLocalRateLimiter(xrate.Limit(0.001), 1)))
	_, err := env.initializePool(t)
	require.NoError(t, err)

	user := env.newUser(t, 1_000)

	_, err = env.ledger.Execute(env.ctx, &Request{
		Instruction: token.Transfer(user.stakeToken, env.vault.address, user.pub, 1),
	})
	assert.ErrorIs(t, err, ErrInvalidInstruction)

	unsigned := staking.NewStakeInstruction(&staking.StakeInstructionAccounts{
		Pool:      env.pool.address,
		User:      user.pub,
		UserToken: user.stakeToken,
		Vault:     env.vault.address,
		UserStake: user.userStake.address,
	}, &staking.StakeInstructionArgs{Amount: 10})
	_, err = env.ledger.Execute(env.ctx, &Request{Instruction: unsigned})
	assert.Equal(t, ErrUnauthorized, err)

	_, err = env.stake(t, user, 10)
	require.NoError(t, err)
	_, err = env.stake(t, user, 10)
	assert.Equal(t, ErrRateLimited, err)

	require.Len(t, recorded, 5)
	assert.Equal(t, staking.InstructionTypeInitializePool, recorded[0].transition)
	assert.NoError(t, recorded[0].err)
	assert.Equal(t, staking.Unknown, recorded[1].transition)
	assert.ErrorIs(t, recorded[1].err, ErrInvalidInstruction)
	assert.Equal(t, staking.InstructionTypeStake, recorded[2].transition)
	assert.Equal(t, ErrUnauthorized, recorded[2].err)
	assert.Equal(t, staking.InstructionTypeStake, recorded[3].transition)
	assert.NoError(t, recorded[3].err)
	assert.Equal(t, staking.InstructionTypeStake, recorded[4].transition)
	assert.Equal(t, ErrRateLimited, recorded[4].err)
}

func TestCheckConservation_Violation(t *testing.T) {
	env := setup(t)

	_, err := env.ledger.CheckConservation(env.ctx)
	assert.Equal(t, ErrNotInitialized, err)

	_, err = env.initializePool(t)
	require.NoError(t, err)

	user := env.newUser(t, 101)
	_, err = env.stake(t, user, 100)
	require.NoError(t, err)

	// Tokens sent straight to the vault aren't backed by any position
	require.NoError(t, env.custody.Transfer(env.ctx, user.stakeToken, env.vault.address, user.pub, 1))

	summary, err := env.ledger.CheckConservation(env.ctx)
	assert.Equal(t, ErrConservationViolated, err)
	require.NotNil(t, summary)
	assert.EqualValues(t, 101, summary.VaultBalance)
	assert.EqualValues(t, 100, summary.PositionSum)
}

func TestCustody_PoolCannotSignDirectly(t *testing.T) {
	env := setup(t)
	_, err := env.initializePool(t)
	require.NoError(t, err)
	env.handRewardAuthorityToPool(t)

	user := env.newUser(t, 100)
	_, err = env.stake(t, user, 100)
	require.NoError(t, err)

	err = env.custody.MintTo(env.ctx, env.rewardMint, user.rewardToken, env.pool.address, 1_000)
	assert.Equal(t, custody.ErrProgramSigner, err)
	assert.EqualValues(t, 0, env.supply(t, env.rewardMint))

	err = env.custody.Transfer(env.ctx, env.vault.address, user.stakeToken, env.pool.address, 100)
	assert.Equal(t, custody.ErrProgramSigner, err)
	assert.EqualValues(t, 100, env.balance(t, env.vault.address))
	assert.EqualValues(t, 0, env.balance(t, user.stakeToken))

	err = env.custody.SetMintAuthority(env.ctx, env.rewardMint, env.pool.address, user.pub)
	assert.Equal(t, custody.ErrProgramSigner, err)

	summary := env.assertConserved(t)
	assert.EqualValues(t, 100, summary.VaultBalance)
}

type testEnv struct {
	ctx     context.Context
	store   account.Store
	custody *custody.Service
	ledger  *Ledger

	clockMu sync.Mutex
	clock   time.Time

	adminPub ed25519.PublicKey
	admin    ed25519.PrivateKey

	stakeMint  ed25519.PublicKey
	rewardMint ed25519.PublicKey

	pool  derivedAddress
	vault derivedAddress
}

type testUser struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey

	stakeToken  ed25519.PublicKey
	rewardToken ed25519.PublicKey
	userStake   derivedAddress
}

func setup(t *testing.T, opts ...Option) *testEnv {
	env := &testEnv{
		ctx:   context.Background(),
		store: memory.New(),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	env.custody = custody.NewService(env.store)

	opts = append([]Option{WithClock(env.now)}, opts...)
	env.ledger = New(env.store, withManualTestOverrides(&testOverrides{
		rewardRateNumerator:   1,
		rewardRateDenominator: 10,
		rewardPeriod:          24 * time.Hour,
		derivationCacheSize:   100,
	}), opts...)

	env.adminPub, env.admin = newKeyPair(t)
	env.stakeMint = newKey(t)
	env.rewardMint = newKey(t)
	require.NoError(t, env.custody.CreateMint(env.ctx, env.stakeMint, env.adminPub, 9))
	require.NoError(t, env.custody.CreateMint(env.ctx, env.rewardMint, env.adminPub, 9))

	var err error
	env.pool, err = env.ledger.addresses.pool()
	require.NoError(t, err)
	env.vault, err = env.ledger.addresses.vault(env.pool.address)
	require.NoError(t, err)

	return env
}

func (e *testEnv) now() time.Time {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	return e.clock
}

func (e *testEnv) advance(d time.Duration) {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	e.clock = e.clock.Add(d)
}

func (e *testEnv) newUser(t *testing.T, stakeBalance uint64) *testUser {
	pub, priv := newKeyPair(t)

	stakeToken, err := e.custody.CreateAssociatedTokenAccount(e.ctx, pub, e.stakeMint)
	require.NoError(t, err)
	rewardToken, err := e.custody.CreateAssociatedTokenAccount(e.ctx, pub, e.rewardMint)
	require.NoError(t, err)

	if stakeBalance > 0 {
		require.NoError(t, e.custody.MintTo(e.ctx, e.stakeMint, stakeToken, e.adminPub, stakeBalance))
	}

	userStake, err := e.ledger.addresses.userStake(pub)
	require.NoError(t, err)

	return &testUser{
		pub:         pub,
		priv:        priv,
		stakeToken:  stakeToken,
		rewardToken: rewardToken,
		userStake:   userStake,
	}
}

func (e *testEnv) execute(t *testing.T, ix solana.Instruction, signers ...ed25519.PrivateKey) (*Receipt, error) {
	sigs, err := ix.Sign(signers...)
	require.NoError(t, err)

	return e.ledger.Execute(e.ctx, &Request{
		Instruction: ix,
		Signatures:  sigs,
	})
}

func (e *testEnv) initializePool(t *testing.T) (*Receipt, error) {
	ix := staking.NewInitializePoolInstruction(&staking.InitializePoolInstructionAccounts{
		Pool:       e.pool.address,
		Authority:  e.adminPub,
		StakeMint:  e.stakeMint,
		RewardMint: e.rewardMint,
		Vault:      e.vault.address,
	})
	return e.execute(t, ix, e.admin)
}

func (e *testEnv) handRewardAuthorityToPool(t *testing.T) {
	ix := token.SetAuthority(e.rewardMint, e.adminPub, e.pool.address, token.AuthorityTypeMintTokens)
	sigs, err := ix.Sign(e.admin)
	require.NoError(t, err)
	require.NoError(t, e.custody.Process(e.ctx, ix, sigs))
}

func (e *testEnv) stake(t *testing.T, user *testUser, amount uint64) (*Receipt, error) {
	ix := staking.NewStakeInstruction(&staking.StakeInstructionAccounts{
		Pool:      e.pool.address,
		User:      user.pub,
		UserToken: user.stakeToken,
		Vault:     e.vault.address,
		UserStake: user.userStake.address,
	}, &staking.StakeInstructionArgs{Amount: amount})
	return e.execute(t, ix, user.priv)
}

func (e *testEnv) unstake(t *testing.T, user *testUser, amount uint64) (*Receipt, error) {
	ix := staking.NewUnstakeInstruction(&staking.UnstakeInstructionAccounts{
		Pool:      e.pool.address,
		User:      user.pub,
		UserToken: user.stakeToken,
		Vault:     e.vault.address,
		UserStake: user.userStake.address,
	}, &staking.UnstakeInstructionArgs{Amount: amount})
	return e.execute(t, ix, user.priv)
}

func (e *testEnv) claim(t *testing.T, user *testUser) (*Receipt, error) {
	ix := staking.NewClaimRewardsInstruction(&staking.ClaimRewardsInstructionAccounts{
		Pool:            e.pool.address,
		User:            user.pub,
		UserStake:       user.userStake.address,
		RewardMint:      e.rewardMint,
		UserRewardToken: user.rewardToken,
	})
	return e.execute(t, ix, user.priv)
}

func (e *testEnv) balance(t *testing.T, address ed25519.PublicKey) uint64 {
	balance, err := e.custody.Balance(e.ctx, address)
	require.NoError(t, err)
	return balance
}

func (e *testEnv) supply(t *testing.T, mint ed25519.PublicKey) uint64 {
	supply, err := e.custody.Supply(e.ctx, mint)
	require.NoError(t, err)
	return supply
}

func (e *testEnv) assertConserved(t *testing.T) *account.StakeSummary {
	summary, err := e.ledger.CheckConservation(e.ctx)
	require.NoError(t, err)
	assert.True(t, summary.IsConserved())
	return summary
}

func newKey(t *testing.T) ed25519.PublicKey {
	pub, _ := newKeyPair(t)
	return pub
}

func newKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}
