package tests

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

func RunTests(t *testing.T, s account.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s account.Store){
		testMintsAndTokenAccounts,
		testMintToAndTransfer,
		testAuthorityChange,
		testPoolAndPositions,
		testAtomicity,
		testStakeSummary,
	} {
		tf(t, s)
		teardown()
	}
}

func testMintsAndTokenAccounts(t *testing.T, s account.Store) {
	t.Run("testMintsAndTokenAccounts", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetMint(ctx, "mint")
		assert.Equal(t, account.ErrNotFound, err)
		_, err = s.GetTokenAccount(ctx, "token_account")
		assert.Equal(t, account.ErrNotFound, err)

		assert.Error(t, s.Commit(ctx, &account.Changeset{}))

		orphan := &account.TokenAccountRecord{Address: "token_account", Mint: "mint", Owner: "owner"}
		assert.Equal(t, account.ErrNotFound, s.Commit(ctx, &account.Changeset{
			NewTokenAccounts: []*account.TokenAccountRecord{orphan},
		}))

		start := time.Now()

		mint := &account.MintRecord{Address: "mint", Authority: "authority", Decimals: 9}
		tokenAccount := &account.TokenAccountRecord{Address: "token_account", Mint: "mint", Owner: "owner"}
		require.NoError(t, s.Commit(ctx, &account.Changeset{
			NewMints:         []*account.MintRecord{mint},
			NewTokenAccounts: []*account.TokenAccountRecord{tokenAccount},
		}))
		assert.True(t, mint.Id > 0)
		assert.True(t, tokenAccount.Id > 0)
		assert.False(t, mint.CreatedAt.Before(start.Add(-time.Second)))

		actualMint, err := s.GetMint(ctx, "mint")
		require.NoError(t, err)
		assert.Equal(t, "authority", actualMint.Authority)
		assert.EqualValues(t, 9, actualMint.Decimals)
		assert.EqualValues(t, 0, actualMint.Supply)

		actualTokenAccount, err := s.GetTokenAccount(ctx, "token_account")
		require.NoError(t, err)
		assert.Equal(t, "mint", actualTokenAccount.Mint)
		assert.Equal(t, "owner", actualTokenAccount.Owner)
		assert.EqualValues(t, 0, actualTokenAccount.Amount)

		assert.Equal(t, account.ErrAlreadyExists, s.Commit(ctx, &account.Changeset{
			NewMints: []*account.MintRecord{{Address: "mint", Authority: "other"}},
		}))
		assert.Equal(t, account.ErrAlreadyExists, s.Commit(ctx, &account.Changeset{
			NewTokenAccounts: []*account.TokenAccountRecord{{Address: "token_account", Mint: "mint", Owner: "other"}},
		}))

		assert.Error(t, s.Commit(ctx, &account.Changeset{
			NewMints: []*account.MintRecord{{Address: "funded_mint", Supply: 1}},
		}))
		assert.Error(t, s.Commit(ctx, &account.Changeset{
			NewTokenAccounts: []*account.TokenAccountRecord{{Address: "funded", Mint: "mint", Owner: "owner", Amount: 1}},
		}))
	})
}

func testMintToAndTransfer(t *testing.T, s account.Store) {
	t.Run("testMintToAndTransfer", func(t *testing.T) {
		ctx := context.Background()

		setupMint(t, s, "stake_mint", "minter", "alice_stake", "bob_stake")
		setupMint(t, s, "reward_mint", "minter", "alice_reward")

		assert.Equal(t, account.ErrAuthorityMismatch, s.Commit(ctx, &account.Changeset{
			MintTos: []*account.MintTo{{Mint: "stake_mint", Destination: "alice_stake", Authority: "imposter", Amount: 1}},
		}))
		assert.Equal(t, account.ErrMintMismatch, s.Commit(ctx, &account.Changeset{
			MintTos: []*account.MintTo{{Mint: "stake_mint", Destination: "alice_reward", Authority: "minter", Amount: 1}},
		}))
		assert.Equal(t, account.ErrNotFound, s.Commit(ctx, &account.Changeset{
			MintTos: []*account.MintTo{{Mint: "stake_mint", Destination: "unknown", Authority: "minter", Amount: 1}},
		}))

		require.NoError(t, s.Commit(ctx, &account.Changeset{
			MintTos: []*account.MintTo{{Mint: "stake_mint", Destination: "alice_stake", Authority: "minter", Amount: 500_000_000}},
		}))
		assertBalance(t, s, "alice_stake", 500_000_000)
		assertSupply(t, s, "stake_mint", 500_000_000)

		require.NoError(t, s.Commit(ctx, &account.Changeset{
			Transfers: []*account.Transfer{{Source: "alice_stake", Destination: "bob_stake", Amount: 200_000_000}},
		}))
		assertBalance(t, s, "alice_stake", 300_000_000)
		assertBalance(t, s, "bob_stake", 200_000_000)
		assertSupply(t, s, "stake_mint", 500_000_000)

		assert.Equal(t, account.ErrInsufficientBalance, s.Commit(ctx, &account.Changeset{
			Transfers: []*account.Transfer{{Source: "alice_stake", Destination: "bob_stake", Amount: 300_000_001}},
		}))
		assert.Equal(t, account.ErrMintMismatch, s.Commit(ctx, &account.Changeset{
			Transfers: []*account.Transfer{{Source: "alice_stake", Destination: "alice_reward", Amount: 1}},
		}))
		assert.Equal(t, account.ErrNotFound, s.Commit(ctx, &account.Changeset{
			Transfers: []*account.Transfer{{Source: "alice_stake", Destination: "unknown", Amount: 1}},
		}))
		assert.Error(t, s.Commit(ctx, &account.Changeset{
			Transfers: []*account.Transfer{{Source: "alice_stake", Destination: "alice_stake", Amount: 1}},
		}))

		assert.Equal(t, account.ErrOverflow, s.Commit(ctx, &account.Changeset{
			MintTos: []*account.MintTo{{Mint: "stake_mint", Destination: "alice_stake", Authority: "minter", Amount: math.MaxUint64}},
		}))

		assertBalance(t, s, "alice_stake", 300_000_000)
		assertBalance(t, s, "bob_stake", 200_000_000)
		assertSupply(t, s, "stake_mint", 500_000_000)
	})
}

func testAuthorityChange(t *testing.T, s account.Store) {
	t.Run("testAuthorityChange", func(t *testing.T) {
		ctx := context.Background()

		setupMint(t, s, "reward_mint", "deployer", "alice_reward")

		assert.Equal(t, account.ErrAuthorityMismatch, s.Commit(ctx, &account.Changeset{
			AuthorityChanges: []*account.AuthorityChange{{Mint: "reward_mint", CurrentAuthority: "imposter", NewAuthority: "pool"}},
		}))
		assert.Equal(t, account.ErrNotFound, s.Commit(ctx, &account.Changeset{
			AuthorityChanges: []*account.AuthorityChange{{Mint: "unknown", CurrentAuthority: "deployer", NewAuthority: "pool"}},
		}))

		require.NoError(t, s.Commit(ctx, &account.Changeset{
			AuthorityChanges: []*account.AuthorityChange{{Mint: "reward_mint", CurrentAuthority: "deployer", NewAuthority: "pool"}},
		}))

		mint, err := s.GetMint(ctx, "reward_mint")
		require.NoError(t, err)
		assert.Equal(t, "pool", mint.Authority)

		assert.Equal(t, account.ErrAuthorityMismatch, s.Commit(ctx, &account.Changeset{
			MintTos: []*account.MintTo{{Mint: "reward_mint", Destination: "alice_reward", Authority: "deployer", Amount: 1}},
		}))
		require.NoError(t, s.Commit(ctx, &account.Changeset{
			MintTos: []*account.MintTo{{Mint: "reward_mint", Destination: "alice_reward", Authority: "pool", Amount: 1}},
		}))

		// An authority change and mint in the same changeset observe each other
		require.NoError(t, s.Commit(ctx, &account.Changeset{
			AuthorityChanges: []*account.AuthorityChange{{Mint: "reward_mint", CurrentAuthority: "pool", NewAuthority: ""}},
		}))
		assert.Equal(t, account.ErrAuthorityMismatch, s.Commit(ctx, &account.Changeset{
			MintTos: []*account.MintTo{{Mint: "reward_mint", Destination: "alice_reward", Authority: "pool", Amount: 1}},
		}))

		assertSupply(t, s, "reward_mint", 1)
	})
}

func testPoolAndPositions(t *testing.T, s account.Store) {
	t.Run("testPoolAndPositions", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetPool(ctx, "pool")
		assert.Equal(t, account.ErrNotFound, err)
		_, err = s.GetAllPositions(ctx, "pool")
		assert.Equal(t, account.ErrNotFound, err)

		setupPool(t, s)

		actualPool, err := s.GetPool(ctx, "pool")
		require.NoError(t, err)
		assert.Equal(t, "authority", actualPool.Authority)
		assert.Equal(t, "stake_mint", actualPool.StakeMint)
		assert.Equal(t, "reward_mint", actualPool.RewardMint)
		assert.Equal(t, "vault", actualPool.Vault)
		assert.EqualValues(t, 254, actualPool.Bump)
		assert.EqualValues(t, 253, actualPool.VaultBump)
		assert.EqualValues(t, 1, actualPool.RewardRateNumerator)
		assert.EqualValues(t, 10, actualPool.RewardRateDenominator)
		assert.Equal(t, 24*time.Hour, actualPool.RewardPeriod)
		assert.EqualValues(t, 0, actualPool.TotalStaked)

		duplicate := actualPool.Clone()
		duplicate.Authority = "other"
		assert.Equal(t, account.ErrAlreadyExists, s.Commit(ctx, &account.Changeset{NewPool: &duplicate}))

		_, err = s.GetPosition(ctx, "position")
		assert.Equal(t, account.ErrNotFound, err)

		checkpoint := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
		position := &account.PositionRecord{
			Address:      "position_b",
			Pool:         "pool",
			Owner:        "bob",
			Amount:       100,
			CheckpointAt: checkpoint,
			Bump:         252,
		}
		require.NoError(t, s.Commit(ctx, &account.Changeset{
			Positions:    []*account.PositionRecord{position},
			StakeChanges: []*account.StakeChange{{Pool: "pool", Amount: 100}},
		}))
		assert.EqualValues(t, 1, position.Version)
		assert.True(t, position.Id > 0)

		stale := position.Clone()
		stale.Version = 0
		assert.Equal(t, account.ErrStaleVersion, s.Commit(ctx, &account.Changeset{Positions: []*account.PositionRecord{&stale}}))

		other := &account.PositionRecord{
			Address:      "position_a",
			Pool:         "pool",
			Owner:        "alice",
			CheckpointAt: checkpoint,
		}
		require.NoError(t, s.Commit(ctx, &account.Changeset{Positions: []*account.PositionRecord{other}}))

		concurrent := position.Clone()
		position.Amount = 50
		position.PendingRewards = 7
		position.CheckpointAt = checkpoint.Add(time.Hour)
		require.NoError(t, s.Commit(ctx, &account.Changeset{
			Positions:    []*account.PositionRecord{position},
			StakeChanges: []*account.StakeChange{{Pool: "pool", Amount: 50, Withdraw: true}},
		}))
		assert.EqualValues(t, 2, position.Version)

		concurrent.Amount = 0
		assert.Equal(t, account.ErrStaleVersion, s.Commit(ctx, &account.Changeset{Positions: []*account.PositionRecord{&concurrent}}))

		actual, err := s.GetPosition(ctx, "position_b")
		require.NoError(t, err)
		assert.Equal(t, "bob", actual.Owner)
		assert.EqualValues(t, 50, actual.Amount)
		assert.EqualValues(t, 7, actual.PendingRewards)
		assert.EqualValues(t, 252, actual.Bump)
		assert.EqualValues(t, 2, actual.Version)
		assert.Equal(t, checkpoint.Add(time.Hour).Unix(), actual.CheckpointAt.Unix())

		all, err := s.GetAllPositions(ctx, "pool")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "position_a", all[0].Address)
		assert.Equal(t, "position_b", all[1].Address)

		actualPool, err = s.GetPool(ctx, "pool")
		require.NoError(t, err)
		assert.EqualValues(t, 50, actualPool.TotalStaked)

		assert.Equal(t, account.ErrInsufficientBalance, s.Commit(ctx, &account.Changeset{
			StakeChanges: []*account.StakeChange{{Pool: "pool", Amount: 51, Withdraw: true}},
		}))
		assert.Equal(t, account.ErrNotFound, s.Commit(ctx, &account.Changeset{
			StakeChanges: []*account.StakeChange{{Pool: "unknown", Amount: 1}},
		}))
		assert.Equal(t, account.ErrNotFound, s.Commit(ctx, &account.Changeset{
			Positions: []*account.PositionRecord{{Address: "orphan", Pool: "unknown", Owner: "carol", CheckpointAt: checkpoint}},
		}))
	})
}

func testAtomicity(t *testing.T, s account.Store) {
	t.Run("testAtomicity", func(t *testing.T) {
		ctx := context.Background()

		setupPool(t, s)
		setupMint(t, s, "user_mint", "minter", "alice_stake_token")

		require.NoError(t, s.Commit(ctx, &account.Changeset{
			NewTokenAccounts: []*account.TokenAccountRecord{{Address: "alice_token", Mint: "stake_mint", Owner: "alice"}},
		}))
		require.NoError(t, s.Commit(ctx, &account.Changeset{
			MintTos: []*account.MintTo{{Mint: "stake_mint", Destination: "alice_token", Authority: "minter", Amount: 1000}},
		}))

		position := &account.PositionRecord{
			Address:      "position",
			Pool:         "pool",
			Owner:        "alice",
			Amount:       1000,
			CheckpointAt: time.Now(),
		}

		// The final transfer fails, so the position, pool counter and first
		// transfer must all be discarded
		err := s.Commit(ctx, &account.Changeset{
			Transfers: []*account.Transfer{
				{Source: "alice_token", Destination: "vault", Amount: 1000},
				{Source: "alice_token", Destination: "vault", Amount: 1},
			},
			StakeChanges: []*account.StakeChange{{Pool: "pool", Amount: 1000}},
			Positions:    []*account.PositionRecord{position},
		})
		assert.Equal(t, account.ErrInsufficientBalance, err)
		assert.EqualValues(t, 0, position.Version)

		assertBalance(t, s, "alice_token", 1000)
		assertBalance(t, s, "vault", 0)
		_, err = s.GetPosition(ctx, "position")
		assert.Equal(t, account.ErrNotFound, err)
		pool, err := s.GetPool(ctx, "pool")
		require.NoError(t, err)
		assert.EqualValues(t, 0, pool.TotalStaked)

		// Same for new accounts created alongside a failing operation
		err = s.Commit(ctx, &account.Changeset{
			NewMints:  []*account.MintRecord{{Address: "new_mint", Authority: "minter"}},
			Transfers: []*account.Transfer{{Source: "alice_token", Destination: "vault", Amount: 1001}},
		})
		assert.Equal(t, account.ErrInsufficientBalance, err)
		_, err = s.GetMint(ctx, "new_mint")
		assert.Equal(t, account.ErrNotFound, err)
	})
}

func testStakeSummary(t *testing.T, s account.Store) {
	t.Run("testStakeSummary", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetStakeSummary(ctx, "pool")
		assert.Equal(t, account.ErrNotFound, err)

		setupPool(t, s)

		summary, err := s.GetStakeSummary(ctx, "pool")
		require.NoError(t, err)
		assert.True(t, summary.IsConserved())
		assert.EqualValues(t, 0, summary.PositionCount)

		var tokenAccounts []*account.TokenAccountRecord
		for i := 0; i < 3; i++ {
			tokenAccounts = append(tokenAccounts, &account.TokenAccountRecord{
				Address: fmt.Sprintf("user_token_%d", i),
				Mint:    "stake_mint",
				Owner:   fmt.Sprintf("user_%d", i),
			})
		}
		require.NoError(t, s.Commit(ctx, &account.Changeset{NewTokenAccounts: tokenAccounts}))

		for i := 0; i < 3; i++ {
			amount := uint64(100 * (i + 1))
			require.NoError(t, s.Commit(ctx, &account.Changeset{
				MintTos: []*account.MintTo{{Mint: "stake_mint", Destination: tokenAccounts[i].Address, Authority: "minter", Amount: amount}},
			}))
			require.NoError(t, s.Commit(ctx, &account.Changeset{
				Transfers:    []*account.Transfer{{Source: tokenAccounts[i].Address, Destination: "vault", Amount: amount}},
				StakeChanges: []*account.StakeChange{{Pool: "pool", Amount: amount}},
				Positions: []*account.PositionRecord{{
					Address:      fmt.Sprintf("position_%d", i),
					Pool:         "pool",
					Owner:        fmt.Sprintf("user_%d", i),
					Amount:       amount,
					CheckpointAt: time.Now(),
				}},
			}))
		}

		summary, err = s.GetStakeSummary(ctx, "pool")
		require.NoError(t, err)
		assert.True(t, summary.IsConserved())
		assert.EqualValues(t, 600, summary.VaultBalance)
		assert.EqualValues(t, 600, summary.PositionSum)
		assert.EqualValues(t, 600, summary.TotalStaked)
		assert.EqualValues(t, 3, summary.PositionCount)

		// A counter-only change breaks conservation and must be detectable
		require.NoError(t, s.Commit(ctx, &account.Changeset{
			StakeChanges: []*account.StakeChange{{Pool: "pool", Amount: 1}},
		}))
		summary, err = s.GetStakeSummary(ctx, "pool")
		require.NoError(t, err)
		assert.False(t, summary.IsConserved())
	})
}

func setupMint(t *testing.T, s account.Store, mint, authority string, tokenAccounts ...string) {
	changeset := &account.Changeset{
		NewMints: []*account.MintRecord{{Address: mint, Authority: authority}},
	}
	for _, tokenAccount := range tokenAccounts {
		changeset.NewTokenAccounts = append(changeset.NewTokenAccounts, &account.TokenAccountRecord{
			Address: tokenAccount,
			Mint:    mint,
			Owner:   "owner_of_" + tokenAccount,
		})
	}
	require.NoError(t, s.Commit(context.Background(), changeset))
}

func setupPool(t *testing.T, s account.Store) {
	require.NoError(t, s.Commit(context.Background(), &account.Changeset{
		NewMints: []*account.MintRecord{
			{Address: "stake_mint", Authority: "minter"},
			{Address: "reward_mint", Authority: "pool"},
		},
		NewTokenAccounts: []*account.TokenAccountRecord{
			{Address: "vault", Mint: "stake_mint", Owner: "pool"},
		},
		NewPool: &account.PoolRecord{
			Address:    "pool",
			Authority:  "authority",
			StakeMint:  "stake_mint",
			RewardMint: "reward_mint",
			Vault:      "vault",

			RewardRateNumerator:   1,
			RewardRateDenominator: 10,
			RewardPeriod:          24 * time.Hour,

			Bump:      254,
			VaultBump: 253,
		},
	}))
}

func assertBalance(t *testing.T, s account.Store, address string, expected uint64) {
	actual, err := s.GetTokenAccount(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, expected, actual.Amount)
}

func assertSupply(t *testing.T, s account.Store, address string, expected uint64) {
	actual, err := s.GetMint(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, expected, actual.Supply)
}
