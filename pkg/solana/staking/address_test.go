package staking

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-staking/pkg/solana"
)

func TestGetPoolAddress(t *testing.T) {
	pool, bump, err := GetPoolAddress()
	require.NoError(t, err)

	expected, err := solana.CreateProgramAddress(PROGRAM_ID, PoolPrefix, []byte{bump})
	require.NoError(t, err)
	assert.EqualValues(t, expected, pool)

	// Pool signer seeds must reproduce the pool address
	signer, err := solana.CreateProgramAddress(PROGRAM_ID, GetPoolSignerSeeds(bump)...)
	require.NoError(t, err)
	assert.EqualValues(t, pool, signer)

	again, againBump, err := GetPoolAddress()
	require.NoError(t, err)
	assert.EqualValues(t, pool, again)
	assert.Equal(t, bump, againBump)
}

func TestGetVaultAddress(t *testing.T) {
	pool, _, err := GetPoolAddress()
	require.NoError(t, err)

	vault, bump, err := GetVaultAddress(&GetVaultAddressArgs{Pool: pool})
	require.NoError(t, err)

	valid, err := solana.VerifyProgramAddress(vault, PROGRAM_ID, bump, VaultPrefix, pool)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.NotEqual(t, pool, vault)
}

func TestGetUserStakeAddress(t *testing.T) {
	user1, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	user2, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	address1, bump1, err := GetUserStakeAddress(&GetUserStakeAddressArgs{User: user1})
	require.NoError(t, err)
	address2, _, err := GetUserStakeAddress(&GetUserStakeAddressArgs{User: user2})
	require.NoError(t, err)
	assert.NotEqual(t, address1, address2)

	for i := 0; i < 5; i++ {
		actual, bump, err := GetUserStakeAddress(&GetUserStakeAddressArgs{User: user1})
		require.NoError(t, err)
		assert.EqualValues(t, address1, actual)
		assert.Equal(t, bump1, bump)
	}
}
