package custody

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/token"
	"github.com/code-payments/code-staking/pkg/stake/auth"
	"github.com/code-payments/code-staking/pkg/stake/data/account/memory"
)

type testEnv struct {
	ctx     context.Context
	service *Service
}

func setup(t *testing.T) *testEnv {
	return &testEnv{
		ctx:     context.Background(),
		service: NewService(memory.New()),
	}
}

func TestMintAndTransfer(t *testing.T) {
	env := setup(t)

	mint := newKey(t)
	authority := newKey(t)
	alice := newKey(t)
	bob := newKey(t)

	require.NoError(t, env.service.CreateMint(env.ctx, mint, authority, 9))
	assert.Equal(t, ErrAccountExists, env.service.CreateMint(env.ctx, mint, authority, 9))

	aliceToken, err := env.service.CreateAssociatedTokenAccount(env.ctx, alice, mint)
	require.NoError(t, err)
	bobToken, err := env.service.CreateAssociatedTokenAccount(env.ctx, bob, mint)
	require.NoError(t, err)

	// Idempotent for the same owner and mint
	again, err := env.service.CreateAssociatedTokenAccount(env.ctx, alice, mint)
	require.NoError(t, err)
	assert.EqualValues(t, aliceToken, again)

	require.NoError(t, env.service.MintTo(env.ctx, mint, aliceToken, authority, 1_000))
	assert.Equal(t, ErrAuthorityMismatch, env.service.MintTo(env.ctx, mint, aliceToken, alice, 1_000))
	assert.Equal(t, ErrInvalidAmount, env.service.MintTo(env.ctx, mint, aliceToken, authority, 0))

	supply, err := env.service.Supply(env.ctx, mint)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000, supply)

	require.NoError(t, env.service.Transfer(env.ctx, aliceToken, bobToken, alice, 400))
	assert.Equal(t, ErrOwnerMismatch, env.service.Transfer(env.ctx, aliceToken, bobToken, bob, 1))
	assert.Equal(t, ErrInsufficientFunds, env.service.Transfer(env.ctx, aliceToken, bobToken, alice, 601))

	balance, err := env.service.Balance(env.ctx, aliceToken)
	require.NoError(t, err)
	assert.EqualValues(t, 600, balance)
	balance, err = env.service.Balance(env.ctx, bobToken)
	require.NoError(t, err)
	assert.EqualValues(t, 400, balance)

	_, err = env.service.Balance(env.ctx, mint)
	assert.Equal(t, ErrAccountNotFound, err)
	_, err = env.service.Supply(env.ctx, aliceToken)
	assert.Equal(t, ErrMintNotFound, err)
}

func TestMintMismatch(t *testing.T) {
	env := setup(t)

	mint1 := newKey(t)
	mint2 := newKey(t)
	authority := newKey(t)
	owner := newKey(t)

	require.NoError(t, env.service.CreateMint(env.ctx, mint1, authority, 6))
	require.NoError(t, env.service.CreateMint(env.ctx, mint2, authority, 6))

	token1, err := env.service.CreateAssociatedTokenAccount(env.ctx, owner, mint1)
	require.NoError(t, err)
	token2, err := env.service.CreateAssociatedTokenAccount(env.ctx, owner, mint2)
	require.NoError(t, err)

	require.NoError(t, env.service.MintTo(env.ctx, mint1, token1, authority, 10))
	assert.Equal(t, ErrMintMismatch, env.service.MintTo(env.ctx, mint1, token2, authority, 10))
	assert.Equal(t, ErrMintMismatch, env.service.Transfer(env.ctx, token1, token2, owner, 10))

	missing := newKey(t)
	assert.Equal(t, ErrAccountNotFound, env.service.CreateTokenAccount(env.ctx, missing, missing, owner))
}

func TestSetMintAuthority(t *testing.T) {
	env := setup(t)

	mint := newKey(t)
	authority := newKey(t)
	next := newKey(t)
	owner := newKey(t)

	require.NoError(t, env.service.CreateMint(env.ctx, mint, authority, 9))
	destination, err := env.service.CreateAssociatedTokenAccount(env.ctx, owner, mint)
	require.NoError(t, err)

	assert.Equal(t, ErrAuthorityMismatch, env.service.SetMintAuthority(env.ctx, mint, next, owner))
	require.NoError(t, env.service.SetMintAuthority(env.ctx, mint, authority, next))

	assert.Equal(t, ErrAuthorityMismatch, env.service.MintTo(env.ctx, mint, destination, authority, 1))
	require.NoError(t, env.service.MintTo(env.ctx, mint, destination, next, 1))

	// Disable minting entirely
	require.NoError(t, env.service.SetMintAuthority(env.ctx, mint, next, nil))
	assert.Equal(t, ErrAuthorityMismatch, env.service.MintTo(env.ctx, mint, destination, next, 1))

	data, err := env.service.GetAccountData(env.ctx, mint)
	require.NoError(t, err)
	var state token.Mint
	require.True(t, state.Unmarshal(data))
	assert.Nil(t, state.MintAuthority)
	assert.EqualValues(t, 1, state.Supply)
	assert.EqualValues(t, 9, state.Decimals)
}

func TestProgramDerivedAuthorities(t *testing.T) {
	env := setup(t)

	mint := newKey(t)
	authority := newKey(t)
	alice := newKey(t)

	program := newKey(t)
	pda, err := solana.FindProgramAddress(program, []byte("pool"))
	require.NoError(t, err)
	require.False(t, solana.IsOnCurve(pda))

	require.NoError(t, env.service.CreateMint(env.ctx, mint, authority, 9))
	aliceToken, err := env.service.CreateAssociatedTokenAccount(env.ctx, alice, mint)
	require.NoError(t, err)
	require.NoError(t, env.service.MintTo(env.ctx, mint, aliceToken, authority, 1_000))

	// Handing authority to a program derived address is allowed
	require.NoError(t, env.service.SetMintAuthority(env.ctx, mint, authority, pda))

	assert.Equal(t, ErrProgramSigner, env.service.MintTo(env.ctx, mint, aliceToken, pda, 1))
	assert.Equal(t, ErrProgramSigner, env.service.SetMintAuthority(env.ctx, mint, pda, alice))

	vault := newKey(t)
	require.NoError(t, env.service.CreateTokenAccount(env.ctx, vault, mint, pda))
	require.NoError(t, env.service.Transfer(env.ctx, aliceToken, vault, alice, 100))
	assert.Equal(t, ErrProgramSigner, env.service.Transfer(env.ctx, vault, aliceToken, pda, 100))

	balance, err := env.service.Balance(env.ctx, vault)
	require.NoError(t, err)
	assert.EqualValues(t, 100, balance)

	supply, err := env.service.Supply(env.ctx, mint)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000, supply)
}

func TestProcess(t *testing.T) {
	env := setup(t)

	mint := newKey(t)
	authorityPub, authority := newKeyPair(t)
	ownerPub, owner := newKeyPair(t)
	recipient := newKey(t)

	require.NoError(t, env.service.Process(env.ctx, token.InitializeMint(mint, authorityPub, 9), nil))

	createIx, ownerToken, err := token.CreateAssociatedTokenAccount(ownerPub, ownerPub, mint)
	require.NoError(t, err)
	require.NoError(t, env.service.Process(env.ctx, createIx, sign(t, createIx, owner)))

	recipientToken, err := env.service.CreateAssociatedTokenAccount(env.ctx, recipient, mint)
	require.NoError(t, err)

	mintIx := token.MintTo(mint, ownerToken, authorityPub, 500)
	assert.Error(t, env.service.Process(env.ctx, mintIx, nil))
	require.NoError(t, env.service.Process(env.ctx, mintIx, sign(t, mintIx, authority)))

	// The owner can't be dropped from the signer set
	unsignedIx := token.Transfer(ownerToken, recipientToken, ownerPub, 200)
	unsignedIx.Accounts[2].IsSigner = false
	assert.Equal(t, auth.ErrMissingSigner, env.service.Process(env.ctx, unsignedIx, nil))

	transferIx := token.Transfer(ownerToken, recipientToken, ownerPub, 200)
	require.NoError(t, env.service.Process(env.ctx, transferIx, sign(t, transferIx, owner)))

	data, err := env.service.GetAccountData(env.ctx, recipientToken)
	require.NoError(t, err)
	var state token.Account
	require.True(t, state.Unmarshal(data))
	assert.EqualValues(t, 200, state.Amount)
	assert.EqualValues(t, mint, state.Mint)
	assert.EqualValues(t, recipient, state.Owner)

	// Hand mint authority to another key
	setIx := token.SetAuthority(mint, authorityPub, recipient, token.AuthorityTypeMintTokens)
	require.NoError(t, env.service.Process(env.ctx, setIx, sign(t, setIx, authority)))

	freezeIx := token.SetAuthority(mint, recipient, authorityPub, token.AuthorityTypeFreezeAccount)
	assert.Error(t, env.service.Process(env.ctx, freezeIx, nil))

	supply, err := env.service.Supply(env.ctx, mint)
	require.NoError(t, err)
	assert.EqualValues(t, 500, supply)
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

func sign(t *testing.T, ix solana.Instruction, keys ...ed25519.PrivateKey) []solana.Signature {
	sigs, err := ix.Sign(keys...)
	require.NoError(t, err)
	return sigs
}
