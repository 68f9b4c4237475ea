package staking

import (
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/layout"
)

const (
	UnstakeInstructionArgsSize = 8 // amount
)

type UnstakeInstructionArgs struct {
	Amount uint64
}

type UnstakeInstructionAccounts struct {
	Pool      ed25519.PublicKey
	User      ed25519.PublicKey
	UserToken ed25519.PublicKey
	Vault     ed25519.PublicKey
	UserStake ed25519.PublicKey
}

// NewUnstakeInstruction builds unstake, returning args.Amount from the vault
// to the user's token account with the pool signing.
func NewUnstakeInstruction(accounts *UnstakeInstructionAccounts, args *UnstakeInstructionArgs) solana.Instruction {
	data := newInstructionData(InstructionTypeUnstake, UnstakeInstructionArgsSize).
		Uint64(args.Amount).
		Bytes()

	return solana.NewInstruction(
		PROGRAM_ADDRESS,
		data,
		solana.NewAccountMeta(accounts.Pool, false),
		solana.NewAccountMeta(accounts.User, true),
		solana.NewAccountMeta(accounts.UserToken, false),
		solana.NewAccountMeta(accounts.Vault, false),
		solana.NewAccountMeta(accounts.UserStake, false),
		solana.NewReadonlyAccountMeta(SPL_TOKEN_PROGRAM_ID, false),
	)
}

func DecompileUnstakeInstruction(ix solana.Instruction) (*UnstakeInstructionAccounts, *UnstakeInstructionArgs, error) {
	if err := checkInstruction(ix, InstructionTypeUnstake, UnstakeInstructionArgsSize, 6); err != nil {
		return nil, nil, err
	}
	if err := checkPrograms(ix.Accounts[5:], SPL_TOKEN_PROGRAM_ID); err != nil {
		return nil, nil, err
	}

	args := &UnstakeInstructionArgs{
		Amount: layout.NewDecoder(ix.Data[discriminatorSize:]).Uint64(),
	}
	return &UnstakeInstructionAccounts{
		Pool:      ix.Accounts[0].PublicKey,
		User:      ix.Accounts[1].PublicKey,
		UserToken: ix.Accounts[2].PublicKey,
		Vault:     ix.Accounts[3].PublicKey,
		UserStake: ix.Accounts[4].PublicKey,
	}, args, nil
}
