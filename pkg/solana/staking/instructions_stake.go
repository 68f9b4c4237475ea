package staking

import (
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/layout"
)

const (
	StakeInstructionArgsSize = 8 // amount
)

type StakeInstructionArgs struct {
	Amount uint64
}

type StakeInstructionAccounts struct {
	Pool      ed25519.PublicKey
	User      ed25519.PublicKey
	UserToken ed25519.PublicKey
	Vault     ed25519.PublicKey
	UserStake ed25519.PublicKey
}

// NewStakeInstruction builds stake, moving args.Amount from the user's token
// account into the vault. The user stake account is created on first use,
// which is why the system program and rent sysvar are passed.
func NewStakeInstruction(accounts *StakeInstructionAccounts, args *StakeInstructionArgs) solana.Instruction {
	data := newInstructionData(InstructionTypeStake, StakeInstructionArgsSize).
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
		solana.NewReadonlyAccountMeta(SYSTEM_PROGRAM_ID, false),
		solana.NewReadonlyAccountMeta(SYSVAR_RENT_PUBKEY, false),
	)
}

func DecompileStakeInstruction(ix solana.Instruction) (*StakeInstructionAccounts, *StakeInstructionArgs, error) {
	if err := checkInstruction(ix, InstructionTypeStake, StakeInstructionArgsSize, 8); err != nil {
		return nil, nil, err
	}
	if err := checkPrograms(ix.Accounts[5:], SPL_TOKEN_PROGRAM_ID, SYSTEM_PROGRAM_ID, SYSVAR_RENT_PUBKEY); err != nil {
		return nil, nil, err
	}

	args := &StakeInstructionArgs{
		Amount: layout.NewDecoder(ix.Data[discriminatorSize:]).Uint64(),
	}
	return &StakeInstructionAccounts{
		Pool:      ix.Accounts[0].PublicKey,
		User:      ix.Accounts[1].PublicKey,
		UserToken: ix.Accounts[2].PublicKey,
		Vault:     ix.Accounts[3].PublicKey,
		UserStake: ix.Accounts[4].PublicKey,
	}, args, nil
}
