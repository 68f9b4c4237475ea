package staking

import (
	"bytes"
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
)

type InitializePoolInstructionAccounts struct {
	Pool       ed25519.PublicKey
	Authority  ed25519.PublicKey
	StakeMint  ed25519.PublicKey
	RewardMint ed25519.PublicKey
	Vault      ed25519.PublicKey
}

// NewInitializePoolInstruction builds initialize_pool, which takes no
// arguments. The authority signs and pays.
func NewInitializePoolInstruction(accounts *InitializePoolInstructionAccounts) solana.Instruction {
	return solana.NewInstruction(
		PROGRAM_ADDRESS,
		newInstructionData(InstructionTypeInitializePool, 0).Bytes(),
		solana.NewAccountMeta(accounts.Pool, false),
		solana.NewAccountMeta(accounts.Authority, true),
		solana.NewReadonlyAccountMeta(accounts.StakeMint, false),
		solana.NewAccountMeta(accounts.RewardMint, false),
		solana.NewAccountMeta(accounts.Vault, false),
		solana.NewReadonlyAccountMeta(SYSTEM_PROGRAM_ID, false),
		solana.NewReadonlyAccountMeta(SPL_TOKEN_PROGRAM_ID, false),
		solana.NewReadonlyAccountMeta(SYSVAR_RENT_PUBKEY, false),
	)
}

func DecompileInitializePoolInstruction(ix solana.Instruction) (*InitializePoolInstructionAccounts, error) {
	if err := checkInstruction(ix, InstructionTypeInitializePool, 0, 8); err != nil {
		return nil, err
	}
	if err := checkPrograms(ix.Accounts[5:], SYSTEM_PROGRAM_ID, SPL_TOKEN_PROGRAM_ID, SYSVAR_RENT_PUBKEY); err != nil {
		return nil, err
	}

	return &InitializePoolInstructionAccounts{
		Pool:       ix.Accounts[0].PublicKey,
		Authority:  ix.Accounts[1].PublicKey,
		StakeMint:  ix.Accounts[2].PublicKey,
		RewardMint: ix.Accounts[3].PublicKey,
		Vault:      ix.Accounts[4].PublicKey,
	}, nil
}

// checkInstruction validates what every staking instruction shares: the
// program, discriminator, data and account counts, key sizes, and the
// signer flag on the second account.
func checkInstruction(ix solana.Instruction, expected InstructionType, argsSize, accountCount int) error {
	if !bytes.Equal(ix.Program, PROGRAM_ID) {
		return ErrInvalidProgram
	}
	if GetInstructionType(ix.Data) != expected {
		return solana.ErrIncorrectInstruction
	}
	if len(ix.Data) != discriminatorSize+argsSize || len(ix.Accounts) != accountCount {
		return ErrInvalidInstructionData
	}
	for _, account := range ix.Accounts {
		if len(account.PublicKey) != ed25519.PublicKeySize {
			return ErrInvalidInstructionData
		}
	}
	if !ix.Accounts[1].IsSigner {
		return ErrInvalidInstructionData
	}
	return nil
}

// checkPrograms verifies the trailing program and sysvar accounts.
func checkPrograms(accounts []solana.AccountMeta, programs ...ed25519.PublicKey) error {
	for i, program := range programs {
		if !bytes.Equal(accounts[i].PublicKey, program) {
			return ErrInvalidProgram
		}
	}
	return nil
}
