package staking

import (
	"bytes"

	"github.com/code-payments/code-staking/pkg/solana"
)

// DecodedInstruction is a staking instruction recovered from its wire form.
// Exactly one of the typed fields is set, matching Type.
type DecodedInstruction struct {
	Type InstructionType

	InitializePool *InitializePoolInstructionAccounts

	Stake     *StakeInstructionAccounts
	StakeArgs *StakeInstructionArgs

	Unstake     *UnstakeInstructionAccounts
	UnstakeArgs *UnstakeInstructionArgs

	ClaimRewards *ClaimRewardsInstructionAccounts
}

// DecodeInstruction recovers the kind, accounts and arguments of a staking
// program instruction.
func DecodeInstruction(ix solana.Instruction) (*DecodedInstruction, error) {
	if !bytes.Equal(ix.Program, PROGRAM_ID) {
		return nil, ErrInvalidProgram
	}

	res := &DecodedInstruction{
		Type: GetInstructionType(ix.Data),
	}

	var err error
	switch res.Type {
	case InstructionTypeInitializePool:
		res.InitializePool, err = DecompileInitializePoolInstruction(ix)
	case InstructionTypeStake:
		res.Stake, res.StakeArgs, err = DecompileStakeInstruction(ix)
	case InstructionTypeUnstake:
		res.Unstake, res.UnstakeArgs, err = DecompileUnstakeInstruction(ix)
	case InstructionTypeClaimRewards:
		res.ClaimRewards, err = DecompileClaimRewardsInstruction(ix)
	default:
		return nil, solana.ErrIncorrectInstruction
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
