package staking

import (
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
)

type ClaimRewardsInstructionAccounts struct {
	Pool            ed25519.PublicKey
	User            ed25519.PublicKey
	UserStake       ed25519.PublicKey
	RewardMint      ed25519.PublicKey
	UserRewardToken ed25519.PublicKey
}

// NewClaimRewardsInstruction builds claim_rewards, which mints everything
// owed to the user into their reward token account.
func NewClaimRewardsInstruction(accounts *ClaimRewardsInstructionAccounts) solana.Instruction {
	return solana.NewInstruction(
		PROGRAM_ADDRESS,
		newInstructionData(InstructionTypeClaimRewards, 0).Bytes(),
		solana.NewAccountMeta(accounts.Pool, false),
		solana.NewAccountMeta(accounts.User, true),
		solana.NewAccountMeta(accounts.UserStake, false),
		solana.NewAccountMeta(accounts.RewardMint, false),
		solana.NewAccountMeta(accounts.UserRewardToken, false),
		solana.NewReadonlyAccountMeta(SPL_TOKEN_PROGRAM_ID, false),
	)
}

func DecompileClaimRewardsInstruction(ix solana.Instruction) (*ClaimRewardsInstructionAccounts, error) {
	if err := checkInstruction(ix, InstructionTypeClaimRewards, 0, 6); err != nil {
		return nil, err
	}
	if err := checkPrograms(ix.Accounts[5:], SPL_TOKEN_PROGRAM_ID); err != nil {
		return nil, err
	}

	return &ClaimRewardsInstructionAccounts{
		Pool:            ix.Accounts[0].PublicKey,
		User:            ix.Accounts[1].PublicKey,
		UserStake:       ix.Accounts[2].PublicKey,
		RewardMint:      ix.Accounts[3].PublicKey,
		UserRewardToken: ix.Accounts[4].PublicKey,
	}, nil
}
