package ledger

import (
	"github.com/mr-tron/base58"

	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/staking"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

// rewardAuthority is the pool's signing capability over the reward mint. It
// only exists for the duration of a ClaimRewards transition.
type rewardAuthority struct {
	signer     string
	rewardMint string
}

// newRewardAuthority proves the pool can sign for itself by re-deriving its
// address from the stored bump.
func newRewardAuthority(pool *account.PoolRecord) (*rewardAuthority, error) {
	signer, err := solana.CreateProgramAddress(staking.PROGRAM_ID, staking.GetPoolSignerSeeds(pool.Bump)...)
	if err != nil {
		return nil, ErrInvalidDerivedAddress
	}

	if base58.Encode(signer) != pool.Address {
		return nil, ErrInvalidDerivedAddress
	}

	return &rewardAuthority{
		signer:     pool.Address,
		rewardMint: pool.RewardMint,
	}, nil
}

// mintRewards stages a mint of exactly amount reward tokens into destination
func (a *rewardAuthority) mintRewards(changeset *account.Changeset, destination string, amount uint64) {
	changeset.MintTos = append(changeset.MintTos, &account.MintTo{
		Mint:        a.rewardMint,
		Destination: destination,
		Authority:   a.signer,
		Amount:      amount,
	})
}
