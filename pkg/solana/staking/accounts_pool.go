package staking

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/code-payments/code-staking/pkg/solana/layout"
)

const (
	PoolAccountSize = (discriminatorSize +
		32 + // authority
		32 + // stake_mint
		32 + // reward_mint
		32 + // vault
		8 + // total_staked
		8 + // reward_rate_numerator
		8 + // reward_rate_denominator
		8 + // reward_period_seconds
		1 + // bump
		1) // vault_bump
)

var PoolAccountDiscriminator = anchorDiscriminator("account", "Pool")

type PoolAccount struct {
	Authority             ed25519.PublicKey
	StakeMint             ed25519.PublicKey
	RewardMint            ed25519.PublicKey
	Vault                 ed25519.PublicKey
	TotalStaked           uint64
	RewardRateNumerator   uint64
	RewardRateDenominator uint64
	RewardPeriodSeconds   uint64
	Bump                  uint8
	VaultBump             uint8
}

func (obj *PoolAccount) Marshal() []byte {
	return layout.NewEncoder(PoolAccountSize).
		Raw(PoolAccountDiscriminator).
		Key(obj.Authority).
		Key(obj.StakeMint).
		Key(obj.RewardMint).
		Key(obj.Vault).
		Uint64(obj.TotalStaked).
		Uint64(obj.RewardRateNumerator).
		Uint64(obj.RewardRateDenominator).
		Uint64(obj.RewardPeriodSeconds).
		Uint8(obj.Bump).
		Uint8(obj.VaultBump).
		Bytes()
}

func (obj *PoolAccount) Unmarshal(data []byte) error {
	if len(data) < PoolAccountSize || !bytes.HasPrefix(data, PoolAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	d := layout.NewDecoder(data[discriminatorSize:])
	obj.Authority = d.Key()
	obj.StakeMint = d.Key()
	obj.RewardMint = d.Key()
	obj.Vault = d.Key()
	obj.TotalStaked = d.Uint64()
	obj.RewardRateNumerator = d.Uint64()
	obj.RewardRateDenominator = d.Uint64()
	obj.RewardPeriodSeconds = d.Uint64()
	obj.Bump = d.Uint8()
	obj.VaultBump = d.Uint8()
	return nil
}

func (obj *PoolAccount) String() string {
	return fmt.Sprintf(
		"Pool{authority=%s,stake_mint=%s,reward_mint=%s,vault=%s,total_staked=%d,reward_rate=%d/%d,reward_period=%ds,bump=%d,vault_bump=%d}",
		base58.Encode(obj.Authority),
		base58.Encode(obj.StakeMint),
		base58.Encode(obj.RewardMint),
		base58.Encode(obj.Vault),
		obj.TotalStaked,
		obj.RewardRateNumerator,
		obj.RewardRateDenominator,
		obj.RewardPeriodSeconds,
		obj.Bump,
		obj.VaultBump,
	)
}
