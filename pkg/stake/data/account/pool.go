package account

import (
	"errors"
	"time"
)

type PoolRecord struct {
	Id uint64

	Address    string
	Authority  string
	StakeMint  string
	RewardMint string
	Vault      string

	TotalStaked uint64

	// Rewards pay RewardRateNumerator/RewardRateDenominator of the staked
	// amount per RewardPeriod. Fixed when the pool is initialized.
	RewardRateNumerator   uint64
	RewardRateDenominator uint64
	RewardPeriod          time.Duration

	Bump      uint8
	VaultBump uint8

	CreatedAt time.Time
}

func (r *PoolRecord) Validate() error {
	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.Authority) == 0 {
		return errors.New("authority is required")
	}

	if len(r.StakeMint) == 0 {
		return errors.New("stake mint is required")
	}

	if len(r.RewardMint) == 0 {
		return errors.New("reward mint is required")
	}

	if r.StakeMint == r.RewardMint {
		return errors.New("stake and reward mints must be distinct")
	}

	if len(r.Vault) == 0 {
		return errors.New("vault is required")
	}

	if r.RewardRateDenominator == 0 {
		return errors.New("reward rate denominator must be positive")
	}

	if r.RewardPeriod < time.Second {
		return errors.New("reward period must be at least one second")
	}

	return nil
}

func (r *PoolRecord) Clone() PoolRecord {
	return PoolRecord{
		Id: r.Id,

		Address:    r.Address,
		Authority:  r.Authority,
		StakeMint:  r.StakeMint,
		RewardMint: r.RewardMint,
		Vault:      r.Vault,

		TotalStaked: r.TotalStaked,

		RewardRateNumerator:   r.RewardRateNumerator,
		RewardRateDenominator: r.RewardRateDenominator,
		RewardPeriod:          r.RewardPeriod,

		Bump:      r.Bump,
		VaultBump: r.VaultBump,

		CreatedAt: r.CreatedAt,
	}
}

func (r *PoolRecord) CopyTo(dst *PoolRecord) {
	dst.Id = r.Id

	dst.Address = r.Address
	dst.Authority = r.Authority
	dst.StakeMint = r.StakeMint
	dst.RewardMint = r.RewardMint
	dst.Vault = r.Vault

	dst.TotalStaked = r.TotalStaked

	dst.RewardRateNumerator = r.RewardRateNumerator
	dst.RewardRateDenominator = r.RewardRateDenominator
	dst.RewardPeriod = r.RewardPeriod

	dst.Bump = r.Bump
	dst.VaultBump = r.VaultBump

	dst.CreatedAt = r.CreatedAt
}

// StakeSummary is a point-in-time view of a pool's staking balances.
type StakeSummary struct {
	Pool string

	TotalStaked   uint64
	VaultBalance  uint64
	PositionSum   uint64
	PositionCount uint64
}

// IsConserved reports whether the vault balance, the pool counter and the sum
// of all positions agree.
func (s *StakeSummary) IsConserved() bool {
	return s.VaultBalance == s.PositionSum && s.TotalStaked == s.PositionSum
}
