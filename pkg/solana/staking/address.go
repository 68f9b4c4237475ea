package staking

import (
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
)

var (
	PoolPrefix  = []byte("pool")
	VaultPrefix = []byte("vault")
	UserPrefix  = []byte("user")
)

func GetPoolAddress() (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		PoolPrefix,
	)
}

type GetVaultAddressArgs struct {
	Pool ed25519.PublicKey
}

func GetVaultAddress(args *GetVaultAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		VaultPrefix,
		args.Pool,
	)
}

type GetUserStakeAddressArgs struct {
	User ed25519.PublicKey
}

func GetUserStakeAddress(args *GetUserStakeAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		UserPrefix,
		args.User,
	)
}

// GetPoolSignerSeeds returns the seeds the pool signs with when moving vault
// funds or minting rewards.
func GetPoolSignerSeeds(bump uint8) [][]byte {
	return [][]byte{PoolPrefix, {bump}}
}
