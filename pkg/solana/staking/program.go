package staking

import (
	"crypto/ed25519"
	"errors"
)

var (
	ErrInvalidProgram         = errors.New("invalid program id")
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
)

var (
	PROGRAM_ADDRESS = mustBase58Decode("7V6ovzHukZ3ow9kKeT3KyYQbLjGbHoLHg58YwfkPaWvE")
	PROGRAM_ID      = ed25519.PublicKey(PROGRAM_ADDRESS)
)

// Programs and sysvars passed alongside staking instructions
var (
	SPL_TOKEN_PROGRAM_ID = ed25519.PublicKey(mustBase58Decode("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"))
	SYSTEM_PROGRAM_ID    = ed25519.PublicKey(mustBase58Decode("11111111111111111111111111111111"))
	SYSVAR_RENT_PUBKEY   = ed25519.PublicKey(mustBase58Decode("SysvarRent111111111111111111111111111111111"))
)
