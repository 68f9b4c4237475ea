// Package system holds well known system program and sysvar addresses.
package system

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
)

var (
	// ProgramKey is the system program, whose address is all zeroes.
	ProgramKey [ed25519.PublicKeySize]byte

	// RentSysVar is the rent sysvar required by token account
	// initialization.
	RentSysVar = mustDecode("SysvarRent111111111111111111111111111111111")
)

func mustDecode(address string) ed25519.PublicKey {
	key, err := base58.Decode(address)
	if err != nil || len(key) != ed25519.PublicKeySize {
		panic("invalid well known address: " + address)
	}
	return key
}
